// Package tenant carries the authenticated tenant ID through a request's
// context, mirroring internal/requestid.
package tenant

import "context"

type ctxKey struct{}

// WithTenantID returns a copy of ctx with the tenant ID attached.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
