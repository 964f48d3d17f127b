package domain

import "errors"

// ErrUnauthorized is returned by the JWT middleware collaborator when a
// request carries no valid tenant identity. Authentication itself — token
// issuance, identity storage — is out of scope (§1); the core only needs a
// way to signal that tenant extraction failed.
var ErrUnauthorized = errors.New("unauthorized")
