package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ganeshmittapally/ReportScheduler/internal/tenant"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const tenantIDKey = "tenantID"

// AuthConfig carries the claims an externally issued JWT must satisfy.
// Token issuance and identity storage are out of scope for this core; it
// only verifies what another system signed.
type AuthConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// Auth validates a Bearer JWT and extracts tenant_id into the gin context,
// so every downstream handler can scope its repository calls by tenant
// without re-parsing the token.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c)
			return
		}
		rawToken := strings.TrimPrefix(header, "Bearer ")

		var parserOpts []jwt.ParserOption
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}
		if cfg.Audience != "" {
			parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
		}

		token, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return cfg.Secret, nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			abortUnauthorized(c)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortUnauthorized(c)
			return
		}

		tenantID, ok := claims["tenant_id"].(string)
		if !ok || tenantID == "" {
			abortUnauthorized(c)
			return
		}

		c.Set(tenantIDKey, tenantID)
		c.Request = c.Request.WithContext(tenant.WithTenantID(c.Request.Context(), tenantID))
		if userID, ok := claims["sub"].(string); ok {
			c.Set("userID", userID)
		}
		c.Next()
	}
}

// TenantID reads the tenant_id extracted by Auth.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantIDKey)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "UNAUTHORIZED", "message": "missing or invalid bearer token"},
	})
}
