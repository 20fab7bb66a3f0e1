package auth

import (
	"net/http"
	"strings"

	"github.com/civisight/portal/pkg/models"
	"github.com/gin-gonic/gin"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// PrincipalContextKey is the gin key holding the authenticated principal
	PrincipalContextKey contextKey = "auth_principal"
)

// GinMiddleware rejects requests that do not carry a valid bearer token.
func (s *Service) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.logger.Warn("Authentication failed", map[string]interface{}{
				"error": "missing bearer token",
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		principal, err := s.ValidateJWT(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			s.logger.Warn("Authentication failed", map[string]interface{}{
				"error": err.Error(),
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set(string(PrincipalContextKey), principal)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), principal))

		s.logger.Debug("Authentication successful", map[string]interface{}{
			"user_id": principal.ID,
			"role":    string(principal.Role),
			"path":    c.Request.URL.Path,
		})
		c.Next()
	}
}

// RequireRole lets through principals holding one of roles. Admins always pass.
func (s *Service) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if p.Role == models.RoleAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	}
}

// GetPrincipal retrieves the authenticated principal from the gin context
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(string(PrincipalContextKey))
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
