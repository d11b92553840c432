package http

import (
	"net/http"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/domain"
	"marketplace-service/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID = "userId"
	ctxRole   = "role"
)

// RequireAuth accepts a bearer token and loads the caller from the user table, so the role
// seen by handlers is the stored one rather than the one baked into the token.
func RequireAuth(tokens *auth.Tokens, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Parse(auth.FromRequest(c.Request, false))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		u, err := users.Authorize(c.Request.Context(), claims.UserID)
		if err != nil {
			c.Abort()
			respondError(c, err)
			return
		}

		c.Set(ctxUserID, u.ID)
		c.Set(ctxRole, u.Role)
		c.Next()
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := currentRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func currentUserID(c *gin.Context) uint64 {
	return c.GetUint64(ctxUserID)
}

func currentRole(c *gin.Context) domain.Role {
	v, _ := c.Get(ctxRole)
	role, _ := v.(domain.Role)
	return role
}
