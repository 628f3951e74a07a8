package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/immatt-0/lenbrary/internal/auth"
	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/services"
)

const ctxUserKey = "currentUser"

// AuthRequired validates the bearer token and loads the caller into the
// request context. Role and ownership checks happen in the services.
func AuthRequired(tokens *auth.Manager, accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := tokens.Parse(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		user, err := accounts.GetUser(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUserKey).(*models.User)
}
