package middleware

import (
	"context"
	"net/http"
	"strings"

	"socialgraph/models"
	apperr "socialgraph/pkg/errors"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key the authenticated *models.User is stored under
const UserKey = "user"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware requires "Authorization: Bearer <token>" and stores the
// resolved user in the context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !strings.HasPrefix(header, "Bearer ") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware, or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
