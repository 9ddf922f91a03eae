package handlers

import (
	"strconv"

	"socialgraph/api/middleware"
	"socialgraph/models"
	apperr "socialgraph/pkg/errors"
	"socialgraph/pkg/logger"
	"socialgraph/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "socialgraph"

// Handlers binds the HTTP surface to the services
type Handlers struct {
	Friends *services.FriendService
	Search  *services.SearchService
	Auth    *services.AuthService
	Users   services.IdentityStore
}

func New(friends *services.FriendService, search *services.SearchService, auth *services.AuthService, users services.IdentityStore) *Handlers {
	return &Handlers{Friends: friends, Search: search, Auth: auth, Users: users}
}

// respondError writes {"error": msg} with the status of err's type.
// Internal errors are logged and their detail hidden.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if apperr.TypeOf(err) == apperr.ErrorTypeInternal {
		logger.Get().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func currentUser(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		respondError(c, apperr.Unauthorized("authentication required"))
		return nil, false
	}
	return user, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.BadRequest("invalid "+name))
		return 0, false
	}
	return id, true
}

// intQuery returns def for a missing parameter and false (after responding)
// for a malformed one.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, apperr.BadRequest("invalid "+name))
		return 0, false
	}
	return n, true
}
