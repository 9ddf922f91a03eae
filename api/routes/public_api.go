package routes

import (
	"net/http"

	"socialgraph/api/handlers"
	"socialgraph/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options is what the router needs besides the handlers
type Options struct {
	Auth          middleware.Authenticator
	SendThrottle  middleware.RateLimiter
	CORSOrigins   []string
	ServiceName   string
	HealthChecker func() error
	// EventStats, when set, is reported under "events" by /health
	EventStats func() map[string]interface{}
}

func NewRouter(h *handlers.Handlers, opts Options) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "socialgraph"
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(opts.CORSOrigins))
	router.Use(middleware.PrometheusMiddleware(opts.ServiceName))

	router.GET("/health", func(c *gin.Context) {
		if opts.HealthChecker != nil {
			if err := opts.HealthChecker(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		body := gin.H{"status": "ok"}
		if opts.EventStats != nil {
			body["events"] = opts.EventStats()
		}
		c.JSON(http.StatusOK, body)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	PublicApi(router, h, opts)
	return router
}

func PublicApi(router *gin.Engine, h *handlers.Handlers, opts Options) *gin.RouterGroup {
	auth := middleware.AuthMiddleware(opts.Auth)

	publicEndpoints := router.Group("/api/v1/")
	{
		publicEndpoints.POST("users/register", h.Register)
		publicEndpoints.POST("users/login", h.Login)
		publicEndpoints.GET("users", auth, h.UserSearch)
	}

	authed := router.Group("/api/v1/users/", auth)
	{
		authed.GET("get/:id", h.UserGet)
		authed.POST("logout", h.Logout)

		// friend requests
		authed.POST("send_friend_request", middleware.Throttle(opts.SendThrottle, "send_friend_request"), h.SendFriendRequest)
		authed.PUT("accept_friend_request/:id", h.AcceptFriendRequest)
		authed.PATCH("accept_friend_request/:id", h.AcceptFriendRequest)
		authed.DELETE("reject_friend_request/:id", h.RejectFriendRequest)
		authed.GET("friends", h.GetFriends)
		authed.GET("pending_friend_requests", h.GetPendingRequests)
	}
	return publicEndpoints
}
