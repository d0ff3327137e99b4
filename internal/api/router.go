// Package api wires the HTTP surface onto the services.
package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/internal/api/handler"
	"github.com/d60-Lab/twissandra/internal/api/middleware"
)

func NewRouter(cfg *config.Config, h *handler.Handler, auth *middleware.Auth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(), gzip.Gzip(gzip.DefaultCompression))
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if cfg.Sentry.DSN != "" {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	v1 := r.Group("/api/v1")
	v1.POST("/users", h.Register)
	v1.GET("/users/:username", h.GetUser)
	v1.POST("/auth/token", h.IssueToken)

	v1.GET("/tweets/:id", h.GetTweet)
	v1.GET("/users/:username/userline", h.GetUserline)
	v1.GET("/users/:username/timeline", h.GetTimeline)
	v1.GET("/public", h.GetPublicLine)

	v1.GET("/relations/:username/friends", h.ListFriends)
	v1.GET("/relations/:username/followers", h.ListFollowers)
	v1.GET("/relations/:username/inconsistent", h.ListInconsistentEdges)

	authed := v1.Group("", auth.RequireAuth())
	authed.POST("/tweets",
		middleware.RateLimit(rate.Limit(cfg.Server.PostRateLimit), cfg.Server.PostRateBurst),
		h.PostTweet)
	authed.POST("/relations/follow", h.Follow)
	authed.POST("/relations/unfollow", h.Unfollow)

	return r
}
