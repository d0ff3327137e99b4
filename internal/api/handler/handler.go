package handler

import (
	"errors"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/twissandra/internal/api/middleware"
	"github.com/d60-Lab/twissandra/internal/service"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/pkg/response"
)

type Handler struct {
	userService     service.UserService
	relService      service.RelationshipService
	timelineService service.TimelineService
	auth            *middleware.Auth
}

func New(users service.UserService, rel service.RelationshipService, timeline service.TimelineService, auth *middleware.Auth) *Handler {
	return &Handler{userService: users, relService: rel, timelineService: timeline, auth: auth}
}

// respondError maps service and store errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrFollowSelf):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotAuthenticated), errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrUserExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, store.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		response.ServiceUnavailable(c, err)
	default:
		response.InternalError(c, err)
	}
}

// reportWarning sends err to Sentry at warning level when the request
// carries a hub.
func reportWarning(c *gin.Context, err error, tags map[string]string) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
