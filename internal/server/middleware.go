package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/pinksky/orderflow/internal/observability/context"
	obslogger "github.com/pinksky/orderflow/internal/observability/logger"
)

// ActorRequired rejects admin calls that do not carry the acting user.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorFrom(c) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	if actor := obscontext.ActorFromContext(c.Request.Context()); actor != "" {
		return actor
	}
	return strings.TrimSpace(c.GetHeader(obslogger.HeaderActorID))
}
