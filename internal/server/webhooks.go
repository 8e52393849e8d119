package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reviewdomain "github.com/pinksky/orderflow/internal/review/domain"
	"go.uber.org/zap"
)

func (s *Server) HandleSignerWebhook(c *gin.Context) {
	var event reviewdomain.SignerEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.reviewSvc.HandleSignerWebhook(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Debug("signer webhook handled",
		zap.String("event_type", event.EventType),
		zap.String("outcome", string(result.Outcome)),
		zap.String("session_id", result.SessionID),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
