package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HandlePaymentCallback reconciles a payment after the customer returns from
// the gateway. The status query is a hint; the gateway is asked for the truth.
func (s *Server) HandlePaymentCallback(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	if status == "" {
		AbortWithError(c, newValidationError("status", "required", "status is required"))
		return
	}

	result, err := s.paymentSvc.Callback(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
