package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reviewdomain "github.com/pinksky/orderflow/internal/review/domain"
)

func (s *Server) ReviewSession(c *gin.Context) {
	var req reviewdomain.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.reviewSvc.Review(c.Request.Context(), c.Param("id"), req, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) RecreateSigningDocument(c *gin.Context) {
	session, err := s.reviewSvc.RecreateSigningDocument(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
