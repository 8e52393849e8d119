package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
)

type startSessionRequest struct {
	SourcePath string                 `json:"source_path"`
	Currency   string                 `json:"currency"`
	Location   string                 `json:"location"`
	Contact    *paymentdomain.Contact `json:"contact"`
}

func (s *Server) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.sessionSvc.Start(c.Request.Context(), formsessiondomain.StartRequest{
		SourcePath: strings.TrimSpace(req.SourcePath),
		Currency:   strings.TrimSpace(req.Currency),
		UserAgent:  c.Request.UserAgent(),
		Location:   strings.TrimSpace(req.Location),
		Contact:    req.Contact,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) UpdateSessionStep(c *gin.Context) {
	step, err := formsessiondomain.ParseStep(c.Param("step"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(strings.TrimSpace(string(payload))) == 0 || !json.Valid(payload) {
		AbortWithError(c, formsessiondomain.ErrInvalidPayload)
		return
	}

	result, err := s.sessionSvc.UpdateStep(c.Request.Context(), c.Param("id"), step, json.RawMessage(payload))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CompleteSession(c *gin.Context) {
	session, err := s.sessionSvc.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) GetSession(c *gin.Context) {
	view, err := s.sessionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ListSessionActivities(c *gin.Context) {
	activities, err := s.sessionSvc.ListActivities(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": activities})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) MarkSessionCompleted(c *gin.Context) {
	session, err := s.sessionSvc.MarkCompleted(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) MarkSessionUnfulfilled(c *gin.Context) {
	s.withReason(c, s.sessionSvc.MarkUnfulfilled)
}

func (s *Server) RefundSession(c *gin.Context) {
	s.withReason(c, s.sessionSvc.MarkRefunded)
}

func (s *Server) CancelSession(c *gin.Context) {
	s.withReason(c, s.sessionSvc.Cancel)
}

type reasonAction func(ctx context.Context, id, reason, actor string) (*formsessiondomain.FormSession, error)

func (s *Server) withReason(c *gin.Context, action reasonAction) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := action(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Reason), actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
