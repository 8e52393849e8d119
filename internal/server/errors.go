package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pinksky/orderflow/pkg/apperror"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string                `json:"type"`
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = apperror.Validation("unauthorized", "unauthorized")
	ErrNotFound     = apperror.NotFound("not_found", "not found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return apperror.Validation("invalid_request", "invalid request",
		apperror.FieldError{Field: "request", Code: "invalid_request", Message: "request body is not valid"})
}

func newValidationError(field, code, message string) error {
	return apperror.Validation(code, message, apperror.FieldError{Field: field, Code: code, Message: message})
}

// mapError turns an error into a status and a body. Causes are never exposed.
func mapError(err error) (int, errorPayload) {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    "unauthorized",
			Message: "unauthorized",
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    string(apperror.KindNotFound),
			Code:    "not_found",
			Message: "not found",
		}
	}

	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}

	payload := errorPayload{
		Type:    string(appErr.Kind),
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	switch appErr.Kind {
	case apperror.KindValidation:
		payload.Errors = appErr.Fields
		return http.StatusUnprocessableEntity, payload
	case apperror.KindDomain:
		return http.StatusConflict, payload
	case apperror.KindNotFound:
		return http.StatusNotFound, payload
	case apperror.KindExternal:
		return http.StatusBadGateway, payload
	default:
		payload.Type = "internal_error"
		payload.Message = "internal server error"
		return http.StatusInternalServerError, payload
	}
}

// classifyErrorForLog feeds the access log with the error kind and code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	if appErr, ok := apperror.As(err); ok {
		return string(appErr.Kind), appErr.Code
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(apperror.KindNotFound), "not_found"
	}
	return "internal_error", "internal_error"
}
