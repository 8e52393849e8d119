package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrInvalidID         = apperror.Validation("invalid_session_id", "invalid order id")
	ErrSessionNotFound   = apperror.NotFound("session_not_found", "order not found")
	ErrUnknownStep       = apperror.Validation("unknown_step", "unknown intake step")
	ErrInvalidPayload    = apperror.Validation("invalid_payload", "request body is not valid JSON")
	ErrSessionLocked     = apperror.Domain("session_locked", "this order can no longer be changed")
	ErrInvalidTransition = apperror.Domain("invalid_transition", "this action is not allowed for the order's current status")
	ErrPaymentRequired   = apperror.Domain("payment_required", "payment has not been completed")
	ErrAlreadyReviewed   = apperror.Domain("already_reviewed", "order has already been reviewed")
	ErrNotReadyForReview = apperror.Domain("not_ready_for_review", "order is not awaiting review")
	ErrSessionClosed     = apperror.Domain("session_closed", "order is closed")
	ErrNotDirectOrder    = apperror.Domain("not_direct_order", "action only applies to direct checkout orders")
	ErrProductsLocked    = apperror.Domain("products_locked", "products cannot change after a discount is applied")
	ErrShippingRequired  = apperror.Missing("shipping_required", "shipping")
	ErrReasonTooShort    = apperror.Validation("reason_too_short", "reason must be at least 10 characters",
		apperror.FieldError{Field: "reason", Code: "min", Message: "reason must be at least 10 characters"})
)

// MinReasonLength is the shortest accepted note for unfulfilled, refunded and cancelled orders.
const MinReasonLength = 10
