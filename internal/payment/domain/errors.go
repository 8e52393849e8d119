package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrInvalidCallbackStatus = apperror.Validation("invalid_callback_status", "status must be successful or cancelled",
		apperror.FieldError{Field: "status", Code: "oneof", Message: "status must be one of successful cancelled"})

	ErrInvalidID            = apperror.Validation("invalid_payment_id", "invalid payment id")
	ErrPaymentNotFound      = apperror.NotFound("payment_not_found", "payment not found")
	ErrSessionNotFound      = apperror.NotFound("session_not_found", "order not found")
	ErrPaymentNotLinked     = apperror.Domain("payment_not_linked", "payment does not belong to an order")
	ErrPaymentNotOpened     = apperror.Domain("payment_not_opened", "payment was never sent to the processor")
	ErrPaymentNotPending    = apperror.Domain("payment_not_pending", "payment is no longer pending")
	ErrPaymentNotConfirmed  = apperror.Domain("payment_not_confirmed", "payment has not been confirmed yet")
	ErrUnderpaid            = apperror.Domain("payment_underpaid", "payment amount did not cover the order total")
	ErrCallbackInProgress   = apperror.Domain("callback_in_progress", "payment is being processed, try again shortly")
	ErrCheckoutInProgress   = apperror.Domain("checkout_in_progress", "another checkout for this order is in progress, try again shortly")
	ErrSessionAlreadyPaid   = apperror.Domain("order_already_paid", "order has already been paid")
	ErrPaymentAlreadyLinked = apperror.Domain("payment_already_linked", "payment already belongs to an order")
	ErrRefundInProgress     = apperror.Domain("refund_in_progress", "a refund for this payment is already in progress")
	ErrPaymentNotRefundable = apperror.Integrity("payment_not_refundable", nil)
	ErrGatewayUnavailable   = apperror.External("gateway_unavailable", "payment service unavailable, please try again", nil)
	ErrGatewayNotConfigured = apperror.Integrity("gateway_not_configured", nil)
)
