package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrInvalidID         = apperror.Validation("invalid_checkout_id", "invalid checkout id")
	ErrCheckoutNotFound  = apperror.NotFound("checkout_not_found", "checkout not found")
	ErrCheckoutExpired   = apperror.Domain("checkout_expired", "checkout has expired, please start again")
	ErrCheckoutClosed    = apperror.Domain("checkout_closed", "checkout can no longer be changed")
	ErrDiscountCodeEmpty = apperror.Missing("discount_code_required", "code")
)
