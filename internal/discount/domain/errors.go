package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrInvalidDiscountCode    = apperror.Domain("invalid_discount_code", "Invalid or expired discount code")
	ErrDiscountAlreadyApplied = apperror.Domain("discount_already_applied", "a discount code has already been applied")
	ErrTooManyAttempts        = apperror.Domain("too_many_discount_attempts", "too many discount code attempts, try again later")
	ErrDuplicateCode          = apperror.Domain("duplicate_discount_code", "discount code already exists")
	ErrNotFound               = apperror.NotFound("discount_code_not_found", "discount code not found")
)
