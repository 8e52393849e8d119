package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*DiscountCode, error)
	List(ctx context.Context) ([]DiscountCode, error)
	Deactivate(ctx context.Context, code string) (*DiscountCode, error)
	// Validate returns ErrInvalidDiscountCode for both unknown and unusable codes.
	Validate(ctx context.Context, code string) (*DiscountCode, error)
	// Apply validates, calculates and redeems inside tx. Nothing is
	// incremented when it returns an error.
	Apply(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) (Application, error)
}

type CreateRequest struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Type       Type            `json:"type" validate:"required,oneof=percentage fixed"`
	Value      decimal.Decimal `json:"value"`
	StartDate  *time.Time      `json:"start_date"`
	EndDate    *time.Time      `json:"end_date"`
	UsageLimit *int            `json:"usage_limit" validate:"omitempty,gte=0"`
}
