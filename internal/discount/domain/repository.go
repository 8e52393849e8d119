package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, code *DiscountCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*DiscountCode, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*DiscountCode, error)
	List(ctx context.Context, db *gorm.DB) ([]DiscountCode, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status Status) error
	// Redeem increments usage_count only while the code is active and under
	// its limit. It reports false when no row qualified.
	Redeem(ctx context.Context, db *gorm.DB, id int64) (bool, error)
}
