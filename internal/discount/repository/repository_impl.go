package repository

import (
	"context"
	"time"

	"github.com/pinksky/orderflow/internal/discount/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, code *domain.DiscountCode) error {
	return db.WithContext(ctx).Create(code).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.DiscountCode, error) {
	var items []domain.DiscountCode
	if err := db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.DiscountCode, error) {
	var items []domain.DiscountCode
	if err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.DiscountCode, error) {
	var items []domain.DiscountCode
	if err := db.WithContext(ctx).Order("code ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status domain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE discount_codes SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	).Error
}

func (r *repo) Redeem(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE discount_codes
		 SET usage_count = usage_count + 1, updated_at = ?
		 WHERE id = ? AND status = ? AND (usage_limit = 0 OR usage_count < usage_limit)`,
		time.Now().UTC(), id, domain.StatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
