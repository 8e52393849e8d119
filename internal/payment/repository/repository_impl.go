package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var items []domain.Payment
	if err := db.Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindProducts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentProduct, error) {
	var items []domain.PaymentProduct
	if err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.Status, fields map[string]any) (bool, error) {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) LinkSessionIf(ctx context.Context, db *gorm.DB, id, sessionID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND form_session_id IS NULL", id).
		Updates(map[string]any{"form_session_id": sessionID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) AttachCheckoutIf(ctx context.Context, db *gorm.DB, id snowflake.ID, checkoutID, checkoutURL string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ? AND (payment_reference IS NULL OR payment_reference = '')", id, domain.StatusPending).
		Updates(map[string]any{
			"payment_reference": checkoutID,
			"checkout_url":      checkoutURL,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) CompletedForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*domain.Payment, error) {
	var items []domain.Payment
	if err := db.WithContext(ctx).
		Where("form_session_id = ? AND status = ?", sessionID, domain.StatusSuccessful).
		Order("paid_at DESC, id DESC").
		Limit(1).
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListBySession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	if err := db.WithContext(ctx).
		Where("form_session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, filter domain.StaleFilter) ([]domain.Payment, error) {
	q := db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.StatusPending, filter.Before)
	if filter.OrderType != "" {
		q = q.Where("order_type = ?", filter.OrderType)
	}
	if filter.Opened != nil {
		if *filter.Opened {
			q = q.Where("payment_reference IS NOT NULL AND payment_reference <> ''")
		} else {
			q = q.Where("(payment_reference IS NULL OR payment_reference = '')")
		}
	}
	if filter.AfterID > 0 {
		q = q.Where("id > ?", filter.AfterID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var items []domain.Payment
	if err := q.Order("id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
