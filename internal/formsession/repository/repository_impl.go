package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/formsession/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, session *domain.FormSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FormSession, error) {
	return r.first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FormSession, error) {
	return r.first(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repo) FindByDocusealID(ctx context.Context, db *gorm.DB, docusealID string) (*domain.FormSession, error) {
	return r.first(db.WithContext(ctx).Where("docuseal_id = ?", docusealID))
}

func (r *repo) first(q *gorm.DB) (*domain.FormSession, error) {
	var items []domain.FormSession
	if err := q.Limit(1).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata domain.Metadata) error {
	return r.Update(ctx, db, id, map[string]any{"metadata": datatypes.NewJSONType(metadata)})
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(&domain.FormSession{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repo) UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, fields map[string]any) (bool, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = to
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.FormSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) RecordActivity(ctx context.Context, db *gorm.DB, activity *domain.Activity) error {
	return db.WithContext(ctx).Create(activity).Error
}

func (r *repo) EnsureActivity(ctx context.Context, db *gorm.DB, activity *domain.Activity) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "form_session_id"}, {Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(activity)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListActivities(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]domain.Activity, error) {
	var items []domain.Activity
	if err := db.WithContext(ctx).
		Where("form_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
