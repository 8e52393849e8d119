package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, session *FormSession) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FormSession, error)
	// FindByIDForUpdate row-locks the session for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FormSession, error)
	FindByDocusealID(ctx context.Context, db *gorm.DB, docusealID string) (*FormSession, error)
	UpdateMetadata(ctx context.Context, db *gorm.DB, id snowflake.ID, metadata Metadata) error
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// UpdateStatusIf moves the session only if it is still in from.
	UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, fields map[string]any) (bool, error)

	RecordActivity(ctx context.Context, db *gorm.DB, activity *Activity) error
	// EnsureActivity inserts activity unless one with the same session and
	// dedupe key exists. It reports whether a row was written.
	EnsureActivity(ctx context.Context, db *gorm.DB, activity *Activity) (bool, error)
	ListActivities(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]Activity, error)
}
