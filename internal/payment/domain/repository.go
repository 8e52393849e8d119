package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// FindByIDForUpdate row-locks the payment for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindProducts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]PaymentProduct, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	// UpdateStatusIf moves the payment only if it is still in from.
	UpdateStatusIf(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, fields map[string]any) (bool, error)
	// LinkSessionIf attaches the payment to a session only if it has none yet.
	LinkSessionIf(ctx context.Context, db *gorm.DB, id, sessionID snowflake.ID) (bool, error)
	// AttachCheckoutIf records the gateway checkout on a Pending payment that has none.
	AttachCheckoutIf(ctx context.Context, db *gorm.DB, id snowflake.ID, checkoutID, checkoutURL string) (bool, error)
	CompletedForSession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Payment, error)
	ListBySession(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) ([]Payment, error)
	ListStale(ctx context.Context, db *gorm.DB, filter StaleFilter) ([]Payment, error)
}

// StaleFilter selects Pending payments created before Before, oldest first,
// resuming after AfterID.
type StaleFilter struct {
	Before    time.Time
	OrderType OrderType
	Opened    *bool
	AfterID   snowflake.ID
	Limit     int
}
