package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"gorm.io/gorm"
)

type Service interface {
	// Initiate creates a Pending payment and opens a gateway checkout for it.
	// For an order it reuses the open checkout when nothing changed and
	// retires every other Pending payment first.
	Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error)
	// CreatePending writes the payment and its lines without contacting the gateway.
	CreatePending(ctx context.Context, tx *gorm.DB, req InitiateRequest) (*Payment, error)
	// Open sends an existing Pending payment to the gateway. A payment that
	// already has a checkout returns it.
	Open(ctx context.Context, paymentID snowflake.ID) (*Checkout, error)
	Reprice(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID, b pricing.Breakdown) error
	LinkSession(ctx context.Context, tx *gorm.DB, paymentID, sessionID snowflake.ID) error

	Callback(ctx context.Context, paymentID string, status string) (*CallbackResult, error)

	Refund(ctx context.Context, paymentID snowflake.ID) (*Payment, error)
	RefundAtGateway(ctx context.Context, payment *Payment) error
	MarkRefunded(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error
	MarkCancelled(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error

	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	CompletedPayment(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Payment, error)
}

type InitiateRequest struct {
	SessionID *snowflake.ID
	Brand     string
	OrderType OrderType
	Breakdown pricing.Breakdown
	Items     []productdomain.PricedItem
	Contact   Contact
	Shipping  Address
}

type Checkout struct {
	PaymentID   snowflake.ID `json:"payment_id"`
	Reference   string       `json:"reference"`
	RedirectURL string       `json:"redirect_url"`
}

const (
	CallbackSuccessful = "successful"
	CallbackCancelled  = "cancelled"
)

// CallbackResult reports the reconciled payment. Duplicate means the order
// was already paid by another payment and this capture was refunded.
type CallbackResult struct {
	PaymentID   snowflake.ID `json:"payment_id"`
	SessionID   snowflake.ID `json:"session_id"`
	Status      Status       `json:"status"`
	AlreadyPaid bool         `json:"already_paid,omitempty"`
	Duplicate   bool         `json:"duplicate,omitempty"`
}
