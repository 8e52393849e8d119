package domain

import (
	"context"

	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
)

// Service sells straight from the catalog. The payment is created first and
// the order session only when the customer proceeds to pay.
type Service interface {
	Initiate(ctx context.Context, req Request) (*Result, error)
	ApplyDiscount(ctx context.Context, checkoutID string, code string) (*pricing.Breakdown, error)
	ProcessPayment(ctx context.Context, checkoutID string) (*paymentdomain.Checkout, error)
}

type Request struct {
	SourcePath string                    `json:"source_path"`
	Currency   string                    `json:"currency"`
	UserAgent  string                    `json:"-"`
	Items      []productdomain.Selection `json:"items" validate:"required,min=1,dive"`
	Contact    paymentdomain.Contact     `json:"contact"`
	Shipping   paymentdomain.Address     `json:"shipping"`
}

type Result struct {
	CheckoutID string            `json:"checkout_id"`
	Breakdown  pricing.Breakdown `json:"breakdown"`
}
