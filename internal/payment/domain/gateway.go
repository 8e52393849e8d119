package domain

import "context"

// Gateway is the external payment processor. Amounts are minor units.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (GatewayCheckout, error)
	RetrieveCheckout(ctx context.Context, checkoutID string) (CheckoutState, error)
	// ExpireCheckout closes an unpaid checkout so it can no longer be paid.
	ExpireCheckout(ctx context.Context, checkoutID string) error
	RetrieveReceipt(ctx context.Context, paymentIntentRef string) (string, error)
	Refund(ctx context.Context, paymentIntentRef string) error
}

type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int
}

type CheckoutRequest struct {
	PaymentID        string
	Reference        string
	Currency         string
	Country          string
	CustomerEmail    string
	ShippingFeeCents int64
	TaxCents         int64
	DiscountCents    int64
	DiscountCode     string
	LineItems        []LineItem
	SuccessURL       string
	CancelURL        string
}

type GatewayCheckout struct {
	ID          string
	RedirectURL string
}

const GatewayStatusPaid = "paid"

type CheckoutState struct {
	PaymentStatus    string
	AmountTotalCents int64
	PaymentIntentRef string
}

func (s CheckoutState) Paid() bool {
	return s.PaymentStatus == GatewayStatusPaid
}
