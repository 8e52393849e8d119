package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusSuccessful Status = "Successful"
	StatusRefunding  Status = "Refunding"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
)

type OrderType string

const (
	OrderTypeRegular    OrderType = "regular"
	OrderTypeOrderSheet OrderType = "order_sheet"
	OrderTypeCart       OrderType = "cart"
)

// Contact is the customer identity captured at intake and snapshotted on payment.
type Contact struct {
	FirstName   string `json:"first_name" gorm:"column:first_name;type:text" validate:"required,max=100"`
	LastName    string `json:"last_name" gorm:"column:last_name;type:text" validate:"required,max=100"`
	Email       string `json:"email" gorm:"column:email;type:text" validate:"required,email"`
	Phone       string `json:"phone,omitempty" gorm:"column:phone;type:text" validate:"omitempty,max=32"`
	DateOfBirth string `json:"date_of_birth,omitempty" gorm:"-" validate:"omitempty,datetime=2006-01-02"`
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Address is the shipping destination.
type Address struct {
	Line1      string `json:"line1" gorm:"column:address_line1;type:text" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" gorm:"column:address_line2;type:text" validate:"omitempty,max=200"`
	City       string `json:"city" gorm:"column:city;type:text" validate:"required,max=100"`
	State      string `json:"state" gorm:"column:state;type:text" validate:"required,max=100"`
	PostalCode string `json:"postal_code" gorm:"column:postal_code;type:text" validate:"required,max=20"`
	Country    string `json:"country" gorm:"column:country;type:text" validate:"required,len=2"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

type Payment struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	FormSessionID    *snowflake.ID   `json:"form_session_id,omitempty" gorm:"index"`
	Reference        string          `json:"reference" gorm:"type:text;not null;uniqueIndex:ux_payments_reference"`
	PaymentReference *string         `json:"payment_reference,omitempty" gorm:"type:text;uniqueIndex:ux_payments_payment_reference"`
	CheckoutURL      *string         `json:"checkout_url,omitempty" gorm:"type:text"`
	PaymentIntent    *string         `json:"-" gorm:"type:text"`
	Brand            string          `json:"brand" gorm:"type:text;not null"`
	Currency         string          `json:"currency" gorm:"type:text;not null"`
	SubTotal         decimal.Decimal `json:"sub_total" gorm:"type:numeric(12,2);not null"`
	ShippingFee      decimal.Decimal `json:"shipping_fee" gorm:"type:numeric(12,2);not null"`
	TaxRate          decimal.Decimal `json:"tax_rate" gorm:"type:numeric(5,2);not null"`
	TaxAmount        decimal.Decimal `json:"tax_amount" gorm:"type:numeric(12,2);not null"`
	DiscountCode     *string         `json:"discount_code,omitempty" gorm:"type:text"`
	DiscountAmount   decimal.Decimal `json:"discount_amount" gorm:"type:numeric(12,2);not null"`
	Total            decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	Status           Status          `json:"status" gorm:"type:text;not null;index"`
	OrderType        OrderType       `json:"order_type" gorm:"type:text;not null"`
	Contact          Contact         `json:"contact" gorm:"embedded"`
	Shipping         Address         `json:"shipping" gorm:"embedded"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	ReceiptURL       *string         `json:"receipt_url,omitempty" gorm:"type:text"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`

	Products []PaymentProduct `json:"products,omitempty" gorm:"foreignKey:PaymentID"`
}

func (Payment) TableName() string { return "payments" }

// Breakdown rebuilds the priced view of the snapshot.
func (p Payment) Breakdown() pricing.Breakdown {
	b := pricing.Breakdown{
		Currency:       p.Currency,
		Subtotal:       p.SubTotal,
		DiscountAmount: p.DiscountAmount,
		ShippingFee:    p.ShippingFee,
		TaxRate:        p.TaxRate,
		TaxAmount:      p.TaxAmount,
		Total:          p.Total,
	}
	if p.DiscountCode != nil {
		b.DiscountCode = *p.DiscountCode
	}
	return b
}

// ApplyBreakdown copies every money field of b onto the payment.
func (p *Payment) ApplyBreakdown(b pricing.Breakdown) {
	p.Currency = b.Currency
	p.SubTotal = b.Subtotal
	p.ShippingFee = b.ShippingFee
	p.TaxRate = b.TaxRate
	p.TaxAmount = b.TaxAmount
	p.DiscountAmount = b.DiscountAmount
	p.Total = b.Total
	p.DiscountCode = nil
	if code := strings.TrimSpace(b.DiscountCode); code != "" {
		p.DiscountCode = &code
	}
}

func (p Payment) IsOpened() bool {
	return p.PaymentReference != nil && strings.TrimSpace(*p.PaymentReference) != ""
}

type PaymentProduct struct {
	ID          snowflake.ID                                `json:"id" gorm:"primaryKey"`
	PaymentID   snowflake.ID                                `json:"payment_id" gorm:"not null;index"`
	ProductID   int64                                       `json:"product_id" gorm:"not null"`
	ProductName string                                      `json:"product_name" gorm:"type:text;not null"`
	Quantity    int                                         `json:"quantity" gorm:"not null"`
	PriceTier   datatypes.JSONType[productdomain.PriceTier] `json:"price_tier" gorm:"type:jsonb;not null"`
	UnitPrice   decimal.Decimal                             `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	LineTotal   decimal.Decimal                             `json:"line_total" gorm:"type:numeric(12,2);not null"`
	CreatedAt   time.Time                                   `json:"created_at" gorm:"not null"`
}

func (PaymentProduct) TableName() string { return "payment_products" }
