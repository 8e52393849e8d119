package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Product, error)
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, req ListRequest) ([]Product, error)
	Deactivate(ctx context.Context, id string) (*Product, error)
	// Price resolves selections against active products. It only reads.
	Price(ctx context.Context, currency string, selections []Selection) ([]PricedItem, error)
}

type ListRequest struct {
	Status   Status
	Category string
}

type CreateRequest struct {
	Name        string           `json:"name" validate:"required"`
	Slug        string           `json:"slug"`
	PriceTiers  []PriceTier      `json:"price_tiers" validate:"required,min=1,dive"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
	ShippingFee *decimal.Decimal `json:"shipping_fee"`
	Category    *string          `json:"category"`
}
