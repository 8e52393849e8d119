package domain

import (
	"strings"
	"time"

	"github.com/pinksky/orderflow/internal/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// PriceTier is one purchasable unit of a product with a value per currency.
type PriceTier struct {
	Unit        string                     `json:"unit" validate:"required"`
	Frequency   string                     `json:"frequency,omitempty"`
	Values      map[string]decimal.Decimal `json:"values" validate:"required,min=1"`
	Label       *string                    `json:"label,omitempty"`
	Description *string                    `json:"description,omitempty"`
}

// ValueIn returns the tier price in currency.
func (t PriceTier) ValueIn(currency string) (decimal.Decimal, bool) {
	v, ok := t.Values[strings.ToUpper(strings.TrimSpace(currency))]
	return v, ok
}

type Product struct {
	ID          int64                           `json:"id" gorm:"primaryKey"`
	Name        string                          `json:"name" gorm:"type:text;not null"`
	Slug        string                          `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_products_slug"`
	PriceTiers  datatypes.JSONType[[]PriceTier] `json:"price_tiers" gorm:"type:jsonb;not null"`
	TaxRate     *decimal.Decimal                `json:"tax_rate,omitempty" gorm:"type:numeric(12,2)"`
	ShippingFee *decimal.Decimal                `json:"shipping_fee,omitempty" gorm:"type:numeric(12,2)"`
	Status      Status                          `json:"status" gorm:"type:text;not null;default:active"`
	Category    *string                         `json:"category,omitempty" gorm:"type:text"`
	CreatedAt   time.Time                       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

func (p Product) IsActive() bool { return p.Status == StatusActive }

// Tier finds the tier for unit. An empty unit selects the first tier.
func (p Product) Tier(unit string) (PriceTier, bool) {
	tiers := p.PriceTiers.Data()
	if len(tiers) == 0 {
		return PriceTier{}, false
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return tiers[0], true
	}
	for _, t := range tiers {
		if strings.EqualFold(t.Unit, unit) {
			return t, true
		}
	}
	return PriceTier{}, false
}

// PriceIn returns the chosen tier and its value in currency.
func (p Product) PriceIn(unit, currency string) (PriceTier, decimal.Decimal, error) {
	tier, ok := p.Tier(unit)
	if !ok {
		return PriceTier{}, decimal.Zero, ErrPriceUnavailable
	}
	value, ok := tier.ValueIn(currency)
	if !ok {
		return PriceTier{}, decimal.Zero, ErrPriceUnavailable
	}
	return tier, value, nil
}

// Selection is a customer's pick of a product tier.
type Selection struct {
	ProductID string `json:"product_id" validate:"required"`
	Unit      string `json:"unit,omitempty"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=100"`
}

// PricedItem is a selection resolved against the catalog. The tier is a copy
// and is what gets frozen onto the order line.
type PricedItem struct {
	Product   Product
	Tier      PriceTier
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i PricedItem) Line() pricing.Line {
	return pricing.Line{
		Name:        i.DisplayName(),
		UnitPrice:   i.UnitPrice,
		Quantity:    i.Quantity,
		TaxRate:     i.Product.TaxRate,
		ShippingFee: i.Product.ShippingFee,
	}
}

// DisplayName is the product name followed by the tier label or unit.
func (i PricedItem) DisplayName() string {
	suffix := i.Tier.Unit
	if i.Tier.Label != nil && strings.TrimSpace(*i.Tier.Label) != "" {
		suffix = strings.TrimSpace(*i.Tier.Label)
	}
	if suffix == "" {
		return i.Product.Name
	}
	return i.Product.Name + " - " + suffix
}

func Lines(items []PricedItem) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Line())
	}
	return lines
}
