package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced order line. UnitPrice is the chosen tier's value in the
// checkout currency; the overrides come from the product, nil when unset.
type Line struct {
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
	TaxRate     *decimal.Decimal
	ShippingFee *decimal.Decimal
}

// Config is the brand checkout configuration resolved for one request.
type Config struct {
	Brand                 string
	Currency              string
	TaxRate               *decimal.Decimal
	ShippingFee           *decimal.Decimal
	DefaultTaxRate        decimal.Decimal
	DefaultShippingFee    decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
}

// Breakdown is the full money picture of an order. All amounts carry two decimals.
type Breakdown struct {
	Currency       string          `json:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountCode   string          `json:"discount_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Total          decimal.Decimal `json:"total"`
}

// Round2 rounds half away from zero to cents; for money this is half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Subtotal sums unit price times quantity and rounds once at the end.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return Round2(sum)
}

// ResolveShipping applies product override, then brand override, then the
// global default. Reaching the free-shipping threshold zeroes it.
func ResolveShipping(lines []Line, cfg Config, subtotal decimal.Decimal) decimal.Decimal {
	if cfg.FreeShippingThreshold != nil && subtotal.GreaterThanOrEqual(*cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	if fee := highestOverride(lines, func(l Line) *decimal.Decimal { return l.ShippingFee }); fee != nil {
		return Round2(*fee)
	}
	if cfg.ShippingFee != nil {
		return Round2(*cfg.ShippingFee)
	}
	return Round2(cfg.DefaultShippingFee)
}

// ResolveTaxRate applies product override, then brand override, then the global default.
func ResolveTaxRate(lines []Line, cfg Config) decimal.Decimal {
	if rate := highestOverride(lines, func(l Line) *decimal.Decimal { return l.TaxRate }); rate != nil {
		return *rate
	}
	if cfg.TaxRate != nil {
		return *cfg.TaxRate
	}
	return cfg.DefaultTaxRate
}

// Calculate prices lines under cfg with an already computed discount amount.
func Calculate(lines []Line, cfg Config, discountCode string, discount decimal.Decimal) Breakdown {
	subtotal := Subtotal(lines)
	return settle(Breakdown{
		Currency:     cfg.Currency,
		Subtotal:     subtotal,
		DiscountCode: discountCode,
		ShippingFee:  ResolveShipping(lines, cfg, subtotal),
		TaxRate:      ResolveTaxRate(lines, cfg),
	}, discount)
}

// WithDiscount reprices b with a new discount. Shipping and tax rate stay as they were.
func WithDiscount(b Breakdown, discountCode string, discount decimal.Decimal) Breakdown {
	b.DiscountCode = discountCode
	return settle(b, discount)
}

func settle(b Breakdown, discount decimal.Decimal) Breakdown {
	discount = Round2(discount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(b.Subtotal) {
		discount = b.Subtotal
	}
	discounted := b.Subtotal.Sub(discount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	b.DiscountAmount = discount
	b.TaxAmount = Round2(discounted.Mul(b.TaxRate).Div(hundred))
	b.Total = Round2(discounted.Add(b.ShippingFee).Add(b.TaxAmount))
	return b
}

// DiscountedSubtotal is subtotal minus discount, never below zero.
func (b Breakdown) DiscountedSubtotal() decimal.Decimal {
	d := b.Subtotal.Sub(b.DiscountAmount)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func highestOverride(lines []Line, pick func(Line) *decimal.Decimal) *decimal.Decimal {
	var best *decimal.Decimal
	for _, l := range lines {
		v := pick(l)
		if v == nil {
			continue
		}
		if best == nil || v.GreaterThan(*best) {
			val := *v
			best = &val
		}
	}
	return best
}

// ToCents converts a two-decimal amount into minor units for the gateway.
func ToCents(d decimal.Decimal) int64 {
	return Round2(d).Shift(2).IntPart()
}

// FromCents converts gateway minor units back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
