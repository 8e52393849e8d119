package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func pinkskyConfig() Config {
	return Config{
		Brand:              "pinksky",
		Currency:           "USD",
		TaxRate:            dp("5"),
		DefaultShippingFee: d("60"),
		DefaultTaxRate:     decimal.Zero,
	}
}

func TestSingleProductNoDiscount(t *testing.T) {
	b := Calculate([]Line{{Name: "Tirzepatide", UnitPrice: d("100"), Quantity: 1}}, pinkskyConfig(), "", decimal.Zero)

	assert.Equal(t, "100.00", b.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "60.00", b.ShippingFee.StringFixed(2))
	assert.Equal(t, "165.00", b.Total.StringFixed(2))
	assert.Equal(t, "USD", b.Currency)
}

func TestFixedDiscountTwoLines(t *testing.T) {
	cfg := pinkskyConfig()
	cfg.TaxRate = dp("10")
	lines := []Line{
		{UnitPrice: d("100"), Quantity: 2},
		{UnitPrice: d("50"), Quantity: 1},
	}

	b := Calculate(lines, cfg, "SAVE100", d("100"))

	assert.Equal(t, "250.00", b.Subtotal.StringFixed(2))
	assert.Equal(t, "150.00", b.DiscountedSubtotal().StringFixed(2))
	assert.Equal(t, "60.00", b.ShippingFee.StringFixed(2))
	assert.Equal(t, "15.00", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "225.00", b.Total.StringFixed(2))
	assert.Equal(t, "SAVE100", b.DiscountCode)
}

func TestTaxIgnoresShipping(t *testing.T) {
	cfg := pinkskyConfig()
	cfg.TaxRate = dp("10")

	b := Calculate([]Line{{UnitPrice: d("100"), Quantity: 1}}, cfg, "", d("25"))

	assert.Equal(t, "7.50", b.TaxAmount.StringFixed(2))
	assert.Equal(t, "142.50", b.Total.StringFixed(2))
}

func TestDiscountLeavesShippingUnchanged(t *testing.T) {
	cfg := pinkskyConfig()
	before := Calculate([]Line{{UnitPrice: d("80"), Quantity: 1}}, cfg, "", decimal.Zero)
	after := WithDiscount(before, "BIG", d("500"))

	assert.True(t, before.ShippingFee.Equal(after.ShippingFee))
	assert.Equal(t, "80.00", after.DiscountAmount.StringFixed(2))
	assert.Equal(t, "0.00", after.TaxAmount.StringFixed(2))
	assert.Equal(t, "60.00", after.Total.StringFixed(2))
}

func TestNegativeDiscountIgnored(t *testing.T) {
	b := Calculate([]Line{{UnitPrice: d("10"), Quantity: 1}}, pinkskyConfig(), "", d("-5"))
	assert.True(t, b.DiscountAmount.IsZero())
}

func TestSubtotalRoundsOnceAtEnd(t *testing.T) {
	lines := []Line{
		{UnitPrice: d("0.333"), Quantity: 3},
		{UnitPrice: d("0.333"), Quantity: 0},
	}
	assert.Equal(t, "1.00", Subtotal(lines).StringFixed(2))
}

func TestShippingResolution(t *testing.T) {
	cases := []struct {
		name  string
		lines []Line
		cfg   Config
		want  string
	}{
		{
			name:  "global default",
			lines: []Line{{UnitPrice: d("10"), Quantity: 1}},
			cfg:   Config{DefaultShippingFee: d("60")},
			want:  "60.00",
		},
		{
			name:  "brand override",
			lines: []Line{{UnitPrice: d("10"), Quantity: 1}},
			cfg:   Config{DefaultShippingFee: d("60"), ShippingFee: dp("45")},
			want:  "45.00",
		},
		{
			name: "product override wins and highest is used",
			lines: []Line{
				{UnitPrice: d("10"), Quantity: 1, ShippingFee: dp("20")},
				{UnitPrice: d("10"), Quantity: 1, ShippingFee: dp("35")},
			},
			cfg:  Config{DefaultShippingFee: d("60"), ShippingFee: dp("45")},
			want: "35.00",
		},
		{
			name:  "free shipping threshold reached",
			lines: []Line{{UnitPrice: d("1000"), Quantity: 1, ShippingFee: dp("20")}},
			cfg:   Config{DefaultShippingFee: d("60"), FreeShippingThreshold: dp("1000")},
			want:  "0.00",
		},
		{
			name:  "below threshold",
			lines: []Line{{UnitPrice: d("999.99"), Quantity: 1}},
			cfg:   Config{DefaultShippingFee: d("60"), FreeShippingThreshold: dp("1000")},
			want:  "60.00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveShipping(tc.lines, tc.cfg, Subtotal(tc.lines))
			assert.Equal(t, tc.want, got.StringFixed(2))
		})
	}
}

func TestTaxRateResolution(t *testing.T) {
	cfg := Config{DefaultTaxRate: d("1"), TaxRate: dp("5")}

	assert.Equal(t, "5", ResolveTaxRate([]Line{{}}, cfg).String())
	assert.Equal(t, "8", ResolveTaxRate([]Line{{TaxRate: dp("8")}, {}}, cfg).String())
	assert.Equal(t, "1", ResolveTaxRate(nil, Config{DefaultTaxRate: d("1")}).String())
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(16500), ToCents(d("165")))
	assert.Equal(t, int64(14250), ToCents(d("142.5")))
	assert.Equal(t, int64(1), ToCents(d("0.005")))
	assert.Equal(t, "142.50", FromCents(14250).StringFixed(2))
}
