package brand

import (
	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/pricing"
)

// ConfigProvider serves the current checkout configuration snapshot.
// *config.BrandConfigHolder satisfies it.
type ConfigProvider interface {
	Get() config.CheckoutConfig
}

// CheckoutConfig resolves the pricing configuration for one request. Brands
// without an entry use the global defaults.
func CheckoutConfig(provider ConfigProvider, r Resolution) pricing.Config {
	snapshot := config.DefaultCheckoutConfig()
	if provider != nil {
		snapshot = provider.Get()
	}
	override := snapshot.Brand(r.Brand.String())
	return pricing.Config{
		Brand:                 r.Brand.String(),
		Currency:              r.Currency,
		TaxRate:               override.TaxRate,
		ShippingFee:           override.ShippingFee,
		DefaultTaxRate:        snapshot.DefaultTaxRate,
		DefaultShippingFee:    snapshot.DefaultShippingFee,
		FreeShippingThreshold: snapshot.FreeShippingThreshold,
	}
}
