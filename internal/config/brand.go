package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// CheckoutConfig is an immutable snapshot of the money-related settings
// consumed by pricing and brand resolution.
type CheckoutConfig struct {
	DefaultShippingFee    decimal.Decimal
	DefaultTaxRate        decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
	Brands                map[string]BrandOverride
}

// BrandOverride holds optional per-brand values. Nil means "use the global default".
type BrandOverride struct {
	TaxRate     *decimal.Decimal
	ShippingFee *decimal.Decimal
}

// Brand returns the override for name, or a zero override when none is configured.
func (c CheckoutConfig) Brand(name string) BrandOverride {
	if c.Brands == nil {
		return BrandOverride{}
	}
	return c.Brands[strings.ToLower(strings.TrimSpace(name))]
}

type rawBrand struct {
	TaxRate     *float64 `mapstructure:"tax_rate"`
	ShippingFee *float64 `mapstructure:"shipping_fee"`
}

type rawCheckout struct {
	DefaultShippingFee    float64             `mapstructure:"default_shipping_fee"`
	DefaultTaxRate        float64             `mapstructure:"default_tax_rate"`
	FreeShippingThreshold *float64            `mapstructure:"free_shipping_threshold"`
	Brands                map[string]rawBrand `mapstructure:"brands"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		DefaultShippingFee: decimal.NewFromInt(60),
		DefaultTaxRate:     decimal.Zero,
		Brands: map[string]BrandOverride{
			"pinksky":      {TaxRate: decPtr(decimal.NewFromInt(5))},
			"cccportal":    {TaxRate: decPtr(decimal.NewFromInt(13))},
			"professional": {TaxRate: decPtr(decimal.NewFromInt(13))},
		},
	}
}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// BrandConfigHolder serves the current CheckoutConfig and swaps it on file change.
type BrandConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewBrandConfigHolder loads brands.yml from the usual locations. A missing
// file is not an error; defaults are used instead.
func NewBrandConfigHolder() (*BrandConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("brands")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/orderflow")
	v.AddConfigPath("./deploy")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORDERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	return newBrandConfigHolder(v, found)
}

// NewBrandConfigHolderFromFile loads a specific file. Used by tools and tests.
func NewBrandConfigHolderFromFile(path string) (*BrandConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return newBrandConfigHolder(v, true)
}

// NewStaticBrandConfig returns a holder that never reloads.
func NewStaticBrandConfig(cfg CheckoutConfig) *BrandConfigHolder {
	holder := &BrandConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func newBrandConfigHolder(v *viper.Viper, watch bool) (*BrandConfigHolder, error) {
	cfg := DefaultCheckoutConfig()
	if watch {
		parsed, err := decodeCheckoutConfig(v)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	holder := &BrandConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeCheckoutConfig(v)
			if err != nil {
				log.Printf("[brand-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[brand-config] reloaded from %s", e.Name)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *BrandConfigHolder) Get() CheckoutConfig {
	return h.current.Load().(CheckoutConfig)
}

func decodeCheckoutConfig(v *viper.Viper) (CheckoutConfig, error) {
	raw := rawCheckout{DefaultShippingFee: 60}
	if err := v.UnmarshalKey("checkout", &raw); err != nil {
		return CheckoutConfig{}, err
	}

	cfg := CheckoutConfig{
		DefaultShippingFee: decimal.NewFromFloat(raw.DefaultShippingFee),
		DefaultTaxRate:     decimal.NewFromFloat(raw.DefaultTaxRate),
		Brands:             make(map[string]BrandOverride, len(raw.Brands)),
	}
	if raw.FreeShippingThreshold != nil {
		cfg.FreeShippingThreshold = decPtr(decimal.NewFromFloat(*raw.FreeShippingThreshold))
	}
	for name, b := range raw.Brands {
		override := BrandOverride{}
		if b.TaxRate != nil {
			override.TaxRate = decPtr(decimal.NewFromFloat(*b.TaxRate))
		}
		if b.ShippingFee != nil {
			override.ShippingFee = decPtr(decimal.NewFromFloat(*b.ShippingFee))
		}
		cfg.Brands[strings.ToLower(strings.TrimSpace(name))] = override
	}

	if err := validateCheckoutConfig(cfg); err != nil {
		return CheckoutConfig{}, err
	}
	return cfg, nil
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.DefaultShippingFee.IsNegative() {
		return errors.New("checkout.default_shipping_fee cannot be negative")
	}
	if err := validateRate("checkout.default_tax_rate", &cfg.DefaultTaxRate); err != nil {
		return err
	}
	if cfg.FreeShippingThreshold != nil && !cfg.FreeShippingThreshold.IsPositive() {
		return errors.New("checkout.free_shipping_threshold must be positive")
	}
	for name, b := range cfg.Brands {
		if err := validateRate("checkout.brands."+name+".tax_rate", b.TaxRate); err != nil {
			return err
		}
		if b.ShippingFee != nil && b.ShippingFee.IsNegative() {
			return fmt.Errorf("checkout.brands.%s.shipping_fee cannot be negative", name)
		}
	}
	return nil
}

func validateRate(key string, rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", key)
	}
	return nil
}
