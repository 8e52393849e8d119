package brand

import (
	"strings"

	"github.com/pinksky/orderflow/pkg/apperror"
)

type Brand string

const (
	Pinksky      Brand = "pinksky"
	CCCPortal    Brand = "cccportal"
	Professional Brand = "professional"
)

const (
	USD = "USD"
	CAD = "CAD"
)

var (
	ErrCurrencyMismatch    = apperror.Domain("currency_mismatch", "currency does not match this storefront")
	ErrUnsupportedCurrency = apperror.Validation("unsupported_currency", "currency is not supported",
		apperror.FieldError{Field: "currency", Code: "oneof", Message: "currency must be USD or CAD"})
	ErrBrandUnresolved = apperror.Validation("brand_unresolved", "unable to determine storefront",
		apperror.FieldError{Field: "source_path", Code: "required", Message: "source_path or currency is required"})
)

// matched in priority order
var pathBrands = []Brand{Professional, CCCPortal, Pinksky}

var brandCurrency = map[Brand]string{
	Pinksky:      USD,
	CCCPortal:    CAD,
	Professional: CAD,
}

func (b Brand) String() string { return string(b) }

func (b Brand) Currency() string { return brandCurrency[b] }

// BrandFromSourcePath returns the first brand whose name appears in path.
func BrandFromSourcePath(path string) (Brand, bool) {
	lower := strings.ToLower(path)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, b := range pathBrands {
		if strings.Contains(lower, string(b)) {
			return b, true
		}
	}
	return "", false
}

// CurrencyFromSourcePath returns the currency a storefront enforces, if any.
func CurrencyFromSourcePath(path string) (string, bool) {
	b, ok := BrandFromSourcePath(path)
	if !ok {
		return "", false
	}
	return b.Currency(), true
}

// ResolveBrand prefers the source path and falls back to the currency.
func ResolveBrand(path, currency string) (Brand, bool) {
	if b, ok := BrandFromSourcePath(path); ok {
		return b, true
	}
	switch normalizeCurrency(currency) {
	case CAD:
		return Professional, true
	case USD:
		return Pinksky, true
	}
	return "", false
}

// ResolveCurrency returns the path's enforced currency, else the given one.
func ResolveCurrency(path, currency string) string {
	if enforced, ok := CurrencyFromSourcePath(path); ok {
		return enforced
	}
	return normalizeCurrency(currency)
}

// ValidateCurrency rejects a currency that disagrees with the storefront in path.
func ValidateCurrency(path, currency string) error {
	enforced, ok := CurrencyFromSourcePath(path)
	if !ok {
		return nil
	}
	given := normalizeCurrency(currency)
	if given != "" && given != enforced {
		return ErrCurrencyMismatch
	}
	return nil
}

// Resolution is the storefront a request belongs to.
type Resolution struct {
	Brand    Brand
	Currency string
}

// Resolve validates and resolves in one step, which is what request handlers need.
func Resolve(path, currency string) (Resolution, error) {
	if err := ValidateCurrency(path, currency); err != nil {
		return Resolution{}, err
	}
	b, ok := ResolveBrand(path, currency)
	if !ok {
		if normalizeCurrency(currency) != "" {
			return Resolution{}, ErrUnsupportedCurrency
		}
		return Resolution{}, ErrBrandUnresolved
	}
	cur := ResolveCurrency(path, currency)
	if cur == "" {
		cur = b.Currency()
	}
	if cur != USD && cur != CAD {
		return Resolution{}, ErrUnsupportedCurrency
	}
	return Resolution{Brand: b, Currency: cur}, nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
