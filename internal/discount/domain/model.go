package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// DefaultUsageLimit applies when a code is created without an explicit limit.
const DefaultUsageLimit = 1

type DiscountCode struct {
	ID         int64           `json:"id" gorm:"primaryKey"`
	Code       string          `json:"code" gorm:"type:text;not null;uniqueIndex:ux_discount_codes_code"`
	Type       Type            `json:"type" gorm:"type:text;not null"`
	Value      decimal.Decimal `json:"value" gorm:"type:numeric(12,2);not null"`
	StartDate  *time.Time      `json:"start_date,omitempty"`
	EndDate    *time.Time      `json:"end_date,omitempty"`
	UsageLimit int             `json:"usage_limit" gorm:"not null;default:1"`
	UsageCount int             `json:"usage_count" gorm:"not null;default:0"`
	Status     Status          `json:"status" gorm:"type:text;not null;default:Active"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// NormalizeCode is the canonical form used for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValid reports whether the code can be redeemed at now. A missing window
// bound is unbounded and a zero limit is unlimited.
func (d DiscountCode) IsValid(now time.Time) bool {
	if d.Status != StatusActive {
		return false
	}
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return false
	}
	if d.EndDate != nil && now.After(*d.EndDate) {
		return false
	}
	return d.UsageLimit == 0 || d.UsageCount < d.UsageLimit
}

// CalculateDiscount never returns more than subtotal or less than zero.
func (d DiscountCode) CalculateDiscount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	case TypeFixed:
		amount = d.Value.Round(2)
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

// Application is a redeemed code and the amount it took off the subtotal.
type Application struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}
