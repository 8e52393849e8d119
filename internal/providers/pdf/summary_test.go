package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionSummary(t *testing.T) {
	out, err := New().GenerateSessionSummary(context.Background(), SessionSummary{
		Reference:     "OF-ABC123",
		Brand:         "pinksky",
		SubmittedAt:   "2026-05-01",
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		ShipTo:        "1 Main St, Austin TX 78701, US",
		Items:         []SummaryItem{{Description: "Vitamin D - 30 caps", Qty: 1, UnitPrice: "100.00", Amount: "100.00"}},
		Currency:      "USD",
		Subtotal:      "100.00",
		Discount:      "10.00",
		Shipping:      "60.00",
		Tax:           "4.50",
		Total:         "154.50",
		Questions:     []SummaryAnswer{{Question: "Any allergies?", Answer: "none"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerateSessionSummaryRequiresReference(t *testing.T) {
	_, err := New().GenerateSessionSummary(context.Background(), SessionSummary{})
	assert.Error(t, err)
}
