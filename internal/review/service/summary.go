package service

import (
	"strings"

	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/providers/pdf"
)

func sessionSummary(session *formsessiondomain.FormSession, payment *paymentdomain.Payment, comment string) pdf.SessionSummary {
	answers := session.Answers()
	contact := answers.ContactOrZero()
	shipping := payment.Shipping
	if answers.Shipping != nil {
		shipping = *answers.Shipping
	}

	out := pdf.SessionSummary{
		Reference:     session.Reference,
		Brand:         session.Brand,
		SubmittedAt:   session.CreatedAt.UTC().Format("2006-01-02"),
		CustomerName:  contact.FullName(),
		CustomerEmail: contact.Email,
		CustomerPhone: contact.Phone,
		DateOfBirth:   contact.DateOfBirth,
		ShipTo:        formatAddress(shipping),
		Currency:      payment.Currency,
		Subtotal:      payment.SubTotal.StringFixed(2),
		Shipping:      payment.ShippingFee.StringFixed(2),
		Tax:           payment.TaxAmount.StringFixed(2),
		Total:         payment.Total.StringFixed(2),
		Comment:       strings.TrimSpace(comment),
	}
	if payment.DiscountAmount.IsPositive() {
		out.Discount = "-" + payment.DiscountAmount.StringFixed(2)
	}
	for _, p := range payment.Products {
		out.Items = append(out.Items, pdf.SummaryItem{
			Description: p.ProductName,
			Qty:         p.Quantity,
			UnitPrice:   p.UnitPrice.StringFixed(2),
			Amount:      p.LineTotal.StringFixed(2),
		})
	}
	for _, qa := range answers.Questions {
		q := qa.Question
		if q == "" {
			q = qa.Key
		}
		out.Questions = append(out.Questions, pdf.SummaryAnswer{Question: q, Answer: qa.Answer})
	}
	return out
}

func formatAddress(a paymentdomain.Address) string {
	if a.IsZero() {
		return ""
	}
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, strings.TrimSpace(a.City+" "+a.State+" "+a.PostalCode), a.Country)
	return strings.Join(parts, ", ")
}
