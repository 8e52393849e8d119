package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// SessionSummary is everything the signer sees on the order document.
// Amounts are preformatted.
type SessionSummary struct {
	Reference   string
	Brand       string
	SubmittedAt string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	DateOfBirth   string
	ShipTo        string

	Items []SummaryItem

	Currency string
	Subtotal string
	Discount string
	Shipping string
	Tax      string
	Total    string

	Questions []SummaryAnswer
	Comment   string
}

type SummaryItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

type SummaryAnswer struct {
	Question string
	Answer   string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateSessionSummary(ctx context.Context, s SessionSummary) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Reference) == "" {
		return nil, fmt.Errorf("session summary requires a reference")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, "Order summary", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, strings.ToUpper(s.Brand), props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(12,
		col.New(6).Add(
			text.New("Reference: "+s.Reference, props.Text{Top: 0}),
			text.New("Submitted: "+s.SubmittedAt, props.Text{Top: 4}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Customer", props.Text{Style: fontstyle.Bold}),
			text.New(s.CustomerName, props.Text{Top: 5}),
			text.New(s.CustomerEmail, props.Text{Top: 9}),
			text.New(s.CustomerPhone, props.Text{Top: 13}),
			text.New(dobLine(s.DateOfBirth), props.Text{Top: 17}),
		),
		col.New(6).Add(
			text.New("Ship to", props.Text{Style: fontstyle.Bold}),
			text.New(s.ShipTo, props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Product", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range s.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := [][2]string{
		{"Subtotal", s.Subtotal},
		{"Discount", s.Discount},
		{"Shipping", s.Shipping},
		{"Tax", s.Tax},
	}
	for _, t := range totals {
		if t[1] == "" {
			continue
		}
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, t[0], props.Text{Size: 9}),
			text.NewCol(2, t[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, strings.TrimSpace(s.Total+" "+s.Currency), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(s.Questions) > 0 {
		m.AddRow(12,
			text.NewCol(12, "Health questionnaire", props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}),
		)
		for _, qa := range s.Questions {
			m.AddRow(12,
				col.New(12).Add(
					text.New(qa.Question, props.Text{Size: 9, Style: fontstyle.Bold}),
					text.New(qa.Answer, props.Text{Size: 9, Top: 4}),
				),
			)
		}
	}

	if strings.TrimSpace(s.Comment) != "" {
		m.AddRow(16,
			col.New(12).Add(
				text.New("Reviewer notes", props.Text{Size: 9, Style: fontstyle.Bold, Top: 4}),
				text.New(s.Comment, props.Text{Size: 9, Top: 8}),
			),
		)
	}

	m.AddRow(20,
		text.NewCol(6, "Patient signature", props.Text{Size: 9, Top: 12}),
		text.NewCol(6, "Approver signature", props.Text{Size: 9, Top: 12}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func dobLine(dob string) string {
	if dob == "" {
		return ""
	}
	return "Date of birth: " + dob
}
