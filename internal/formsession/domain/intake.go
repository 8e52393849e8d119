package domain

import (
	"strings"
	"time"

	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
)

type Step string

const (
	StepInfo      Step = "info"
	StepProduct   Step = "product"
	StepPayment   Step = "payment"
	StepQuestions Step = "questions"
	StepSign      Step = "sign"
	StepCheckout  Step = "checkout"
)

var Steps = []Step{StepInfo, StepProduct, StepPayment, StepQuestions, StepSign, StepCheckout}

func ParseStep(raw string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(raw)))
	for _, s := range Steps {
		if s == step {
			return s, nil
		}
	}
	return "", ErrUnknownStep
}

type QuestionAnswer struct {
	Key      string `json:"key" validate:"required,max=64"`
	Question string `json:"question,omitempty" validate:"max=500"`
	Answer   string `json:"answer" validate:"max=4000"`
}

type CheckoutConsent struct {
	AcceptedTerms bool       `json:"accepted_terms"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
}

// IntakeAnswers is everything the customer has told us so far. Every field is
// optional until submission.
type IntakeAnswers struct {
	Contact   *paymentdomain.Contact      `json:"contact,omitempty"`
	Products  []productdomain.Selection   `json:"products,omitempty"`
	Shipping  *paymentdomain.Address      `json:"shipping,omitempty"`
	Discount  *discountdomain.Application `json:"discount,omitempty"`
	Questions []QuestionAnswer            `json:"questions,omitempty"`
	Checkout  *CheckoutConsent            `json:"checkout,omitempty"`
}

type InfoPayload struct {
	Contact paymentdomain.Contact `json:"contact"`
}

type ProductPayload struct {
	Products []productdomain.Selection `json:"products" validate:"required,min=1,dive"`
}

type PaymentPayload struct {
	Shipping     *paymentdomain.Address `json:"shipping"`
	DiscountCode string                 `json:"discount_code" validate:"omitempty,max=64"`
}

type QuestionsPayload struct {
	Questions []QuestionAnswer `json:"questions" validate:"required,min=1,dive"`
}

type CheckoutPayload struct {
	AcceptedTerms bool `json:"accepted_terms" validate:"eq=true"`
}

func MergeInfo(a IntakeAnswers, p InfoPayload) IntakeAnswers {
	c := p.Contact
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	a.Contact = &c
	return a
}

func MergeProducts(a IntakeAnswers, p ProductPayload) IntakeAnswers {
	a.Products = append([]productdomain.Selection(nil), p.Products...)
	return a
}

func MergeShipping(a IntakeAnswers, addr paymentdomain.Address) IntakeAnswers {
	addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
	a.Shipping = &addr
	return a
}

func MergeDiscount(a IntakeAnswers, app discountdomain.Application) IntakeAnswers {
	a.Discount = &app
	return a
}

// MergeQuestions replaces answers with the same key and appends new ones.
func MergeQuestions(a IntakeAnswers, p QuestionsPayload) IntakeAnswers {
	merged := append([]QuestionAnswer(nil), a.Questions...)
	index := make(map[string]int, len(merged))
	for i, q := range merged {
		index[q.Key] = i
	}
	for _, q := range p.Questions {
		q.Key = strings.TrimSpace(q.Key)
		if i, ok := index[q.Key]; ok {
			merged[i] = q
			continue
		}
		index[q.Key] = len(merged)
		merged = append(merged, q)
	}
	a.Questions = merged
	return a
}

func MergeCheckout(a IntakeAnswers, p CheckoutPayload, now time.Time) IntakeAnswers {
	consent := CheckoutConsent{AcceptedTerms: p.AcceptedTerms}
	if p.AcceptedTerms {
		at := now.UTC()
		consent.AcceptedAt = &at
	}
	a.Checkout = &consent
	return a
}

// MissingForSubmission lists the steps whose answers are still absent.
func (a IntakeAnswers) MissingForSubmission() []string {
	var missing []string
	if a.Contact == nil || strings.TrimSpace(a.Contact.Email) == "" {
		missing = append(missing, string(StepInfo))
	}
	if len(a.Products) == 0 {
		missing = append(missing, string(StepProduct))
	}
	if len(a.Questions) == 0 {
		missing = append(missing, string(StepQuestions))
	}
	return missing
}

func (a IntakeAnswers) ContactOrZero() paymentdomain.Contact {
	if a.Contact == nil {
		return paymentdomain.Contact{}
	}
	return *a.Contact
}

func (a IntakeAnswers) ShippingOrZero() paymentdomain.Address {
	if a.Shipping == nil {
		return paymentdomain.Address{}
	}
	return *a.Shipping
}
