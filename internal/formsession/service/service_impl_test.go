package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pinksky/orderflow/internal/brand"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	discountrepo "github.com/pinksky/orderflow/internal/discount/repository"
	discountservice "github.com/pinksky/orderflow/internal/discount/service"
	"github.com/pinksky/orderflow/internal/formsession/domain"
	"github.com/pinksky/orderflow/internal/formsession/repository"
	notificationdomain "github.com/pinksky/orderflow/internal/notification/domain"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	paymentrepo "github.com/pinksky/orderflow/internal/payment/repository"
	paymentservice "github.com/pinksky/orderflow/internal/payment/service"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	productrepo "github.com/pinksky/orderflow/internal/product/repository"
	productservice "github.com/pinksky/orderflow/internal/product/service"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGateway struct {
	mu      sync.Mutex
	state   paymentdomain.CheckoutState
	refunds []string
	opened  int
	expired []string
}

func (g *stubGateway) CreateCheckout(_ context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.GatewayCheckout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened++
	return paymentdomain.GatewayCheckout{ID: "cs_" + req.PaymentID, RedirectURL: "https://pay.example/" + req.PaymentID}, nil
}

func (g *stubGateway) ExpireCheckout(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = append(g.expired, id)
	return nil
}

func (g *stubGateway) RetrieveCheckout(context.Context, string) (paymentdomain.CheckoutState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, nil
}

func (g *stubGateway) RetrieveReceipt(context.Context, string) (string, error) {
	return "", nil
}

func (g *stubGateway) Refund(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, ref)
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notificationdomain.EventType
	admins []notificationdomain.EventType
}

func (n *captureNotifier) Notify(_ context.Context, _ notificationdomain.Recipient, event notificationdomain.EventType, _ notificationdomain.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) NotifyAdmins(_ context.Context, event notificationdomain.EventType, _ notificationdomain.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, event)
}

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	products  productdomain.Service
	discounts discountdomain.Service
	payments  paymentdomain.Service
	gateway   *stubGateway
	notifier  *captureNotifier
	repo      domain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&productdomain.Product{},
		&discountdomain.DiscountCode{},
		&paymentdomain.Payment{},
		&paymentdomain.PaymentProduct{},
		&domain.FormSession{},
		&domain.Activity{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fc := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	f := &fixture{
		db:       db,
		gateway:  &stubGateway{},
		notifier: &captureNotifier{},
		repo:     repository.Provide(),
	}
	f.products = productservice.New(productservice.Params{DB: db, Log: log, GenID: node, Repo: productrepo.Provide()})
	f.discounts = discountservice.New(discountservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: discountrepo.Provide()})
	f.payments = paymentservice.New(paymentservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fc,
		Config:      config.Config{Gateway: config.GatewayConfig{Timeout: time.Second}},
		Repo:        paymentrepo.Provide(),
		SessionRepo: f.repo,
		Gateway:     f.gateway,
		Notifier:    f.notifier,
	})
	f.svc = New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fc,
		Repo:        f.repo,
		BrandConfig: config.NewStaticBrandConfig(config.DefaultCheckoutConfig()),
		Products:    f.products,
		Discounts:   f.discounts,
		Payments:    f.payments,
		Notifier:    f.notifier,
	})
	return f
}

func (f *fixture) product(t *testing.T, name, usd string) string {
	t.Helper()
	p, err := f.products.Create(context.Background(), productdomain.CreateRequest{
		Name: name,
		PriceTiers: []productdomain.PriceTier{{
			Unit: "30 caps", Frequency: "monthly",
			Values: map[string]decimal.Decimal{"USD": decimal.RequireFromString(usd)},
		}},
	})
	require.NoError(t, err)
	return snowflake.ID(p.ID).String()
}

func (f *fixture) code(t *testing.T, code string, percent int64) {
	t.Helper()
	_, err := f.discounts.Create(context.Background(), discountdomain.CreateRequest{
		Code: code, Type: discountdomain.TypePercentage, Value: decimal.NewFromInt(percent),
	})
	require.NoError(t, err)
}

func (f *fixture) step(t *testing.T, id string, step domain.Step, body string) *domain.StepResult {
	t.Helper()
	res, err := f.svc.UpdateStep(context.Background(), id, step, json.RawMessage(body))
	require.NoError(t, err)
	return res
}

const (
	infoBody      = `{"contact":{"first_name":"Jane","last_name":"Doe","email":" Jane@Example.com "}}`
	shippingBody  = `{"shipping":{"line1":"1 Main St","city":"Austin","state":"TX","postal_code":"78701","country":"us"}}`
	questionsBody = `{"questions":[{"key":"allergies","question":"Any allergies?","answer":"none"}]}`
)

// intake walks a pinksky session up to the gateway redirect.
func (f *fixture) intake(t *testing.T, discountCode string) (*domain.FormSession, *domain.StepResult) {
	t.Helper()
	productID := f.product(t, "Vitamin D", "100")
	session, err := f.svc.Start(context.Background(), domain.StartRequest{SourcePath: "/pinksky/intake"})
	require.NoError(t, err)
	id := session.ID.String()

	f.step(t, id, domain.StepInfo, infoBody)
	f.step(t, id, domain.StepProduct, `{"products":[{"product_id":"`+productID+`","unit":"30 caps","quantity":1}]}`)
	f.step(t, id, domain.StepPayment, shippingBody)
	if discountCode != "" {
		f.step(t, id, domain.StepPayment, `{"discount_code":"`+discountCode+`"}`)
	}
	f.step(t, id, domain.StepQuestions, questionsBody)
	f.step(t, id, domain.StepSign, `{}`)
	res := f.step(t, id, domain.StepCheckout, `{"accepted_terms":true}`)
	return session, res
}

func (f *fixture) pay(t *testing.T, res *domain.StepResult, cents int64) {
	t.Helper()
	f.gateway.state = paymentdomain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: cents, PaymentIntentRef: "pi_1"}
	_, err := f.payments.Callback(context.Background(), res.PaymentID.String(), paymentdomain.CallbackSuccessful)
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T, id snowflake.ID) *domain.FormSession {
	t.Helper()
	s, err := f.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestStartResolvesBrandAndCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.Start(ctx, domain.StartRequest{SourcePath: "/CCCPortal/start"})
	require.NoError(t, err)
	assert.Equal(t, "cccportal", s.Brand)
	assert.Equal(t, "CAD", s.Currency)
	assert.Equal(t, domain.StatusPending, s.Status)
	assert.Equal(t, "OF-"+s.ID.Base32(), s.Reference)

	_, err = f.svc.Start(ctx, domain.StartRequest{SourcePath: "/pinksky", Currency: "CAD"})
	assert.ErrorIs(t, err, brand.ErrCurrencyMismatch)
}

func TestIntakeToReviewScenario(t *testing.T) {
	f := newFixture(t)
	f.code(t, "SAVE10", 10)

	session, res := f.intake(t, "save10")
	require.NotNil(t, res.Breakdown)
	assert.Equal(t, "100.00", res.Breakdown.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", res.Breakdown.DiscountAmount.StringFixed(2))
	assert.Equal(t, "4.50", res.Breakdown.TaxAmount.StringFixed(2))
	assert.Equal(t, "154.50", res.Breakdown.Total.StringFixed(2))
	require.NotNil(t, res.PaymentID)
	assert.Equal(t, "https://pay.example/"+res.PaymentID.String(), res.RedirectURL)

	answers := f.load(t, session.ID).Answers()
	assert.Equal(t, "jane@example.com", answers.Contact.Email)
	assert.Equal(t, "US", answers.Shipping.Country)
	require.NotNil(t, answers.Checkout)
	assert.True(t, answers.Checkout.AcceptedTerms)

	f.pay(t, res, 15450)
	assert.Equal(t, domain.StatusProcessing, f.load(t, session.ID).Status)

	paid := f.step(t, session.ID.String(), domain.StepCheckout, `{"accepted_terms":true}`)
	assert.True(t, paid.Paid)

	completed, err := f.svc.Complete(context.Background(), session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingReview, completed.Status)
	assert.Equal(t, []notificationdomain.EventType{notificationdomain.EventOrderSubmitted}, f.notifier.admins)

	activities, err := f.svc.ListActivities(context.Background(), session.ID.String())
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, domain.ActivitySubmitted, activities[0].Kind)

	_, err = f.svc.UpdateStep(context.Background(), session.ID.String(), domain.StepInfo, json.RawMessage(infoBody))
	assert.ErrorIs(t, err, domain.ErrSessionLocked)

	view, err := f.svc.Get(context.Background(), session.ID.String())
	require.NoError(t, err)
	require.NotNil(t, view.CompletedPayment)
	assert.Equal(t, "154.50", view.CompletedPayment.Total.StringFixed(2))
}

func TestCheckoutStepKeepsOneLiveCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, first := f.intake(t, "")
	id := session.ID.String()

	again := f.step(t, id, domain.StepCheckout, `{"accepted_terms":true}`)
	assert.Equal(t, *first.PaymentID, *again.PaymentID)
	assert.Equal(t, first.RedirectURL, again.RedirectURL)
	assert.Equal(t, 1, f.gateway.opened)

	productID := f.product(t, "Magnesium", "40")
	f.step(t, id, domain.StepProduct, `{"products":[{"product_id":"`+productID+`","quantity":2}]}`)
	changed := f.step(t, id, domain.StepCheckout, `{"accepted_terms":true}`)
	require.NotNil(t, changed.PaymentID)
	assert.NotEqual(t, *first.PaymentID, *changed.PaymentID)
	assert.Equal(t, "80.00", changed.Breakdown.Subtotal.StringFixed(2))
	assert.Equal(t, []string{"cs_" + first.PaymentID.String()}, f.gateway.expired)

	old, err := f.payments.Get(ctx, *first.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCancelled, old.Status)

	var pending int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).
		Where("form_session_id = ? AND status = ?", session.ID, paymentdomain.StatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestDiscountStepRules(t *testing.T) {
	f := newFixture(t)
	f.code(t, "SAVE10", 10)
	f.code(t, "OTHER", 5)
	ctx := context.Background()

	productID := f.product(t, "Vitamin D", "100")
	session, err := f.svc.Start(ctx, domain.StartRequest{SourcePath: "/pinksky"})
	require.NoError(t, err)
	id := session.ID.String()

	_, err = f.svc.UpdateStep(ctx, id, domain.StepPayment, json.RawMessage(`{"discount_code":"SAVE10"}`))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	f.step(t, id, domain.StepProduct, `{"products":[{"product_id":"`+productID+`","quantity":1}]}`)
	res := f.step(t, id, domain.StepPayment, `{"discount_code":"SAVE10"}`)
	require.NotNil(t, res.Breakdown)
	assert.Equal(t, "10.00", res.Breakdown.DiscountAmount.StringFixed(2))

	again := f.step(t, id, domain.StepPayment, `{"discount_code":"save10"}`)
	assert.Equal(t, "SAVE10", again.Session.Answers().Discount.Code)
	code, err := f.discounts.Validate(ctx, "SAVE10")
	assert.Nil(t, code)
	assert.ErrorIs(t, err, discountdomain.ErrInvalidDiscountCode)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepPayment, json.RawMessage(`{"discount_code":"OTHER"}`))
	assert.ErrorIs(t, err, discountdomain.ErrDiscountAlreadyApplied)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepProduct, json.RawMessage(`{"products":[{"product_id":"`+productID+`","quantity":2}]}`))
	assert.ErrorIs(t, err, domain.ErrProductsLocked)
}

func TestInvalidDiscountLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t, "Vitamin D", "100")
	session, err := f.svc.Start(ctx, domain.StartRequest{SourcePath: "/pinksky"})
	require.NoError(t, err)
	id := session.ID.String()
	f.step(t, id, domain.StepProduct, `{"products":[{"product_id":"`+productID+`","quantity":1}]}`)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepPayment,
		json.RawMessage(`{"discount_code":"NOPE","shipping":{"line1":"1 Main St","city":"Austin","state":"TX","postal_code":"78701","country":"US"}}`))
	assert.ErrorIs(t, err, discountdomain.ErrInvalidDiscountCode)

	answers := f.load(t, session.ID).Answers()
	assert.Nil(t, answers.Discount)
	assert.Nil(t, answers.Shipping)
}

func TestStepValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx, domain.StartRequest{SourcePath: "/pinksky"})
	require.NoError(t, err)
	id := session.ID.String()

	_, err = f.svc.UpdateStep(ctx, id, domain.Step("billing"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepInfo, json.RawMessage(`{"contact":{"first_name":"Jane","last_name":"Doe","email":"nope"}}`))
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "info.contact.email", appErr.Fields[0].Field)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepInfo, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.svc.UpdateStep(ctx, id, domain.StepCheckout, json.RawMessage(`{"accepted_terms":false}`))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = f.svc.UpdateStep(ctx, id, domain.StepCheckout, json.RawMessage(`{"accepted_terms":true}`))
	appErr, ok = apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "incomplete_order", appErr.Code)

	_, err = f.svc.UpdateStep(ctx, "abc", domain.StepInfo, json.RawMessage(infoBody))
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestQuestionsMergeByKey(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.Start(context.Background(), domain.StartRequest{SourcePath: "/pinksky"})
	require.NoError(t, err)
	id := session.ID.String()

	f.step(t, id, domain.StepQuestions, `{"questions":[{"key":"a","answer":"1"},{"key":"b","answer":"2"}]}`)
	res := f.step(t, id, domain.StepQuestions, `{"questions":[{"key":"b","answer":"3"},{"key":"c","answer":"4"}]}`)

	qs := res.Session.Answers().Questions
	require.Len(t, qs, 3)
	assert.Equal(t, "1", qs[0].Answer)
	assert.Equal(t, "3", qs[1].Answer)
	assert.Equal(t, "c", qs[2].Key)
}

func TestCompleteRequiresPayment(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.Start(context.Background(), domain.StartRequest{SourcePath: "/pinksky"})
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), session.ID.String())
	assert.ErrorIs(t, err, domain.ErrPaymentRequired)
	assert.Equal(t, domain.StatusPending, f.load(t, session.ID).Status)
}

func (f *fixture) directSession(t *testing.T) (*domain.FormSession, snowflake.ID) {
	t.Helper()
	ctx := context.Background()
	productID := f.product(t, "Vitamin D", "100")
	items, err := f.products.Price(ctx, "USD", []productdomain.Selection{{ProductID: productID, Quantity: 1}})
	require.NoError(t, err)

	var session *domain.FormSession
	var payment *paymentdomain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = f.payments.CreatePending(ctx, tx, paymentdomain.InitiateRequest{
			Brand:     "pinksky",
			OrderType: paymentdomain.OrderTypeCart,
			Breakdown: paymentTotals(),
			Items:     items,
			Contact:   paymentdomain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		})
		if err != nil {
			return err
		}
		session, err = f.svc.CreateDirect(ctx, tx, domain.DirectRequest{
			SourcePath: "/pinksky/shop",
			Brand:      "pinksky",
			Currency:   "USD",
			PaymentID:  payment.ID,
			Answers: domain.IntakeAnswers{
				Contact: &paymentdomain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
			},
		})
		return err
	}))
	checkout, err := f.payments.Open(ctx, payment.ID)
	require.NoError(t, err)

	f.pay(t, &domain.StepResult{PaymentID: &checkout.PaymentID}, 16500)
	return session, payment.ID
}

func TestDirectOrderCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, _ := f.directSession(t)
	require.Equal(t, domain.BookingTypeDirect, session.BookingType)
	require.Equal(t, domain.StatusProcessing, f.load(t, session.ID).Status)

	first, err := f.svc.MarkCompleted(ctx, session.ID.String(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, first.Status)

	second, err := f.svc.MarkCompleted(ctx, session.ID.String(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, second.Status)

	activities, err := f.svc.ListActivities(ctx, session.ID.String())
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, domain.ActivityConfirmed, activities[0].Kind)
	require.NotNil(t, activities[0].UserID)
	assert.Equal(t, "admin-1", *activities[0].UserID)

	completedEvents := 0
	for _, e := range f.notifier.events {
		if e == notificationdomain.EventOrderCompleted {
			completedEvents++
		}
	}
	assert.Equal(t, 1, completedEvents)

	unfulfilled, err := f.svc.MarkUnfulfilled(ctx, session.ID.String(), "out of stock at supplier", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnfulfilled, unfulfilled.Status)
	require.NotNil(t, unfulfilled.Comment)
	assert.Equal(t, "out of stock at supplier", *unfulfilled.Comment)
}

func TestDirectOrderRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, paymentID := f.directSession(t)

	_, err := f.svc.MarkRefunded(ctx, session.ID.String(), "short", "admin-1")
	assert.ErrorIs(t, err, domain.ErrReasonTooShort)

	refunded, err := f.svc.MarkRefunded(ctx, session.ID.String(), "customer changed mind", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, []string{"pi_1"}, f.gateway.refunds)

	payment, err := f.payments.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusRefunded, payment.Status)

	_, err = f.svc.MarkRefunded(ctx, session.ID.String(), "customer changed mind", "admin-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, f.gateway.refunds, 1)
}

func TestFormOnlyActionsRejectFormSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, res := f.intake(t, "")
	f.pay(t, res, 16500)

	_, err := f.svc.MarkCompleted(ctx, session.ID.String(), "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotDirectOrder)
	_, err = f.svc.MarkUnfulfilled(ctx, session.ID.String(), "not available anymore", "admin-1")
	assert.ErrorIs(t, err, domain.ErrNotDirectOrder)

	cancelled, err := f.svc.Cancel(ctx, session.ID.String(), "duplicate order placed", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	view, err := f.svc.Get(ctx, session.ID.String())
	require.NoError(t, err)
	assert.Nil(t, view.CompletedPayment)
	assert.Contains(t, f.notifier.events, notificationdomain.EventOrderCancelled)
}

func paymentTotals() pricing.Breakdown {
	return pricing.Breakdown{
		Currency:    "USD",
		Subtotal:    decimal.NewFromInt(100),
		ShippingFee: decimal.NewFromInt(60),
		TaxRate:     decimal.NewFromInt(5),
		TaxAmount:   decimal.NewFromInt(5),
		Total:       decimal.NewFromInt(165),
	}
}
