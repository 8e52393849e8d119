package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	formsessionrepo "github.com/pinksky/orderflow/internal/formsession/repository"
	notificationdomain "github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/payment/repository"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeGateway struct {
	mu sync.Mutex

	checkoutErr error
	retrieveErr error
	refundErr   error
	expireErr   error
	state       domain.CheckoutState
	receipt     string

	requests  []domain.CheckoutRequest
	retrieves int
	refunds   []string
	expired   []string
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req domain.CheckoutRequest) (domain.GatewayCheckout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.checkoutErr != nil {
		return domain.GatewayCheckout{}, g.checkoutErr
	}
	return domain.GatewayCheckout{ID: "cs_" + req.PaymentID, RedirectURL: "https://pay.example/" + req.PaymentID}, nil
}

func (g *fakeGateway) ExpireCheckout(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return g.expireErr
	}
	g.expired = append(g.expired, id)
	return nil
}

func (g *fakeGateway) RetrieveCheckout(context.Context, string) (domain.CheckoutState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieves++
	return g.state, g.retrieveErr
}

func (g *fakeGateway) RetrieveReceipt(context.Context, string) (string, error) {
	return g.receipt, nil
}

func (g *fakeGateway) Refund(_ context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, ref)
	return nil
}

type sentNotification struct {
	to    notificationdomain.Recipient
	event notificationdomain.EventType
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, to notificationdomain.Recipient, event notificationdomain.EventType, _ notificationdomain.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{to: to, event: event})
}

func (n *recordingNotifier) NotifyAdmins(ctx context.Context, event notificationdomain.EventType, p notificationdomain.Payload) {
	n.Notify(ctx, notificationdomain.Recipient{Email: "admins"}, event, p)
}

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	gateway  *fakeGateway
	notifier *recordingNotifier
	repo     domain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&domain.Payment{},
		&domain.PaymentProduct{},
		&formsessiondomain.FormSession{},
		&formsessiondomain.Activity{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		node:     node,
		clock:    clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		gateway:  &fakeGateway{receipt: "https://receipts.example/1"},
		notifier: &recordingNotifier{},
		repo:     repository.Provide(),
	}
	cfg := config.Config{Gateway: config.GatewayConfig{
		SuccessURL: "https://shop.example/api/payments/{payment_id}/callback?status=successful",
		CancelURL:  "https://shop.example/api/payments/{payment_id}/callback?status=cancelled",
		Timeout:    time.Second,
	}}
	f.svc = New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       f.clock,
		Config:      cfg,
		Repo:        f.repo,
		SessionRepo: formsessionrepo.Provide(),
		Gateway:     f.gateway,
		Notifier:    f.notifier,
	})
	return f
}

func (f *fixture) createSession(t *testing.T) *formsessiondomain.FormSession {
	t.Helper()
	id := f.node.Generate()
	session := &formsessiondomain.FormSession{
		ID:          id,
		Reference:   "OF-" + id.Base32(),
		Status:      formsessiondomain.StatusPending,
		BookingType: formsessiondomain.BookingTypeForm,
		Brand:       "pinksky",
		Currency:    "USD",
		Metadata:    datatypes.NewJSONType(formsessiondomain.Metadata{}),
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	require.NoError(t, formsessionrepo.Provide().Create(context.Background(), f.db, session))
	return session
}

// pinkskyOrder is one 100.00 USD item with 60.00 shipping and 5% tax.
func pinkskyOrder(sessionID *snowflake.ID) domain.InitiateRequest {
	item := productdomain.PricedItem{
		Product:   productdomain.Product{ID: 7, Name: "Vitamin D"},
		Tier:      productdomain.PriceTier{Unit: "30 caps"},
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(100),
	}
	five := decimal.NewFromInt(5)
	b := pricing.Calculate(productdomain.Lines([]productdomain.PricedItem{item}), pricing.Config{
		Brand:              "pinksky",
		Currency:           "USD",
		TaxRate:            &five,
		DefaultShippingFee: decimal.NewFromInt(60),
	}, "", decimal.Zero)

	return domain.InitiateRequest{
		SessionID: sessionID,
		Brand:     "pinksky",
		Breakdown: b,
		Items:     []productdomain.PricedItem{item},
		Contact:   domain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		Shipping:  domain.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
	}
}

func (f *fixture) initiate(t *testing.T, sessionID *snowflake.ID) *domain.Checkout {
	t.Helper()
	checkout, err := f.svc.Initiate(context.Background(), pinkskyOrder(sessionID))
	require.NoError(t, err)
	return checkout
}

func (f *fixture) payment(t *testing.T, id snowflake.ID) *domain.Payment {
	t.Helper()
	p, err := f.repo.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestInitiateCreatesPendingPaymentAndOpensCheckout(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)

	checkout := f.initiate(t, &session.ID)
	assert.Equal(t, "https://pay.example/"+checkout.PaymentID.String(), checkout.RedirectURL)

	p := f.payment(t, checkout.PaymentID)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, domain.OrderTypeRegular, p.OrderType)
	assert.Equal(t, "165.00", p.Total.StringFixed(2))
	assert.Equal(t, "5.00", p.TaxAmount.StringFixed(2))
	assert.Equal(t, "60.00", p.ShippingFee.StringFixed(2))
	require.NotNil(t, p.PaymentReference)
	assert.Equal(t, "cs_"+p.ID.String(), *p.PaymentReference)
	assert.Contains(t, p.Reference, "PAY-")

	products, err := f.repo.FindProducts(context.Background(), f.db, p.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Vitamin D - 30 caps", products[0].ProductName)
	assert.Equal(t, "30 caps", products[0].PriceTier.Data().Unit)
	assert.Equal(t, "100.00", products[0].LineTotal.StringFixed(2))

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, int64(6000), req.ShippingFeeCents)
	assert.Equal(t, int64(500), req.TaxCents)
	assert.Equal(t, int64(10000), req.LineItems[0].UnitAmountCents)
	assert.Equal(t, "https://shop.example/api/payments/"+p.ID.String()+"/callback?status=successful", req.SuccessURL)
}

func TestInitiateGatewayTimeoutLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	f.gateway.checkoutErr = context.DeadlineExceeded

	_, err := f.svc.Initiate(context.Background(), pinkskyOrder(&session.ID))
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))

	var payments []domain.Payment
	require.NoError(t, f.db.Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusPending, payments[0].Status)
	assert.Nil(t, payments[0].PaymentReference)

	f.gateway.checkoutErr = nil
	checkout := f.initiate(t, &session.ID)
	assert.Equal(t, payments[0].ID, checkout.PaymentID)
	assert.Equal(t, "https://pay.example/"+checkout.PaymentID.String(), checkout.RedirectURL)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.gateway.requests, 2)
}

func TestOpenRetriesAfterGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.checkoutErr = context.DeadlineExceeded

	var payment *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(nil))
		return err
	}))
	_, err := f.svc.Open(ctx, payment.ID)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, domain.StatusPending, f.payment(t, payment.ID).Status)

	f.gateway.checkoutErr = nil
	first, err := f.svc.Open(ctx, payment.ID)
	require.NoError(t, err)
	again, err := f.svc.Open(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, first.RedirectURL, again.RedirectURL)
	assert.Len(t, f.gateway.requests, 2)

	stored := f.payment(t, payment.ID)
	require.NotNil(t, stored.CheckoutURL)
	assert.Equal(t, first.RedirectURL, *stored.CheckoutURL)
}

func TestInitiateReusesCheckoutForUnchangedOrder(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)

	first := f.initiate(t, &session.ID)
	second := f.initiate(t, &session.ID)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.RedirectURL, second.RedirectURL)
	assert.Len(t, f.gateway.requests, 1)
	assert.Empty(t, f.gateway.expired)
}

func TestInitiateRetiresCheckoutForChangedOrder(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	first := f.initiate(t, &session.ID)

	req := pinkskyOrder(&session.ID)
	req.Shipping.Line1 = "2 Main St"
	second, err := f.svc.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)

	assert.Equal(t, []string{"cs_" + first.PaymentID.String()}, f.gateway.expired)
	assert.Equal(t, domain.StatusCancelled, f.payment(t, first.PaymentID).Status)
	assert.Equal(t, domain.StatusPending, f.payment(t, second.PaymentID).Status)

	// the old redirect is dead even if the customer kept the tab open
	_, err = f.svc.Callback(context.Background(), first.PaymentID.String(), "successful")
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
}

func TestInitiateSettlesRetiredCheckoutThatWasPaid(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	first := f.initiate(t, &session.ID)

	f.gateway.expireErr = errors.New("checkout is already complete")
	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_1"}
	req := pinkskyOrder(&session.ID)
	req.Shipping.Line1 = "2 Main St"

	_, err := f.svc.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyPaid)
	assert.Equal(t, domain.StatusSuccessful, f.payment(t, first.PaymentID).Status)
	assert.Len(t, f.gateway.requests, 1)

	stored, err := formsessionrepo.Provide().FindByID(context.Background(), f.db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, formsessiondomain.StatusProcessing, stored.Status)

	_, err = f.svc.Initiate(context.Background(), pinkskyOrder(&session.ID))
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyPaid)
}

func TestSecondCaptureForPaidOrderIsRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.createSession(t)
	first := f.initiate(t, &session.ID)

	// a second checkout left over from before the order was locked
	var stray *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		stray, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(&session.ID))
		return err
	}))
	_, err := f.svc.Open(ctx, stray.ID)
	require.NoError(t, err)

	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_first"}
	res, err := f.svc.Callback(ctx, first.PaymentID.String(), "successful")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, res.Status)

	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_stray"}
	dup, err := f.svc.Callback(ctx, stray.ID.String(), "successful")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, domain.StatusRefunded, dup.Status)
	assert.Equal(t, []string{"pi_stray"}, f.gateway.refunds)

	assert.Equal(t, domain.StatusSuccessful, f.payment(t, first.PaymentID).Status)
	refunded := f.payment(t, stray.ID)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	completed, err := f.svc.CompletedPayment(ctx, nil, session.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, first.PaymentID, completed.ID)
	require.Len(t, f.notifier.sent, 1)
}

func TestDuplicateCaptureRefundFailureKeepsPaymentPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.createSession(t)
	first := f.initiate(t, &session.ID)

	var stray *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		stray, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(&session.ID))
		return err
	}))
	_, err := f.svc.Open(ctx, stray.ID)
	require.NoError(t, err)

	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_first"}
	_, err = f.svc.Callback(ctx, first.PaymentID.String(), "successful")
	require.NoError(t, err)

	f.gateway.refundErr = errors.New("card network down")
	_, err = f.svc.Callback(ctx, stray.ID.String(), "successful")
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))
	assert.Equal(t, domain.StatusPending, f.payment(t, stray.ID).Status)

	f.gateway.refundErr = nil
	dup, err := f.svc.Callback(ctx, stray.ID.String(), "successful")
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Len(t, f.gateway.refunds, 1)
}

func TestCallbackSettlesPaymentOnce(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_1"}

	res, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccessful, res.Status)
	assert.False(t, res.AlreadyPaid)

	p := f.payment(t, checkout.PaymentID)
	assert.Equal(t, domain.StatusSuccessful, p.Status)
	require.NotNil(t, p.PaidAt)
	require.NotNil(t, p.ReceiptURL)
	assert.Equal(t, "https://receipts.example/1", *p.ReceiptURL)
	require.NotNil(t, p.PaymentIntent)
	assert.Equal(t, "pi_1", *p.PaymentIntent)

	stored, err := formsessionrepo.Provide().FindByID(context.Background(), f.db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, formsessiondomain.StatusProcessing, stored.Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notificationdomain.EventPaymentReceived, f.notifier.sent[0].event)
	assert.Equal(t, "jane@example.com", f.notifier.sent[0].to.Email)

	f.clock.Advance(time.Hour)
	again, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	require.NoError(t, err)
	assert.True(t, again.AlreadyPaid)
	assert.Equal(t, domain.StatusSuccessful, again.Status)

	after := f.payment(t, checkout.PaymentID)
	assert.True(t, p.PaidAt.Equal(*after.PaidAt))
	assert.Len(t, f.notifier.sent, 1)
	assert.Equal(t, 1, f.gateway.retrieves)

	completed, err := f.svc.CompletedPayment(context.Background(), nil, session.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, checkout.PaymentID, completed.ID)
}

func TestCallbackUnderpaidFailsPaymentAndLeavesSession(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16499}

	_, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	assert.ErrorIs(t, err, domain.ErrUnderpaid)

	assert.Equal(t, domain.StatusFailed, f.payment(t, checkout.PaymentID).Status)
	stored, err := formsessionrepo.Provide().FindByID(context.Background(), f.db, session.ID)
	require.NoError(t, err)
	assert.Equal(t, formsessiondomain.StatusPending, stored.Status)
	assert.Empty(t, f.notifier.sent)
}

func TestCallbackCancelledAndUnconfirmed(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	f.gateway.state = domain.CheckoutState{PaymentStatus: "unpaid", AmountTotalCents: 16500}

	_, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
	assert.Equal(t, domain.StatusPending, f.payment(t, checkout.PaymentID).Status)

	res, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, res.Status)
	assert.Equal(t, domain.StatusCancelled, f.payment(t, checkout.PaymentID).Status)

	_, err = f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
}

func TestCallbackRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Callback(ctx, "1", "paid")
	assert.ErrorIs(t, err, domain.ErrInvalidCallbackStatus)

	_, err = f.svc.Callback(ctx, "not-an-id", "successful")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.Callback(ctx, f.node.Generate().String(), "successful")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	unlinked := f.initiate(t, nil)
	_, err = f.svc.Callback(ctx, unlinked.PaymentID.String(), "successful")
	assert.ErrorIs(t, err, domain.ErrPaymentNotLinked)
}

func TestCallbackGatewayErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	f.gateway.retrieveErr = errors.New("timeout")

	_, err := f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	require.Error(t, err)
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))
	assert.Equal(t, domain.StatusPending, f.payment(t, checkout.PaymentID).Status)
}

func TestRefundRequiresSuccessfulPayment(t *testing.T) {
	f := newFixture(t)
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)

	_, err := f.svc.Refund(context.Background(), checkout.PaymentID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
	assert.Equal(t, apperror.KindIntegrity, apperror.KindOf(err))

	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_7"}
	_, err = f.svc.Callback(context.Background(), checkout.PaymentID.String(), "successful")
	require.NoError(t, err)

	refunded, err := f.svc.Refund(context.Background(), checkout.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, []string{"pi_7"}, f.gateway.refunds)
	assert.Len(t, refunded.Products, 1)
}

func TestRefundAtGatewayResolvesIntentFromCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	require.NoError(t, f.repo.Update(ctx, f.db, checkout.PaymentID, map[string]any{
		"status": domain.StatusSuccessful,
	}))
	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", PaymentIntentRef: "pi_from_checkout"}

	require.NoError(t, f.svc.RefundAtGateway(ctx, f.payment(t, checkout.PaymentID)))
	assert.Equal(t, []string{"pi_from_checkout"}, f.gateway.refunds)
	assert.Equal(t, domain.StatusRefunding, f.payment(t, checkout.PaymentID).Status)

	require.NoError(t, f.repo.Update(ctx, f.db, checkout.PaymentID, map[string]any{
		"status": domain.StatusSuccessful,
	}))
	f.gateway.refundErr = errors.New("declined")
	err := f.svc.RefundAtGateway(ctx, f.payment(t, checkout.PaymentID))
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))
	assert.Equal(t, domain.StatusSuccessful, f.payment(t, checkout.PaymentID).Status)
}

func TestRefundAtGatewayRefundsOnceForStaleReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.createSession(t)
	checkout := f.initiate(t, &session.ID)
	f.gateway.state = domain.CheckoutState{PaymentStatus: "paid", AmountTotalCents: 16500, PaymentIntentRef: "pi_7"}
	_, err := f.svc.Callback(ctx, checkout.PaymentID.String(), "successful")
	require.NoError(t, err)

	// both admins loaded the payment while it was Successful
	first := f.payment(t, checkout.PaymentID)
	second := f.payment(t, checkout.PaymentID)

	require.NoError(t, f.svc.RefundAtGateway(ctx, first))
	err = f.svc.RefundAtGateway(ctx, second)
	assert.ErrorIs(t, err, domain.ErrRefundInProgress)
	assert.Equal(t, []string{"pi_7"}, f.gateway.refunds)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkRefunded(ctx, tx, checkout.PaymentID)
	}))
	assert.Equal(t, domain.StatusRefunded, f.payment(t, checkout.PaymentID).Status)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkRefunded(ctx, tx, checkout.PaymentID)
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

func TestRepriceOnlyBeforeGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var payment *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(nil))
		return err
	}))

	discounted := pricing.WithDiscount(payment.Breakdown(), "SAVE10", decimal.NewFromInt(10))
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Reprice(ctx, tx, payment.ID, discounted)
	}))
	stored := f.payment(t, payment.ID)
	assert.Equal(t, "154.50", stored.Total.StringFixed(2))
	require.NotNil(t, stored.DiscountCode)
	assert.Equal(t, "SAVE10", *stored.DiscountCode)

	_, err := f.svc.Open(ctx, payment.ID)
	require.NoError(t, err)
	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Reprice(ctx, tx, payment.ID, discounted)
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
}

func TestRepriceRejectsSecondCodeFromStaleRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var payment *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(nil))
		return err
	}))

	// both requests priced against the undiscounted payment
	first := pricing.WithDiscount(payment.Breakdown(), "AAA", decimal.NewFromInt(10))
	second := pricing.WithDiscount(payment.Breakdown(), "BBB", decimal.NewFromInt(20))

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Reprice(ctx, tx, payment.ID, first)
	}))
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Reprice(ctx, tx, payment.ID, second)
	})
	assert.ErrorIs(t, err, discountdomain.ErrDiscountAlreadyApplied)

	stored := f.payment(t, payment.ID)
	require.NotNil(t, stored.DiscountCode)
	assert.Equal(t, "AAA", *stored.DiscountCode)
	assert.Equal(t, "154.50", stored.Total.StringFixed(2))
}

func TestLinkSessionOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createSession(t)
	b := f.createSession(t)

	var payment *domain.Payment
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = f.svc.CreatePending(ctx, tx, pinkskyOrder(nil))
		return err
	}))

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.LinkSession(ctx, tx, payment.ID, a.ID)
	}))
	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.LinkSession(ctx, tx, payment.ID, b.ID)
	})
	assert.ErrorIs(t, err, domain.ErrPaymentAlreadyLinked)
	assert.Equal(t, a.ID, *f.payment(t, payment.ID).FormSessionID)
}

func TestMarkCancelledOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	checkout := f.initiate(t, nil)
	ctx := context.Background()

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkCancelled(ctx, tx, checkout.PaymentID)
	}))
	assert.Equal(t, domain.StatusCancelled, f.payment(t, checkout.PaymentID).Status)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.MarkCancelled(ctx, tx, checkout.PaymentID)
	}))
}
