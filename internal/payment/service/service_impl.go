package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	notificationdomain "github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	"github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/pricing"
	"github.com/pinksky/orderflow/internal/ratelimit"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const referencePrefix = "PAY-"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Repo        domain.Repository
	SessionRepo formsessiondomain.Repository
	Gateway     domain.Gateway              `optional:"true"`
	Guard       *ratelimit.CheckoutGuard    `optional:"true"`
	Notifier    notificationdomain.Notifier `optional:"true"`
	Metrics     *metrics.OrderMetrics       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.GatewayConfig
	repo        domain.Repository
	sessionRepo formsessiondomain.Repository
	gateway     domain.Gateway
	guard       *ratelimit.CheckoutGuard
	notifier    notificationdomain.Notifier
	metrics     *metrics.OrderMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notificationdomain.Noop{}
	}
	cfg := p.Config.Gateway
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       c,
		cfg:         cfg,
		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		gateway:     p.Gateway,
		guard:       p.Guard,
		notifier:    notifier,
		metrics:     p.Metrics,
	}
}

func (s *Service) Initiate(ctx context.Context, req domain.InitiateRequest) (*domain.Checkout, error) {
	if s.gateway == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	if req.SessionID != nil {
		checkout, err := s.resume(ctx, req)
		if err != nil || checkout != nil {
			return checkout, err
		}
	}

	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.SessionID != nil {
			if err := s.claimSession(ctx, tx, *req.SessionID); err != nil {
				return err
			}
		}
		var err error
		payment, err = s.CreatePending(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.open(ctx, payment)
}

// resume hands back the order's Pending payment when it still charges what
// req describes. Every other Pending payment of the order is retired so only
// one checkout can ever be paid.
func (s *Service) resume(ctx context.Context, req domain.InitiateRequest) (*domain.Checkout, error) {
	payments, err := s.repo.ListBySession(ctx, s.db, *req.SessionID)
	if err != nil {
		return nil, err
	}

	var current *domain.Payment
	for i := range payments {
		p := &payments[i]
		switch p.Status {
		case domain.StatusSuccessful, domain.StatusRefunding:
			return nil, domain.ErrSessionAlreadyPaid
		case domain.StatusPending:
		default:
			continue
		}
		if current == nil {
			same, err := s.sameOrder(ctx, p, req)
			if err != nil {
				return nil, err
			}
			if same {
				current = p
				continue
			}
		}
		if err := s.retire(ctx, p); err != nil {
			return nil, err
		}
	}
	if current == nil {
		return nil, nil
	}

	s.log.Info("reusing pending payment",
		zap.String("payment_id", current.ID.String()),
		zap.Stringp("session_id", sessionIDString(current.FormSessionID)),
	)
	return s.open(ctx, current)
}

// claimSession locks the order and refuses a second Pending payment.
func (s *Service) claimSession(ctx context.Context, tx *gorm.DB, sessionID snowflake.ID) error {
	session, err := s.sessionRepo.FindByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrSessionNotFound
	}
	payments, err := s.repo.ListBySession(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range payments {
		switch p.Status {
		case domain.StatusPending:
			return domain.ErrCheckoutInProgress
		case domain.StatusSuccessful, domain.StatusRefunding:
			return domain.ErrSessionAlreadyPaid
		}
	}
	return nil
}

// retire closes a Pending payment the order no longer uses. An opened checkout
// is expired at the gateway first. When that fails the checkout is reconciled
// instead, since the customer may already have paid it.
func (s *Service) retire(ctx context.Context, p *domain.Payment) error {
	log := s.log.With(zap.String("payment_id", p.ID.String()))
	if p.IsOpened() {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err := s.gateway.ExpireCheckout(callCtx, *p.PaymentReference)
		cancel()
		if err != nil {
			s.metrics.RecordExternalError("gateway", "expire_checkout")
			log.Warn("gateway checkout could not be expired, reconciling", zap.Error(err))
			res, cbErr := s.Callback(ctx, p.ID.String(), domain.CallbackCancelled)
			switch {
			case cbErr == nil && res.Status == domain.StatusSuccessful:
				return domain.ErrSessionAlreadyPaid
			case cbErr == nil,
				errors.Is(cbErr, domain.ErrUnderpaid),
				errors.Is(cbErr, domain.ErrPaymentNotPending):
				return nil
			default:
				return cbErr
			}
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.MarkCancelled(ctx, tx, p.ID)
	})
	if err != nil && !errors.Is(err, domain.ErrPaymentNotPending) {
		return err
	}
	log.Info("superseded payment cancelled")
	return nil
}

// sameOrder reports whether p still charges exactly what req describes.
func (s *Service) sameOrder(ctx context.Context, p *domain.Payment, req domain.InitiateRequest) (bool, error) {
	if p.IsOpened() && p.CheckoutURL == nil {
		return false, nil
	}
	if !sameBreakdown(p.Breakdown(), req.Breakdown) {
		return false, nil
	}
	if p.Contact.Email != req.Contact.Email || p.Shipping != req.Shipping {
		return false, nil
	}

	products := p.Products
	if len(products) == 0 {
		var err error
		products, err = s.repo.FindProducts(ctx, s.db, p.ID)
		if err != nil {
			return false, err
		}
	}
	if len(products) != len(req.Items) {
		return false, nil
	}
	for i, item := range req.Items {
		line := products[i]
		if line.ProductID != item.Product.ID ||
			line.Quantity != item.Quantity ||
			line.PriceTier.Data().Unit != item.Tier.Unit ||
			!line.UnitPrice.Equal(pricing.Round2(item.UnitPrice)) {
			return false, nil
		}
	}
	return true, nil
}

func sameBreakdown(a, b pricing.Breakdown) bool {
	return a.Currency == b.Currency &&
		strings.TrimSpace(a.DiscountCode) == strings.TrimSpace(b.DiscountCode) &&
		a.Subtotal.Equal(b.Subtotal) &&
		a.DiscountAmount.Equal(b.DiscountAmount) &&
		a.ShippingFee.Equal(b.ShippingFee) &&
		a.TaxRate.Equal(b.TaxRate) &&
		a.TaxAmount.Equal(b.TaxAmount) &&
		a.Total.Equal(b.Total)
}

func (s *Service) CreatePending(ctx context.Context, tx *gorm.DB, req domain.InitiateRequest) (*domain.Payment, error) {
	if len(req.Items) == 0 {
		return nil, apperror.Missing("invalid_payment", "products")
	}
	if tx == nil {
		tx = s.db
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = domain.OrderTypeRegular
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:            s.genID.Generate(),
		FormSessionID: req.SessionID,
		Reference:     referencePrefix + ulid.Make().String(),
		Brand:         req.Brand,
		Status:        domain.StatusPending,
		OrderType:     orderType,
		Contact:       req.Contact,
		Shipping:      req.Shipping,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payment.ApplyBreakdown(req.Breakdown)

	payment.Products = make([]domain.PaymentProduct, 0, len(req.Items))
	for _, item := range req.Items {
		payment.Products = append(payment.Products, domain.PaymentProduct{
			ID:          s.genID.Generate(),
			PaymentID:   payment.ID,
			ProductID:   item.Product.ID,
			ProductName: item.DisplayName(),
			Quantity:    item.Quantity,
			PriceTier:   datatypes.NewJSONType(item.Tier),
			UnitPrice:   pricing.Round2(item.UnitPrice),
			LineTotal:   pricing.Round2(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))),
			CreatedAt:   now,
		})
	}

	if err := s.repo.Create(ctx, tx, payment); err != nil {
		return nil, err
	}
	s.log.Info("payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.Stringp("session_id", sessionIDString(payment.FormSessionID)),
		zap.String("reference", payment.Reference),
		zap.String("total", payment.Total.StringFixed(2)),
		zap.String("currency", payment.Currency),
	)
	return payment, nil
}

func (s *Service) Open(ctx context.Context, paymentID snowflake.ID) (*domain.Checkout, error) {
	if s.gateway == nil {
		return nil, domain.ErrGatewayNotConfigured
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusPending {
		return nil, domain.ErrPaymentNotPending
	}
	return s.open(ctx, payment)
}

// open sends the payment to the gateway. Nothing here runs inside a
// transaction, and a gateway failure leaves the payment Pending for a retry.
func (s *Service) open(ctx context.Context, payment *domain.Payment) (*domain.Checkout, error) {
	if payment.IsOpened() {
		return checkoutOf(payment, stringValue(payment.CheckoutURL)), nil
	}

	products := payment.Products
	if len(products) == 0 {
		var err error
		products, err = s.repo.FindProducts(ctx, s.db, payment.ID)
		if err != nil {
			return nil, err
		}
	}

	req := s.checkoutRequest(payment, products)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	checkout, err := s.gateway.CreateCheckout(callCtx, req)
	cancel()
	if err != nil {
		s.metrics.RecordExternalError("gateway", "create_checkout")
		s.log.Error("gateway checkout failed, payment left pending",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, apperror.Wrap(domain.ErrGatewayUnavailable, err)
	}

	attached, err := s.repo.AttachCheckoutIf(ctx, s.db, payment.ID, checkout.ID, checkout.RedirectURL)
	if err != nil {
		return nil, err
	}
	if !attached {
		// Another request opened or closed the payment meanwhile.
		s.expireUnused(ctx, payment.ID, checkout.ID)
		return nil, domain.ErrCheckoutInProgress
	}

	s.metrics.RecordCheckoutStarted(payment.Brand, string(payment.OrderType))
	s.log.Info("gateway checkout opened",
		zap.String("payment_id", payment.ID.String()),
		zap.Stringp("session_id", sessionIDString(payment.FormSessionID)),
	)
	return checkoutOf(payment, checkout.RedirectURL), nil
}

func (s *Service) expireUnused(ctx context.Context, paymentID snowflake.ID, checkoutID string) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	if err := s.gateway.ExpireCheckout(callCtx, checkoutID); err != nil {
		s.metrics.RecordExternalError("gateway", "expire_checkout")
		s.log.Error("failed to expire unused gateway checkout",
			zap.String("payment_id", paymentID.String()),
			zap.String("checkout_id", checkoutID),
			zap.Error(err),
		)
	}
}

func checkoutOf(payment *domain.Payment, redirectURL string) *domain.Checkout {
	return &domain.Checkout{
		PaymentID:   payment.ID,
		Reference:   payment.Reference,
		RedirectURL: redirectURL,
	}
}

func (s *Service) checkoutRequest(payment *domain.Payment, products []domain.PaymentProduct) domain.CheckoutRequest {
	items := make([]domain.LineItem, 0, len(products))
	for _, p := range products {
		items = append(items, domain.LineItem{
			Name:            p.ProductName,
			UnitAmountCents: pricing.ToCents(p.UnitPrice),
			Quantity:        p.Quantity,
		})
	}
	req := domain.CheckoutRequest{
		PaymentID:        payment.ID.String(),
		Reference:        payment.Reference,
		Currency:         strings.ToLower(payment.Currency),
		Country:          payment.Shipping.Country,
		CustomerEmail:    payment.Contact.Email,
		ShippingFeeCents: pricing.ToCents(payment.ShippingFee),
		TaxCents:         pricing.ToCents(payment.TaxAmount),
		DiscountCents:    pricing.ToCents(payment.DiscountAmount),
		LineItems:        items,
		SuccessURL:       callbackURL(s.cfg.SuccessURL, payment.ID),
		CancelURL:        callbackURL(s.cfg.CancelURL, payment.ID),
	}
	if payment.DiscountCode != nil {
		req.DiscountCode = *payment.DiscountCode
	}
	return req
}

func (s *Service) Reprice(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID, b pricing.Breakdown) error {
	payment, err := s.repo.FindByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusPending || payment.IsOpened() {
		return domain.ErrPaymentNotPending
	}
	if payment.DiscountCode != nil && strings.TrimSpace(b.DiscountCode) != "" {
		return discountdomain.ErrDiscountAlreadyApplied
	}
	payment.ApplyBreakdown(b)
	return s.repo.Update(ctx, tx, paymentID, map[string]any{
		"sub_total":       payment.SubTotal,
		"shipping_fee":    payment.ShippingFee,
		"tax_rate":        payment.TaxRate,
		"tax_amount":      payment.TaxAmount,
		"discount_code":   payment.DiscountCode,
		"discount_amount": payment.DiscountAmount,
		"total":           payment.Total,
	})
}

func (s *Service) LinkSession(ctx context.Context, tx *gorm.DB, paymentID, sessionID snowflake.ID) error {
	linked, err := s.repo.LinkSessionIf(ctx, tx, paymentID, sessionID)
	if err != nil {
		return err
	}
	if !linked {
		return domain.ErrPaymentAlreadyLinked
	}
	return nil
}

func (s *Service) Callback(ctx context.Context, rawID string, status string) (*domain.CallbackResult, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != domain.CallbackSuccessful && status != domain.CallbackCancelled {
		return nil, domain.ErrInvalidCallbackStatus
	}
	paymentID, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.FormSessionID == nil {
		return nil, domain.ErrPaymentNotLinked
	}
	session, err := s.sessionRepo.FindByID(ctx, s.db, *payment.FormSessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	result := &domain.CallbackResult{PaymentID: payment.ID, SessionID: session.ID, Status: payment.Status}
	log := s.log.With(zap.String("payment_id", payment.ID.String()), zap.String("session_id", session.ID.String()))

	if payment.Status == domain.StatusSuccessful {
		s.metrics.RecordReconciliation(metrics.OutcomeAlreadyPaid)
		result.AlreadyPaid = true
		return result, nil
	}
	if payment.Status != domain.StatusPending {
		return nil, domain.ErrPaymentNotPending
	}

	token, locked, err := s.guard.LockPaymentCallback(ctx, payment.ID.String())
	if err != nil {
		log.Warn("callback lock unavailable, continuing without it", zap.Error(err))
		locked = true
	}
	if !locked {
		return nil, domain.ErrCallbackInProgress
	}
	defer func() {
		if token == "" {
			return
		}
		if err := s.guard.ReleasePaymentCallback(context.WithoutCancel(ctx), payment.ID.String(), token); err != nil {
			log.Warn("failed to release callback lock", zap.Error(err))
		}
	}()

	if !payment.IsOpened() {
		return nil, domain.ErrPaymentNotOpened
	}
	if s.gateway == nil {
		return nil, domain.ErrGatewayNotConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	state, err := s.gateway.RetrieveCheckout(callCtx, *payment.PaymentReference)
	cancel()
	if err != nil {
		s.metrics.RecordExternalError("gateway", "retrieve_checkout")
		s.metrics.RecordReconciliation(metrics.OutcomeError)
		log.Error("failed to retrieve gateway checkout", zap.Error(err))
		return nil, apperror.Wrap(domain.ErrGatewayUnavailable, err)
	}

	switch {
	case state.Paid():
		paid := pricing.FromCents(state.AmountTotalCents)
		if paid.LessThan(payment.Total) {
			return nil, s.rejectUnderpaid(ctx, log, payment, paid)
		}
		return s.settle(ctx, log, payment, session, state, result)
	case status == domain.CallbackCancelled:
		if _, err := s.repo.UpdateStatusIf(ctx, s.db, payment.ID, domain.StatusPending, map[string]any{
			"status": domain.StatusCancelled,
		}); err != nil {
			return nil, err
		}
		s.metrics.RecordReconciliation(metrics.OutcomeCancelled)
		log.Info("payment cancelled by customer")
		result.Status = domain.StatusCancelled
		return result, nil
	default:
		s.metrics.RecordReconciliation(metrics.OutcomeNotConfirmed)
		log.Info("callback reported success before gateway confirmed payment",
			zap.String("gateway_status", state.PaymentStatus))
		return nil, domain.ErrPaymentNotConfirmed
	}
}

func (s *Service) rejectUnderpaid(ctx context.Context, log *zap.Logger, payment *domain.Payment, paid decimal.Decimal) error {
	if _, err := s.repo.UpdateStatusIf(ctx, s.db, payment.ID, domain.StatusPending, map[string]any{
		"status": domain.StatusFailed,
	}); err != nil {
		return err
	}
	s.metrics.RecordReconciliation(metrics.OutcomeUnderpaid)
	log.Error("gateway amount below order total",
		zap.String("paid", paid.StringFixed(2)),
		zap.String("total", payment.Total.StringFixed(2)),
		zap.Error(domain.ErrUnderpaid),
	)
	return domain.ErrUnderpaid
}

func (s *Service) settle(
	ctx context.Context,
	log *zap.Logger,
	payment *domain.Payment,
	session *formsessiondomain.FormSession,
	state domain.CheckoutState,
	result *domain.CallbackResult,
) (*domain.CallbackResult, error) {
	var receiptURL *string
	if ref := strings.TrimSpace(state.PaymentIntentRef); ref != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		url, err := s.gateway.RetrieveReceipt(callCtx, ref)
		cancel()
		if err != nil {
			s.metrics.RecordExternalError("gateway", "retrieve_receipt")
			log.Warn("receipt lookup failed", zap.Error(err))
		} else if url != "" {
			receiptURL = &url
		}
	}

	alreadyPaid, duplicate := false, false
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.sessionRepo.FindByIDForUpdate(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrSessionNotFound
		}
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrPaymentNotFound
		}
		if locked.Status == domain.StatusSuccessful {
			alreadyPaid = true
			return nil
		}
		if locked.Status != domain.StatusPending {
			return domain.ErrPaymentNotPending
		}
		duplicate, err = s.paidByAnother(ctx, tx, session.ID, payment.ID)
		if err != nil || duplicate {
			return err
		}

		fields := map[string]any{
			"status":  domain.StatusSuccessful,
			"paid_at": now,
		}
		if receiptURL != nil {
			fields["receipt_url"] = *receiptURL
		}
		if ref := strings.TrimSpace(state.PaymentIntentRef); ref != "" {
			fields["payment_intent"] = ref
		}
		if err := s.repo.Update(ctx, tx, payment.ID, fields); err != nil {
			return err
		}

		if current.Status != formsessiondomain.StatusPending {
			log.Info("session already past pending, leaving status", zap.String("session_status", string(current.Status)))
			return nil
		}
		moved, err := s.sessionRepo.UpdateStatusIf(ctx, tx, session.ID,
			formsessiondomain.StatusPending, formsessiondomain.StatusProcessing, nil)
		if err != nil {
			return err
		}
		if moved {
			s.metrics.RecordTransition(string(formsessiondomain.StatusPending), string(formsessiondomain.StatusProcessing))
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordReconciliation(metrics.OutcomeError)
		return nil, err
	}
	if duplicate {
		return s.refundDuplicate(ctx, log, payment, state, result)
	}

	result.Status = domain.StatusSuccessful
	if alreadyPaid {
		s.metrics.RecordReconciliation(metrics.OutcomeAlreadyPaid)
		result.AlreadyPaid = true
		return result, nil
	}

	s.metrics.RecordReconciliation(metrics.OutcomeSucceeded)
	log.Info("payment settled", zap.String("total", payment.Total.StringFixed(2)))
	s.notifier.Notify(ctx, customer(payment.Contact), notificationdomain.EventPaymentReceived, notificationdomain.Payload{
		"order_reference":   session.Reference,
		"payment_reference": payment.Reference,
		"total":             payment.Total.StringFixed(2),
		"currency":          payment.Currency,
	})
	return result, nil
}

// paidByAnother reports whether some other payment of the session was
// already captured.
func (s *Service) paidByAnother(ctx context.Context, tx *gorm.DB, sessionID, paymentID snowflake.ID) (bool, error) {
	payments, err := s.repo.ListBySession(ctx, tx, sessionID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.ID == paymentID {
			continue
		}
		switch p.Status {
		case domain.StatusSuccessful, domain.StatusRefunding, domain.StatusRefunded:
			return true, nil
		}
	}
	return false, nil
}

// refundDuplicate gives back a capture for an order another payment already
// paid. The payment ends Refunded and the session is left alone.
func (s *Service) refundDuplicate(
	ctx context.Context,
	log *zap.Logger,
	payment *domain.Payment,
	state domain.CheckoutState,
	result *domain.CallbackResult,
) (*domain.CallbackResult, error) {
	intent := strings.TrimSpace(state.PaymentIntentRef)
	if intent == "" {
		err := apperror.Integrity("duplicate_capture", errors.New("second capture for a paid order has no payment intent"))
		s.metrics.RecordReconciliation(metrics.OutcomeError)
		log.Error("duplicate capture needs a manual refund", zap.Error(err))
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err := s.gateway.Refund(callCtx, intent)
	cancel()
	if err != nil {
		s.metrics.RecordExternalError("gateway", "refund")
		s.metrics.RecordReconciliation(metrics.OutcomeError)
		log.Error("failed to refund duplicate capture", zap.Error(err))
		return nil, apperror.External("refund_failed", "refund could not be processed, please try again", err)
	}

	now := s.clock.Now()
	if _, err := s.repo.UpdateStatusIf(ctx, s.db, payment.ID, domain.StatusPending, map[string]any{
		"status":         domain.StatusRefunded,
		"payment_intent": intent,
		"paid_at":        now,
		"refunded_at":    now,
	}); err != nil {
		return nil, err
	}

	s.metrics.RecordReconciliation(metrics.OutcomeDuplicate)
	log.Error("order was already paid, duplicate capture refunded",
		zap.String("payment_intent", intent),
		zap.String("total", payment.Total.StringFixed(2)),
	)
	result.Status = domain.StatusRefunded
	result.Duplicate = true
	return result, nil
}

func (s *Service) Refund(ctx context.Context, paymentID snowflake.ID) (*domain.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.RefundAtGateway(ctx, payment); err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.MarkRefunded(ctx, tx, paymentID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, paymentID)
}

// RefundAtGateway claims the payment by moving it Successful to Refunding,
// then refunds it at the gateway. A failed refund hands the claim back.
// MarkRefunded completes the claim.
func (s *Service) RefundAtGateway(ctx context.Context, payment *domain.Payment) error {
	if payment == nil || payment.Status != domain.StatusSuccessful {
		return domain.ErrPaymentNotRefundable
	}
	if s.gateway == nil {
		return domain.ErrGatewayNotConfigured
	}
	log := s.log.With(zap.String("payment_id", payment.ID.String()))

	claimed, err := s.repo.UpdateStatusIf(ctx, s.db, payment.ID, domain.StatusSuccessful, map[string]any{
		"status": domain.StatusRefunding,
	})
	if err != nil {
		return err
	}
	if !claimed {
		return domain.ErrRefundInProgress
	}

	if err := s.refund(ctx, log, payment); err != nil {
		if _, releaseErr := s.repo.UpdateStatusIf(context.WithoutCancel(ctx), s.db, payment.ID, domain.StatusRefunding, map[string]any{
			"status": domain.StatusSuccessful,
		}); releaseErr != nil {
			log.Error("failed to release refund claim", zap.Error(releaseErr))
		}
		return err
	}
	log.Info("gateway refund issued", zap.String("total", payment.Total.StringFixed(2)))
	return nil
}

func (s *Service) refund(ctx context.Context, log *zap.Logger, payment *domain.Payment) error {
	intent := ""
	if payment.PaymentIntent != nil {
		intent = strings.TrimSpace(*payment.PaymentIntent)
	}
	if intent == "" {
		if !payment.IsOpened() {
			return apperror.Wrap(domain.ErrPaymentNotRefundable, errors.New("payment has no gateway reference"))
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		state, err := s.gateway.RetrieveCheckout(callCtx, *payment.PaymentReference)
		cancel()
		if err != nil {
			s.metrics.RecordExternalError("gateway", "retrieve_checkout")
			log.Error("failed to resolve payment intent for refund", zap.Error(err))
			return apperror.Wrap(domain.ErrGatewayUnavailable, err)
		}
		intent = strings.TrimSpace(state.PaymentIntentRef)
		if intent == "" {
			return apperror.Wrap(domain.ErrPaymentNotRefundable, errors.New("gateway checkout has no payment intent"))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err := s.gateway.Refund(callCtx, intent)
	cancel()
	if err != nil {
		s.metrics.RecordExternalError("gateway", "refund")
		log.Error("gateway refund failed", zap.Error(err))
		return apperror.External("refund_failed", "refund could not be processed, please try again", err)
	}
	return nil
}

func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error {
	payment, err := s.repo.FindByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusRefunding {
		return domain.ErrPaymentNotRefundable
	}
	return s.repo.Update(ctx, tx, paymentID, map[string]any{
		"status":      domain.StatusRefunded,
		"refunded_at": s.clock.Now(),
	})
}

func (s *Service) MarkCancelled(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) error {
	payment, err := s.repo.FindByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	switch payment.Status {
	case domain.StatusCancelled:
		return nil
	case domain.StatusPending:
		return s.repo.Update(ctx, tx, paymentID, map[string]any{"status": domain.StatusCancelled})
	default:
		return domain.ErrPaymentNotPending
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	products, err := s.repo.FindProducts(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	payment.Products = products
	return payment, nil
}

func (s *Service) CompletedPayment(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*domain.Payment, error) {
	if db == nil {
		db = s.db
	}
	return s.repo.CompletedForSession(ctx, db, sessionID)
}

func customer(c domain.Contact) notificationdomain.Recipient {
	return notificationdomain.Recipient{Email: c.Email, Name: c.FullName()}
}

func callbackURL(tmpl string, id snowflake.ID) string {
	return strings.ReplaceAll(tmpl, "{payment_id}", id.String())
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func sessionIDString(id *snowflake.ID) *string {
	if id == nil {
		return nil
	}
	v := id.String()
	return &v
}
