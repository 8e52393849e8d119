package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/brand"
	"github.com/pinksky/orderflow/internal/clock"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	"github.com/pinksky/orderflow/internal/formsession/domain"
	notificationdomain "github.com/pinksky/orderflow/internal/notification/domain"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"github.com/pinksky/orderflow/internal/ratelimit"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/pinksky/orderflow/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const referencePrefix = "OF-"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	BrandConfig brand.ConfigProvider
	Products    productdomain.Service
	Discounts   discountdomain.Service
	Payments    paymentdomain.Service
	Guard       *ratelimit.CheckoutGuard    `optional:"true"`
	Notifier    notificationdomain.Notifier `optional:"true"`
	Metrics     *metrics.OrderMetrics       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	brandConfig brand.ConfigProvider
	products    productdomain.Service
	discounts   discountdomain.Service
	payments    paymentdomain.Service
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
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("formsession.service"),
		genID:       p.GenID,
		clock:       c,
		repo:        p.Repo,
		brandConfig: p.BrandConfig,
		products:    p.Products,
		discounts:   p.Discounts,
		payments:    p.Payments,
		guard:       p.Guard,
		notifier:    notifier,
		metrics:     p.Metrics,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartRequest) (*domain.FormSession, error) {
	res, err := brand.Resolve(req.SourcePath, req.Currency)
	if err != nil {
		return nil, err
	}

	answers := domain.IntakeAnswers{}
	if req.Contact != nil {
		answers = domain.MergeInfo(answers, domain.InfoPayload{Contact: *req.Contact})
		if err := validation.Struct("invalid_step", "info", domain.InfoPayload{Contact: *answers.Contact}); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	session := &domain.FormSession{
		ID:          id,
		Reference:   referencePrefix + id.Base32(),
		Status:      domain.StatusPending,
		BookingType: domain.BookingTypeForm,
		Brand:       res.Brand.String(),
		Currency:    res.Currency,
		SourcePath:  strings.TrimSpace(req.SourcePath),
		Metadata: datatypes.NewJSONType(domain.Metadata{
			UserAgent: req.UserAgent,
			Location:  strings.TrimSpace(req.Location),
			Raw:       answers,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, s.db, session); err != nil {
		return nil, err
	}

	s.log.Info("form session started",
		zap.String("session_id", session.ID.String()),
		zap.String("brand", session.Brand),
		zap.String("currency", session.Currency),
	)
	return session, nil
}

func (s *Service) CreateDirect(ctx context.Context, tx *gorm.DB, req domain.DirectRequest) (*domain.FormSession, error) {
	if tx == nil {
		tx = s.db
	}
	now := s.clock.Now()
	id := s.genID.Generate()
	session := &domain.FormSession{
		ID:          id,
		Reference:   referencePrefix + id.Base32(),
		Status:      domain.StatusPending,
		BookingType: domain.BookingTypeDirect,
		Brand:       req.Brand,
		Currency:    req.Currency,
		SourcePath:  strings.TrimSpace(req.SourcePath),
		Metadata: datatypes.NewJSONType(domain.Metadata{
			UserAgent: req.UserAgent,
			Raw:       req.Answers,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, tx, session); err != nil {
		return nil, err
	}
	if err := s.payments.LinkSession(ctx, tx, req.PaymentID, session.ID); err != nil {
		return nil, err
	}
	s.log.Info("direct checkout session created",
		zap.String("session_id", session.ID.String()),
		zap.String("payment_id", req.PaymentID.String()),
	)
	return session, nil
}

func (s *Service) UpdateStep(ctx context.Context, rawID string, step domain.Step, payload json.RawMessage) (*domain.StepResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Status.AcceptsSteps() {
		return nil, domain.ErrSessionLocked
	}

	switch step {
	case domain.StepInfo:
		return s.updateInfo(ctx, id, payload)
	case domain.StepProduct:
		return s.updateProducts(ctx, session, payload)
	case domain.StepPayment:
		return s.updatePayment(ctx, session, payload)
	case domain.StepQuestions:
		return s.updateQuestions(ctx, id, payload)
	case domain.StepSign:
		return &domain.StepResult{Session: session}, nil
	case domain.StepCheckout:
		return s.checkout(ctx, session, payload)
	default:
		return nil, domain.ErrUnknownStep
	}
}

func (s *Service) updateInfo(ctx context.Context, id snowflake.ID, raw json.RawMessage) (*domain.StepResult, error) {
	p, err := decode[domain.InfoPayload](raw)
	if err != nil {
		return nil, err
	}
	merged := domain.MergeInfo(domain.IntakeAnswers{}, p)
	if err := validation.Struct("invalid_step", "info", domain.InfoPayload{Contact: *merged.Contact}); err != nil {
		return nil, err
	}
	session, err := s.mutate(ctx, id, func(_ *gorm.DB, _ *domain.FormSession, a domain.IntakeAnswers) (domain.IntakeAnswers, error) {
		return domain.MergeInfo(a, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.StepResult{Session: session}, nil
}

func (s *Service) updateProducts(ctx context.Context, session *domain.FormSession, raw json.RawMessage) (*domain.StepResult, error) {
	p, err := decode[domain.ProductPayload](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct("invalid_step", "product", p); err != nil {
		return nil, err
	}
	if session.Answers().Discount != nil {
		return nil, domain.ErrProductsLocked
	}
	items, err := s.products.Price(ctx, session.Currency, p.Products)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, session.ID, func(_ *gorm.DB, _ *domain.FormSession, a domain.IntakeAnswers) (domain.IntakeAnswers, error) {
		if a.Discount != nil {
			return a, domain.ErrProductsLocked
		}
		return domain.MergeProducts(a, p), nil
	})
	if err != nil {
		return nil, err
	}
	b := pricing.Calculate(productdomain.Lines(items), s.pricingConfig(updated), "", decimal.Zero)
	return &domain.StepResult{Session: updated, Breakdown: &b}, nil
}

func (s *Service) updateQuestions(ctx context.Context, id snowflake.ID, raw json.RawMessage) (*domain.StepResult, error) {
	p, err := decode[domain.QuestionsPayload](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct("invalid_step", "questions", p); err != nil {
		return nil, err
	}
	session, err := s.mutate(ctx, id, func(_ *gorm.DB, _ *domain.FormSession, a domain.IntakeAnswers) (domain.IntakeAnswers, error) {
		return domain.MergeQuestions(a, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &domain.StepResult{Session: session}, nil
}

func (s *Service) updatePayment(ctx context.Context, session *domain.FormSession, raw json.RawMessage) (*domain.StepResult, error) {
	paid, err := s.isPaid(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return &domain.StepResult{Paid: true}, nil
	}

	p, err := decode[domain.PaymentPayload](raw)
	if err != nil {
		return nil, err
	}
	p.DiscountCode = discountdomain.NormalizeCode(p.DiscountCode)
	if p.Shipping == nil && p.DiscountCode == "" {
		return nil, domain.ErrShippingRequired
	}
	if p.Shipping != nil {
		addr := *p.Shipping
		addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
		p.Shipping = &addr
	}
	if err := validation.Struct("invalid_step", "payment", p); err != nil {
		return nil, err
	}

	answers := session.Answers()
	var items []productdomain.PricedItem
	if p.DiscountCode != "" {
		if answers.Discount != nil && answers.Discount.Code != p.DiscountCode {
			return nil, discountdomain.ErrDiscountAlreadyApplied
		}
		if len(answers.Products) == 0 {
			return nil, apperror.Missing("invalid_step", string(domain.StepProduct))
		}
		items, err = s.products.Price(ctx, session.Currency, answers.Products)
		if err != nil {
			return nil, err
		}
		if answers.Discount == nil {
			allowed, err := s.guard.AllowDiscountAttempt(ctx, session.ID.String())
			if err != nil {
				s.log.Warn("discount attempt limiter unavailable", zap.String("session_id", session.ID.String()), zap.Error(err))
			} else if !allowed {
				return nil, discountdomain.ErrTooManyAttempts
			}
		}
	}

	subtotal := pricing.Subtotal(productdomain.Lines(items))
	updated, err := s.mutate(ctx, session.ID, func(tx *gorm.DB, _ *domain.FormSession, a domain.IntakeAnswers) (domain.IntakeAnswers, error) {
		if p.Shipping != nil {
			a = domain.MergeShipping(a, *p.Shipping)
		}
		if p.DiscountCode == "" {
			return a, nil
		}
		if a.Discount != nil {
			if a.Discount.Code == p.DiscountCode {
				return a, nil
			}
			return a, discountdomain.ErrDiscountAlreadyApplied
		}
		app, err := s.discounts.Apply(ctx, tx, p.DiscountCode, subtotal)
		if err != nil {
			return a, err
		}
		return domain.MergeDiscount(a, app), nil
	})
	if err != nil {
		return nil, err
	}

	result := &domain.StepResult{Session: updated}
	if a := updated.Answers(); items != nil && a.Discount != nil {
		b := pricing.Calculate(productdomain.Lines(items), s.pricingConfig(updated), a.Discount.Code, a.Discount.Amount)
		result.Breakdown = &b
		s.log.Info("discount applied",
			zap.String("session_id", updated.ID.String()),
			zap.String("discount_amount", a.Discount.Amount.StringFixed(2)),
		)
	}
	return result, nil
}

func (s *Service) checkout(ctx context.Context, session *domain.FormSession, raw json.RawMessage) (*domain.StepResult, error) {
	paid, err := s.isPaid(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return &domain.StepResult{Paid: true}, nil
	}

	p, err := decode[domain.CheckoutPayload](raw)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct("invalid_step", "checkout", p); err != nil {
		return nil, err
	}

	answers := session.Answers()
	var missing []string
	if answers.Contact == nil {
		missing = append(missing, string(domain.StepInfo))
	}
	if len(answers.Products) == 0 {
		missing = append(missing, string(domain.StepProduct))
	}
	if answers.Shipping == nil {
		missing = append(missing, "shipping")
	}
	if len(missing) > 0 {
		return nil, apperror.Missing("incomplete_order", missing...)
	}

	items, err := s.products.Price(ctx, session.Currency, answers.Products)
	if err != nil {
		return nil, err
	}

	updated, err := s.mutate(ctx, session.ID, func(_ *gorm.DB, _ *domain.FormSession, a domain.IntakeAnswers) (domain.IntakeAnswers, error) {
		return domain.MergeCheckout(a, p, s.clock.Now()), nil
	})
	if err != nil {
		return nil, err
	}

	answers = updated.Answers()
	code, amount := "", decimal.Zero
	if answers.Discount != nil {
		code, amount = answers.Discount.Code, answers.Discount.Amount
	}
	b := pricing.Calculate(productdomain.Lines(items), s.pricingConfig(updated), code, amount)

	checkout, err := s.payments.Initiate(ctx, paymentdomain.InitiateRequest{
		SessionID: &updated.ID,
		Brand:     updated.Brand,
		OrderType: paymentdomain.OrderTypeRegular,
		Breakdown: b,
		Items:     items,
		Contact:   answers.ContactOrZero(),
		Shipping:  answers.ShippingOrZero(),
	})
	if errors.Is(err, paymentdomain.ErrSessionAlreadyPaid) {
		return &domain.StepResult{Paid: true}, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.StepResult{
		Session:     updated,
		Breakdown:   &b,
		PaymentID:   &checkout.PaymentID,
		RedirectURL: checkout.RedirectURL,
	}, nil
}

func (s *Service) Complete(ctx context.Context, rawID string) (*domain.FormSession, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentRequired
	}
	if missing := session.Answers().MissingForSubmission(); len(missing) > 0 {
		return nil, apperror.Missing("incomplete_order", missing...)
	}

	updated, err := s.transition(ctx, id, domain.StatusAwaitingReview, func(tx *gorm.DB, current *domain.FormSession) (map[string]any, error) {
		return nil, s.repo.RecordActivity(ctx, tx, s.activity(current.ID, domain.ActivitySubmitted, "Order submitted for review", ""))
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyAdmins(ctx, notificationdomain.EventOrderSubmitted, s.payload(updated, nil))
	return updated, nil
}

func (s *Service) MarkCompleted(ctx context.Context, rawID string, actor string) (*domain.FormSession, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsDirect() {
		return nil, domain.ErrNotDirectOrder
	}
	if session.Status == domain.StatusCompleted {
		return session, nil
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentRequired
	}

	created := false
	updated, err := s.transition(ctx, id, domain.StatusCompleted, func(tx *gorm.DB, current *domain.FormSession) (map[string]any, error) {
		var err error
		created, err = s.repo.EnsureActivity(ctx, tx, s.dedupedActivity(current.ID, domain.ActivityConfirmed, "Order completed", actor, domain.DedupeConfirmed))
		return nil, err
	})
	if errors.Is(err, errNoop) {
		return updated, nil
	}
	if err != nil {
		return nil, err
	}
	if created {
		s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventOrderCompleted, s.payload(updated, nil))
	}
	return updated, nil
}

func (s *Service) MarkUnfulfilled(ctx context.Context, rawID string, reason string, actor string) (*domain.FormSession, error) {
	id, reason, err := s.adminAction(rawID, reason)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsDirect() {
		return nil, domain.ErrNotDirectOrder
	}
	if err := domain.CheckTransition(session.Status, domain.StatusUnfulfilled, session.BookingType); err != nil {
		return nil, err
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.Integrity("unfulfilled_without_payment", errors.New("session has no successful payment"))
	}

	updated, err := s.transition(ctx, id, domain.StatusUnfulfilled, func(tx *gorm.DB, current *domain.FormSession) (map[string]any, error) {
		if err := s.repo.RecordActivity(ctx, tx, s.activity(current.ID, domain.ActivityUnfulfilled, reason, actor)); err != nil {
			return nil, err
		}
		return map[string]any{"comment": reason}, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, recipient(updated), notificationdomain.EventOrderUnfulfilled, s.payload(updated, map[string]any{"reason": reason}))
	return updated, nil
}

func (s *Service) MarkRefunded(ctx context.Context, rawID string, reason string, actor string) (*domain.FormSession, error) {
	id, reason, err := s.adminAction(rawID, reason)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsDirect() {
		return nil, domain.ErrNotDirectOrder
	}
	return s.refundAndClose(ctx, session, domain.StatusRefunded, domain.ActivityRefunded,
		notificationdomain.EventOrderRefunded, reason, actor)
}

func (s *Service) Cancel(ctx context.Context, rawID string, reason string, actor string) (*domain.FormSession, error) {
	id, reason, err := s.adminAction(rawID, reason)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refundAndClose(ctx, session, domain.StatusCancelled, domain.ActivityCancelled,
		notificationdomain.EventOrderCancelled, reason, actor)
}

// refundAndClose refunds the successful payment at the gateway, then commits
// the payment and session change together.
func (s *Service) refundAndClose(
	ctx context.Context,
	session *domain.FormSession,
	to domain.Status,
	kind domain.ActivityKind,
	event notificationdomain.EventType,
	reason string,
	actor string,
) (*domain.FormSession, error) {
	if err := domain.CheckTransition(session.Status, to, session.BookingType); err != nil {
		return nil, err
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, session.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.Integrity("refund_without_payment", errors.New("session has no successful payment"))
	}
	if err := s.payments.RefundAtGateway(ctx, payment); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, session.ID, to, func(tx *gorm.DB, current *domain.FormSession) (map[string]any, error) {
		if err := s.payments.MarkRefunded(ctx, tx, payment.ID); err != nil {
			return nil, err
		}
		if err := s.repo.RecordActivity(ctx, tx, s.activity(current.ID, kind, reason, actor)); err != nil {
			return nil, err
		}
		return map[string]any{"comment": reason}, nil
	})
	if err != nil {
		s.log.Error("gateway refund issued but order state was not updated",
			zap.String("session_id", session.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.notifier.Notify(ctx, recipient(updated), event, s.payload(updated, map[string]any{"reason": reason}))
	return updated, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*domain.SessionView, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.CompletedPayment(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return &domain.SessionView{Session: *session, CompletedPayment: payment}, nil
}

func (s *Service) ListActivities(ctx context.Context, rawID string) ([]domain.Activity, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListActivities(ctx, s.db, id)
}

var errNoop = errors.New("transition not needed")

// transition moves the locked session to `to`. fn runs in the same
// transaction and may return extra columns to write.
func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	to domain.Status,
	fn func(tx *gorm.DB, current *domain.FormSession) (map[string]any, error),
) (*domain.FormSession, error) {
	var from domain.Status
	var updated *domain.FormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrSessionNotFound
		}
		if current.Status == to && to == domain.StatusCompleted {
			updated = current
			return errNoop
		}
		if err := domain.CheckTransition(current.Status, to, current.BookingType); err != nil {
			return err
		}
		from = current.Status

		fields, err := fn(tx, current)
		if err != nil {
			return err
		}
		moved, err := s.repo.UpdateStatusIf(ctx, tx, id, current.Status, to, fields)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidTransition
		}
		updated, err = s.repo.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return updated, err
	}

	s.metrics.RecordTransition(string(from), string(to))
	s.log.Info("form session transitioned",
		zap.String("session_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// mutate merges answers under a row lock while the session still accepts steps.
func (s *Service) mutate(
	ctx context.Context,
	id snowflake.ID,
	fn func(tx *gorm.DB, session *domain.FormSession, answers domain.IntakeAnswers) (domain.IntakeAnswers, error),
) (*domain.FormSession, error) {
	var updated *domain.FormSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if session == nil {
			return domain.ErrSessionNotFound
		}
		if !session.Status.AcceptsSteps() {
			return domain.ErrSessionLocked
		}

		answers, err := fn(tx, session, session.Answers())
		if err != nil {
			return err
		}
		meta := session.Metadata.Data()
		meta.Raw = answers
		if err := s.repo.UpdateMetadata(ctx, tx, id, meta); err != nil {
			return err
		}
		session.Metadata = datatypes.NewJSONType(meta)
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.FormSession, error) {
	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) isPaid(ctx context.Context, id snowflake.ID) (bool, error) {
	payment, err := s.payments.CompletedPayment(ctx, nil, id)
	if err != nil {
		return false, err
	}
	return payment != nil, nil
}

func (s *Service) pricingConfig(session *domain.FormSession) pricing.Config {
	return brand.CheckoutConfig(s.brandConfig, brand.Resolution{
		Brand:    brand.Brand(session.Brand),
		Currency: session.Currency,
	})
}

func (s *Service) adminAction(rawID, reason string) (snowflake.ID, string, error) {
	id, err := parseID(rawID)
	if err != nil {
		return 0, "", err
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < domain.MinReasonLength {
		return 0, "", domain.ErrReasonTooShort
	}
	return id, reason, nil
}

func (s *Service) activity(sessionID snowflake.ID, kind domain.ActivityKind, message, actor string) *domain.Activity {
	a := &domain.Activity{
		ID:            s.genID.Generate(),
		FormSessionID: sessionID,
		Kind:          kind,
		Message:       message,
		CreatedAt:     s.clock.Now(),
	}
	if actor = strings.TrimSpace(actor); actor != "" {
		a.UserID = &actor
	}
	return a
}

func (s *Service) dedupedActivity(sessionID snowflake.ID, kind domain.ActivityKind, message, actor, key string) *domain.Activity {
	a := s.activity(sessionID, kind, message, actor)
	a.DedupeKey = &key
	return a
}

func (s *Service) payload(session *domain.FormSession, extra map[string]any) notificationdomain.Payload {
	p := notificationdomain.Payload{
		"order_id":        session.ID.String(),
		"order_reference": session.Reference,
		"brand":           session.Brand,
		"status":          string(session.Status),
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func recipient(session *domain.FormSession) notificationdomain.Recipient {
	c := session.Answers().ContactOrZero()
	return notificationdomain.Recipient{Email: c.Email, Name: c.FullName()}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, domain.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, apperror.Wrap(domain.ErrInvalidPayload, err)
	}
	return out, nil
}
