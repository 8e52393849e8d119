package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/brand"
	"github.com/pinksky/orderflow/internal/checkout/domain"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/pricing"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"github.com/pinksky/orderflow/internal/ratelimit"
	"github.com/pinksky/orderflow/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTTL = 30 * time.Minute

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	BrandConfig brand.ConfigProvider
	Products    productdomain.Service
	Discounts   discountdomain.Service
	Payments    paymentdomain.Service
	Sessions    formsessiondomain.Service
	Guard       *ratelimit.CheckoutGuard `optional:"true"`
	Metrics     *metrics.OrderMetrics    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	ttl         time.Duration
	brandConfig brand.ConfigProvider
	products    productdomain.Service
	discounts   discountdomain.Service
	payments    paymentdomain.Service
	sessions    formsessiondomain.Service
	guard       *ratelimit.CheckoutGuard
	metrics     *metrics.OrderMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	ttl := p.Config.CheckoutTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		clock:       c,
		ttl:         ttl,
		brandConfig: p.BrandConfig,
		products:    p.Products,
		discounts:   p.Discounts,
		payments:    p.Payments,
		sessions:    p.Sessions,
		guard:       p.Guard,
		metrics:     p.Metrics,
	}
}

func (s *Service) Initiate(ctx context.Context, req domain.Request) (*domain.Result, error) {
	res, err := brand.Resolve(req.SourcePath, req.Currency)
	if err != nil {
		return nil, err
	}

	req.Contact.Email = strings.ToLower(strings.TrimSpace(req.Contact.Email))
	req.Contact.FirstName = strings.TrimSpace(req.Contact.FirstName)
	req.Contact.LastName = strings.TrimSpace(req.Contact.LastName)
	req.Shipping.Country = strings.ToUpper(strings.TrimSpace(req.Shipping.Country))
	if err := validation.Struct("invalid_checkout", "", req); err != nil {
		return nil, err
	}

	items, err := s.products.Price(ctx, res.Currency, req.Items)
	if err != nil {
		return nil, err
	}
	b := pricing.Calculate(productdomain.Lines(items), brand.CheckoutConfig(s.brandConfig, res), "", decimal.Zero)

	payment, err := s.payments.CreatePending(ctx, nil, paymentdomain.InitiateRequest{
		Brand:     res.Brand.String(),
		OrderType: paymentdomain.OrderTypeCart,
		Breakdown: b,
		Items:     items,
		Contact:   req.Contact,
		Shipping:  req.Shipping,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCheckoutStarted(res.Brand.String(), "direct")
	return &domain.Result{CheckoutID: payment.ID.String(), Breakdown: payment.Breakdown()}, nil
}

func (s *Service) ApplyDiscount(ctx context.Context, checkoutID string, code string) (*pricing.Breakdown, error) {
	code = discountdomain.NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrDiscountCodeEmpty
	}
	payment, err := s.load(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.StatusPending || payment.IsOpened() || payment.FormSessionID != nil {
		return nil, domain.ErrCheckoutClosed
	}
	if payment.DiscountCode != nil {
		if *payment.DiscountCode == code {
			b := payment.Breakdown()
			return &b, nil
		}
		return nil, discountdomain.ErrDiscountAlreadyApplied
	}

	allowed, err := s.guard.AllowDiscountAttempt(ctx, payment.ID.String())
	if err != nil {
		s.log.Warn("discount attempt limiter unavailable", zap.String("payment_id", payment.ID.String()), zap.Error(err))
	} else if !allowed {
		return nil, discountdomain.ErrTooManyAttempts
	}

	var b pricing.Breakdown
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, err := s.discounts.Apply(ctx, tx, code, payment.SubTotal)
		if err != nil {
			return err
		}
		b = pricing.WithDiscount(payment.Breakdown(), app.Code, app.Amount)
		return s.payments.Reprice(ctx, tx, payment.ID, b)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("discount applied to checkout",
		zap.String("payment_id", payment.ID.String()),
		zap.String("discount_amount", b.DiscountAmount.StringFixed(2)),
		zap.String("total", b.Total.StringFixed(2)),
	)
	return &b, nil
}

func (s *Service) ProcessPayment(ctx context.Context, checkoutID string) (*paymentdomain.Checkout, error) {
	payment, err := s.load(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.StatusPending || payment.IsOpened() {
		return nil, domain.ErrCheckoutClosed
	}
	if s.clock.Now().After(payment.CreatedAt.Add(s.ttl)) {
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.payments.MarkCancelled(ctx, tx, payment.ID)
		}); err != nil {
			s.log.Warn("failed to cancel expired checkout", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		}
		return nil, domain.ErrCheckoutExpired
	}

	if payment.FormSessionID == nil {
		req := formsessiondomain.DirectRequest{
			SourcePath: "checkout",
			Brand:      payment.Brand,
			Currency:   payment.Currency,
			PaymentID:  payment.ID,
			Answers:    answersFor(payment),
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := s.sessions.CreateDirect(ctx, tx, req)
			return err
		})
		// A concurrent request linked its own session first; ours was rolled back.
		if err != nil && !errors.Is(err, paymentdomain.ErrPaymentAlreadyLinked) {
			return nil, err
		}
	}

	return s.payments.Open(ctx, payment.ID)
}

func (s *Service) load(ctx context.Context, rawID string) (*paymentdomain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id <= 0 {
		return nil, domain.ErrInvalidID
	}
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
			return nil, domain.ErrCheckoutNotFound
		}
		return nil, err
	}
	if payment.OrderType != paymentdomain.OrderTypeCart {
		return nil, domain.ErrCheckoutNotFound
	}
	return payment, nil
}

// answersFor rebuilds intake answers from the payment snapshot so direct
// orders read like form orders.
func answersFor(p *paymentdomain.Payment) formsessiondomain.IntakeAnswers {
	contact := p.Contact
	a := formsessiondomain.IntakeAnswers{Contact: &contact}
	if !p.Shipping.IsZero() {
		shipping := p.Shipping
		a.Shipping = &shipping
	}
	for _, line := range p.Products {
		a.Products = append(a.Products, productdomain.Selection{
			ProductID: snowflake.ID(line.ProductID).String(),
			Unit:      line.PriceTier.Data().Unit,
			Quantity:  line.Quantity,
		})
	}
	if p.DiscountCode != nil {
		a.Discount = &discountdomain.Application{Code: *p.DiscountCode, Amount: p.DiscountAmount}
	}
	return a
}
