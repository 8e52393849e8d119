package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/discount/domain"
	"github.com/pinksky/orderflow/internal/observability/metrics"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/pinksky/orderflow/pkg/db"
	"github.com/pinksky/orderflow/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.OrderMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.OrderMetrics
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("discount.service"),
		genID:   p.GenID,
		clock:   c,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.DiscountCode, error) {
	req.Code = domain.NormalizeCode(req.Code)
	if err := validation.Struct("invalid_discount", "", req); err != nil {
		return nil, err
	}
	if !req.Value.IsPositive() {
		return nil, invalidField("value", "gt", "value must be positive")
	}
	if req.Type == domain.TypePercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, invalidField("value", "lte", "percentage cannot exceed 100")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, invalidField("end_date", "gtefield", "end_date must not precede start_date")
	}

	limit := domain.DefaultUsageLimit
	if req.UsageLimit != nil {
		limit = *req.UsageLimit
	}

	now := s.clock.Now()
	code := &domain.DiscountCode{
		ID:         s.genID.Generate().Int64(),
		Code:       req.Code,
		Type:       req.Type,
		Value:      req.Value.Round(2),
		StartDate:  utcPtr(req.StartDate),
		EndDate:    utcPtr(req.EndDate),
		UsageLimit: limit,
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, s.db, code); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	s.log.Info("discount code created",
		zap.Int64("discount_id", code.ID),
		zap.String("type", string(code.Type)),
		zap.Int("usage_limit", code.UsageLimit),
	)
	return code, nil
}

func (s *Service) List(ctx context.Context) ([]domain.DiscountCode, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Deactivate(ctx context.Context, code string) (*domain.DiscountCode, error) {
	item, err := s.repo.FindByCode(ctx, s.db, domain.NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.repo.UpdateStatus(ctx, s.db, item.ID, domain.StatusInactive); err != nil {
		return nil, err
	}
	item.Status = domain.StatusInactive
	return item, nil
}

func (s *Service) Validate(ctx context.Context, code string) (*domain.DiscountCode, error) {
	return s.validate(ctx, s.db, code)
}

func (s *Service) validate(ctx context.Context, tx *gorm.DB, code string) (*domain.DiscountCode, error) {
	normalized := domain.NormalizeCode(code)
	if normalized == "" {
		return nil, domain.ErrInvalidDiscountCode
	}
	item, err := s.repo.FindByCode(ctx, tx, normalized)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsValid(s.clock.Now()) {
		return nil, domain.ErrInvalidDiscountCode
	}
	return item, nil
}

func (s *Service) Apply(ctx context.Context, tx *gorm.DB, code string, subtotal decimal.Decimal) (domain.Application, error) {
	if tx == nil {
		tx = s.db
	}
	item, err := s.validate(ctx, tx, code)
	if err != nil {
		s.metrics.RecordDiscountRedemption(metrics.OutcomeRejected)
		return domain.Application{}, err
	}

	amount := item.CalculateDiscount(subtotal)

	redeemed, err := s.repo.Redeem(ctx, tx, item.ID)
	if err != nil {
		s.metrics.RecordDiscountRedemption(metrics.OutcomeError)
		return domain.Application{}, err
	}
	if !redeemed {
		// lost the race for the last use
		s.metrics.RecordDiscountRedemption(metrics.OutcomeRejected)
		s.log.Info("discount redemption lost to concurrent use", zap.Int64("discount_id", item.ID))
		return domain.Application{}, domain.ErrInvalidDiscountCode
	}

	s.metrics.RecordDiscountRedemption(metrics.OutcomeSucceeded)
	return domain.Application{Code: item.Code, Amount: amount}, nil
}

func invalidField(field, code, message string) error {
	return apperror.Validation("invalid_discount", "invalid request", apperror.FieldError{
		Field: field, Code: code, Message: message,
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
