package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/pinksky/orderflow/internal/product/domain"
	"github.com/pinksky/orderflow/pkg/apperror"
	"github.com/pinksky/orderflow/pkg/db"
	"github.com/pinksky/orderflow/pkg/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct("invalid_product", "", req); err != nil {
		return nil, err
	}
	if err := validateOverrides(req.TaxRate, req.ShippingFee); err != nil {
		return nil, err
	}

	tiers := make([]domain.PriceTier, 0, len(req.PriceTiers))
	for _, t := range req.PriceTiers {
		t.Unit = strings.TrimSpace(t.Unit)
		values := make(map[string]decimal.Decimal, len(t.Values))
		for cur, v := range t.Values {
			if v.IsNegative() {
				return nil, apperror.Validation("invalid_product", "invalid request", apperror.FieldError{
					Field: "price_tiers.values", Code: "gte", Message: "price cannot be negative",
				})
			}
			values[strings.ToUpper(strings.TrimSpace(cur))] = v.Round(2)
		}
		t.Values = values
		tiers = append(tiers, t)
	}

	productSlug := slug.Make(strings.TrimSpace(req.Slug))
	if productSlug == "" {
		productSlug = slug.Make(req.Name)
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Name:        req.Name,
		Slug:        productSlug,
		PriceTiers:  datatypes.NewJSONType(tiers),
		TaxRate:     req.TaxRate,
		ShippingFee: req.ShippingFee,
		Status:      domain.StatusActive,
		Category:    trimmedPtr(req.Category),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSlug
		}
		return nil, err
	}
	s.log.Info("product created", zap.Int64("product_id", p.ID), zap.String("slug", p.Slug))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Product, error) {
	req.Category = strings.TrimSpace(req.Category)
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) Deactivate(ctx context.Context, id string) (*domain.Product, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Status = domain.StatusInactive
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Price(ctx context.Context, currency string, selections []domain.Selection) ([]domain.PricedItem, error) {
	if len(selections) == 0 {
		return nil, domain.ErrEmptySelection
	}

	ids := make([]int64, 0, len(selections))
	for _, sel := range selections {
		if err := validation.Struct("invalid_products", "products", sel); err != nil {
			return nil, err
		}
		productID, err := parseID(sel.ProductID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, productID)
	}

	products, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]domain.PricedItem, 0, len(selections))
	for i, sel := range selections {
		p, ok := byID[ids[i]]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if !p.IsActive() {
			return nil, domain.ErrProductUnavailable
		}
		tier, value, err := p.PriceIn(sel.Unit, currency)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.PricedItem{
			Product:   p,
			Tier:      tier,
			Quantity:  sel.Quantity,
			UnitPrice: value,
		})
	}
	return items, nil
}

func validateOverrides(taxRate, shippingFee *decimal.Decimal) error {
	if taxRate != nil && (taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(100))) {
		return apperror.Validation("invalid_product", "invalid request", apperror.FieldError{
			Field: "tax_rate", Code: "range", Message: "tax_rate must be between 0 and 100",
		})
	}
	if shippingFee != nil && shippingFee.IsNegative() {
		return apperror.Validation("invalid_product", "invalid request", apperror.FieldError{
			Field: "shipping_fee", Code: "gte", Message: "shipping_fee cannot be negative",
		})
	}
	return nil
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed.Int64() <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
