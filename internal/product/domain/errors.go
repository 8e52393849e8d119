package domain

import "github.com/pinksky/orderflow/pkg/apperror"

var (
	ErrNotFound           = apperror.NotFound("product_not_found", "product not found")
	ErrInvalidID          = apperror.Validation("invalid_product_id", "invalid product id")
	ErrProductUnavailable = apperror.Domain("product_unavailable", "product is not available")
	ErrPriceUnavailable   = apperror.Domain("price_unavailable", "product is not sold in this currency")
	ErrEmptySelection     = apperror.Missing("products_required", "products")
	ErrDuplicateSlug      = apperror.Domain("duplicate_slug", "a product with this slug already exists")
)
