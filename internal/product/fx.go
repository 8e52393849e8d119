package product

import (
	"github.com/pinksky/orderflow/internal/product/repository"
	"github.com/pinksky/orderflow/internal/product/service"
	"go.uber.org/fx"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
