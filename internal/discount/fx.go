package discount

import (
	"github.com/pinksky/orderflow/internal/discount/repository"
	"github.com/pinksky/orderflow/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
