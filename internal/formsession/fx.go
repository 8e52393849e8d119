package formsession

import (
	"github.com/pinksky/orderflow/internal/formsession/repository"
	"github.com/pinksky/orderflow/internal/formsession/service"
	"go.uber.org/fx"
)

var Module = fx.Module("formsession.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
