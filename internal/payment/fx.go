package payment

import (
	"github.com/pinksky/orderflow/internal/payment/adapters/stripe"
	"github.com/pinksky/orderflow/internal/payment/repository"
	"github.com/pinksky/orderflow/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.New),
	fx.Provide(service.New),
)
