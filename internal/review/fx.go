package review

import (
	"github.com/pinksky/orderflow/internal/review/service"
	"go.uber.org/fx"
)

var Module = fx.Module("review.service",
	fx.Provide(service.New),
)
