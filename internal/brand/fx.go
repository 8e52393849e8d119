package brand

import (
	"github.com/pinksky/orderflow/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("brand",
	fx.Provide(func(h *config.BrandConfigHolder) ConfigProvider { return h }),
)
