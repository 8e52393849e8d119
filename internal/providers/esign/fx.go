package esign

import "go.uber.org/fx"

var Module = fx.Module("providers.esign",
	fx.Provide(New),
)
