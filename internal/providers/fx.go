package providers

import (
	"github.com/pinksky/orderflow/internal/providers/email"
	"github.com/pinksky/orderflow/internal/providers/esign"
	"github.com/pinksky/orderflow/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	esign.Module,
	pdf.Module,
)
