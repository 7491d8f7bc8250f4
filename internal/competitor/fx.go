package competitor

import (
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/competitor/repository"
	"github.com/bozorlab/marketpulse/internal/competitor/service"
)

var Module = fx.Module("competitor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
