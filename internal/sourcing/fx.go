package sourcing

import (
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/sourcing/repository"
	"github.com/bozorlab/marketpulse/internal/sourcing/service"
	"github.com/bozorlab/marketpulse/internal/sourcing/sources"
)

var Module = fx.Module("sourcing.service",
	sources.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
