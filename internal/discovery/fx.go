package discovery

import (
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/discovery/repository"
	"github.com/bozorlab/marketpulse/internal/discovery/service"
)

var Module = fx.Module("discovery.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
