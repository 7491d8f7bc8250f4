package snapshot

import (
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/snapshot/repository"
	"github.com/bozorlab/marketpulse/internal/snapshot/service"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
