package item

import (
	"github.com/bozorlab/marketpulse/internal/item/repository"
	"github.com/bozorlab/marketpulse/internal/item/service"
	"go.uber.org/fx"
)

var Module = fx.Module("item.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
