package relevance

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/config"
)

func provide(cfg config.Config, log *zap.Logger) (Filter, OfferScorer) {
	if cfg.Relevance.APIKey == "" {
		log.Warn("relevance API key not set, filtering disabled")
		noop := NewNoop()
		return noop, noop
	}
	client := NewClient(cfg.Relevance, log)
	return client, client
}

var Module = fx.Module("relevance",
	fx.Provide(provide),
)
