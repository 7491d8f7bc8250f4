package sources

import (
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

func new1688(cfg config.Config) domain.Source {
	if cfg.Sourcing.C1688BaseURL == "" {
		return nil
	}
	return NewHTTPSource("1688", "CN", "CNY", cfg.Sourcing.C1688BaseURL, cfg.Sourcing)
}

func newAlibaba(cfg config.Config) domain.Source {
	if cfg.Sourcing.AlibabaBaseURL == "" {
		return nil
	}
	return NewHTTPSource("alibaba", "CN", "USD", cfg.Sourcing.AlibabaBaseURL, cfg.Sourcing)
}

var Module = fx.Module("sourcing.sources",
	fx.Provide(
		fx.Annotate(new1688, fx.ResultTags(`group:"sourcing_sources"`)),
		fx.Annotate(newAlibaba, fx.ResultTags(`group:"sourcing_sources"`)),
	),
)
