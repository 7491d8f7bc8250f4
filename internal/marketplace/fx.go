package marketplace

import "go.uber.org/fx"

var Module = fx.Module("marketplace",
	fx.Provide(
		fx.Annotate(NewUzumClient, fx.As(new(Client))),
	),
)
