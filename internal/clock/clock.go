package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services that schedule or timestamp work.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the system clock.
func New() Clock {
	return systemClock{}
}

// Module provides the system clock.
var Module = fx.Provide(func() Clock { return New() })
