package schedule

import (
	"math/rand"
	"time"

	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/config"
)

// Policy decides when a tracked item is next due for reanalysis. Successful
// runs land a full interval out with jitter so the daily sweep does not
// thundering-herd the marketplace; failures come back sooner without jitter.
type Policy struct {
	policy *config.PolicyHolder
	jitter func(max time.Duration) time.Duration
}

func NewPolicy(policy *config.PolicyHolder) *Policy {
	return &Policy{
		policy: policy,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

func (p *Policy) NextDueOnSuccess(now time.Time) time.Time {
	cfg := p.policy.Get().Schedule
	return now.Add(cfg.SuccessInterval + p.jitter(cfg.SuccessJitter))
}

func (p *Policy) NextDueOnFailure(now time.Time) time.Time {
	cfg := p.policy.Get().Schedule
	return now.Add(cfg.FailureDelay)
}

func (p *Policy) BatchLimit() int {
	return p.policy.Get().Schedule.BatchLimit
}

var Module = fx.Module("schedule",
	fx.Provide(NewPolicy),
)
