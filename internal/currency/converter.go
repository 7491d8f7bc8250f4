package currency

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/clock"
)

// Converter turns foreign amounts into UZS using cached central bank rates.
type Converter interface {
	// ToUZS converts an amount in the given currency into UZS.
	ToUZS(ctx context.Context, amount float64, code string) (float64, error)

	// Refresh pulls the current rates and updates the cache.
	Refresh(ctx context.Context) error
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	CBU   *CBUClient
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cbu   *CBUClient

	mu sync.Mutex // serializes refreshes
}

func New(p Params) Converter {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("currency"),
		clock: p.Clock,
		cbu:   p.CBU,
	}
}

func (s *Service) ToUZS(ctx context.Context, amount float64, code string) (float64, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == codeUZS || code == "" {
		return amount, nil
	}

	rate, err := s.rateToUZS(ctx, code)
	if err != nil {
		return 0, err
	}
	return amount * rate, nil
}

func (s *Service) rateToUZS(ctx context.Context, code string) (float64, error) {
	cached, err := s.lookup(ctx, code)
	if err != nil {
		return 0, err
	}
	if cached != nil && s.clock.Now().Sub(cached.UpdatedAt) < maxRateAge {
		return cached.Rate, nil
	}

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("rate refresh failed", zap.String("code", code), zap.Error(err))
	} else if cached, err = s.lookup(ctx, code); err != nil {
		return 0, err
	}

	if cached != nil {
		return cached.Rate, nil
	}
	if fallback, ok := fallbackToUZS[code]; ok {
		s.log.Warn("using fallback rate", zap.String("code", code), zap.Float64("rate", fallback))
		return fallback, nil
	}
	return 0, fmt.Errorf("currency: no rate for %s", code)
}

func (s *Service) lookup(ctx context.Context, code string) (*Rate, error) {
	var rate Rate
	err := s.db.WithContext(ctx).Raw(
		`SELECT from_code, to_code, rate, updated_at
		 FROM currency_rates
		 WHERE from_code = ? AND to_code = ?`,
		code,
		codeUZS,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.FromCode == "" {
		return nil, nil
	}
	return &rate, nil
}

func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rates, err := s.cbu.FetchRates(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for code, rate := range rates {
		err := s.db.WithContext(ctx).Exec(
			`INSERT INTO currency_rates (from_code, to_code, rate, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (from_code, to_code) DO UPDATE SET
			   rate = excluded.rate,
			   updated_at = excluded.updated_at`,
			code,
			codeUZS,
			rate,
			now,
		).Error
		if err != nil {
			return err
		}
	}
	s.log.Info("currency rates refreshed", zap.Int("count", len(rates)))
	return nil
}

var Module = fx.Module("currency",
	fx.Provide(func() *CBUClient { return NewCBUClient("") }),
	fx.Provide(New),
)
