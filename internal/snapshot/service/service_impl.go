package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
	"github.com/bozorlab/marketpulse/internal/snapshot/domain"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Policy *config.PolicyHolder
	Repo   domain.Repository
}

type Service struct {
	log    *zap.Logger
	genID  *snowflake.Node
	policy *config.PolicyHolder
	repo   domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("snapshot.service"),
		genID:  p.GenID,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, db *gorm.DB, in domain.RecordInput) (*domain.ProductSnapshot, bool, error) {
	prev, err := s.repo.Latest(ctx, db, in.ProductID)
	if err != nil {
		return nil, false, err
	}

	minGap := s.policy.Get().Snapshot.MinGap
	if prev != nil && in.At.Sub(prev.SnapshotAt) < minGap {
		metrics.Pipeline().IncSnapshotDeduped()
		s.log.Debug("snapshot suppressed, too close to previous",
			zap.Int64("product_id", in.ProductID),
			zap.Time("previous_at", prev.SnapshotAt),
		)
		return prev, false, nil
	}

	demand, source, err := s.resolveWeeklyDemand(ctx, db, prev, in)
	if err != nil {
		return nil, false, err
	}

	snap := &domain.ProductSnapshot{
		ID:                 s.genID.Generate(),
		ProductID:          in.ProductID,
		SnapshotAt:         in.At,
		OrdersQuantity:     in.OrdersQuantity,
		WeeklyDemand:       demand,
		WeeklyDemandSource: source,
		Rating:             in.Rating,
		ReviewCount:        in.ReviewCount,
		AvailableAmount:    in.AvailableAmount,
		MinSellPrice:       in.MinSellPrice,
		Score:              in.Score,
	}
	if err := s.repo.Insert(ctx, db, snap); err != nil {
		return nil, false, err
	}
	metrics.Pipeline().IncSnapshotWritten()
	return snap, true, nil
}

func (s *Service) ResolveWeeklyDemand(ctx context.Context, db *gorm.DB, in domain.RecordInput) (*float64, string, error) {
	prev, err := s.repo.Latest(ctx, db, in.ProductID)
	if err != nil {
		return nil, "", err
	}
	return s.resolveWeeklyDemand(ctx, db, prev, in)
}

// resolveWeeklyDemand prefers the marketplace counter, then extrapolates the
// orders delta to a weekly rate, then repeats the last known figure. A
// negative delta means the marketplace reset or corrected its counter, so the
// delta is not trusted.
func (s *Service) resolveWeeklyDemand(ctx context.Context, db *gorm.DB, prev *domain.ProductSnapshot, in domain.RecordInput) (*float64, string, error) {
	if in.MeasuredWeeklyDemand != nil {
		v := *in.MeasuredWeeklyDemand
		return &v, domain.DemandSourceMeasured, nil
	}

	if prev != nil {
		delta := in.OrdersQuantity - prev.OrdersQuantity
		elapsedDays := in.At.Sub(prev.SnapshotAt).Hours() / 24
		if delta >= 0 && elapsedDays > 0 {
			derived := float64(delta) / elapsedDays * 7
			return &derived, domain.DemandSourceDerived, nil
		}
	}

	carried, err := s.repo.LatestWithDemand(ctx, db, in.ProductID)
	if err != nil {
		return nil, "", err
	}
	if carried != nil && carried.WeeklyDemand != nil {
		v := *carried.WeeklyDemand
		return &v, domain.DemandSourceCarriedForward, nil
	}
	return nil, domain.DemandSourceCarriedForward, nil
}

func (s *Service) History(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]*domain.ProductSnapshot, error) {
	return s.repo.History(ctx, db, productID, limit)
}
