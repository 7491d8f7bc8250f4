package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/competitor/domain"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/fetcher"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Policy  *config.PolicyHolder
	Repo    domain.Repository
	Fetcher *fetcher.BatchFetcher
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  *config.PolicyHolder
	repo    domain.Repository
	fetcher *fetcher.BatchFetcher
	metrics *metrics.PipelineMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("competitor.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		fetcher: p.Fetcher,
		metrics: metrics.Pipeline(),
	}
}

func (s *Service) Track(ctx context.Context, req domain.TrackRequest) (*domain.CompetitorTracking, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if req.ProductID <= 0 || req.CompetitorProductID <= 0 {
		return nil, domain.ErrInvalidProduct
	}

	existing, err := s.repo.FindTracking(ctx, s.db, accountID, req.ProductID, req.CompetitorProductID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsActive {
			if err := s.repo.SetTrackingActive(ctx, s.db, existing.ID, true); err != nil {
				return nil, err
			}
			existing.IsActive = true
		}
		return existing, nil
	}

	tracking := &domain.CompetitorTracking{
		ID:                  s.genID.Generate(),
		AccountID:           accountID,
		ProductID:           req.ProductID,
		CompetitorProductID: req.CompetitorProductID,
		IsActive:            true,
		CreatedAt:           s.clock.Now(),
	}
	if err := s.repo.InsertTracking(ctx, s.db, tracking); err != nil {
		return nil, err
	}
	return tracking, nil
}

func (s *Service) Untrack(ctx context.Context, req domain.TrackRequest) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ErrInvalidAccount
	}

	existing, err := s.repo.FindTracking(ctx, s.db, accountID, req.ProductID, req.CompetitorProductID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotTracking
	}
	if !existing.IsActive {
		return nil
	}
	return s.repo.SetTrackingActive(ctx, s.db, existing.ID, false)
}

func (s *Service) CreateRule(ctx context.Context, req domain.CreateRuleRequest) (*domain.AlertRule, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if req.ProductID <= 0 {
		return nil, domain.ErrInvalidProduct
	}

	threshold := req.ThresholdPct
	if threshold <= 0 {
		threshold = s.policy.Get().Competitor.DefaultDropThresholdPct
	}

	rule := &domain.AlertRule{
		ID:           s.genID.Generate(),
		AccountID:    accountID,
		ProductID:    req.ProductID,
		RuleType:     domain.RuleTypePriceDrop,
		ThresholdPct: threshold,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.InsertRule(ctx, s.db, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) Alerts(ctx context.Context, limit int) ([]*domain.AlertEvent, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListAlertEvents(ctx, s.db, accountID, limit)
}

func (s *Service) Sweep(ctx context.Context) (domain.SweepSummary, error) {
	start := s.clock.Now()
	s.metrics.IncRun(metrics.PipelineCompetitor)

	summary := domain.SweepSummary{}
	trackings, err := s.repo.ListActiveTrackings(ctx, s.db)
	if err != nil {
		s.metrics.IncRunError(metrics.PipelineCompetitor, err)
		return summary, err
	}
	summary.Trackings = len(trackings)
	if len(trackings) == 0 {
		return summary, nil
	}

	// the fetcher collapses duplicates, so N trackings of one competitor
	// cost a single request
	ids := make([]int64, 0, len(trackings))
	for _, tracking := range trackings {
		ids = append(ids, tracking.CompetitorProductID)
	}
	fetched, err := s.fetcher.FetchAll(ctx, ids)
	if err != nil {
		s.metrics.IncRunError(metrics.PipelineCompetitor, err)
		return summary, err
	}

	var errs []error
	for _, tracking := range trackings {
		detail, ok := fetched.Details[tracking.CompetitorProductID]
		if !ok {
			summary.Failed++
			continue
		}
		alerted, err := s.observe(ctx, tracking, detail.MinSellPrice)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("tracking %d: %w", tracking.ID, err))
			s.metrics.IncRunError(metrics.PipelineCompetitor, err)
			continue
		}
		summary.Snapshots++
		if alerted {
			summary.Alerts++
		}
	}

	s.metrics.AddItemsProcessed(metrics.PipelineCompetitor, summary.Snapshots)
	s.metrics.ObserveRunDuration(metrics.PipelineCompetitor, s.clock.Now().Sub(start))
	s.log.Info("competitor sweep done",
		zap.Int("trackings", summary.Trackings),
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("alerts", summary.Alerts),
		zap.Int("failed", summary.Failed),
	)
	return summary, errors.Join(errs...)
}

// observe writes the price snapshot and decides whether the drop against the
// previous observation warrants an alert. No active rule means no alert, no
// matter how big the drop.
func (s *Service) observe(ctx context.Context, tracking *domain.CompetitorTracking, price float64) (bool, error) {
	now := s.clock.Now()

	prev, err := s.repo.LatestPriceSnapshot(ctx, s.db, tracking.ID)
	if err != nil {
		return false, err
	}

	if err := s.repo.InsertPriceSnapshot(ctx, s.db, &domain.CompetitorPriceSnapshot{
		ID:         s.genID.Generate(),
		TrackingID: tracking.ID,
		SellPrice:  price,
		SnapshotAt: now,
	}); err != nil {
		return false, err
	}

	if prev == nil || prev.SellPrice <= 0 {
		return false, nil
	}
	dropPct := (prev.SellPrice - price) / prev.SellPrice * 100
	if dropPct <= 0 {
		return false, nil
	}

	rule, err := s.repo.FindActiveRule(ctx, s.db, tracking.AccountID, tracking.ProductID, domain.RuleTypePriceDrop)
	if err != nil {
		return false, err
	}
	if rule == nil {
		return false, nil
	}

	threshold := rule.ThresholdPct
	if threshold <= 0 {
		threshold = s.policy.Get().Competitor.DefaultDropThresholdPct
	}
	if dropPct < threshold {
		return false, nil
	}

	details, err := json.Marshal(domain.AlertDetails{
		CompetitorProductID: tracking.CompetitorProductID,
		PrevPrice:           prev.SellPrice,
		NewPrice:            price,
		DropPct:             dropPct,
	})
	if err != nil {
		return false, err
	}

	event := &domain.AlertEvent{
		ID:        s.genID.Generate(),
		RuleID:    rule.ID,
		ProductID: tracking.ProductID,
		Message: fmt.Sprintf("competitor %d price dropped %.1f%% (%.0f -> %.0f)",
			tracking.CompetitorProductID, dropPct, prev.SellPrice, price),
		Details:   datatypes.JSON(details),
		CreatedAt: now,
	}
	if err := s.repo.InsertAlertEvent(ctx, s.db, event); err != nil {
		return false, err
	}
	s.metrics.IncAlertEmitted()
	return true, nil
}
