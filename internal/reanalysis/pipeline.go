package reanalysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/fetcher"
	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
	marketdomain "github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
	"github.com/bozorlab/marketpulse/internal/schedule"
	"github.com/bozorlab/marketpulse/internal/scoring"
	snapshotdomain "github.com/bozorlab/marketpulse/internal/snapshot/domain"
)

// RunSummary reports what a sweep did. Missing products stay on the failure
// schedule so a delisted item keeps getting probed at the slower cadence.
type RunSummary struct {
	Due       int `json:"due"`
	Processed int `json:"processed"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Items    itemdomain.Repository
	Fetcher  *fetcher.BatchFetcher
	Scorer   *scoring.Engine
	Snapshot snapshotdomain.Service
	Schedule *schedule.Policy
}

// Pipeline refreshes tracked products: fetch current marketplace state, score
// it, persist a snapshot, and reschedule the item.
type Pipeline struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	items    itemdomain.Repository
	fetcher  *fetcher.BatchFetcher
	scorer   *scoring.Engine
	snapshot snapshotdomain.Service
	schedule *schedule.Policy
	metrics  *metrics.PipelineMetrics
}

func New(p Params) *Pipeline {
	return &Pipeline{
		db:       p.DB,
		log:      p.Log.Named("reanalysis"),
		clock:    p.Clock,
		items:    p.Items,
		fetcher:  p.Fetcher,
		scorer:   p.Scorer,
		snapshot: p.Snapshot,
		schedule: p.Schedule,
		metrics:  metrics.Pipeline(),
	}
}

// RunDue processes one batch of due tracked items. Callers loop it until the
// summary comes back empty.
func (p *Pipeline) RunDue(ctx context.Context) (RunSummary, error) {
	start := p.clock.Now()
	p.metrics.IncRun(metrics.PipelineReanalysis)

	summary := RunSummary{}
	due, err := p.items.ListDue(ctx, p.db, start, p.schedule.BatchLimit())
	if err != nil {
		p.metrics.IncRunError(metrics.PipelineReanalysis, err)
		return summary, err
	}
	if len(due) == 0 {
		return summary, nil
	}

	productIDs := make([]int64, 0, len(due))
	for _, item := range due {
		productIDs = append(productIDs, item.ProductID)
	}
	summary.Due = len(dedupe(productIDs))

	fetched, err := p.fetcher.FetchAll(ctx, productIDs)
	if err != nil {
		p.metrics.IncRunError(metrics.PipelineReanalysis, err)
		return summary, err
	}

	var errs []error
	for id, detail := range fetched.Details {
		if _, err := p.processProduct(ctx, id, detail); err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("product %d: %w", id, err))
			p.metrics.IncRunError(metrics.PipelineReanalysis, err)
			continue
		}
		summary.Processed++
	}

	for _, id := range fetched.Missing {
		summary.Missing++
		if err := p.markFailure(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("product %d: %w", id, err))
		}
	}
	// Transient per-product fetch failures are counted and rescheduled, not
	// surfaced: the sweep itself succeeded. Only infrastructure errors (DB
	// writes) make the invocation fail.
	for id, fetchErr := range fetched.Errors {
		summary.Failed++
		p.metrics.IncRunError(metrics.PipelineReanalysis, fetchErr)
		p.log.Warn("product fetch failed, rescheduled",
			zap.Int64("product_id", id),
			zap.Error(fetchErr),
		)
		if err := p.markFailure(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("product %d: %w", id, err))
		}
	}

	p.metrics.AddItemsProcessed(metrics.PipelineReanalysis, summary.Processed)
	p.metrics.ObserveRunDuration(metrics.PipelineReanalysis, p.clock.Now().Sub(start))
	p.log.Info("reanalysis batch done",
		zap.Int("due", summary.Due),
		zap.Int("processed", summary.Processed),
		zap.Int("missing", summary.Missing),
		zap.Int("failed", summary.Failed),
	)
	return summary, errors.Join(errs...)
}

// AnalyzeProduct refreshes one product immediately, outside the due schedule.
func (p *Pipeline) AnalyzeProduct(ctx context.Context, productID int64) (*snapshotdomain.ProductSnapshot, error) {
	detail, err := p.fetcher.FetchOne(ctx, productID)
	if err != nil {
		if markErr := p.markFailure(ctx, productID); markErr != nil {
			return nil, errors.Join(err, markErr)
		}
		return nil, err
	}
	return p.processProduct(ctx, productID, detail)
}

func (p *Pipeline) processProduct(ctx context.Context, productID int64, detail *marketdomain.DetailRecord) (*snapshotdomain.ProductSnapshot, error) {
	now := p.clock.Now()
	var snap *snapshotdomain.ProductSnapshot

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.items.UpsertProduct(ctx, tx, &itemdomain.Product{
			ExternalID:      detail.ExternalID,
			Title:           detail.Title,
			Rating:          detail.Rating,
			ReviewCount:     detail.ReviewCount,
			OrdersQuantity:  detail.OrdersQuantity,
			AvailableAmount: detail.AvailableAmount,
			MinSellPrice:    detail.MinSellPrice,
			StockType:       detail.StockType,
			CategoryID:      detail.CategoryID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}); err != nil {
			return err
		}

		input := snapshotdomain.RecordInput{
			ProductID:            productID,
			OrdersQuantity:       detail.OrdersQuantity,
			MeasuredWeeklyDemand: detail.WeeklyDemand,
			Rating:               detail.Rating,
			ReviewCount:          detail.ReviewCount,
			AvailableAmount:      detail.AvailableAmount,
			MinSellPrice:         detail.MinSellPrice,
			At:                   now,
		}
		demand, _, err := p.snapshot.ResolveWeeklyDemand(ctx, tx, input)
		if err != nil {
			return err
		}
		input.Score = p.scorer.Score(scoring.Input{
			WeeklyDemand:   demand,
			LifetimeOrders: detail.OrdersQuantity,
			Rating:         detail.Rating,
			SupplyPressure: p.scorer.SupplyPressure(detail.StockType),
		})

		recorded, written, err := p.snapshot.Record(ctx, tx, input)
		if err != nil {
			return err
		}
		snap = recorded
		if !written {
			p.log.Debug("snapshot deduped during reanalysis", zap.Int64("product_id", productID))
		}

		return p.items.MarkRun(ctx, tx, productID, now, p.schedule.NextDueOnSuccess(now))
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *Pipeline) markFailure(ctx context.Context, productID int64) error {
	now := p.clock.Now()
	return p.items.MarkRun(ctx, p.db, productID, now, p.schedule.NextDueOnFailure(now))
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var Module = fx.Module("reanalysis",
	fx.Provide(New),
)
