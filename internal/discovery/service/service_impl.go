package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/discovery/domain"
	"github.com/bozorlab/marketpulse/internal/marketplace"
	marketdomain "github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
	"github.com/bozorlab/marketpulse/internal/relevance"
	"github.com/bozorlab/marketpulse/internal/scoring"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Repo   domain.Repository
	Client marketplace.Client
	Scorer *scoring.Engine
	Filter relevance.Filter
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	policy  *config.PolicyHolder
	repo    domain.Repository
	client  marketplace.Client
	scorer  *scoring.Engine
	filter  relevance.Filter
	metrics *metrics.PipelineMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("discovery.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		policy:  p.Policy,
		repo:    p.Repo,
		client:  p.Client,
		scorer:  p.Scorer,
		filter:  p.Filter,
		metrics: metrics.Pipeline(),
	}
}

func (s *Service) CreateRun(ctx context.Context, req domain.CreateRunRequest) (*domain.CategoryRun, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if req.CategoryID <= 0 {
		return nil, domain.ErrInvalidCategory
	}

	run := &domain.CategoryRun{
		ID:         s.genID.Generate(),
		AccountID:  accountID,
		CategoryID: req.CategoryID,
		Topic:      req.Topic,
		Status:     domain.RunStatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.InsertRun(ctx, s.db, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id snowflake.ID) (*domain.RunWithWinners, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	run, err := s.repo.FindRun(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if run == nil || run.AccountID != accountID {
		return nil, domain.ErrRunNotFound
	}

	winners, err := s.repo.WinnersByRun(ctx, s.db, run.ID)
	if err != nil {
		return nil, err
	}
	return &domain.RunWithWinners{Run: run, Winners: winners}, nil
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]*domain.CategoryRun, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListRuns(ctx, s.db, accountID, limit)
}

type candidate struct {
	card  marketdomain.CatalogCard
	score float64
}

// Execute drives a run to a terminal status. Only PENDING runs execute; a
// redelivered job for a terminal run is a no-op.
func (s *Service) Execute(ctx context.Context, id snowflake.ID) error {
	run, err := s.repo.FindRun(ctx, s.db, id)
	if err != nil {
		return err
	}
	if run == nil {
		return domain.ErrRunNotFound
	}
	if run.Status != domain.RunStatusPending {
		s.log.Info("run already executed, skipping",
			zap.Int64("run_id", int64(run.ID)),
			zap.String("status", run.Status),
		)
		return nil
	}

	start := s.clock.Now()
	s.metrics.IncRun(metrics.PipelineDiscovery)
	if err := s.repo.MarkRunning(ctx, s.db, run.ID, start); err != nil {
		return err
	}

	discoveryPolicy := s.policy.Get().Discovery
	cards, err := s.client.SearchCategory(ctx, run.CategoryID, discoveryPolicy.CandidateCap)
	if err != nil {
		s.metrics.IncRunError(metrics.PipelineDiscovery, err)
		return s.finish(ctx, run, domain.RunStatusFailed, 0, 0, err.Error())
	}
	if len(cards) == 0 {
		s.metrics.IncRunError(metrics.PipelineDiscovery, domain.ErrNoCandidates)
		return s.finish(ctx, run, domain.RunStatusFailed, 0, 0, domain.ErrNoCandidates.Error())
	}

	candidates := make([]candidate, 0, len(cards))
	for _, card := range cards {
		candidates = append(candidates, candidate{
			card: card,
			score: s.scorer.Score(scoring.Input{
				LifetimeOrders: card.OrdersQuantity,
				Rating:         card.Rating,
				SupplyPressure: s.scorer.SupplyPressure(card.StockType),
			}),
		})
	}

	candidates = s.applyRelevanceFilter(ctx, run.Topic, candidates)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].card.ProductID < candidates[j].card.ProductID
	})
	if len(candidates) > discoveryPolicy.TopN {
		candidates = candidates[:discoveryPolicy.TopN]
	}

	persisted := 0
	for _, cand := range candidates {
		winner := &domain.CategoryWinner{
			ID:             s.genID.Generate(),
			RunID:          run.ID,
			ProductID:      cand.card.ProductID,
			Rank:           persisted + 1,
			Score:          cand.score,
			OrdersQuantity: cand.card.OrdersQuantity,
			SellPrice:      cand.card.MinSellPrice,
			CreatedAt:      s.clock.Now(),
		}
		if err := s.repo.InsertWinner(ctx, s.db, winner); err != nil {
			s.log.Warn("winner persist failed, skipping",
				zap.Int64("run_id", int64(run.ID)),
				zap.Int64("product_id", cand.card.ProductID),
				zap.Error(err),
			)
			continue
		}
		persisted++
	}

	s.metrics.AddItemsProcessed(metrics.PipelineDiscovery, persisted)
	s.metrics.ObserveRunDuration(metrics.PipelineDiscovery, s.clock.Now().Sub(start))
	return s.finish(ctx, run, domain.RunStatusDone, len(cards), persisted, "")
}

// applyRelevanceFilter narrows candidates by topic. A filter failure or a
// verdict that would empty a non-empty set is discarded, not trusted.
func (s *Service) applyRelevanceFilter(ctx context.Context, topic string, candidates []candidate) []candidate {
	if topic == "" || len(candidates) == 0 {
		return candidates
	}

	input := make([]relevance.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		input = append(input, relevance.Candidate{ID: cand.card.ProductID, Title: cand.card.Title})
	}

	kept, err := s.filter.Relevant(ctx, topic, input)
	if err != nil {
		s.log.Warn("relevance filter failed, keeping all candidates", zap.Error(err))
		return candidates
	}
	if len(kept) == 0 {
		s.log.Warn("relevance filter emptied candidate set, discarding verdict",
			zap.String("topic", topic),
			zap.Int("candidates", len(candidates)),
		)
		return candidates
	}

	keep := make(map[int64]struct{}, len(kept))
	for _, id := range kept {
		keep[id] = struct{}{}
	}
	filtered := candidates[:0]
	for _, cand := range candidates {
		if _, ok := keep[cand.card.ProductID]; ok {
			filtered = append(filtered, cand)
		}
	}
	return filtered
}

func (s *Service) finish(ctx context.Context, run *domain.CategoryRun, status string, total, processed int, errText string) error {
	finishedAt := s.clock.Now()
	run.Status = status
	run.TotalCandidates = total
	run.Processed = processed
	run.Error = errText
	run.FinishedAt = &finishedAt
	return s.repo.FinishRun(ctx, s.db, run)
}
