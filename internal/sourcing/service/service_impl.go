package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/currency"
	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
	"github.com/bozorlab/marketpulse/internal/relevance"
	"github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Policy    *config.PolicyHolder
	Repo      domain.Repository
	Items     itemdomain.Repository
	Scorer    relevance.OfferScorer
	Converter currency.Converter
	Sources   []domain.Source `group:"sourcing_sources"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	policy    *config.PolicyHolder
	repo      domain.Repository
	items     itemdomain.Repository
	scorer    relevance.OfferScorer
	converter currency.Converter
	sources   []domain.Source
	metrics   *metrics.PipelineMetrics
}

func New(p Params) domain.Service {
	sources := make([]domain.Source, 0, len(p.Sources))
	for _, source := range p.Sources {
		if source != nil {
			sources = append(sources, source)
		}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("sourcing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg,
		policy:    p.Policy,
		repo:      p.Repo,
		items:     p.Items,
		scorer:    p.Scorer,
		converter: p.Converter,
		sources:   sources,
		metrics:   metrics.Pipeline(),
	}
}

func (s *Service) CreateJob(ctx context.Context, req domain.CreateJobRequest) (*domain.SourcingJob, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	job := &domain.SourcingJob{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		ProductID: req.ProductID,
		Query:     query,
		Status:    domain.JobStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertJob(ctx, s.db, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id snowflake.ID) (*domain.JobWithOffers, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}

	job, err := s.repo.FindJob(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.AccountID != accountID {
		return nil, domain.ErrJobNotFound
	}

	offers, err := s.repo.OffersByJob(ctx, s.db, job.ID)
	if err != nil {
		return nil, err
	}
	return &domain.JobWithOffers{Job: job, Offers: offers}, nil
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]*domain.SourcingJob, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListJobs(ctx, s.db, accountID, limit)
}

// Execute drives a job through search, relevance, cost, and ranking. Only a
// PENDING job executes; redeliveries of terminal jobs are no-ops.
func (s *Service) Execute(ctx context.Context, id snowflake.ID) error {
	job, err := s.repo.FindJob(ctx, s.db, id)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		s.log.Info("job already executed, skipping",
			zap.Int64("job_id", int64(job.ID)),
			zap.String("status", job.Status),
		)
		return nil
	}

	start := s.clock.Now()
	s.metrics.IncRun(metrics.PipelineSourcing)
	if err := s.repo.MarkJobRunning(ctx, s.db, job.ID, start); err != nil {
		return err
	}

	offers, searchErrs := s.fanOut(ctx, job)
	if len(offers) == 0 {
		err := domain.ErrNoOffers
		if searchErrs != nil {
			err = fmt.Errorf("%w: %w", domain.ErrNoOffers, searchErrs)
		}
		s.metrics.IncRunError(metrics.PipelineSourcing, err)
		return s.finish(ctx, job, domain.JobStatusFailed, err.Error())
	}
	if searchErrs != nil {
		s.log.Warn("some sources failed, continuing with partial results", zap.Error(searchErrs))
	}

	s.stageRelevance(ctx, job, offers)
	s.stageCosts(ctx, job, offers)
	s.stageRanking(ctx, offers)

	s.metrics.AddItemsProcessed(metrics.PipelineSourcing, len(offers))
	s.metrics.ObserveRunDuration(metrics.PipelineSourcing, s.clock.Now().Sub(start))
	return s.finish(ctx, job, domain.JobStatusDone, "")
}

// fanOut searches every registered source in parallel and persists whatever
// comes back. Source failures are joined for logging but never abort the job.
func (s *Service) fanOut(ctx context.Context, job *domain.SourcingJob) ([]*domain.SourcingOffer, error) {
	limit := s.cfg.Sourcing.SearchLimit
	if limit <= 0 {
		limit = 20
	}

	type result struct {
		origin string
		source string
		offers []domain.OfferInput
		err    error
	}

	results := make(chan result, len(s.sources))
	var wg sync.WaitGroup
	for _, source := range s.sources {
		wg.Add(1)
		go func(source domain.Source) {
			defer wg.Done()
			offers, err := source.Search(ctx, job.Query, limit)
			results <- result{origin: source.Origin(), source: source.Name(), offers: offers, err: err}
		}(source)
	}
	wg.Wait()
	close(results)

	defaultWeight := s.policy.Get().Sourcing.DefaultWeightKg
	var persisted []*domain.SourcingOffer
	var errs []error
	for res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		for _, input := range res.offers {
			weight := input.WeightKg
			if weight <= 0 {
				weight = defaultWeight
			}
			offer := &domain.SourcingOffer{
				ID:          s.genID.Generate(),
				JobID:       job.ID,
				Source:      res.source,
				Title:       input.Title,
				Price:       input.Price,
				Currency:    input.Currency,
				OfferURL:    input.OfferURL,
				StoreName:   input.StoreName,
				StoreRating: input.StoreRating,
				WeightKg:    weight,
				CreatedAt:   s.clock.Now(),
			}
			if err := s.repo.InsertOffer(ctx, s.db, offer); err != nil {
				errs = append(errs, fmt.Errorf("offer persist: %w", err))
				continue
			}
			persisted = append(persisted, offer)
		}
	}
	return persisted, errors.Join(errs...)
}

// offerOrigins maps each offer back to its source's cargo corridor.
func (s *Service) offerOrigin(offer *domain.SourcingOffer) string {
	for _, source := range s.sources {
		if source.Name() == offer.Source {
			return source.Origin()
		}
	}
	return "CN"
}

func (s *Service) stageRelevance(ctx context.Context, job *domain.SourcingJob, offers []*domain.SourcingOffer) {
	titles := make([]string, 0, len(offers))
	for _, offer := range offers {
		titles = append(titles, offer.Title)
	}

	scores, err := s.scorer.ScoreOffers(ctx, job.Query, titles)
	if err != nil {
		s.log.Warn("relevance scoring failed, treating offers as relevant", zap.Error(err))
		scores = make([]float64, len(offers))
		for i := range scores {
			scores[i] = 1
		}
	}

	for i, offer := range offers {
		score := scores[i]
		if err := s.repo.UpdateOfferRelevance(ctx, s.db, offer.ID, score); err != nil {
			s.log.Warn("relevance persist failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			continue
		}
		offer.RelevanceScore = &score
	}
}

// stageCosts computes landed cost for offers at or above the relevance
// cutoff. Sub-cutoff offers keep their row but never reach the cost or
// ranking stages.
func (s *Service) stageCosts(ctx context.Context, job *domain.SourcingJob, offers []*domain.SourcingOffer) {
	policy := s.policy.Get().Sourcing

	sellPrice := 0.0
	if job.ProductID != nil {
		product, err := s.items.FindProduct(ctx, s.db, *job.ProductID)
		if err != nil {
			s.log.Warn("origin product lookup failed", zap.Error(err))
		} else if product != nil {
			sellPrice = product.MinSellPrice
		}
	}

	providerByOrigin := map[string]*domain.CargoProvider{}
	for _, offer := range offers {
		if offer.RelevanceScore == nil || *offer.RelevanceScore < policy.RelevanceCutoff {
			continue
		}
		origin := s.offerOrigin(offer)
		provider, ok := providerByOrigin[origin]
		if !ok {
			providers, err := s.repo.ActiveCargoProviders(ctx, s.db, origin)
			if err != nil || len(providers) == 0 {
				s.log.Warn("no cargo provider for origin", zap.String("origin", origin), zap.Error(err))
				providerByOrigin[origin] = nil
				continue
			}
			// cheapest lane wins
			provider = providers[0]
			providerByOrigin[origin] = provider
		}
		if provider == nil {
			continue
		}

		goods, err := s.converter.ToUZS(ctx, offer.Price, offer.Currency)
		if err != nil {
			s.log.Warn("goods conversion failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			continue
		}
		shipping, err := s.converter.ToUZS(ctx, offer.WeightKg*provider.RatePerKg, "USD")
		if err != nil {
			s.log.Warn("shipping conversion failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			continue
		}

		customs := policy.CustomsRate * (goods + shipping)
		vat := policy.VATRate * (goods + shipping + customs)
		landed := goods + shipping + customs + vat

		var margin, roi *float64
		if sellPrice > 0 && landed > 0 {
			m := sellPrice - landed
			r := m / landed
			margin, roi = &m, &r
		}

		if err := s.repo.UpdateOfferCosts(ctx, s.db, offer.ID, landed, margin, roi, provider.DeliveryDays); err != nil {
			s.log.Warn("cost persist failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			continue
		}
		offer.LandedCost = &landed
		offer.Margin = margin
		offer.ROI = roi
		offer.ShippingDays = provider.DeliveryDays
	}
}

// stageRanking assigns dense ranks to offers above the relevance cutoff that
// have a landed cost. Everything else keeps its row, unranked.
func (s *Service) stageRanking(ctx context.Context, offers []*domain.SourcingOffer) {
	policy := s.policy.Get().Sourcing

	var eligible []*domain.SourcingOffer
	for _, offer := range offers {
		if offer.RelevanceScore == nil || *offer.RelevanceScore < policy.RelevanceCutoff {
			continue
		}
		if offer.LandedCost == nil {
			continue
		}
		if policy.TargetMarginFloor > 0 && offer.Margin != nil && *offer.Margin < policy.TargetMarginFloor {
			continue
		}
		eligible = append(eligible, offer)
	}
	if len(eligible) == 0 {
		return
	}

	roiMin, roiMax := bounds(eligible, func(o *domain.SourcingOffer) (float64, bool) {
		if o.ROI == nil {
			return 0, false
		}
		return *o.ROI, true
	})
	shipMin, shipMax := bounds(eligible, func(o *domain.SourcingOffer) (float64, bool) {
		return 1 / (1 + float64(o.ShippingDays)), true
	})

	composite := make(map[snowflake.ID]float64, len(eligible))
	for _, offer := range eligible {
		roiNorm := 0.0
		if offer.ROI != nil {
			roiNorm = normalize(*offer.ROI, roiMin, roiMax)
		}
		shipNorm := normalize(1/(1+float64(offer.ShippingDays)), shipMin, shipMax)
		ratingNorm := offer.StoreRating / 5
		if ratingNorm > 1 {
			ratingNorm = 1
		}

		composite[offer.ID] = policy.ROIWeight*roiNorm +
			policy.MatchWeight*(*offer.RelevanceScore) +
			policy.ShippingWeight*shipNorm +
			policy.RatingWeight*ratingNorm
	}

	sort.Slice(eligible, func(i, j int) bool {
		si, sj := composite[eligible[i].ID], composite[eligible[j].ID]
		if si != sj {
			return si > sj
		}
		return eligible[i].ID < eligible[j].ID
	})

	for i, offer := range eligible {
		rank := i + 1
		if err := s.repo.UpdateOfferRank(ctx, s.db, offer.ID, rank); err != nil {
			s.log.Warn("rank persist failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			continue
		}
		offer.Rank = &rank
	}
}

func (s *Service) finish(ctx context.Context, job *domain.SourcingJob, status, errText string) error {
	finishedAt := s.clock.Now()
	job.Status = status
	job.Error = errText
	job.FinishedAt = &finishedAt
	return s.repo.FinishJob(ctx, s.db, job)
}

func bounds(offers []*domain.SourcingOffer, value func(*domain.SourcingOffer) (float64, bool)) (float64, float64) {
	first := true
	var min, max float64
	for _, offer := range offers {
		v, ok := value(offer)
		if !ok {
			continue
		}
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max <= min {
		return 1
	}
	return (v - min) / (max - min)
}
