package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const jobColumns = `id, account_id, product_id, query, status, error, started_at, finished_at, created_at`

const offerColumns = `id, job_id, source, title, price, currency, offer_url, store_name, store_rating, weight_kg, shipping_days, relevance_score, landed_cost, margin, roi, rank, created_at`

func (r *repo) InsertJob(ctx context.Context, db *gorm.DB, job *domain.SourcingJob) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sourcing_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.AccountID,
		job.ProductID,
		job.Query,
		job.Status,
		job.Error,
		job.StartedAt,
		job.FinishedAt,
		job.CreatedAt,
	).Error
}

func (r *repo) FindJob(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SourcingJob, error) {
	var job domain.SourcingJob
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM sourcing_jobs WHERE id = ?`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) ListJobs(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.SourcingJob, error) {
	var jobs []*domain.SourcingJob
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM sourcing_jobs
		 WHERE account_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) MarkJobRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sourcing_jobs SET status = ?, started_at = ? WHERE id = ?`,
		domain.JobStatusRunning,
		startedAt,
		id,
	).Error
}

func (r *repo) FinishJob(ctx context.Context, db *gorm.DB, job *domain.SourcingJob) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sourcing_jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		job.Status,
		job.Error,
		job.FinishedAt,
		job.ID,
	).Error
}

func (r *repo) InsertOffer(ctx context.Context, db *gorm.DB, offer *domain.SourcingOffer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sourcing_offers (`+offerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		offer.ID,
		offer.JobID,
		offer.Source,
		offer.Title,
		offer.Price,
		offer.Currency,
		offer.OfferURL,
		offer.StoreName,
		offer.StoreRating,
		offer.WeightKg,
		offer.ShippingDays,
		offer.RelevanceScore,
		offer.LandedCost,
		offer.Margin,
		offer.ROI,
		offer.Rank,
		offer.CreatedAt,
	).Error
}

func (r *repo) OffersByJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]*domain.SourcingOffer, error) {
	var offers []*domain.SourcingOffer
	err := db.WithContext(ctx).Raw(
		`SELECT `+offerColumns+`
		 FROM sourcing_offers
		 WHERE job_id = ?
		 ORDER BY CASE WHEN rank IS NULL THEN 1 ELSE 0 END, rank ASC, id ASC`,
		jobID,
	).Scan(&offers).Error
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repo) UpdateOfferRelevance(ctx context.Context, db *gorm.DB, id snowflake.ID, score float64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sourcing_offers SET relevance_score = ? WHERE id = ?`,
		score,
		id,
	).Error
}

func (r *repo) UpdateOfferCosts(ctx context.Context, db *gorm.DB, id snowflake.ID, landedCost float64, margin, roi *float64, shippingDays int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sourcing_offers SET landed_cost = ?, margin = ?, roi = ?, shipping_days = ? WHERE id = ?`,
		landedCost,
		margin,
		roi,
		shippingDays,
		id,
	).Error
}

func (r *repo) UpdateOfferRank(ctx context.Context, db *gorm.DB, id snowflake.ID, rank int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sourcing_offers SET rank = ? WHERE id = ?`,
		rank,
		id,
	).Error
}

func (r *repo) ActiveCargoProviders(ctx context.Context, db *gorm.DB, origin string) ([]*domain.CargoProvider, error) {
	var providers []*domain.CargoProvider
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, origin, method, rate_per_kg, delivery_days, is_active
		 FROM cargo_providers
		 WHERE origin = ? AND is_active
		 ORDER BY rate_per_kg ASC`,
		origin,
	).Scan(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}
