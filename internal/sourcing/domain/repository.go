package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertJob(ctx context.Context, db *gorm.DB, job *SourcingJob) error
	FindJob(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SourcingJob, error)
	ListJobs(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*SourcingJob, error)
	MarkJobRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error
	FinishJob(ctx context.Context, db *gorm.DB, job *SourcingJob) error

	InsertOffer(ctx context.Context, db *gorm.DB, offer *SourcingOffer) error
	OffersByJob(ctx context.Context, db *gorm.DB, jobID snowflake.ID) ([]*SourcingOffer, error)
	UpdateOfferRelevance(ctx context.Context, db *gorm.DB, id snowflake.ID, score float64) error
	UpdateOfferCosts(ctx context.Context, db *gorm.DB, id snowflake.ID, landedCost float64, margin, roi *float64, shippingDays int) error
	UpdateOfferRank(ctx context.Context, db *gorm.DB, id snowflake.ID, rank int) error

	ActiveCargoProviders(ctx context.Context, db *gorm.DB, origin string) ([]*CargoProvider, error)
}
