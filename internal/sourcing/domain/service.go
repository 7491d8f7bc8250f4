package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAccount = errors.New("sourcing: account id missing or invalid")
	ErrEmptyQuery     = errors.New("sourcing: query must not be empty")
	ErrJobNotFound    = errors.New("sourcing: job not found")
	ErrNoOffers       = errors.New("sourcing: no source returned offers")
)

type CreateJobRequest struct {
	Query     string `json:"query"`
	ProductID *int64 `json:"product_id,omitempty"`
}

type JobWithOffers struct {
	Job    *SourcingJob     `json:"job"`
	Offers []*SourcingOffer `json:"offers"`
}

type Service interface {
	// CreateJob accepts a sourcing request as PENDING; execution is async.
	CreateJob(ctx context.Context, req CreateJobRequest) (*SourcingJob, error)

	GetJob(ctx context.Context, id snowflake.ID) (*JobWithOffers, error)
	ListJobs(ctx context.Context, limit int) ([]*SourcingJob, error)

	// Execute drives a job through search, relevance, cost, and ranking to a
	// terminal status. Worker-side entry point.
	Execute(ctx context.Context, id snowflake.ID) error
}
