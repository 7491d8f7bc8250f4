package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAccount  = errors.New("discovery: account id missing or invalid")
	ErrInvalidCategory = errors.New("discovery: category id must be positive")
	ErrRunNotFound     = errors.New("discovery: run not found")
	ErrNoCandidates    = errors.New("discovery: category search returned no candidates")
)

type CreateRunRequest struct {
	CategoryID int64  `json:"category_id"`
	Topic      string `json:"topic"`
}

type RunWithWinners struct {
	Run     *CategoryRun      `json:"run"`
	Winners []*CategoryWinner `json:"winners"`
}

type Service interface {
	// CreateRun accepts a discovery request as PENDING. Execution happens
	// asynchronously; callers poll GetRun.
	CreateRun(ctx context.Context, req CreateRunRequest) (*CategoryRun, error)

	GetRun(ctx context.Context, id snowflake.ID) (*RunWithWinners, error)
	ListRuns(ctx context.Context, limit int) ([]*CategoryRun, error)

	// Execute drives a run to a terminal status. Worker-side entry point.
	Execute(ctx context.Context, id snowflake.ID) error
}
