package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRun(ctx context.Context, db *gorm.DB, run *CategoryRun) error
	FindRun(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CategoryRun, error)
	ListRuns(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*CategoryRun, error)

	MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error
	FinishRun(ctx context.Context, db *gorm.DB, run *CategoryRun) error

	InsertWinner(ctx context.Context, db *gorm.DB, winner *CategoryWinner) error
	WinnersByRun(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]*CategoryWinner, error)
}
