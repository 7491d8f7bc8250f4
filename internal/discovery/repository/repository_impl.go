package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/discovery/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const runColumns = `id, account_id, category_id, topic, status, total_candidates, processed, error, started_at, finished_at, created_at`

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *domain.CategoryRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO category_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.AccountID,
		run.CategoryID,
		run.Topic,
		run.Status,
		run.TotalCandidates,
		run.Processed,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	).Error
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CategoryRun, error) {
	var run domain.CategoryRun
	err := db.WithContext(ctx).Raw(
		`SELECT `+runColumns+` FROM category_runs WHERE id = ?`,
		id,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.CategoryRun, error) {
	var runs []*domain.CategoryRun
	err := db.WithContext(ctx).Raw(
		`SELECT `+runColumns+`
		 FROM category_runs
		 WHERE account_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *repo) MarkRunning(ctx context.Context, db *gorm.DB, id snowflake.ID, startedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE category_runs SET status = ?, started_at = ? WHERE id = ?`,
		domain.RunStatusRunning,
		startedAt,
		id,
	).Error
}

func (r *repo) FinishRun(ctx context.Context, db *gorm.DB, run *domain.CategoryRun) error {
	return db.WithContext(ctx).Exec(
		`UPDATE category_runs
		 SET status = ?, total_candidates = ?, processed = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status,
		run.TotalCandidates,
		run.Processed,
		run.Error,
		run.FinishedAt,
		run.ID,
	).Error
}

func (r *repo) InsertWinner(ctx context.Context, db *gorm.DB, winner *domain.CategoryWinner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO category_winners (id, run_id, product_id, rank, score, weekly_demand, orders_quantity, sell_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		winner.ID,
		winner.RunID,
		winner.ProductID,
		winner.Rank,
		winner.Score,
		winner.WeeklyDemand,
		winner.OrdersQuantity,
		winner.SellPrice,
		winner.CreatedAt,
	).Error
}

func (r *repo) WinnersByRun(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]*domain.CategoryWinner, error) {
	var winners []*domain.CategoryWinner
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, product_id, rank, score, weekly_demand, orders_quantity, sell_price, created_at
		 FROM category_winners
		 WHERE run_id = ?
		 ORDER BY rank ASC`,
		runID,
	).Scan(&winners).Error
	if err != nil {
		return nil, err
	}
	return winners, nil
}
