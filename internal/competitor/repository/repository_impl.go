package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/competitor/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTracking(ctx context.Context, db *gorm.DB, tracking *domain.CompetitorTracking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO competitor_trackings (id, account_id, product_id, competitor_product_id, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tracking.ID,
		tracking.AccountID,
		tracking.ProductID,
		tracking.CompetitorProductID,
		tracking.IsActive,
		tracking.CreatedAt,
	).Error
}

func (r *repo) FindTracking(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID, competitorProductID int64) (*domain.CompetitorTracking, error) {
	var tracking domain.CompetitorTracking
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, competitor_product_id, is_active, created_at
		 FROM competitor_trackings
		 WHERE account_id = ? AND product_id = ? AND competitor_product_id = ?`,
		accountID,
		productID,
		competitorProductID,
	).Scan(&tracking).Error
	if err != nil {
		return nil, err
	}
	if tracking.ID == 0 {
		return nil, nil
	}
	return &tracking, nil
}

func (r *repo) SetTrackingActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE competitor_trackings SET is_active = ? WHERE id = ?`,
		active,
		id,
	).Error
}

func (r *repo) ListActiveTrackings(ctx context.Context, db *gorm.DB) ([]*domain.CompetitorTracking, error) {
	var trackings []*domain.CompetitorTracking
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, competitor_product_id, is_active, created_at
		 FROM competitor_trackings
		 WHERE is_active
		 ORDER BY id`,
	).Scan(&trackings).Error
	if err != nil {
		return nil, err
	}
	return trackings, nil
}

func (r *repo) InsertPriceSnapshot(ctx context.Context, db *gorm.DB, snap *domain.CompetitorPriceSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO competitor_price_snapshots (id, tracking_id, sell_price, snapshot_at)
		 VALUES (?, ?, ?, ?)`,
		snap.ID,
		snap.TrackingID,
		snap.SellPrice,
		snap.SnapshotAt,
	).Error
}

func (r *repo) LatestPriceSnapshot(ctx context.Context, db *gorm.DB, trackingID snowflake.ID) (*domain.CompetitorPriceSnapshot, error) {
	var snap domain.CompetitorPriceSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, tracking_id, sell_price, snapshot_at
		 FROM competitor_price_snapshots
		 WHERE tracking_id = ?
		 ORDER BY snapshot_at DESC, id DESC
		 LIMIT 1`,
		trackingID,
	).Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *domain.AlertRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alert_rules (id, account_id, product_id, rule_type, threshold_pct, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.AccountID,
		rule.ProductID,
		rule.RuleType,
		rule.ThresholdPct,
		rule.IsActive,
		rule.CreatedAt,
	).Error
}

func (r *repo) FindActiveRule(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID int64, ruleType string) (*domain.AlertRule, error) {
	var rule domain.AlertRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, rule_type, threshold_pct, is_active, created_at
		 FROM alert_rules
		 WHERE account_id = ? AND product_id = ? AND rule_type = ? AND is_active
		 ORDER BY created_at DESC
		 LIMIT 1`,
		accountID,
		productID,
		ruleType,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) InsertAlertEvent(ctx context.Context, db *gorm.DB, event *domain.AlertEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alert_events (id, rule_id, product_id, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.RuleID,
		event.ProductID,
		event.Message,
		event.Details,
		event.CreatedAt,
	).Error
}

func (r *repo) ListAlertEvents(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.AlertEvent, error) {
	var events []*domain.AlertEvent
	err := db.WithContext(ctx).Raw(
		`SELECT e.id, e.rule_id, e.product_id, e.message, e.details, e.created_at
		 FROM alert_events e
		 JOIN alert_rules r ON r.id = e.rule_id
		 WHERE r.account_id = ?
		 ORDER BY e.created_at DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
