package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertTracking(ctx context.Context, db *gorm.DB, tracking *CompetitorTracking) error
	FindTracking(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID, competitorProductID int64) (*CompetitorTracking, error)
	SetTrackingActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
	ListActiveTrackings(ctx context.Context, db *gorm.DB) ([]*CompetitorTracking, error)

	InsertPriceSnapshot(ctx context.Context, db *gorm.DB, snap *CompetitorPriceSnapshot) error
	LatestPriceSnapshot(ctx context.Context, db *gorm.DB, trackingID snowflake.ID) (*CompetitorPriceSnapshot, error)

	InsertRule(ctx context.Context, db *gorm.DB, rule *AlertRule) error
	FindActiveRule(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID int64, ruleType string) (*AlertRule, error)

	InsertAlertEvent(ctx context.Context, db *gorm.DB, event *AlertEvent) error
	ListAlertEvents(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*AlertEvent, error)
}
