package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/item/domain"
	"github.com/bozorlab/marketpulse/internal/marketplace"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Client marketplace.Client
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	client marketplace.Client
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("item.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		client: p.Client,
	}
}

func (s *Service) Track(ctx context.Context, req domain.TrackRequest) (domain.TrackedItem, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.TrackedItem{}, domain.ErrInvalidAccount
	}
	if req.ProductID <= 0 {
		return domain.TrackedItem{}, domain.ErrInvalidProduct
	}

	existing, err := s.repo.FindTracked(ctx, s.db, accountID, req.ProductID)
	if err != nil {
		return domain.TrackedItem{}, err
	}
	if existing != nil {
		if !existing.IsActive {
			if err := s.repo.SetTrackedActive(ctx, s.db, existing.ID, true); err != nil {
				return domain.TrackedItem{}, err
			}
			existing.IsActive = true
		}
		return *existing, nil
	}

	if err := s.ensureProduct(ctx, req.ProductID); err != nil {
		return domain.TrackedItem{}, err
	}

	now := s.clock.Now()
	item := domain.TrackedItem{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		ProductID: req.ProductID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertTracked(ctx, s.db, &item); err != nil {
		return domain.TrackedItem{}, err
	}

	s.log.Info("item tracked",
		zap.Int64("account_id", int64(accountID)),
		zap.Int64("product_id", req.ProductID),
	)
	return item, nil
}

func (s *Service) ensureProduct(ctx context.Context, productID int64) error {
	product, err := s.repo.FindProduct(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if product != nil {
		return nil
	}

	detail, err := s.client.FetchDetail(ctx, productID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.UpsertProduct(ctx, s.db, &domain.Product{
		ExternalID:      detail.ExternalID,
		Title:           detail.Title,
		Rating:          detail.Rating,
		ReviewCount:     detail.ReviewCount,
		OrdersQuantity:  detail.OrdersQuantity,
		AvailableAmount: detail.AvailableAmount,
		MinSellPrice:    detail.MinSellPrice,
		StockType:       detail.StockType,
		CategoryID:      detail.CategoryID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (s *Service) Untrack(ctx context.Context, productID int64) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ErrInvalidAccount
	}

	existing, err := s.repo.FindTracked(ctx, s.db, accountID, productID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotTracked
	}
	if !existing.IsActive {
		return nil
	}
	return s.repo.SetTrackedActive(ctx, s.db, existing.ID, false)
}

func (s *Service) Tracked(ctx context.Context, productID int64) (*domain.TrackedItem, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	return s.repo.FindTracked(ctx, s.db, accountID, productID)
}
