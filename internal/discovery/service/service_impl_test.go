package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/discovery/domain"
	"github.com/bozorlab/marketpulse/internal/discovery/repository"
	marketdomain "github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/relevance"
	"github.com/bozorlab/marketpulse/internal/scoring"
)

type fakeSearchClient struct {
	cards []marketdomain.CatalogCard
	err   error
}

func (f *fakeSearchClient) FetchDetail(ctx context.Context, productID int64) (*marketdomain.DetailRecord, error) {
	return nil, marketdomain.ErrNotFound
}

func (f *fakeSearchClient) SearchCategory(ctx context.Context, categoryID int64, limit int) ([]marketdomain.CatalogCard, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.cards) > limit {
		return f.cards[:limit], nil
	}
	return f.cards, nil
}

type fakeFilter struct {
	keep []int64
	err  error
}

func (f *fakeFilter) Relevant(ctx context.Context, topic string, candidates []relevance.Candidate) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keep, nil
}

// failingWinnerRepo drops winner inserts for one product id.
type failingWinnerRepo struct {
	domain.Repository
	failProductID int64
}

func (r *failingWinnerRepo) InsertWinner(ctx context.Context, db *gorm.DB, winner *domain.CategoryWinner) error {
	if winner.ProductID == r.failProductID {
		return errors.New("simulated insert failure")
	}
	return r.Repository.InsertWinner(ctx, db, winner)
}

func card(id int64, orders int64, rating float64) marketdomain.CatalogCard {
	return marketdomain.CatalogCard{
		ProductID:      id,
		Title:          "Card",
		Rating:         rating,
		OrdersQuantity: orders,
		MinSellPrice:   55000,
		StockType:      marketdomain.StockTypeFBO,
	}
}

func newService(t *testing.T, dsn string, client *fakeSearchClient, filter relevance.Filter, repo domain.Repository) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CategoryRun{}, &domain.CategoryWinner{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policyCfg := config.DefaultPolicyConfig()
	policyCfg.Discovery.TopN = 3

	if filter == nil {
		filter = relevance.NewNoop()
	}
	if repo == nil {
		repo = repository.Provide()
	}

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Policy: config.NewStaticPolicyHolder(policyCfg),
		Repo:   repo,
		Client: client,
		Scorer: scoring.NewEngine(config.NewStaticPolicyHolder(policyCfg)),
		Filter: filter,
	})
	return svc, db
}

func accountContext(id int64) context.Context {
	return accountctx.WithAccountID(context.Background(), id)
}

func TestCreateRunValidation(t *testing.T) {
	svc, _ := newService(t, "file:discovery_validate?mode=memory&cache=shared", &fakeSearchClient{}, nil, nil)

	_, err := svc.CreateRun(context.Background(), domain.CreateRunRequest{CategoryID: 10})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = svc.CreateRun(accountContext(1), domain.CreateRunRequest{CategoryID: 0})
	require.ErrorIs(t, err, domain.ErrInvalidCategory)
}

func TestExecuteRanksTopNWithDenseRanksAndTieBreak(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{
		card(5, 100, 4.0),
		card(3, 500, 4.9),
		card(4, 100, 4.0), // same score as product 5, lower id wins the tie
		card(1, 300, 4.5),
		card(2, 10, 3.0),
	}}
	svc, _ := newService(t, "file:discovery_rank?mode=memory&cache=shared", client, nil, nil)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 10090})
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background(), run.ID))

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusDone, result.Run.Status)
	require.Equal(t, 5, result.Run.TotalCandidates)
	require.Equal(t, 3, result.Run.Processed)
	require.NotNil(t, result.Run.FinishedAt)

	require.Len(t, result.Winners, 3)
	require.Equal(t, []int{1, 2, 3}, []int{result.Winners[0].Rank, result.Winners[1].Rank, result.Winners[2].Rank})
	require.Equal(t, int64(3), result.Winners[0].ProductID)
	require.Equal(t, int64(1), result.Winners[1].ProductID)
	require.Equal(t, int64(4), result.Winners[2].ProductID) // tie against 5, ascending id
}

func TestExecuteZeroCandidatesFails(t *testing.T) {
	svc, _ := newService(t, "file:discovery_empty?mode=memory&cache=shared", &fakeSearchClient{}, nil, nil)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 777})
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background(), run.ID))

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusFailed, result.Run.Status)
	require.NotEmpty(t, result.Run.Error)
	require.Empty(t, result.Winners)
}

func TestExecuteIsIdempotentPerRun(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{card(1, 100, 4.5)}}
	svc, _ := newService(t, "file:discovery_idem?mode=memory&cache=shared", client, nil, nil)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 10090})
	require.NoError(t, err)

	require.NoError(t, svc.Execute(context.Background(), run.ID))
	require.NoError(t, svc.Execute(context.Background(), run.ID)) // redelivery

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, result.Winners, 1)
}

func TestExecuteRelevanceFilterNarrowsSet(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{
		card(1, 300, 4.5),
		card(2, 200, 4.2),
		card(3, 100, 4.0),
	}}
	filter := &fakeFilter{keep: []int64{2}}
	svc, _ := newService(t, "file:discovery_filter?mode=memory&cache=shared", client, filter, nil)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 10090, Topic: "earbuds"})
	require.NoError(t, err)
	require.NoError(t, svc.Execute(context.Background(), run.ID))

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, result.Winners, 1)
	require.Equal(t, int64(2), result.Winners[0].ProductID)
}

func TestExecuteDiscardsEmptyingVerdict(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{
		card(1, 300, 4.5),
		card(2, 200, 4.2),
	}}
	filter := &fakeFilter{keep: nil}
	svc, _ := newService(t, "file:discovery_verdict?mode=memory&cache=shared", client, filter, nil)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 10090, Topic: "earbuds"})
	require.NoError(t, err)
	require.NoError(t, svc.Execute(context.Background(), run.ID))

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, result.Winners, 2)
}

func TestExecuteKeepsRankDenseWhenPersistFails(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{
		card(1, 500, 4.9),
		card(2, 300, 4.5),
		card(3, 100, 4.0),
	}}
	repo := &failingWinnerRepo{Repository: repository.Provide(), failProductID: 2}
	svc, _ := newService(t, "file:discovery_dense?mode=memory&cache=shared", client, nil, repo)
	ctx := accountContext(1)

	run, err := svc.CreateRun(ctx, domain.CreateRunRequest{CategoryID: 10090})
	require.NoError(t, err)
	require.NoError(t, svc.Execute(context.Background(), run.ID))

	result, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusDone, result.Run.Status)
	require.Equal(t, 2, result.Run.Processed)
	require.Len(t, result.Winners, 2)
	require.Equal(t, int64(1), result.Winners[0].ProductID)
	require.Equal(t, 1, result.Winners[0].Rank)
	require.Equal(t, int64(3), result.Winners[1].ProductID)
	require.Equal(t, 2, result.Winners[1].Rank)
}

func TestGetRunScopedToAccount(t *testing.T) {
	client := &fakeSearchClient{cards: []marketdomain.CatalogCard{card(1, 100, 4.5)}}
	svc, _ := newService(t, "file:discovery_scope?mode=memory&cache=shared", client, nil, nil)

	run, err := svc.CreateRun(accountContext(1), domain.CreateRunRequest{CategoryID: 10090})
	require.NoError(t, err)

	_, err = svc.GetRun(accountContext(2), run.ID)
	require.ErrorIs(t, err, domain.ErrRunNotFound)
}
