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
	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
	itemrepository "github.com/bozorlab/marketpulse/internal/item/repository"
	"github.com/bozorlab/marketpulse/internal/sourcing/domain"
	"github.com/bozorlab/marketpulse/internal/sourcing/repository"
)

type fakeSource struct {
	name   string
	origin string
	offers []domain.OfferInput
	err    error
}

func (f *fakeSource) Name() string   { return f.name }
func (f *fakeSource) Origin() string { return f.origin }

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]domain.OfferInput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.offers, nil
}

type fakeScorer struct {
	scores []float64
	err    error
}

func (f *fakeScorer) ScoreOffers(ctx context.Context, query string, titles []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.scores == nil {
		scores := make([]float64, len(titles))
		for i := range scores {
			scores[i] = 1
		}
		return scores, nil
	}
	return f.scores, nil
}

// fakeConverter applies fixed UZS rates so cost math is deterministic.
type fakeConverter struct{}

func (fakeConverter) ToUZS(ctx context.Context, amount float64, code string) (float64, error) {
	switch code {
	case "USD":
		return amount * 12900, nil
	case "CNY":
		return amount * 1800, nil
	case "UZS", "":
		return amount, nil
	}
	return 0, errors.New("unknown currency")
}

func (fakeConverter) Refresh(ctx context.Context) error { return nil }

type fixture struct {
	svc domain.Service
	db  *gorm.DB
}

func newFixture(t *testing.T, dsn string, scorer *fakeScorer, sourceList ...domain.Source) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, dsn, scorer, config.DefaultPolicyConfig(), sourceList...)
}

func newFixtureWithPolicy(t *testing.T, dsn string, scorer *fakeScorer, policy config.PolicyConfig, sourceList ...domain.Source) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.SourcingJob{},
		&domain.SourcingOffer{},
		&domain.CargoProvider{},
		&itemdomain.Product{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	// two CN lanes, the cheaper one must win
	require.NoError(t, db.Create(&domain.CargoProvider{
		ID: node.Generate(), Name: "Avia (Xitoy)", Origin: "CN", Method: "AVIA",
		RatePerKg: 5.5, DeliveryDays: 5, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&domain.CargoProvider{
		ID: node.Generate(), Name: "Temir Yo'l (Xitoy)", Origin: "CN", Method: "RAIL",
		RatePerKg: 3.8, DeliveryDays: 15, IsActive: true,
	}).Error)

	if scorer == nil {
		scorer = &fakeScorer{}
	}

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Cfg:       config.Config{Sourcing: config.SourcingConfig{SearchLimit: 20}},
		Policy:    config.NewStaticPolicyHolder(policy),
		Repo:      repository.Provide(),
		Items:     itemrepository.Provide(),
		Scorer:    scorer,
		Converter: fakeConverter{},
		Sources:   sourceList,
	})
	return &fixture{svc: svc, db: db}
}

func accountContext(id int64) context.Context {
	return accountctx.WithAccountID(context.Background(), id)
}

func offerInput(title string, priceUSD float64, rating float64) domain.OfferInput {
	return domain.OfferInput{
		Title:       title,
		Price:       priceUSD,
		Currency:    "USD",
		OfferURL:    "https://supplier.example/" + title,
		StoreName:   "Store",
		StoreRating: rating,
		WeightKg:    1,
	}
}

func TestExecuteRanksOnlyRelevantOffers(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub 7 port", 10, 4.8),
		offerInput("kitchen towel", 9, 4.9),
		offerInput("usb-c hub adapter", 11, 4.2),
	}}
	scorer := &fakeScorer{scores: []float64{0.9, 0.3, 0.7}}
	f := newFixture(t, "file:sourcing_rank?mode=memory&cache=shared", scorer, source)
	ctx := accountContext(1)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusDone, result.Job.Status)
	require.Len(t, result.Offers, 3)

	ranked := 0
	for _, offer := range result.Offers {
		require.NotNil(t, offer.RelevanceScore)
		if offer.Rank != nil {
			require.NotNil(t, offer.LandedCost)
			ranked++
		} else {
			// the irrelevant offer keeps its row but never reaches the
			// cost or ranking stages
			require.Equal(t, 0.3, *offer.RelevanceScore)
			require.Nil(t, offer.LandedCost)
			require.Nil(t, offer.Margin)
			require.Nil(t, offer.ROI)
		}
	}
	require.Equal(t, 2, ranked)
	require.NotNil(t, result.Offers[0].Rank)
	require.Equal(t, 1, *result.Offers[0].Rank)
	require.NotNil(t, result.Offers[1].Rank)
	require.Equal(t, 2, *result.Offers[1].Rank)
}

func TestExecuteMarginFloorExcludesThinOffers(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub cheap", 10, 4.5),
		offerInput("usb hub pricey", 25, 4.5),
	}}
	policy := config.DefaultPolicyConfig()
	policy.Sourcing.TargetMarginFloor = 50000
	f := newFixtureWithPolicy(t, "file:sourcing_floor?mode=memory&cache=shared", nil, policy, source)
	ctx := accountContext(1)

	productID := int64(4002)
	require.NoError(t, f.db.Create(&itemdomain.Product{
		ExternalID:   productID,
		Title:        "USB hub",
		MinSellPrice: 300000,
	}).Error)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub", ProductID: &productID})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, result.Offers, 2)

	for _, offer := range result.Offers {
		require.NotNil(t, offer.LandedCost)
		require.NotNil(t, offer.Margin)
		if *offer.Margin < 50000 {
			require.Nil(t, offer.Rank)
		} else {
			require.NotNil(t, offer.Rank)
			require.Equal(t, 1, *offer.Rank)
		}
	}
}

func TestExecuteLandedCostMath(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub", 10, 4.5),
	}}
	f := newFixture(t, "file:sourcing_cost?mode=memory&cache=shared", nil, source)
	ctx := accountContext(1)

	productID := int64(4001)
	require.NoError(t, f.db.Create(&itemdomain.Product{
		ExternalID:   productID,
		Title:        "USB hub на Uzum",
		MinSellPrice: 300000,
	}).Error)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub", ProductID: &productID})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, result.Offers, 1)
	offer := result.Offers[0]

	// cheapest CN lane: 3.8 USD/kg, 15 days
	require.Equal(t, 15, offer.ShippingDays)

	goods := 10.0 * 12900   // 129000
	shipping := 3.8 * 12900 // 49020, 1 kg
	customs := 0.10 * (goods + shipping)
	vat := 0.12 * (goods + shipping + customs)
	landed := goods + shipping + customs + vat

	require.NotNil(t, offer.LandedCost)
	require.InDelta(t, landed, *offer.LandedCost, 1e-6)
	require.NotNil(t, offer.Margin)
	require.InDelta(t, 300000-landed, *offer.Margin, 1e-6)
	require.NotNil(t, offer.ROI)
	require.InDelta(t, (300000-landed)/landed, *offer.ROI, 1e-9)
}

func TestExecuteWithoutOriginProductLeavesMarginNull(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub", 10, 4.5),
	}}
	f := newFixture(t, "file:sourcing_nomargin?mode=memory&cache=shared", nil, source)
	ctx := accountContext(1)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	offer := result.Offers[0]
	require.NotNil(t, offer.LandedCost)
	require.Nil(t, offer.Margin)
	require.Nil(t, offer.ROI)
	require.NotNil(t, offer.Rank) // still rankable, ROI just contributes nothing
}

func TestExecutePartialSourceFailure(t *testing.T) {
	good := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub", 10, 4.5),
	}}
	bad := &fakeSource{name: "1688", origin: "CN", err: errors.New("gateway down")}
	f := newFixture(t, "file:sourcing_partial?mode=memory&cache=shared", nil, good, bad)
	ctx := accountContext(1)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusDone, result.Job.Status)
	require.Len(t, result.Offers, 1)
}

func TestExecuteAllSourcesFailMarksJobFailed(t *testing.T) {
	bad := &fakeSource{name: "1688", origin: "CN", err: errors.New("gateway down")}
	f := newFixture(t, "file:sourcing_allfail?mode=memory&cache=shared", nil, bad)
	ctx := accountContext(1)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusFailed, result.Job.Status)
	require.NotEmpty(t, result.Job.Error)
}

func TestExecuteIsIdempotentPerJob(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub", 10, 4.5),
	}}
	f := newFixture(t, "file:sourcing_idem?mode=memory&cache=shared", nil, source)
	ctx := accountContext(1)

	job, err := f.svc.CreateJob(ctx, domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), job.ID))
	require.NoError(t, f.svc.Execute(context.Background(), job.ID)) // redelivery

	result, err := f.svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, result.Offers, 1)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t, "file:sourcing_validate?mode=memory&cache=shared", nil)

	_, err := f.svc.CreateJob(context.Background(), domain.CreateJobRequest{Query: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = f.svc.CreateJob(accountContext(1), domain.CreateJobRequest{Query: "   "})
	require.ErrorIs(t, err, domain.ErrEmptyQuery)
}

func TestGetJobScopedToAccount(t *testing.T) {
	source := &fakeSource{name: "alibaba", origin: "CN", offers: []domain.OfferInput{
		offerInput("usb hub", 10, 4.5),
	}}
	f := newFixture(t, "file:sourcing_scope?mode=memory&cache=shared", nil, source)

	job, err := f.svc.CreateJob(accountContext(1), domain.CreateJobRequest{Query: "usb hub"})
	require.NoError(t, err)

	_, err = f.svc.GetJob(accountContext(2), job.ID)
	require.ErrorIs(t, err, domain.ErrJobNotFound)
}
