package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type fakePricingRepo struct {
	current *models.Pricing
	gets    int
	saves   int
}

func (f *fakePricingRepo) Get(ctx context.Context) (*models.Pricing, error) {
	f.gets++
	if f.current == nil {
		return nil, sql.ErrNoRows
	}
	cp := *f.current
	return &cp, nil
}

func (f *fakePricingRepo) Save(ctx context.Context, pricing *models.Pricing) error {
	f.saves++
	cp := *pricing
	f.current = &cp
	return nil
}

func samplePricing() models.Pricing {
	return models.Pricing{
		Currency: "IDR",
		ClassRanges: models.ClassRanges{
			Primary:   models.ClassRange{PricePerSession: 100000},
			Middle:    models.ClassRange{PricePerSession: 120000},
			Secondary: models.ClassRange{PricePerSession: 150000},
			Senior:    models.ClassRange{PricePerSession: 175000},
		},
		StarterPack: models.StarterPack{Sessions: 4, Price: 400000, ValidityDays: 30},
	}
}

func newPricingServiceForTest(repo *fakePricingRepo) *PricingService {
	cache := NewCacheService(&fakeCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	return NewPricingService(repo, cache, nil, zap.NewNop(), time.Minute)
}

func TestPricingGetUsesCache(t *testing.T) {
	p := samplePricing()
	repo := &fakePricingRepo{current: &p}
	svc := newPricingServiceForTest(repo)

	first, err := svc.Get(context.Background())
	require.NoError(t, err)
	second, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Currency, second.Currency)
	assert.Equal(t, 1, repo.gets)
}

func TestPricingGetUnconfigured(t *testing.T) {
	svc := newPricingServiceForTest(&fakePricingRepo{})
	_, err := svc.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestPricingQuote(t *testing.T) {
	p := samplePricing()
	svc := newPricingServiceForTest(&fakePricingRepo{current: &p})

	single, err := svc.Quote(context.Background(), 7, models.PackageSingle)
	require.NoError(t, err)
	assert.Equal(t, models.BandMiddle, single.Band)
	assert.Equal(t, 1, single.Sessions)
	assert.Equal(t, 120000.0, single.Amount)

	pack, err := svc.Quote(context.Background(), 12, models.PackageStarterPack)
	require.NoError(t, err)
	assert.Equal(t, models.BandSenior, pack.Band)
	assert.Equal(t, 4, pack.Sessions)
	assert.Equal(t, 400000.0, pack.Amount)
	assert.Equal(t, 100000.0, pack.PricePerSession)
	assert.Equal(t, 30, pack.ValidityDays)

	_, err = svc.Quote(context.Background(), 1, models.PackageSingle)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	_, err = svc.Quote(context.Background(), 5, "monthly")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestPricingUpdateValidatesAndInvalidates(t *testing.T) {
	p := samplePricing()
	repo := &fakePricingRepo{current: &p}
	svc := newPricingServiceForTest(repo)
	ctx := context.Background()

	_, err := svc.Get(ctx)
	require.NoError(t, err)

	bad := samplePricing()
	bad.StarterPack.Sessions = 1
	_, err = svc.Update(ctx, bad, "admin-1")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	bad = samplePricing()
	bad.ClassRanges.Senior.PricePerSession = 0
	_, err = svc.Update(ctx, bad, "admin-1")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Zero(t, repo.saves)

	next := samplePricing()
	next.Currency = "usd"
	next.ClassRanges.Primary.PricePerSession = 10
	updated, err := svc.Update(ctx, next, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "USD", updated.Currency)
	assert.Equal(t, "admin-1", *updated.UpdatedBy)

	current, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, current.ClassRanges.Primary.PricePerSession)
	assert.Equal(t, 2, repo.gets)
}
