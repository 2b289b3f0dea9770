package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const pricingCacheKey = "pricing:current"

type pricingRepository interface {
	Get(ctx context.Context) (*models.Pricing, error)
	Save(ctx context.Context, pricing *models.Pricing) error
}

// PricingService serves the price list through the read cache and computes quotes.
type PricingService struct {
	repo      pricingRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewPricingService constructs a PricingService. cache may be nil.
func NewPricingService(repo pricingRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *PricingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PricingService{repo: repo, cache: cache, validator: validate, logger: logger, cacheTTL: cacheTTL}
}

// Get returns the current pricing, preferring the cached copy.
func (s *PricingService) Get(ctx context.Context) (*models.Pricing, error) {
	pricing, _, err := s.Current(ctx)
	return pricing, err
}

// Current is Get that also reports whether the cache served the result.
func (s *PricingService) Current(ctx context.Context) (*models.Pricing, bool, error) {
	return Remember(ctx, s.cache, pricingCacheKey, s.cacheTTL, s.load)
}

func (s *PricingService) load(ctx context.Context) (*models.Pricing, error) {
	pricing, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pricing has not been configured")
		}
		return nil, appErrors.Internal(err, "failed to load pricing")
	}
	return pricing, nil
}

// Quote prices a package for a class level.
func (s *PricingService) Quote(ctx context.Context, classLevel int, pkg models.PackageType) (*models.Quote, error) {
	pricing, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return BuildQuote(pricing, classLevel, pkg)
}

// BuildQuote computes the amount for a package. A single session costs the band's
// session price; the starter pack costs its fixed price.
func BuildQuote(pricing *models.Pricing, classLevel int, pkg models.PackageType) (*models.Quote, error) {
	band, rng, err := pricing.ClassRanges.Band(classLevel)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	quote := &models.Quote{
		ClassLevel:      classLevel,
		Band:            band,
		PackageType:     pkg,
		PricePerSession: rng.PricePerSession,
		Currency:        pricing.Currency,
	}
	switch pkg {
	case models.PackageSingle:
		quote.Sessions = 1
		quote.Amount = rng.PricePerSession
	case models.PackageStarterPack:
		quote.Sessions = pricing.StarterPack.Sessions
		quote.Amount = pricing.StarterPack.Price
		quote.PricePerSession = roundMoney(pricing.StarterPack.Price / float64(pricing.StarterPack.Sessions))
		quote.ValidityDays = pricing.StarterPack.ValidityDays
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "package must be single or starter_pack")
	}
	return quote, nil
}

// Update replaces the pricing document and drops the cached copy.
func (s *PricingService) Update(ctx context.Context, pricing models.Pricing, adminID string) (*models.Pricing, error) {
	pricing.Currency = strings.ToUpper(strings.TrimSpace(pricing.Currency))
	if err := s.validator.Struct(pricing); err != nil {
		return nil, appErrors.Validation(err, "invalid pricing payload")
	}
	if adminID != "" {
		pricing.UpdatedBy = &adminID
	}
	if err := s.repo.Save(ctx, &pricing); err != nil {
		return nil, appErrors.Internal(err, "failed to save pricing")
	}
	if err := s.cache.Invalidate(ctx, pricingCacheKey); err != nil {
		s.logger.Warn("pricing cache not invalidated", zap.Error(err))
	}
	s.logger.Info("pricing updated", zap.String("admin_id", adminID), zap.String("currency", pricing.Currency))
	return &pricing, nil
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
