package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type pricingService interface {
	Current(ctx context.Context) (*models.Pricing, bool, error)
	Quote(ctx context.Context, classLevel int, pkg models.PackageType) (*models.Quote, error)
	Update(ctx context.Context, pricing models.Pricing, adminID string) (*models.Pricing, error)
}

// PricingHandler exposes the price list and quotes.
type PricingHandler struct {
	service pricingService
}

// NewPricingHandler constructs a PricingHandler.
func NewPricingHandler(svc pricingService) *PricingHandler {
	return &PricingHandler{service: svc}
}

// Get godoc
// @Summary Current price list
// @Tags Pricing
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pricing [get]
func (h *PricingHandler) Get(c *gin.Context) {
	pricing, cacheHit, err := h.service.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, pricing, nil, middleware.ExtractMeta(c))
}

// Quote godoc
// @Summary Price a package for a class level
// @Tags Pricing
// @Produce json
// @Param class query int true "Class level (2-12)"
// @Param package query string false "single (default) or starter_pack"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /pricing/quote [get]
func (h *PricingHandler) Quote(c *gin.Context) {
	level, err := strconv.Atoi(strings.TrimSpace(c.Query("class")))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class must be a number between 2 and 12"))
		return
	}
	pkg := models.PackageType(strings.TrimSpace(c.DefaultQuery("package", string(models.PackageSingle))))
	quote, err := h.service.Quote(c.Request.Context(), level, pkg)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// Update godoc
// @Summary Replace the price list
// @Tags Admin Pricing
// @Accept json
// @Produce json
// @Param payload body models.Pricing true "Price list"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/pricing [put]
func (h *PricingHandler) Update(c *gin.Context) {
	adminID, ok := principalID(c)
	if !ok {
		return
	}
	var req models.Pricing
	if !bindJSON(c, &req, "invalid pricing payload") {
		return
	}
	pricing, err := h.service.Update(c.Request.Context(), req, adminID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pricing, nil)
}
