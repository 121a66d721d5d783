package handlers

import (
	"io"
	"net/http"

	apierrors "github.com/mediastudio/studio-billing/pkg/api/errors"
	custommw "github.com/mediastudio/studio-billing/pkg/api/middleware"
	"github.com/mediastudio/studio-billing/pkg/billing"
	"github.com/mediastudio/studio-billing/pkg/domain"
	"github.com/mediastudio/studio-billing/pkg/logger"
	"github.com/mediastudio/studio-billing/pkg/models"
	"github.com/labstack/echo/v4"
)

// BillingHandler handles billing endpoints
type BillingHandler struct {
	billingService *billing.Service
	log            logger.Logger
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingService *billing.Service, log logger.Logger) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		log:            log.With("component", "billing_handler"),
	}
}

// HandleWebhook handles Stripe webhook events
// @Summary Handle Stripe webhook
// @Description Verify a Stripe delivery and reconcile subscription and credits records
// @Tags Billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature for verification"
// @Param payload body object true "Stripe webhook event payload"
// @Success 200 {object} models.AckResponse "Delivery acknowledged"
// @Failure 400 {object} models.ErrorResponse "Invalid signature or malformed event"
// @Failure 500 {object} models.ErrorResponse "Configuration or database error, Stripe will retry"
// @Router /functions/v1/stripe-webhook [post]
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	// The signature covers the exact bytes, so read them untouched.
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	if err := h.billingService.HandleWebhook(c.Request().Context(), body, signature); err != nil {
		return apierrors.FromDomain(c, h.log, err)
	}

	return c.JSON(http.StatusOK, models.AckResponse{Received: true})
}

// Preflight answers CORS preflight requests for the webhook routes.
// The CORS middleware writes the headers.
func (h *BillingHandler) Preflight(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// GetStatus returns the signed-in user's subscription and credits
// @Summary Get billing status
// @Description Current plan, status and credit balance of the authenticated user
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.BillingStatusResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/billing/status [get]
func (h *BillingHandler) GetStatus(c echo.Context) error {
	userID := custommw.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "no user in context")
	}

	ctx := c.Request().Context()
	store := h.billingService.Store()
	resp := models.BillingStatusResponse{UserID: userID}

	sub, err := store.GetSubscription(ctx, userID)
	if err != nil && !domain.IsNotFound(err) {
		return apierrors.FromDomain(c, h.log, err)
	}
	resp.Subscription = sub

	credits, err := store.GetCredits(ctx, userID)
	if err != nil && !domain.IsNotFound(err) {
		return apierrors.FromDomain(c, h.log, err)
	}
	resp.Credits = credits

	return c.JSON(http.StatusOK, resp)
}

// GetPricing handles returning pricing information
// @Summary Get pricing tiers
// @Description All subscription tiers with their monthly credit allowance
// @Tags Billing
// @Produce json
// @Success 200 {object} models.PricingResponse
// @Router /api/v1/billing/pricing [get]
func (h *BillingHandler) GetPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, billing.GetPricing())
}
