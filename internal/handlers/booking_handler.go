package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/config"
	"github.com/aakar745/expo-booking-backend/internal/middleware"
	"github.com/aakar745/expo-booking-backend/internal/models"
	"github.com/aakar745/expo-booking-backend/internal/services"
	"github.com/aakar745/expo-booking-backend/internal/utils"
)

// BookingHandler exposes the stall booking wizard over HTTP
type BookingHandler struct {
	registry  *services.WizardRegistry
	inventory services.StallInventoryService
	gateway   services.PaymentGatewayService
	guard     *services.PaymentGuard
	audit     *services.AuditService
	engine    *services.PricingEngine
	booking   config.BookingConfig
	logger    *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	registry *services.WizardRegistry,
	inventory services.StallInventoryService,
	gateway services.PaymentGatewayService,
	guard *services.PaymentGuard,
	audit *services.AuditService,
	engine *services.PricingEngine,
	booking config.BookingConfig,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		registry:  registry,
		inventory: inventory,
		gateway:   gateway,
		guard:     guard,
		audit:     audit,
		engine:    engine,
		booking:   booking,
		logger:    logger,
	}
}

// StartWizard begins a booking wizard from a stall selection
// @Summary Start a booking wizard
// @Description Snapshot the selected stalls and open a checkout wizard at the review step
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body models.StartWizardRequest true "Stall selection"
// @Success 201 {object} models.WizardStateResponse
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 409 {object} map[string]interface{} "Stalls no longer available"
// @Router /api/v1/booking/wizard [post]
func (h *BookingHandler) StartWizard(c *gin.Context) {
	var req models.StartWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	stalls, err := h.inventory.GetStallSnapshot(c.Request.Context(), req.ExhibitionID, req.StallIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	pricing, err := h.inventory.GetPricingContext(c.Request.Context(), req.ExhibitionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	wizard, err := services.NewBookingWizard(
		req.ExhibitionID, stalls, pricing, h.engine,
		middleware.IsAuthenticated(c), h.logger,
	)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.registry.Add(wizard)

	h.logger.WithFields(logrus.Fields{
		"wizard_id":     wizard.ID(),
		"exhibition_id": req.ExhibitionID,
		"stall_count":   len(stalls),
	}).Info("Booking wizard started")

	c.JSON(http.StatusCreated, wizard.State())
}

// GetWizard returns the current wizard state
// @Summary Get wizard state
// @Tags Booking
// @Produce json
// @Success 200 {object} models.WizardStateResponse
// @Failure 404 {object} map[string]interface{} "Wizard not found"
// @Router /api/v1/booking/wizard/{id} [get]
func (h *BookingHandler) GetWizard(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// NextStep advances the wizard after validating the current step
// @Summary Advance the wizard
// @Tags Booking
// @Produce json
// @Success 200 {object} models.WizardStateResponse
// @Failure 400 {object} map[string]interface{} "Step validation failed"
// @Failure 401 {object} map[string]interface{} "Sign-in required"
// @Router /api/v1/booking/wizard/{id}/next [post]
func (h *BookingHandler) NextStep(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := wizard.GoToNextStep(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// PreviousStep steps the wizard back without validation
// @Summary Step the wizard back
// @Tags Booking
// @Produce json
// @Success 200 {object} models.WizardStateResponse
// @Router /api/v1/booking/wizard/{id}/previous [post]
func (h *BookingHandler) PreviousStep(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := wizard.GoToPreviousStep(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// UpdateWizard patches customer details and consents on the draft
// @Summary Update draft details
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body models.DraftPatch true "Fields to update"
// @Success 200 {object} models.WizardStateResponse
// @Router /api/v1/booking/wizard/{id} [patch]
func (h *BookingHandler) UpdateWizard(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}

	var patch models.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := wizard.UpdateFormData(patch); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// RemoveStall drops a stall from the draft and reprices
// @Summary Remove a stall from the draft
// @Tags Booking
// @Produce json
// @Success 200 {object} models.WizardStateResponse
// @Router /api/v1/booking/wizard/{id}/stalls/{stallId} [delete]
func (h *BookingHandler) RemoveStall(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := wizard.RemoveStall(c.Param("stallId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// SelectAmenity opts the draft into an extra amenity
// @Summary Select an extra amenity
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body models.SelectAmenityRequest true "Amenity selection"
// @Success 200 {object} models.WizardStateResponse
// @Router /api/v1/booking/wizard/{id}/amenities [post]
func (h *BookingHandler) SelectAmenity(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}

	var req models.SelectAmenityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := wizard.SelectAmenity(req.AmenityID, req.Quantity); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// RemoveAmenity removes an extra amenity from the draft
// @Summary Remove an extra amenity
// @Tags Booking
// @Produce json
// @Success 200 {object} models.WizardStateResponse
// @Router /api/v1/booking/wizard/{id}/amenities/{amenityId} [delete]
func (h *BookingHandler) RemoveAmenity(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	if err := wizard.RemoveAmenity(c.Param("amenityId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, wizard.State())
}

// InitiatePayment creates a gateway order for the draft
// @Summary Initiate payment
// @Description Create a payment order through the duplicate-submission guard and start the abandonment timer
// @Tags Booking
// @Produce json
// @Success 200 {object} models.InitiatePaymentResponse
// @Failure 400 {object} map[string]interface{} "Wizard not at the payment step"
// @Failure 429 {object} map[string]interface{} "Duplicate attempt during cooldown"
// @Failure 409 {object} map[string]interface{} "Stalls no longer available"
// @Failure 502 {object} map[string]interface{} "Gateway error"
// @Security BearerAuth
// @Router /api/v1/booking/wizard/{id}/pay [post]
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}

	if wizard.CurrentStep() != models.StepPayment {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_step",
			"message": "Complete the earlier steps before paying",
		})
		return
	}

	draft := wizard.Draft()
	summary := wizard.Summary()
	session := wizard.EnsureSession(h.booking.RetryBudget)
	meta := services.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}

	orderReq := &services.CreateOrderRequest{
		MerchantTransactionID: session.MerchantTransactionID,
		Amount:                summary.GrandTotal,
		Currency:              summary.Currency,
		Customer:              draft.Customer,
		StallIDs:              draft.StallIDs(),
		Amenities:             draft.SelectedAmenities,
	}

	resp, err := h.guard.Submit(c.Request.Context(), session, func(ctx context.Context) (*services.OrderResponse, error) {
		// Re-check availability right before charging
		if _, snapErr := h.inventory.GetStallSnapshot(ctx, draft.ExhibitionID, draft.StallIDs()); snapErr != nil {
			return nil, snapErr
		}
		return h.gateway.CreateOrder(ctx, orderReq)
	})
	if err != nil {
		h.recordInitiateFailure(c, session, err, meta)
		respondError(c, h.logger, err)
		return
	}

	h.audit.RecordOrderCreated(c.Request.Context(), session, summary.GrandTotal, summary.Currency, meta)

	timerCfg := services.AbandonmentTimerConfig{
		WarnAfter:   h.booking.AbandonWarnAfter,
		CancelAfter: h.booking.AbandonResetAfter,
	}
	wizardID := wizard.ID()
	services.StartAbandonmentTimer(timerCfg, session, h.gateway,
		func() {
			h.logger.WithField("wizard_id", wizardID).Info("Payment session inactive, abandonment warning raised")
		},
		func() {
			h.audit.RecordAbandoned(context.Background(), session)
			h.guard.Release(session.ID)
			h.registry.Discard(wizardID)
		},
		h.logger,
	)

	c.JSON(http.StatusOK, models.InitiatePaymentResponse{
		RedirectURL:           resp.RedirectURL,
		SessionID:             resp.SessionID,
		MerchantTransactionID: session.MerchantTransactionID,
		Amount:                session.Amount,
		Currency:              summary.Currency,
		RetriesRemaining:      session.Budget(),
	})
}

// VerifyPayment checks the gateway-reported status and settles the wizard
// @Summary Verify payment status
// @Tags Booking
// @Produce json
// @Success 200 {object} models.VerifyPaymentResponse
// @Failure 504 {object} map[string]interface{} "Gateway did not answer in time"
// @Security BearerAuth
// @Router /api/v1/booking/wizard/{id}/verify [post]
func (h *BookingHandler) VerifyPayment(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}

	session := wizard.Session()
	if session == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "no_payment_session",
			"message": "No payment has been initiated for this booking",
		})
		return
	}

	meta := services.RequestMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}

	start := time.Now()
	result, err := h.gateway.VerifyPayment(c.Request.Context(), session.MerchantTransactionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.audit.RecordVerification(c.Request.Context(), session, string(result.Status), time.Since(start).Milliseconds(), meta)

	paidAt := time.Now()
	if result.PaidAt != nil {
		paidAt = *result.PaidAt
	}
	if err := wizard.MarkPaymentResult(result.Status, result.TransactionID, paidAt); err != nil {
		respondError(c, h.logger, err)
		return
	}

	switch result.Status {
	case services.GatewayPaymentPaid:
		h.audit.RecordPaymentResult(c.Request.Context(), session, true, result.TransactionID, meta)
		h.guard.Release(session.ID)
	case services.GatewayPaymentFailed:
		h.audit.RecordPaymentResult(c.Request.Context(), session, false, result.TransactionID, meta)
	}

	c.JSON(http.StatusOK, models.VerifyPaymentResponse{
		SessionID:     session.ID,
		Status:        string(result.Status),
		TransactionID: result.TransactionID,
		PaidAt:        result.PaidAt,
		Step:          wizard.CurrentStep(),
	})
}

// DiscardWizard abandons the wizard and clears its bookkeeping
// @Summary Discard the wizard
// @Tags Booking
// @Success 204 "Wizard discarded"
// @Router /api/v1/booking/wizard/{id} [delete]
func (h *BookingHandler) DiscardWizard(c *gin.Context) {
	wizard, ok := h.wizard(c)
	if !ok {
		return
	}
	if session := wizard.Session(); session != nil {
		h.guard.Release(session.ID)
	}
	h.registry.Discard(wizard.ID())
	c.Status(http.StatusNoContent)
}

// wizard resolves the path parameter into a live wizard or writes a 404
func (h *BookingHandler) wizard(c *gin.Context) (*services.BookingWizard, bool) {
	id := c.Param("id")
	wizard, ok := h.registry.Get(id)
	if !ok || wizard.Discarded() {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "wizard_not_found",
			"message": "No active booking wizard with that id",
		})
		return nil, false
	}
	return wizard, true
}

func (h *BookingHandler) recordInitiateFailure(c *gin.Context, session *models.PaymentSession, err error, meta services.RequestMeta) {
	var dupErr *models.DuplicatePaymentAttempt
	if errors.As(err, &dupErr) {
		h.audit.RecordGuardRejected(c.Request.Context(), session, "cooldown window active", meta)
		return
	}
	h.audit.RecordOrderCreateFailed(c.Request.Context(), session, err.Error(), meta)
}
