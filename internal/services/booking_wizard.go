package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// BookingWizard sequences the booking steps Review -> Amenities -> Payment
// and owns the draft exclusively. Every mutation goes through a named
// transition method, recomputes the summary synchronously before
// returning, and is serialized by the wizard's mutex so timer callbacks
// and handler calls never interleave mid-mutation.
type BookingWizard struct {
	mu sync.Mutex

	id            string
	draft         *models.BookingDraft
	pricing       *PricingContext
	engine        *PricingEngine
	summary       *models.BookingSummary
	session       *models.PaymentSession
	authenticated bool
	discarded     bool
	lastActivity  time.Time
	logger        *logrus.Logger
}

// NewBookingWizard initializes a wizard at the Review step from an
// externally supplied stall snapshot
func NewBookingWizard(
	exhibitionID string,
	stalls []models.StallSelection,
	pricing *PricingContext,
	engine *PricingEngine,
	authenticated bool,
	logger *logrus.Logger,
) (*BookingWizard, error) {
	now := time.Now()
	w := &BookingWizard{
		id: uuid.New().String(),
		draft: &models.BookingDraft{
			ID:                uuid.New().String(),
			ExhibitionID:      exhibitionID,
			Stalls:            stalls,
			SelectedAmenities: []models.AmenitySelection{},
			CurrentStep:       models.StepReview,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		pricing:       pricing,
		engine:        engine,
		authenticated: authenticated,
		lastActivity:  now,
		logger:        logger,
	}

	if err := w.recompute(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"wizard_id":    w.id,
		"exhibition":   exhibitionID,
		"stall_count":  len(stalls),
		"base_amount":  w.summary.BaseAmount,
		"grand_total":  w.summary.GrandTotal,
		"authed":       authenticated,
	}).Info("Booking wizard initialized")

	return w, nil
}

// ID returns the wizard identifier
func (w *BookingWizard) ID() string {
	return w.id
}

// recompute runs the pricing engine against the current draft. Caller must
// hold the mutex (or be the constructor). The summary is fully replaced:
// no cached partials survive a mutation.
func (w *BookingWizard) recompute() error {
	summary, err := w.engine.Compute(
		w.draft.Stalls,
		w.pricing.Discounts,
		w.pricing.Taxes,
		w.pricing.BasicAmenities,
		w.draft.SelectedAmenities,
	)
	if err != nil {
		return err
	}
	summary.Currency = w.pricing.Currency
	w.summary = summary
	w.draft.UpdatedAt = time.Now()
	w.lastActivity = w.draft.UpdatedAt
	return nil
}

// CurrentStep returns the wizard's current step
func (w *BookingWizard) CurrentStep() models.WizardStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.CurrentStep
}

// Draft returns a copy of the current draft
func (w *BookingWizard) Draft() models.BookingDraft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.draft
}

// Summary returns the current summary. Always consistent with the latest
// mutation: recomputation happens under the lock before the mutating call
// returns.
func (w *BookingWizard) Summary() models.BookingSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.summary
}

// Session returns the current payment session, if any
func (w *BookingWizard) Session() *models.PaymentSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// LastActivity reports the most recent mutation time (for the idle sweep)
func (w *BookingWizard) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActivity
}

// Discarded reports whether the wizard was reset
func (w *BookingWizard) Discarded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.discarded
}

// validateStep gates forward navigation out of the given step
func (w *BookingWizard) validateStep(step models.WizardStep) error {
	switch step {
	case models.StepReview:
		if len(w.draft.Stalls) == 0 {
			return &models.ValidationError{Field: "stalls", Message: "at least one stall must be selected"}
		}
		if !w.authenticated {
			return models.ErrAuthRequired
		}
	case models.StepAmenities:
		for _, a := range w.draft.SelectedAmenities {
			if a.Quantity < 1 {
				return &models.ValidationError{Field: "amenities", Message: "amenity quantity must be at least 1"}
			}
		}
	case models.StepPayment:
		if !w.draft.TermsAccepted {
			return &models.ValidationError{Field: "terms_accepted", Message: "terms must be accepted before payment"}
		}
		if w.session == nil || w.session.CurrentState() != models.PaymentStateSucceeded {
			return &models.ValidationError{Field: "payment", Message: "payment has not completed"}
		}
	}
	return nil
}

// GoToNextStep advances the wizard if the current step's validator passes
func (w *BookingWizard) GoToNextStep() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}
	if w.draft.CurrentStep == models.StepSuccess {
		return &models.ValidationError{Field: "step", Message: "booking is already complete"}
	}
	if err := w.validateStep(w.draft.CurrentStep); err != nil {
		return err
	}

	w.draft.CurrentStep++
	w.lastActivity = time.Now()
	if w.draft.CurrentStep == models.StepSuccess && w.session != nil {
		w.session.CancelTimer()
	}
	return nil
}

// GoToPreviousStep moves back one step. Always allowed except from the
// terminal success state; from Review it is a no-op.
func (w *BookingWizard) GoToPreviousStep() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}
	if w.draft.CurrentStep == models.StepSuccess {
		return &models.ValidationError{Field: "step", Message: "cannot navigate back from a completed booking"}
	}
	if w.draft.CurrentStep > models.StepReview {
		w.draft.CurrentStep--
	}
	w.lastActivity = time.Now()
	return nil
}

// UpdateFormData applies a partial draft update and recomputes the summary
func (w *BookingWizard) UpdateFormData(patch models.DraftPatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}

	if patch.Customer != nil {
		w.draft.Customer = *patch.Customer
	}
	if patch.TermsAccepted != nil {
		w.draft.TermsAccepted = *patch.TermsAccepted
	}
	if patch.MarketingConsent != nil {
		w.draft.MarketingConsent = *patch.MarketingConsent
	}

	return w.recompute()
}

// RemoveStall drops a stall from the draft. Removing the last stall
// invalidates the selection and forces the wizard back to Review.
func (w *BookingWizard) RemoveStall(stallID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}
	if !w.draft.HasStall(stallID) {
		return &models.ValidationError{Field: "stall_id", Message: "stall is not part of this draft"}
	}

	remaining := make([]models.StallSelection, 0, len(w.draft.Stalls)-1)
	for _, s := range w.draft.Stalls {
		if s.ID != stallID {
			remaining = append(remaining, s)
		}
	}
	w.draft.Stalls = remaining

	if len(w.draft.Stalls) == 0 {
		w.draft.CurrentStep = models.StepReview
		w.logger.WithField("wizard_id", w.id).Info("Last stall removed, draft returned to review")
	}

	return w.recompute()
}

// SelectAmenity opts into an extra amenity from the catalog. A quantity
// below 1 is clamped to the minimum of 1.
func (w *BookingWizard) SelectAmenity(amenityID string, quantity int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}

	amenity, ok := w.pricing.FindExtraAmenity(amenityID)
	if !ok {
		return &models.ValidationError{Field: "amenity_id", Message: "amenity is not offered for this exhibition"}
	}
	if quantity < 1 {
		quantity = 1
	}

	updated := false
	for i, sel := range w.draft.SelectedAmenities {
		if sel.AmenityID == amenityID {
			w.draft.SelectedAmenities[i].Quantity = quantity
			updated = true
			break
		}
	}
	if !updated {
		w.draft.SelectedAmenities = append(w.draft.SelectedAmenities, models.AmenitySelection{
			AmenityID: amenity.ID,
			Name:      amenity.Name,
			Rate:      amenity.Rate,
			Quantity:  quantity,
		})
	}

	return w.recompute()
}

// RemoveAmenity drops an extra amenity selection
func (w *BookingWizard) RemoveAmenity(amenityID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}

	remaining := make([]models.AmenitySelection, 0, len(w.draft.SelectedAmenities))
	for _, sel := range w.draft.SelectedAmenities {
		if sel.AmenityID != amenityID {
			remaining = append(remaining, sel)
		}
	}
	w.draft.SelectedAmenities = remaining

	return w.recompute()
}

// EnsureSession returns the live payment session, creating one when none
// exists or the previous one is terminal. The retry budget is carried on
// the session and decremented by the payment guard.
func (w *BookingWizard) EnsureSession(retryBudget int) *models.PaymentSession {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session == nil || w.session.CurrentState().IsTerminal() {
		w.session = models.NewPaymentSession(w.draft.ID, w.summary.GrandTotal, retryBudget)
	}
	w.lastActivity = time.Now()
	return w.session
}

// MarkPaymentResult applies a verified gateway status to the session and,
// on success, advances the wizard to its terminal step
func (w *BookingWizard) MarkPaymentResult(status GatewayPaymentStatus, transactionID string, paidAt time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return models.ErrWizardDiscarded
	}
	if w.session == nil {
		return &models.ValidationError{Field: "payment", Message: "no payment session to update"}
	}

	switch status {
	case GatewayPaymentPaid:
		// MarkSucceeded discards any armed abandonment timer itself
		w.session.MarkSucceeded(transactionID, paidAt)
		w.draft.CurrentStep = models.StepSuccess
	case GatewayPaymentFailed:
		w.session.MarkFailed("payment failed at gateway")
	case GatewayPaymentPending:
		// no state change; verification may be retried
	}
	w.lastActivity = time.Now()
	return nil
}

// ResetToReview keeps the draft but returns to the Review step and drops
// the payment session. Used when a stall turned out to be unavailable
// during checkout.
func (w *BookingWizard) ResetToReview() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return
	}
	if w.session != nil {
		w.session.CancelTimer()
		w.session = nil
	}
	w.draft.CurrentStep = models.StepReview
	w.lastActivity = time.Now()
	w.logger.WithField("wizard_id", w.id).Warn("Wizard reset to review after inventory conflict")
}

// Reset discards the draft entirely: the selection, the consents, and any
// live payment session including its abandonment timer. Used on cancel and
// when the abandonment timer fires.
func (w *BookingWizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.discarded {
		return
	}
	if w.session != nil {
		w.session.CancelTimer()
		w.session = nil
	}
	w.draft = &models.BookingDraft{
		ID:                w.draft.ID,
		ExhibitionID:      w.draft.ExhibitionID,
		Stalls:            []models.StallSelection{},
		SelectedAmenities: []models.AmenitySelection{},
		CurrentStep:       models.StepReview,
		CreatedAt:         w.draft.CreatedAt,
		UpdatedAt:         time.Now(),
	}
	w.summary = &models.BookingSummary{
		Discounts:         []models.DiscountLine{},
		Taxes:             []models.TaxLine{},
		BasicAmenities:    []models.BasicAmenityLine{},
		ItemizedAmenities: []models.AmenityLine{},
		Currency:          w.pricing.Currency,
	}
	w.discarded = true
	w.lastActivity = time.Now()
	w.logger.WithField("wizard_id", w.id).Info("Booking wizard reset")
}

// State builds the full wizard view for the API layer
func (w *BookingWizard) State() models.WizardStateResponse {
	w.mu.Lock()
	defer w.mu.Unlock()

	draft := *w.draft
	summary := *w.summary
	resp := models.WizardStateResponse{
		WizardID: w.id,
		Step:     w.draft.CurrentStep,
		Draft:    &draft,
		Summary:  &summary,
	}
	if w.session != nil {
		resp.Payment = w.session.Snapshot()
	}
	return resp
}
