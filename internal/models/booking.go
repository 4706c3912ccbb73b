package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// WIZARD STEPS
// ============================================================================

// WizardStep is one step of the booking wizard. Success is a terminal
// pseudo-step reached only through a verified payment.
type WizardStep int

const (
	StepReview WizardStep = iota
	StepAmenities
	StepPayment
	StepSuccess
)

// String returns the wire name of the step
func (s WizardStep) String() string {
	switch s {
	case StepReview:
		return "review"
	case StepAmenities:
		return "amenities"
	case StepPayment:
		return "payment"
	case StepSuccess:
		return "success"
	}
	return "unknown"
}

// MarshalJSON serializes steps by name
func (s WizardStep) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON maps a step name back to its constant, rejecting
// unknown names.
func (s *WizardStep) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "review":
		*s = StepReview
	case "amenities":
		*s = StepAmenities
	case "payment":
		*s = StepPayment
	case "success":
		*s = StepSuccess
	default:
		return fmt.Errorf("unknown wizard step %q", name)
	}
	return nil
}

// ============================================================================
// BOOKING DRAFT
// ============================================================================

// BookingDraft accumulates the state of one booking in progress. It is
// owned exclusively by one session: created when the wizard initializes,
// destroyed on completion or explicit reset.
type BookingDraft struct {
	ID                string             `json:"id"`
	ExhibitionID      string             `json:"exhibition_id"`
	Stalls            []StallSelection   `json:"stalls"`
	Customer          CustomerInfo       `json:"customer"`
	SelectedAmenities []AmenitySelection `json:"selected_amenities"`
	TermsAccepted     bool               `json:"terms_accepted"`
	MarketingConsent  bool               `json:"marketing_consent"`
	CurrentStep       WizardStep         `json:"current_step"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// TotalArea is the summed footprint of all selected stalls
func (d *BookingDraft) TotalArea() float64 {
	var total float64
	for _, s := range d.Stalls {
		total += s.Area()
	}
	return total
}

// HasStall reports whether the draft still holds the given stall
func (d *BookingDraft) HasStall(stallID string) bool {
	for _, s := range d.Stalls {
		if s.ID == stallID {
			return true
		}
	}
	return false
}

// StallIDs lists the ids of the selected stalls in selection order
func (d *BookingDraft) StallIDs() []string {
	ids := make([]string, len(d.Stalls))
	for i, s := range d.Stalls {
		ids[i] = s.ID
	}
	return ids
}

// DraftPatch is a partial update applied through the wizard. Nil fields are
// left untouched.
type DraftPatch struct {
	Customer         *CustomerInfo `json:"customer,omitempty"`
	TermsAccepted    *bool         `json:"terms_accepted,omitempty"`
	MarketingConsent *bool         `json:"marketing_consent,omitempty"`
}

// ============================================================================
// REQUEST / RESPONSE STRUCTS
// ============================================================================

// StartWizardRequest begins a wizard from a stall selection
type StartWizardRequest struct {
	ExhibitionID string   `json:"exhibition_id" binding:"required"`
	StallIDs     []string `json:"stall_ids" binding:"required,min=1"`
}

// SelectAmenityRequest opts into an extra amenity
type SelectAmenityRequest struct {
	AmenityID string `json:"amenity_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// WizardStateResponse is the full wizard view returned after every mutation
type WizardStateResponse struct {
	WizardID string              `json:"wizard_id"`
	Step     WizardStep          `json:"step"`
	Draft    *BookingDraft       `json:"draft"`
	Summary  *BookingSummary     `json:"summary"`
	Payment  *PaymentSessionView `json:"payment,omitempty"`
}

// InitiatePaymentResponse is returned when an order is created
type InitiatePaymentResponse struct {
	RedirectURL           string  `json:"redirect_url"`
	SessionID             string  `json:"session_id"`
	MerchantTransactionID string  `json:"merchant_transaction_id"`
	Amount                float64 `json:"amount"`
	Currency              string  `json:"currency"`
	RetriesRemaining      int     `json:"retries_remaining"`
}

// VerifyPaymentResponse reports the gateway-verified payment status
type VerifyPaymentResponse struct {
	SessionID     string     `json:"session_id"`
	Status        string     `json:"status"` // pending, paid, failed
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	Step          WizardStep `json:"step"`
}
