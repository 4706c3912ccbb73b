package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAuthRequired is returned when forward navigation from the Review step
// is attempted by an unauthenticated session.
var ErrAuthRequired = errors.New("authentication required to continue booking")

// ErrWizardDiscarded is returned for operations on a reset/completed wizard.
var ErrWizardDiscarded = errors.New("booking draft has been discarded")

// ValidationError is a local, per-field input failure. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InventoryConflict indicates one or more selected stalls are no longer
// available. The wizard resets to Review so the selection can be fixed.
type InventoryConflict struct {
	UnavailableStalls []string
	Message           string
}

func (e *InventoryConflict) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("stalls no longer available: %s", strings.Join(e.UnavailableStalls, ", "))
}

// DuplicatePaymentAttempt is the guard's cooldown rejection. The attempt is
// a silent no-op beyond user feedback; nothing reached the gateway.
type DuplicatePaymentAttempt struct {
	RetryAfter time.Time
}

func (e *DuplicatePaymentAttempt) Error() string {
	return fmt.Sprintf("a payment attempt was just made, retry after %s", e.RetryAfter.Format("15:04:05"))
}

// GatewayError wraps a payment-gateway failure. Retryable errors may be
// re-attempted while the session's retry budget lasts; once the budget is
// exhausted the guard returns a terminal (non-retryable) GatewayError.
type GatewayError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("payment gateway error during %s", e.Op)
	}
	return fmt.Sprintf("payment gateway error during %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// VerificationTimeout indicates a payment-status check did not complete in
// time. Surfaced to the caller with a manual retry action.
type VerificationTimeout struct {
	SessionID string
}

func (e *VerificationTimeout) Error() string {
	return fmt.Sprintf("payment verification timed out for session %s", e.SessionID)
}

// AbandonedSession is generated internally when the abandonment timer fires.
// It triggers a reset plus a best-effort order cancellation and is never
// surfaced as a failure beyond an informational notice.
type AbandonedSession struct {
	SessionID string
}

func (e *AbandonedSession) Error() string {
	return fmt.Sprintf("payment session %s abandoned after inactivity", e.SessionID)
}
