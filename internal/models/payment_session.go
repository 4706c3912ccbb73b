package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// PAYMENT SESSION (one submission attempt <-> one gateway charge)
// ============================================================================

// PaymentState is the lifecycle of a payment session
type PaymentState string

const (
	PaymentStateNone       PaymentState = "none"
	PaymentStatePending    PaymentState = "pending"    // order created, awaiting payment
	PaymentStateProcessing PaymentState = "processing" // order creation in flight
	PaymentStateSucceeded  PaymentState = "succeeded"
	PaymentStateFailed     PaymentState = "failed"
)

// IsTerminal reports whether the state admits no further attempts on the
// same gateway order
func (s PaymentState) IsTerminal() bool {
	return s == PaymentStateSucceeded
}

// TimerHandle is a cancellable abandonment-timer handle attached to a
// session. Cancellation is explicit and idempotent.
type TimerHandle interface {
	Cancel()
	Active() bool
}

// PaymentSession correlates one booking submission with a gateway charge.
// The merchant transaction token is the caller-supplied idempotency key the
// gateway contract expects for exactly-once semantics; locally the guard
// additionally enforces at most one in-flight order creation.
//
// The identity fields are written once at construction and safe to read
// from any goroutine. Everything else is mutated concurrently by the
// payment guard, the wizard, webhook delivery, and timer callbacks, so it
// lives behind the session's own mutex and is reached only through methods.
type PaymentSession struct {
	ID                    string
	DraftID               string
	MerchantTransactionID string
	Amount                float64
	CreatedAt             time.Time

	mu                   sync.Mutex
	state                PaymentState
	gatewaySessionID     string
	gatewayTransactionID string
	retriesRemaining     int
	failureReason        string
	lastAttemptAt        time.Time
	paidAt               *time.Time
	timer                TimerHandle
}

// PaymentSessionView is a point-in-time copy of a session for API
// responses and audit rows
type PaymentSessionView struct {
	ID                    string       `json:"id"`
	DraftID               string       `json:"draft_id"`
	State                 PaymentState `json:"state"`
	MerchantTransactionID string       `json:"merchant_transaction_id"`
	GatewaySessionID      string       `json:"gateway_session_id,omitempty"`
	GatewayTransactionID  string       `json:"gateway_transaction_id,omitempty"`
	Amount                float64      `json:"amount"`
	RetriesRemaining      int          `json:"retries_remaining"`
	FailureReason         string       `json:"failure_reason,omitempty"`
	CreatedAt             time.Time    `json:"created_at"`
	LastAttemptAt         time.Time    `json:"last_attempt_at,omitempty"`
	PaidAt                *time.Time   `json:"paid_at,omitempty"`
}

// NewPaymentSession creates a session with a fresh merchant transaction
// token and a full retry budget
func NewPaymentSession(draftID string, amount float64, retryBudget int) *PaymentSession {
	return &PaymentSession{
		ID:                    uuid.New().String(),
		DraftID:               draftID,
		MerchantTransactionID: "EXPO-" + uuid.New().String()[:18],
		Amount:                amount,
		CreatedAt:             time.Now(),
		state:                 PaymentStateNone,
		retriesRemaining:      retryBudget,
	}
}

// Snapshot copies the session's current state
func (p *PaymentSession) Snapshot() *PaymentSessionView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &PaymentSessionView{
		ID:                    p.ID,
		DraftID:               p.DraftID,
		State:                 p.state,
		MerchantTransactionID: p.MerchantTransactionID,
		GatewaySessionID:      p.gatewaySessionID,
		GatewayTransactionID:  p.gatewayTransactionID,
		Amount:                p.Amount,
		RetriesRemaining:      p.retriesRemaining,
		FailureReason:         p.failureReason,
		CreatedAt:             p.CreatedAt,
		LastAttemptAt:         p.lastAttemptAt,
		PaidAt:                p.paidAt,
	}
}

// CurrentState returns the lifecycle state
func (p *PaymentSession) CurrentState() PaymentState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Budget returns the remaining gateway attempts
func (p *PaymentSession) Budget() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retriesRemaining
}

// HasBudget reports whether another gateway attempt is allowed
func (p *PaymentSession) HasBudget() bool {
	return p.Budget() > 0
}

// GatewayOrderID returns the gateway's order identifier, if an order has
// been created
func (p *PaymentSession) GatewayOrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gatewaySessionID
}

// GatewayTransaction returns the gateway transaction id of a settled payment
func (p *PaymentSession) GatewayTransaction() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gatewayTransactionID
}

// Failure returns the reason recorded for the last failed attempt
func (p *PaymentSession) Failure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failureReason
}

// ActiveTimer returns the live abandonment handle, if any
func (p *PaymentSession) ActiveTimer() TimerHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer
}

// ConsumeAttempt decrements the retry budget and stamps the attempt time
func (p *PaymentSession) ConsumeAttempt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retriesRemaining > 0 {
		p.retriesRemaining--
	}
	p.lastAttemptAt = time.Now()
}

// RefundAttempt restores one unit of budget. Used when an attempt was
// rejected locally (validation) and never reached the gateway.
func (p *PaymentSession) RefundAttempt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retriesRemaining++
}

// MarkProcessing transitions into the in-flight state. An executing
// re-attempt is user activity, so any armed abandonment timer is discarded.
func (p *PaymentSession) MarkProcessing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PaymentStateSucceeded {
		return
	}
	p.state = PaymentStateProcessing
	p.cancelTimerLocked()
}

// MarkPending records a successfully created order awaiting payment. A
// session that already settled stays settled; a late order-creation result
// racing a webhook must not regress it.
func (p *PaymentSession) MarkPending(gatewaySessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PaymentStateSucceeded {
		return
	}
	p.state = PaymentStatePending
	p.gatewaySessionID = gatewaySessionID
	p.failureReason = ""
}

// MarkSucceeded records a verified successful payment and discards any
// live abandonment timer under the same lock, so a timer can never remain
// armed against a paid booking
func (p *PaymentSession) MarkSucceeded(transactionID string, paidAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PaymentStateSucceeded
	p.gatewayTransactionID = transactionID
	p.paidAt = &paidAt
	p.failureReason = ""
	p.cancelTimerLocked()
}

// MarkFailed records a failed attempt with its reason. No-op on a session
// that already settled.
func (p *PaymentSession) MarkFailed(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PaymentStateSucceeded {
		return
	}
	p.state = PaymentStateFailed
	p.failureReason = reason
}

// CancelTimer cancels and detaches any live abandonment timer. Safe to call
// repeatedly.
func (p *PaymentSession) CancelTimer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelTimerLocked()
}

func (p *PaymentSession) cancelTimerLocked() {
	if p.timer != nil {
		p.timer.Cancel()
		p.timer = nil
	}
}

// AttachTimer binds a new abandonment handle, cancelling any previous one
// so at most one timer is ever active per session. A handle arriving after
// the payment already settled (a verify or webhook racing the pay request)
// is cancelled instead of attached.
func (p *PaymentSession) AttachTimer(t TimerHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PaymentStateSucceeded {
		t.Cancel()
		return
	}
	p.cancelTimerLocked()
	p.timer = t
}
