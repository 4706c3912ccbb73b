package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// ErrRetryBudgetExhausted is wrapped in the terminal GatewayError returned
// once a session has used all of its attempts.
var ErrRetryBudgetExhausted = errors.New("payment retry budget exhausted")

// PaymentGuardConfig holds the guard windows
type PaymentGuardConfig struct {
	DebounceWindow time.Duration // coalesce window for overlapping submissions
	CooldownWindow time.Duration // rejection window after a completed attempt
	RetryBudget    int           // gateway attempts per payment session
}

// DefaultPaymentGuardConfig returns the default guard configuration
func DefaultPaymentGuardConfig() PaymentGuardConfig {
	return PaymentGuardConfig{
		DebounceWindow: 1000 * time.Millisecond,
		CooldownWindow: 3000 * time.Millisecond,
		RetryBudget:    3,
	}
}

// OrderFunc is the asynchronous order-creation call the guard wraps
type OrderFunc func(ctx context.Context) (*OrderResponse, error)

// inflightCall is a single executing order creation. Coalesced callers
// wait on done and read the stored result; resp/err are written before
// done is closed.
type inflightCall struct {
	done      chan struct{}
	startedAt time.Time
	resp      *OrderResponse
	err       error
}

// sessionState is the guard's per-session bookkeeping
type sessionState struct {
	call        *inflightCall
	lastCall    *inflightCall // most recent completed call, for debounce replay
	completedAt time.Time
}

// PaymentGuard wraps order creation so that concurrent or repeated
// triggers yield at most one in-flight call per payment session:
//
//   - submissions arriving while a call is in flight are coalesced into it
//     and observe the same result,
//   - submissions landing inside the debounce window of a successfully
//     completed call replay its order instead of creating a second one,
//   - submissions inside the cooldown window after a completed attempt are
//     rejected with DuplicatePaymentAttempt,
//   - the session's retry budget bounds total gateway attempts; once spent
//     a terminal GatewayError is returned.
//
// Validation failures surface immediately without consuming budget; a
// stall that went unavailable mid-checkout resets the wizard to Review
// through the conflict hook instead of retrying payment.
type PaymentGuard struct {
	mu       sync.Mutex
	config   PaymentGuardConfig
	sessions map[string]*sessionState
	logger   *logrus.Logger

	// onInventoryConflict is invoked (outside the guard lock) when order
	// creation fails because a stall is no longer available.
	onInventoryConflict func(draftID string)
}

// NewPaymentGuard creates a new payment guard
func NewPaymentGuard(config PaymentGuardConfig, logger *logrus.Logger) *PaymentGuard {
	return &PaymentGuard{
		config:   config,
		sessions: make(map[string]*sessionState),
		logger:   logger,
	}
}

// SetInventoryConflictHook registers the wizard-reset hook
func (g *PaymentGuard) SetInventoryConflictHook(hook func(draftID string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onInventoryConflict = hook
}

// Submit runs fn under the guard for the given session. Coalesced callers
// receive the same response and error as the invocation that actually
// reached the gateway.
func (g *PaymentGuard) Submit(ctx context.Context, session *models.PaymentSession, fn OrderFunc) (*OrderResponse, error) {
	g.mu.Lock()

	st := g.sessions[session.ID]
	if st == nil {
		st = &sessionState{}
		g.sessions[session.ID] = st
	}

	// Coalesce into the in-flight call, if any
	if st.call != nil {
		call := st.call
		g.mu.Unlock()
		g.logger.WithField("session_id", session.ID).Debug("Payment submission coalesced into in-flight call")
		select {
		case <-call.done:
			return call.resp, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// A click landing just after the call completed is the same user
	// gesture: replay the created order instead of charging again
	if st.lastCall != nil && st.lastCall.err == nil &&
		time.Since(st.lastCall.startedAt) < g.config.DebounceWindow {
		resp := st.lastCall.resp
		g.mu.Unlock()
		g.logger.WithField("session_id", session.ID).Debug("Payment submission debounced, replaying created order")
		return resp, nil
	}

	// Cooldown after the previous completed attempt
	if !st.completedAt.IsZero() {
		if wait := g.config.CooldownWindow - time.Since(st.completedAt); wait > 0 {
			retryAfter := st.completedAt.Add(g.config.CooldownWindow)
			g.mu.Unlock()
			g.logger.WithFields(logrus.Fields{
				"session_id":  session.ID,
				"retry_after": retryAfter,
			}).Warn("Duplicate payment attempt rejected during cooldown")
			return nil, &models.DuplicatePaymentAttempt{RetryAfter: retryAfter}
		}
	}

	if session.CurrentState() == models.PaymentStateSucceeded {
		g.mu.Unlock()
		return nil, &models.ValidationError{Field: "payment", Message: "payment has already completed"}
	}

	// Retry budget is carried on the session so it is inspectable
	if !session.HasBudget() {
		g.mu.Unlock()
		return nil, &models.GatewayError{Op: "createOrder", Retryable: false, Err: ErrRetryBudgetExhausted}
	}

	session.ConsumeAttempt()
	session.MarkProcessing()
	call := &inflightCall{done: make(chan struct{}), startedAt: time.Now()}
	st.call = call
	g.mu.Unlock()

	resp, err := fn(ctx)

	g.mu.Lock()
	st.call = nil
	st.lastCall = call
	st.completedAt = time.Now()
	result, conflict := g.settle(session, resp, err)
	call.resp = resp
	call.err = result
	close(call.done)
	hook := g.onInventoryConflict
	g.mu.Unlock()

	if conflict && hook != nil {
		hook(session.DraftID)
	}

	return resp, result
}

// settle classifies the attempt outcome and updates the session. Caller
// holds the guard lock. Returns the error to surface and whether the
// inventory-conflict hook must fire.
func (g *PaymentGuard) settle(session *models.PaymentSession, resp *OrderResponse, err error) (error, bool) {
	if err == nil {
		session.MarkPending(resp.SessionID)
		g.logger.WithFields(logrus.Fields{
			"session_id":         session.ID,
			"gateway_session_id": resp.SessionID,
			"retries_remaining":  session.Budget(),
		}).Info("Payment order created")
		return nil, false
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		// Local failure, never reached the gateway: give the attempt back
		session.RefundAttempt()
		session.MarkFailed(validationErr.Error())
		return err, false
	}

	var conflictErr *models.InventoryConflict
	if errors.As(err, &conflictErr) {
		session.MarkFailed(conflictErr.Error())
		g.logger.WithFields(logrus.Fields{
			"session_id": session.ID,
			"stalls":     conflictErr.UnavailableStalls,
		}).Warn("Order creation hit inventory conflict, resetting wizard to review")
		return err, true
	}

	session.MarkFailed(err.Error())

	var gatewayErr *models.GatewayError
	if errors.As(err, &gatewayErr) && !gatewayErr.Retryable {
		return err, false
	}
	if !session.HasBudget() {
		g.logger.WithField("session_id", session.ID).Error("Payment retry budget exhausted")
		return &models.GatewayError{Op: "createOrder", Retryable: false, Err: ErrRetryBudgetExhausted}, false
	}
	if gatewayErr != nil {
		return err, false
	}
	return &models.GatewayError{Op: "createOrder", Retryable: true, Err: err}, false
}

// Release drops the guard's bookkeeping for a session (wizard discarded)
func (g *PaymentGuard) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}
