package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// AbandonmentTimerConfig holds the two stage delays. The warning fires
// first; the remainder of the window then runs to the cancel stage.
type AbandonmentTimerConfig struct {
	WarnAfter   time.Duration // default 90s
	CancelAfter time.Duration // default 120s (total window)
}

// DefaultAbandonmentTimerConfig returns the production windows
func DefaultAbandonmentTimerConfig() AbandonmentTimerConfig {
	return AbandonmentTimerConfig{
		WarnAfter:   90 * time.Second,
		CancelAfter: 120 * time.Second,
	}
}

// AbandonmentTimer is a cancellable two-stage timer attached to a failed or
// pending payment session. At WarnAfter it emits a non-fatal warning
// callback; at CancelAfter it best-effort cancels the gateway order and
// resets the wizard. Cancellation is explicit and idempotent; each session
// holds at most one active handle (attaching a new one cancels the old).
type AbandonmentTimer struct {
	mu        sync.Mutex
	warnTimer *time.Timer
	fireTimer *time.Timer
	cancelled bool
	fired     bool

	config           AbandonmentTimerConfig
	gatewaySessionID string
	gateway          PaymentGatewayService
	onWarn           func()
	onExpire         func()
	logger           *logrus.Logger
}

// StartAbandonmentTimer arms both stages and attaches the handle to the
// session, implicitly cancelling any previous handle for that session.
func StartAbandonmentTimer(
	config AbandonmentTimerConfig,
	session *models.PaymentSession,
	gateway PaymentGatewayService,
	onWarn func(),
	onExpire func(),
	logger *logrus.Logger,
) *AbandonmentTimer {
	t := &AbandonmentTimer{
		config:           config,
		gatewaySessionID: session.GatewayOrderID(),
		gateway:          gateway,
		onWarn:           onWarn,
		onExpire:         onExpire,
		logger:           logger,
	}
	t.arm()
	session.AttachTimer(t)

	logger.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"warn_after":   config.WarnAfter,
		"cancel_after": config.CancelAfter,
	}).Info("Abandonment timer started")

	return t
}

// arm schedules both stages. Caller must not hold the mutex.
func (t *AbandonmentTimer) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnTimer = time.AfterFunc(t.config.WarnAfter, t.warn)
	t.fireTimer = time.AfterFunc(t.config.CancelAfter, t.fire)
}

// warn runs the first stage
func (t *AbandonmentTimer) warn() {
	t.mu.Lock()
	if t.cancelled || t.fired {
		t.mu.Unlock()
		return
	}
	warn := t.onWarn
	t.mu.Unlock()

	t.logger.WithField("gateway_session_id", t.gatewaySessionID).Info("Payment session idle, warning emitted")
	if warn != nil {
		warn()
	}
}

// fire runs the second stage: best-effort gateway cancellation, then the
// wizard reset. Exactly one cancel-order call and one reset per timer.
func (t *AbandonmentTimer) fire() {
	t.mu.Lock()
	if t.cancelled || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	expire := t.onExpire
	t.mu.Unlock()

	abandoned := &models.AbandonedSession{SessionID: t.gatewaySessionID}
	t.logger.WithField("gateway_session_id", t.gatewaySessionID).Warn(abandoned.Error())

	// Best effort: failure to reach the gateway must not block local
	// cleanup
	if t.gateway != nil && t.gatewaySessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.gateway.CancelOrder(ctx, t.gatewaySessionID, "inactivity timeout"); err != nil {
			t.logger.WithError(err).WithField("gateway_session_id", t.gatewaySessionID).
				Warn("Best-effort order cancellation failed")
		}
	}

	if expire != nil {
		expire()
	}
}

// Cancel stops both stages. Idempotent: repeated calls are no-ops, as is
// cancelling after the timer has fired.
func (t *AbandonmentTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled {
		return
	}
	t.cancelled = true
	if t.warnTimer != nil {
		t.warnTimer.Stop()
	}
	if t.fireTimer != nil {
		t.fireTimer.Stop()
	}
}

// Active reports whether the timer can still fire
func (t *AbandonmentTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.fired
}

// Restart rewinds both stages to the full window (the UI's "keep my
// session" action on the warning). No-op once cancelled or fired.
func (t *AbandonmentTimer) Restart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.fired {
		return false
	}
	t.warnTimer.Stop()
	t.fireTimer.Stop()
	t.warnTimer = time.AfterFunc(t.config.WarnAfter, t.warn)
	t.fireTimer = time.AfterFunc(t.config.CancelAfter, t.fire)
	return true
}
