package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// recordingGateway captures CancelOrder calls
type recordingGateway struct {
	mu      sync.Mutex
	cancels []string
	reasons []string
}

func (g *recordingGateway) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	return &OrderResponse{SessionID: "GW-1"}, nil
}

func (g *recordingGateway) VerifyPayment(ctx context.Context, sessionID string) (*VerifyResponse, error) {
	return &VerifyResponse{Status: GatewayPaymentPending}, nil
}

func (g *recordingGateway) CancelOrder(ctx context.Context, sessionID string, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, sessionID)
	g.reasons = append(g.reasons, reason)
	return nil
}

func (g *recordingGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}

func shortTimerConfig() AbandonmentTimerConfig {
	return AbandonmentTimerConfig{
		WarnAfter:   30 * time.Millisecond,
		CancelAfter: 80 * time.Millisecond,
	}
}

func sessionWithGatewayOrder() *models.PaymentSession {
	session := models.NewPaymentSession("draft-1", 26550, 3)
	session.MarkPending("GW-ORDER-1")
	return session
}

func TestTimerWarnsThenFires(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()

	var warns, expires int32
	StartAbandonmentTimer(shortTimerConfig(), session, gateway,
		func() { atomic.AddInt32(&warns, 1) },
		func() { atomic.AddInt32(&expires, 1) },
		testLogger(),
	)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&warns))
	assert.Equal(t, int32(0), atomic.LoadInt32(&expires))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&warns), "the warning fires once")
	assert.Equal(t, int32(1), atomic.LoadInt32(&expires), "the reset fires once")

	require.Equal(t, 1, gateway.cancelCount())
	assert.Equal(t, "GW-ORDER-1", gateway.cancels[0])
	assert.Equal(t, "inactivity timeout", gateway.reasons[0])
}

func TestTimerCancelStopsBothStages(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()

	var warns, expires int32
	timer := StartAbandonmentTimer(shortTimerConfig(), session, gateway,
		func() { atomic.AddInt32(&warns, 1) },
		func() { atomic.AddInt32(&expires, 1) },
		testLogger(),
	)

	assert.True(t, timer.Active())
	timer.Cancel()
	assert.False(t, timer.Active())

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&warns))
	assert.Zero(t, atomic.LoadInt32(&expires))
	assert.Zero(t, gateway.cancelCount())
}

func TestTimerCancelIsIdempotent(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()

	timer := StartAbandonmentTimer(shortTimerConfig(), session, gateway, nil, nil, testLogger())

	timer.Cancel()
	timer.Cancel()
	timer.Cancel()
	assert.False(t, timer.Active())

	// Cancelling after the fact is also a safe no-op
	time.Sleep(120 * time.Millisecond)
	timer.Cancel()
}

func TestTimerAttachedToSession(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()

	timer := StartAbandonmentTimer(shortTimerConfig(), session, gateway, nil, nil, testLogger())
	require.NotNil(t, session.ActiveTimer())
	assert.Equal(t, models.TimerHandle(timer), session.ActiveTimer())

	// A second timer replaces and cancels the first
	second := StartAbandonmentTimer(shortTimerConfig(), session, gateway, nil, nil, testLogger())
	assert.False(t, timer.Active())
	assert.True(t, second.Active())
	assert.Equal(t, models.TimerHandle(second), session.ActiveTimer())

	session.CancelTimer()
	assert.False(t, second.Active())
	assert.Nil(t, session.ActiveTimer())
}

func TestTimerNotAttachedToSettledSession(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()
	session.MarkSucceeded("TXN-1", time.Now())

	var expires int32
	timer := StartAbandonmentTimer(shortTimerConfig(), session, gateway,
		nil,
		func() { atomic.AddInt32(&expires, 1) },
		testLogger(),
	)

	assert.False(t, timer.Active(), "a paid session must not carry an armed timer")
	assert.Nil(t, session.ActiveTimer())

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, gateway.cancelCount(), "a paid booking must never be cancelled")
	assert.Zero(t, atomic.LoadInt32(&expires))
}

func TestTimerRestartRewindsWindow(t *testing.T) {
	gateway := &recordingGateway{}
	session := sessionWithGatewayOrder()

	var warns int32
	timer := StartAbandonmentTimer(shortTimerConfig(), session, gateway,
		func() { atomic.AddInt32(&warns, 1) },
		nil,
		testLogger(),
	)

	// Keep restarting before the warning threshold
	for i := 0; i < 3; i++ {
		time.Sleep(15 * time.Millisecond)
		require.True(t, timer.Restart())
	}
	assert.Zero(t, atomic.LoadInt32(&warns))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&warns))

	timer.Cancel()
	assert.False(t, timer.Restart(), "a cancelled timer cannot be restarted")
}

func TestTimerFireWithoutGatewayOrder(t *testing.T) {
	gateway := &recordingGateway{}
	session := models.NewPaymentSession("draft-1", 26550, 3)

	var expires int32
	StartAbandonmentTimer(shortTimerConfig(), session, gateway,
		nil,
		func() { atomic.AddInt32(&expires, 1) },
		testLogger(),
	)

	time.Sleep(120 * time.Millisecond)
	// No gateway order to cancel, but local cleanup still runs
	assert.Zero(t, gateway.cancelCount())
	assert.Equal(t, int32(1), atomic.LoadInt32(&expires))
}
