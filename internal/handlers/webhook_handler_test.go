package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakar745/expo-booking-backend/internal/models"
	"github.com/aakar745/expo-booking-backend/internal/services"
)

type staticValidator struct {
	valid bool
}

func (v *staticValidator) ValidateCallback(xVerify, base64Body string) bool {
	return v.valid
}

func webhookTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func webhookTestWizard(t *testing.T) (*services.WizardRegistry, *services.BookingWizard, *models.PaymentSession) {
	t.Helper()
	stalls := []models.StallSelection{{
		ID:     "s1",
		Number: "A-1",
		HallID: "hall-1",
		Dimensions: models.StallDimensions{
			Type: models.DimensionRectangle,
			Rect: &models.Rectangle{Width: 5, Height: 5},
		},
		PriceType:   models.PricePerArea,
		RatePerArea: 1000,
	}}
	pricing := &services.PricingContext{Currency: "INR"}
	wizard, err := services.NewBookingWizard("expo-1", stalls, pricing, services.NewPricingEngine(), true, webhookTestLogger())
	require.NoError(t, err)

	registry := services.NewWizardRegistry(time.Hour, webhookTestLogger())
	registry.Add(wizard)
	session := wizard.EnsureSession(3)
	session.MarkPending("GW-1")
	return registry, wizard, session
}

func webhookBody(t *testing.T, mtid, state string) *bytes.Buffer {
	t.Helper()
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"merchantTransactionId": mtid,
			"transactionId":         "T12345",
			"state":                 state,
			"amount":                2655000,
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"response": base64.StdEncoding.EncodeToString(raw),
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func setupWebhookRouter(registry *services.WizardRegistry, valid bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := webhookTestLogger()
	audit := services.NewAuditService(nil, logger)
	handler := NewWebhookHandler(registry, &staticValidator{valid: valid}, audit, logger)

	router := gin.New()
	router.POST("/api/v1/payments/webhook", handler.HandlePaymentWebhook)
	return router
}

func TestWebhookCompletedPayment(t *testing.T) {
	registry, wizard, session := webhookTestWizard(t)
	router := setupWebhookRouter(registry, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", webhookBody(t, session.MerchantTransactionID, "COMPLETED"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "sig")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "processed")
	assert.Equal(t, models.StepSuccess, wizard.CurrentStep())
	assert.Equal(t, models.PaymentStateSucceeded, wizard.Session().CurrentState())
	assert.Equal(t, "T12345", wizard.Session().GatewayTransaction())
}

func TestWebhookFailedPayment(t *testing.T) {
	registry, wizard, session := webhookTestWizard(t)
	router := setupWebhookRouter(registry, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", webhookBody(t, session.MerchantTransactionID, "FAILED"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "sig")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStateFailed, wizard.Session().CurrentState())
	assert.NotEqual(t, models.StepSuccess, wizard.CurrentStep())
}

func TestWebhookBadSignature(t *testing.T) {
	registry, wizard, session := webhookTestWizard(t)
	router := setupWebhookRouter(registry, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", webhookBody(t, session.MerchantTransactionID, "COMPLETED"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "forged")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.PaymentStatePending, wizard.Session().CurrentState(), "a forged webhook must not settle the payment")
}

func TestWebhookUnknownSessionAcknowledged(t *testing.T) {
	registry, _, _ := webhookTestWizard(t)
	router := setupWebhookRouter(registry, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", webhookBody(t, "EXPO-unknown", "COMPLETED"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "sig")
	router.ServeHTTP(w, req)

	// Acknowledge so the gateway stops retrying
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no_session")
}

func TestWebhookMalformedBody(t *testing.T) {
	registry, _, _ := webhookTestWizard(t)
	router := setupWebhookRouter(registry, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(`{"response": "%%%not-base64"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", "sig")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
