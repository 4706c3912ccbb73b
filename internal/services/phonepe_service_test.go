package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakar745/expo-booking-backend/internal/config"
	"github.com/aakar745/expo-booking-backend/internal/models"
)

func testPaymentConfig() *config.PaymentConfig {
	return &config.PaymentConfig{
		Environment: "sandbox",
		MerchantID:  "MERCHANT1",
		SaltKey:     "salt-key-1",
		SaltIndex:   "1",
		RedirectURL: "https://expo.example/payment/return",
		CallbackURL: "https://expo.example/api/v1/payments/webhook",
	}
}

// pointSandboxAt rewires the sandbox endpoint at a test server
func pointSandboxAt(t *testing.T, url string) {
	t.Helper()
	original := PhonePeEnvironmentURLs["sandbox"]
	PhonePeEnvironmentURLs["sandbox"] = url
	t.Cleanup(func() {
		PhonePeEnvironmentURLs["sandbox"] = original
	})
}

func TestGenerateXVerify(t *testing.T) {
	service := NewPhonePeService(testPaymentConfig(), testLogger())

	payload := base64.StdEncoding.EncodeToString([]byte(`{"merchantId":"MERCHANT1"}`))
	got := service.GenerateXVerify(payload, "/pg/v1/pay")

	sum := sha256.Sum256([]byte(payload + "/pg/v1/pay" + "salt-key-1"))
	want := hex.EncodeToString(sum[:]) + "###1"
	assert.Equal(t, want, got)
}

func TestCreateOrderSuccess(t *testing.T) {
	var gotXVerify, gotBase64 string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pg/v1/pay", r.URL.Path)
		gotXVerify = r.Header.Get("X-VERIFY")

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBase64 = body["request"]

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"code": "PAYMENT_INITIATED",
			"data": {
				"merchantTransactionId": "EXPO-abc",
				"instrumentResponse": {"redirectInfo": {"url": "https://pay.phonepe.test/redirect"}}
			}
		}`))
	}))
	defer server.Close()
	pointSandboxAt(t, server.URL)

	service := NewPhonePeService(testPaymentConfig(), testLogger())
	resp, err := service.CreateOrder(context.Background(), &CreateOrderRequest{
		MerchantTransactionID: "EXPO-abc",
		Amount:                26550,
		Currency:              "INR",
		Customer:              models.CustomerInfo{Name: "Asha", Phone: "9876543210"},
		StallIDs:              []string{"s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.phonepe.test/redirect", resp.RedirectURL)
	assert.Equal(t, "EXPO-abc", resp.SessionID)

	// The wire payload carries the amount in paise under the checksummed
	// base64 envelope
	decoded, err := base64.StdEncoding.DecodeString(gotBase64)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(decoded, &payload))
	assert.Equal(t, float64(2655000), payload["amount"])
	assert.Equal(t, "MERCHANT1", payload["merchantId"])
	assert.Equal(t, "EXPO-abc", payload["merchantTransactionId"])

	sum := sha256.Sum256([]byte(gotBase64 + "/pg/v1/pay" + "salt-key-1"))
	assert.Equal(t, hex.EncodeToString(sum[:])+"###1", gotXVerify)
}

func TestCreateOrderRoundsPaise(t *testing.T) {
	var gotBase64 string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBase64 = body["request"]

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"code": "PAYMENT_INITIATED",
			"data": {
				"merchantTransactionId": "EXPO-frac",
				"instrumentResponse": {"redirectInfo": {"url": "https://pay.phonepe.test/redirect"}}
			}
		}`))
	}))
	defer server.Close()
	pointSandboxAt(t, server.URL)

	service := NewPhonePeService(testPaymentConfig(), testLogger())
	// 1050.29 * 100 is 105028.999... in float64; truncation would lose a paisa
	_, err := service.CreateOrder(context.Background(), &CreateOrderRequest{
		MerchantTransactionID: "EXPO-frac",
		Amount:                1050.29,
		Currency:              "INR",
	})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(gotBase64)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(decoded, &payload))
	assert.Equal(t, float64(105029), payload["amount"])
}

func TestCreateOrderGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "code": "BAD_REQUEST", "message": "Invalid merchant"}`))
	}))
	defer server.Close()
	pointSandboxAt(t, server.URL)

	service := NewPhonePeService(testPaymentConfig(), testLogger())
	_, err := service.CreateOrder(context.Background(), &CreateOrderRequest{
		MerchantTransactionID: "EXPO-abc",
		Amount:                100,
	})

	var gatewayErr *models.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.False(t, gatewayErr.Retryable)
}

func TestCreateOrderServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"success": false, "code": "INTERNAL_SERVER_ERROR"}`))
	}))
	defer server.Close()
	pointSandboxAt(t, server.URL)

	service := NewPhonePeService(testPaymentConfig(), testLogger())
	_, err := service.CreateOrder(context.Background(), &CreateOrderRequest{
		MerchantTransactionID: "EXPO-abc",
		Amount:                100,
	})

	var gatewayErr *models.GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.True(t, gatewayErr.Retryable)
}

func TestCreateOrderValidation(t *testing.T) {
	t.Run("NotConfigured", func(t *testing.T) {
		cfg := testPaymentConfig()
		cfg.MerchantID = ""
		service := NewPhonePeService(cfg, testLogger())
		assert.False(t, service.IsConfigured())

		_, err := service.CreateOrder(context.Background(), &CreateOrderRequest{Amount: 100})
		var gatewayErr *models.GatewayError
		require.ErrorAs(t, err, &gatewayErr)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		service := NewPhonePeService(testPaymentConfig(), testLogger())
		_, err := service.CreateOrder(context.Background(), &CreateOrderRequest{Amount: 0})
		var validationErr *models.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestVerifyPaymentStates(t *testing.T) {
	cases := []struct {
		name  string
		state string
		want  GatewayPaymentStatus
	}{
		{"Completed", "COMPLETED", GatewayPaymentPaid},
		{"Pending", "PENDING", GatewayPaymentPending},
		{"Failed", "FAILED", GatewayPaymentFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/pg/v1/status/MERCHANT1/EXPO-abc", r.URL.Path)
				require.Equal(t, "MERCHANT1", r.Header.Get("X-MERCHANT-ID"))
				resp := map[string]interface{}{
					"success": true,
					"code":    "PAYMENT_SUCCESS",
					"data": map[string]interface{}{
						"merchantTransactionId": "EXPO-abc",
						"transactionId":         "T12345",
						"state":                 tc.state,
					},
				}
				json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()
			pointSandboxAt(t, server.URL)

			service := NewPhonePeService(testPaymentConfig(), testLogger())
			result, err := service.VerifyPayment(context.Background(), "EXPO-abc")
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Status)
			assert.Equal(t, "T12345", result.TransactionID)
			if tc.want == GatewayPaymentPaid {
				assert.NotNil(t, result.PaidAt)
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	var gotReason string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pg/v1/cancel/MERCHANT1/GW-1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotReason = body["reason"]
		w.Write([]byte(`{"success": true, "code": "OK"}`))
	}))
	defer server.Close()
	pointSandboxAt(t, server.URL)

	service := NewPhonePeService(testPaymentConfig(), testLogger())
	err := service.CancelOrder(context.Background(), "GW-1", "inactivity timeout")
	require.NoError(t, err)
	assert.Equal(t, "inactivity timeout", gotReason)
}

func TestValidateCallback(t *testing.T) {
	service := NewPhonePeService(testPaymentConfig(), testLogger())

	body := base64.StdEncoding.EncodeToString([]byte(`{"data":{"state":"COMPLETED"}}`))
	sum := sha256.Sum256([]byte(body + "salt-key-1"))
	valid := hex.EncodeToString(sum[:]) + "###1"

	assert.True(t, service.ValidateCallback(valid, body))
	assert.False(t, service.ValidateCallback("bogus###1", body))
	assert.False(t, service.ValidateCallback("", body))
}
