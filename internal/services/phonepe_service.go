package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/config"
	"github.com/aakar745/expo-booking-backend/internal/models"
)

// PhonePeEnvironmentURLs maps environment names to their PG endpoint URLs
var PhonePeEnvironmentURLs = map[string]string{
	"sandbox":    "https://api-preprod.phonepe.com/apis/pg-sandbox",
	"production": "https://api.phonepe.com/apis/hermes",
}

const (
	phonePePayPath    = "/pg/v1/pay"
	phonePeStatusPath = "/pg/v1/status"
	phonePeCancelPath = "/pg/v1/cancel"
)

// PhonePeService implements the PaymentGatewayService contract against the
// PhonePe payment gateway
type PhonePeService struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// phonePePayPayload is the inner order payload, base64-encoded on the wire
type phonePePayPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"` // paise
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl,omitempty"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	Message               string            `json:"message,omitempty"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"` // PAY_PAGE
}

// phonePeResponse is the envelope every PhonePe endpoint returns
type phonePeResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type phonePePayData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		RedirectInfo struct {
			URL string `json:"url"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type phonePeStatusData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	State                 string `json:"state"` // COMPLETED, PENDING, FAILED
	ResponseCode          string `json:"responseCode"`
}

// NewPhonePeService creates a new PhonePe gateway client
func NewPhonePeService(cfg *config.PaymentConfig, logger *logrus.Logger) *PhonePeService {
	return &PhonePeService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IsConfigured returns true if merchant credentials are present
func (s *PhonePeService) IsConfigured() bool {
	return s.config.MerchantID != "" && s.config.SaltKey != ""
}

// GenerateXVerify computes the PhonePe request checksum:
// SHA256(base64Payload + apiPath + saltKey) hex, suffixed with "###" and
// the salt index.
func (s *PhonePeService) GenerateXVerify(base64Payload, apiPath string) string {
	sum := sha256.Sum256([]byte(base64Payload + apiPath + s.config.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + s.config.SaltIndex
}

// ValidateCallback verifies the X-VERIFY header PhonePe sends on webhook
// deliveries: SHA256(base64Body + saltKey) hex + "###" + saltIndex.
func (s *PhonePeService) ValidateCallback(xVerify, base64Body string) bool {
	if xVerify == "" {
		return false
	}
	sum := sha256.Sum256([]byte(base64Body + s.config.SaltKey))
	expected := hex.EncodeToString(sum[:]) + "###" + s.config.SaltIndex
	return hmac.Equal([]byte(expected), []byte(xVerify))
}

// baseURL resolves the endpoint for the configured environment
func (s *PhonePeService) baseURL() string {
	if url, ok := PhonePeEnvironmentURLs[s.config.Environment]; ok {
		return url
	}
	return PhonePeEnvironmentURLs["sandbox"]
}

// CreateOrder creates a gateway order and returns the payment-page
// redirect. The merchant transaction id doubles as the idempotency token.
func (s *PhonePeService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if !s.IsConfigured() {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: false,
			Err: errors.New("payment gateway not configured: missing merchant credentials")}
	}
	if req.Amount <= 0 {
		return nil, &models.ValidationError{Field: "amount", Message: "order amount must be positive"}
	}

	payload := phonePePayPayload{
		MerchantID:            s.config.MerchantID,
		MerchantTransactionID: req.MerchantTransactionID,
		MerchantUserID:        req.Customer.Phone,
		Amount:                int64(math.Round(req.Amount * 100)), // rupees -> paise
		RedirectURL:           s.config.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           s.config.CallbackURL,
		MobileNumber:          req.Customer.Phone,
		Message:               fmt.Sprintf("Stall booking - %d stall(s)", len(req.StallIDs)),
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}
	base64Payload := base64.StdEncoding.EncodeToString(jsonPayload)
	xVerify := s.GenerateXVerify(base64Payload, phonePePayPath)

	s.logger.WithFields(logrus.Fields{
		"merchant_txn_id": req.MerchantTransactionID,
		"amount":          req.Amount,
		"stall_count":     len(req.StallIDs),
		"environment":     s.config.Environment,
	}).Info("Initiating PhonePe order")

	body, err := json.Marshal(map[string]string{"request": base64Payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	envelope, statusCode, err := s.post(ctx, s.baseURL()+phonePePayPath, xVerify, body)
	if err != nil {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: true, Err: err}
	}
	if statusCode >= 500 {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: true,
			Err: fmt.Errorf("gateway returned status %d", statusCode)}
	}
	if !envelope.Success {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: false,
			Err: fmt.Errorf("order creation failed: %s (%s)", envelope.Code, envelope.Message)}
	}

	var data phonePePayData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: false,
			Err: fmt.Errorf("failed to parse order response: %w", err)}
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return nil, &models.GatewayError{Op: "createOrder", Retryable: false,
			Err: errors.New("order creation failed: no redirect URL returned")}
	}

	s.logger.WithFields(logrus.Fields{
		"merchant_txn_id": data.MerchantTransactionID,
		"redirect_url":    data.InstrumentResponse.RedirectInfo.URL,
	}).Info("PhonePe order created")

	return &OrderResponse{
		RedirectURL: data.InstrumentResponse.RedirectInfo.URL,
		SessionID:   data.MerchantTransactionID,
	}, nil
}

// VerifyPayment queries the current status of an order
func (s *PhonePeService) VerifyPayment(ctx context.Context, sessionID string) (*VerifyResponse, error) {
	apiPath := fmt.Sprintf("%s/%s/%s", phonePeStatusPath, s.config.MerchantID, sessionID)
	xVerify := s.GenerateXVerify("", apiPath)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL()+apiPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", xVerify)
	httpReq.Header.Set("X-MERCHANT-ID", s.config.MerchantID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &models.VerificationTimeout{SessionID: sessionID}
		}
		return nil, &models.GatewayError{Op: "verifyPayment", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	var envelope phonePeResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &models.GatewayError{Op: "verifyPayment", Retryable: false,
			Err: fmt.Errorf("failed to parse status response: %w", err)}
	}

	var data phonePeStatusData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, &models.GatewayError{Op: "verifyPayment", Retryable: false,
				Err: fmt.Errorf("failed to parse status data: %w", err)}
		}
	}

	result := &VerifyResponse{TransactionID: data.TransactionID}
	switch data.State {
	case "COMPLETED":
		result.Status = GatewayPaymentPaid
		now := time.Now()
		result.PaidAt = &now
	case "PENDING", "":
		result.Status = GatewayPaymentPending
	default:
		result.Status = GatewayPaymentFailed
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"state":      data.State,
		"code":       envelope.Code,
	}).Info("PhonePe payment status checked")

	return result, nil
}

// CancelOrder asks the gateway to cancel a pending order. Best effort: the
// caller does not depend on the outcome for local cleanup.
func (s *PhonePeService) CancelOrder(ctx context.Context, sessionID string, reason string) error {
	apiPath := fmt.Sprintf("%s/%s/%s", phonePeCancelPath, s.config.MerchantID, sessionID)

	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel request: %w", err)
	}
	xVerify := s.GenerateXVerify(base64.StdEncoding.EncodeToString(body), apiPath)

	envelope, statusCode, err := s.post(ctx, s.baseURL()+apiPath, xVerify, body)
	if err != nil {
		return &models.GatewayError{Op: "cancelOrder", Retryable: true, Err: err}
	}
	if statusCode >= 400 || !envelope.Success {
		return &models.GatewayError{Op: "cancelOrder", Retryable: false,
			Err: fmt.Errorf("cancel failed: %s (%s)", envelope.Code, envelope.Message)}
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reason":     reason,
	}).Info("PhonePe order cancelled")

	return nil
}

// post sends a checksummed JSON request and decodes the envelope
func (s *PhonePeService) post(ctx context.Context, url, xVerify string, body []byte) (*phonePeResponse, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-VERIFY", xVerify)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope phonePeResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return &envelope, resp.StatusCode, nil
}

// isTimeout reports whether err is a network timeout
func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
