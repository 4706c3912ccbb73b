package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/services"
)

// CallbackValidator verifies gateway webhook signatures
type CallbackValidator interface {
	ValidateCallback(xVerify, base64Body string) bool
}

// WebhookHandler receives asynchronous payment notifications from the
// gateway and settles the matching wizard
type WebhookHandler struct {
	registry  *services.WizardRegistry
	validator CallbackValidator
	audit     *services.AuditService
	logger    *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(registry *services.WizardRegistry, validator CallbackValidator, audit *services.AuditService, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		registry:  registry,
		validator: validator,
		audit:     audit,
		logger:    logger,
	}
}

type webhookEnvelope struct {
	Response string `json:"response"` // base64-encoded payload
}

type webhookPayload struct {
	Data struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		State                 string `json:"state"` // COMPLETED, FAILED, PENDING
		Amount                int64  `json:"amount"` // paise
	} `json:"data"`
}

// HandlePaymentWebhook processes a gateway payment notification
// @Summary Payment gateway webhook
// @Description Verify the gateway signature and apply the payment outcome to the owning wizard
// @Tags Payments
// @Accept json
// @Success 200 {object} map[string]interface{} "Acknowledged"
// @Failure 401 {object} map[string]interface{} "Bad signature"
// @Router /api/v1/payments/webhook [post]
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	var envelope webhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook body"})
		return
	}

	if !h.validator.ValidateCallback(c.GetHeader("X-VERIFY"), envelope.Response) {
		h.logger.WithField("ip", c.ClientIP()).Warn("Webhook signature validation failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(envelope.Response)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload encoding"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	mtid := payload.Data.MerchantTransactionID
	if mtid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing merchant transaction id"})
		return
	}

	idempotencyKey := mtid + "-" + payload.Data.State
	if h.audit.IsDuplicateWebhook(c.Request.Context(), mtid, idempotencyKey) {
		h.logger.WithField("merchant_txn_id", mtid).Info("Duplicate webhook delivery ignored")
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		return
	}

	wizard, ok := h.registry.FindByMerchantTransaction(mtid)
	if !ok {
		// Session already swept or never existed; acknowledge so the
		// gateway stops redelivering.
		h.logger.WithField("merchant_txn_id", mtid).Warn("Webhook for unknown payment session")
		h.audit.RecordWebhook(c.Request.Context(), mtid, "", payload.Data.State, float64(payload.Data.Amount)/100, false)
		c.JSON(http.StatusOK, gin.H{"status": "no_session"})
		return
	}

	h.audit.RecordWebhook(c.Request.Context(), mtid, wizard.Draft().ID, payload.Data.State, float64(payload.Data.Amount)/100, false)

	var status services.GatewayPaymentStatus
	switch payload.Data.State {
	case "COMPLETED":
		status = services.GatewayPaymentPaid
	case "FAILED":
		status = services.GatewayPaymentFailed
	default:
		status = services.GatewayPaymentPending
	}

	if err := wizard.MarkPaymentResult(status, payload.Data.TransactionID, time.Now()); err != nil {
		h.logger.WithError(err).WithField("merchant_txn_id", mtid).Warn("Failed to apply webhook result")
		c.JSON(http.StatusOK, gin.H{"status": "stale_session"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"merchant_txn_id": mtid,
		"state":           payload.Data.State,
	}).Info("Payment webhook processed")

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
