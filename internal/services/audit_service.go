package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/models"
	"github.com/aakar745/expo-booking-backend/internal/utils"
)

// AuditStore persists payment audit rows
type AuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	CheckDuplicate(ctx context.Context, merchantTransactionID string, eventType models.PaymentEventType, idempotencyKey string) (bool, error)
}

// AuditService records payment lifecycle events. Recording is best effort:
// failures are logged and never block the checkout path.
type AuditService struct {
	store  AuditStore
	logger *logrus.Logger
}

// RequestMeta carries client information attached to audit rows
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore, logger *logrus.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger,
	}
}

// RecordOrderCreated logs a successful gateway order creation
func (s *AuditService) RecordOrderCreated(ctx context.Context, session *models.PaymentSession, amount float64, currency string, meta RequestMeta) {
	audit := s.base(session, models.PaymentEventOrderCreated, "gateway", meta)
	audit.ExpectedAmount = &amount
	audit.Currency = currency
	s.write(ctx, audit)
}

// RecordOrderCreateFailed logs a failed gateway order creation
func (s *AuditService) RecordOrderCreateFailed(ctx context.Context, session *models.PaymentSession, reason string, meta RequestMeta) {
	audit := s.base(session, models.PaymentEventOrderCreateFailed, "gateway", meta)
	audit.ErrorMessage = &reason
	s.write(ctx, audit)
}

// RecordGuardRejected logs a payment submission blocked by the duplicate guard
func (s *AuditService) RecordGuardRejected(ctx context.Context, session *models.PaymentSession, reason string, meta RequestMeta) {
	audit := s.base(session, models.PaymentEventGuardRejected, "guard", meta)
	audit.ErrorMessage = &reason
	audit.IsDuplicate = true
	s.write(ctx, audit)
}

// RecordWebhook logs a gateway webhook delivery
func (s *AuditService) RecordWebhook(ctx context.Context, merchantTransactionID, draftID, status string, receivedAmount float64, isDuplicate bool) {
	audit := &models.PaymentAudit{
		DraftID:               draftID,
		MerchantTransactionID: &merchantTransactionID,
		EventType:             models.PaymentEventWebhookReceived,
		EventSource:           "webhook",
		PaymentStatus:         &status,
		ReceivedAmount:        &receivedAmount,
		IsDuplicate:           isDuplicate,
	}
	s.write(ctx, audit)
}

// RecordVerification logs a gateway status check and whether the amounts match
func (s *AuditService) RecordVerification(ctx context.Context, session *models.PaymentSession, status string, durationMs int64, meta RequestMeta) {
	audit := s.base(session, models.PaymentEventVerification, "gateway", meta)
	audit.PaymentStatus = &status
	audit.ExpectedAmount = &session.Amount
	audit.ProcessingTimeMs = &durationMs
	s.write(ctx, audit)
}

// RecordPaymentResult logs the terminal outcome of a payment
func (s *AuditService) RecordPaymentResult(ctx context.Context, session *models.PaymentSession, succeeded bool, gatewayTransactionID string, meta RequestMeta) {
	eventType := models.PaymentEventFailed
	if succeeded {
		eventType = models.PaymentEventSuccess
	}
	audit := s.base(session, eventType, "gateway", meta)
	audit.ExpectedAmount = &session.Amount
	if gatewayTransactionID != "" {
		audit.GatewayTransactionID = &gatewayTransactionID
	}
	if reason := session.Failure(); !succeeded && reason != "" {
		audit.ErrorMessage = &reason
	}
	s.write(ctx, audit)
}

// RecordCancelled logs an order cancellation
func (s *AuditService) RecordCancelled(ctx context.Context, session *models.PaymentSession, reason string) {
	audit := s.base(session, models.PaymentEventCancelled, "timer", RequestMeta{})
	audit.ErrorMessage = &reason
	s.write(ctx, audit)
}

// RecordAbandoned logs a session reset after the abandonment deadline
func (s *AuditService) RecordAbandoned(ctx context.Context, session *models.PaymentSession) {
	s.write(ctx, s.base(session, models.PaymentEventAbandoned, "timer", RequestMeta{}))
}

// IsDuplicateWebhook reports whether a webhook delivery was already processed
func (s *AuditService) IsDuplicateWebhook(ctx context.Context, merchantTransactionID, idempotencyKey string) bool {
	if s.store == nil {
		return false
	}
	dup, err := s.store.CheckDuplicate(ctx, merchantTransactionID, models.PaymentEventWebhookReceived, idempotencyKey)
	if err != nil {
		s.logger.WithError(err).WithField("merchant_txn_id", merchantTransactionID).
			Warn("Duplicate check failed, treating webhook as new")
		return false
	}
	return dup
}

func (s *AuditService) base(session *models.PaymentSession, eventType models.PaymentEventType, source string, meta RequestMeta) *models.PaymentAudit {
	audit := &models.PaymentAudit{
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
	if session != nil {
		audit.DraftID = session.DraftID
		mtid := session.MerchantTransactionID
		audit.MerchantTransactionID = &mtid
		if gsid := session.GatewayOrderID(); gsid != "" {
			audit.GatewaySessionID = &gsid
		}
	}
	if meta.IPAddress != "" {
		ip := meta.IPAddress
		audit.IPAddress = &ip
	}
	if meta.UserAgent != "" {
		agent := meta.UserAgent
		audit.UserAgent = &agent
		device := utils.ParseUserAgent(meta.UserAgent).DeviceType
		audit.DeviceType = &device
	}
	return audit
}

func (s *AuditService) write(ctx context.Context, audit *models.PaymentAudit) {
	if s.store == nil {
		return
	}
	if err := s.store.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"draft_id":   audit.DraftID,
		}).Error("Failed to record payment audit")
	}
}
