package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event being audited
type PaymentEventType string

const (
	PaymentEventOrderCreated      PaymentEventType = "order_created"
	PaymentEventOrderCreateFailed PaymentEventType = "order_create_failed"
	PaymentEventGuardRejected     PaymentEventType = "guard_rejected"
	PaymentEventWebhookReceived   PaymentEventType = "webhook_received"
	PaymentEventVerification      PaymentEventType = "verification"
	PaymentEventSuccess           PaymentEventType = "payment_success"
	PaymentEventFailed            PaymentEventType = "payment_failed"
	PaymentEventCancelled         PaymentEventType = "order_cancelled"
	PaymentEventAbandoned         PaymentEventType = "session_abandoned"
	PaymentEventError             PaymentEventType = "error"
)

// PaymentAudit is one immutable payment event row. Every order creation,
// verification, webhook, cancellation, and guard rejection is recorded.
type PaymentAudit struct {
	ID                    uuid.UUID        `json:"id" db:"id"`
	DraftID               string           `json:"draft_id" db:"draft_id"`
	GatewaySessionID      *string          `json:"gateway_session_id,omitempty" db:"gateway_session_id"`
	MerchantTransactionID *string          `json:"merchant_transaction_id,omitempty" db:"merchant_transaction_id"`
	EventType             PaymentEventType `json:"event_type" db:"event_type"`
	EventSource           string           `json:"event_source" db:"event_source"` // guard, gateway, webhook, timer

	ExpectedAmount *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *float64 `json:"received_amount,omitempty" db:"received_amount"`
	Currency       string   `json:"currency" db:"currency"`
	AmountsMatch   *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	PaymentStatus        *string `json:"payment_status,omitempty" db:"payment_status"`
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`

	ErrorMessage   *string `json:"error_message,omitempty" db:"error_message"`
	HTTPStatusCode *int    `json:"http_status_code,omitempty" db:"http_status_code"`

	ProcessingTimeMs *int64  `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool    `json:"is_duplicate" db:"is_duplicate"`
	IdempotencyKey   *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType *string `json:"device_type,omitempty" db:"device_type"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
