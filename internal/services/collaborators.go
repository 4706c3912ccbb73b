package services

import (
	"context"
	"time"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// ============================================================================
// EXTERNAL COLLABORATOR CONTRACTS (transport-agnostic)
// ============================================================================

// StallInventoryService supplies stall snapshots and the exhibition's
// pricing configuration
type StallInventoryService interface {
	// GetStallSnapshot resolves the given stall ids into immutable
	// selection snapshots. Fails with *models.InventoryConflict if any id
	// is unavailable.
	GetStallSnapshot(ctx context.Context, exhibitionID string, stallIDs []string) ([]models.StallSelection, error)

	// GetPricingContext fetches the exhibition's discount/tax rules and
	// amenity catalog.
	GetPricingContext(ctx context.Context, exhibitionID string) (*PricingContext, error)
}

// CreateOrderRequest carries everything the gateway needs to create an
// order. MerchantTransactionID is the caller-supplied idempotency token.
type CreateOrderRequest struct {
	MerchantTransactionID string
	Amount                float64
	Currency              string
	Customer              models.CustomerInfo
	StallIDs              []string
	Amenities             []models.AmenitySelection
}

// OrderResponse is the gateway's answer to a successful order creation
type OrderResponse struct {
	RedirectURL string
	SessionID   string
}

// GatewayPaymentStatus is the gateway-reported payment state
type GatewayPaymentStatus string

const (
	GatewayPaymentPending GatewayPaymentStatus = "pending"
	GatewayPaymentPaid    GatewayPaymentStatus = "paid"
	GatewayPaymentFailed  GatewayPaymentStatus = "failed"
)

// VerifyResponse is the result of a payment-status check
type VerifyResponse struct {
	Status        GatewayPaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// PaymentGatewayService is the payment collaborator contract
type PaymentGatewayService interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	VerifyPayment(ctx context.Context, sessionID string) (*VerifyResponse, error)
	// CancelOrder is best effort; callers treat it as fire-and-forget.
	CancelOrder(ctx context.Context, sessionID string, reason string) error
}
