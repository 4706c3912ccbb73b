package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/config"
	"github.com/aakar745/expo-booking-backend/internal/models"
)

// InventoryService is an HTTP client against the exhibition inventory
// service. It implements the StallInventoryService contract.
type InventoryService struct {
	config *config.InventoryConfig
	logger *logrus.Logger
	client *http.Client
}

type inventoryStallRow struct {
	ID          string                 `json:"id"`
	Number      string                 `json:"number"`
	HallID      string                 `json:"hallId"`
	HallName    string                 `json:"hallName"`
	Status      string                 `json:"status"` // available, reserved, booked
	Dimensions  models.StallDimensions `json:"dimensions"`
	PriceType   models.StallPriceType  `json:"priceType"`
	RatePerArea float64                `json:"ratePerArea"`
	FixedPrice  float64                `json:"fixedPrice"`
}

type inventorySnapshotResponse struct {
	Stalls []inventoryStallRow `json:"stalls"`
}

type inventoryPricingResponse struct {
	Currency       string                `json:"currency"`
	Discounts      []models.DiscountRule `json:"discounts"`
	Taxes          []models.TaxRule      `json:"taxes"`
	BasicAmenities []models.BasicAmenity `json:"basicAmenities"`
	ExtraAmenities []models.ExtraAmenity `json:"extraAmenities"`
}

// NewInventoryService creates a new inventory client
func NewInventoryService(cfg *config.InventoryConfig, logger *logrus.Logger) *InventoryService {
	return &InventoryService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetStallSnapshot fetches the current state of the requested stalls.
// Stalls that are no longer available surface as an InventoryConflict.
func (s *InventoryService) GetStallSnapshot(ctx context.Context, exhibitionID string, stallIDs []string) ([]models.StallSelection, error) {
	url := fmt.Sprintf("%s/api/v1/exhibitions/%s/stalls/snapshot", s.config.BaseURL, exhibitionID)

	body, err := json.Marshal(map[string][]string{"stallIds": stallIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot request: %w", err)
	}

	var resp inventorySnapshotResponse
	if err := s.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	byID := make(map[string]inventoryStallRow, len(resp.Stalls))
	for _, row := range resp.Stalls {
		byID[row.ID] = row
	}

	var unavailable []string
	selections := make([]models.StallSelection, 0, len(stallIDs))
	for _, id := range stallIDs {
		row, ok := byID[id]
		if !ok || row.Status != "available" {
			unavailable = append(unavailable, id)
			continue
		}
		selections = append(selections, models.StallSelection{
			ID:          row.ID,
			Number:      row.Number,
			HallID:      row.HallID,
			HallName:    row.HallName,
			Dimensions:  row.Dimensions,
			PriceType:   row.PriceType,
			RatePerArea: row.RatePerArea,
			FixedPrice:  row.FixedPrice,
		})
	}

	if len(unavailable) > 0 {
		s.logger.WithFields(logrus.Fields{
			"exhibition_id": exhibitionID,
			"unavailable":   unavailable,
		}).Warn("Requested stalls no longer available")
		return nil, &models.InventoryConflict{
			UnavailableStalls: unavailable,
			Message:           fmt.Sprintf("%d stall(s) are no longer available", len(unavailable)),
		}
	}

	return selections, nil
}

// GetPricingContext fetches the pricing configuration for an exhibition
func (s *InventoryService) GetPricingContext(ctx context.Context, exhibitionID string) (*PricingContext, error) {
	url := fmt.Sprintf("%s/api/v1/exhibitions/%s/pricing", s.config.BaseURL, exhibitionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pricing request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pricing context: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory service returned status %d for pricing context", resp.StatusCode)
	}

	var pricing inventoryPricingResponse
	if err := json.NewDecoder(resp.Body).Decode(&pricing); err != nil {
		return nil, fmt.Errorf("failed to parse pricing context: %w", err)
	}

	return &PricingContext{
		Currency:       pricing.Currency,
		Discounts:      pricing.Discounts,
		Taxes:          pricing.Taxes,
		BasicAmenities: pricing.BasicAmenities,
		ExtraAmenities: pricing.ExtraAmenities,
	}, nil
}

func (s *InventoryService) postJSON(ctx context.Context, url string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("X-API-Key", s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call inventory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("inventory service returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse inventory response: %w", err)
	}
	return nil
}
