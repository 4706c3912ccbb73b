package models

// ============================================================================
// PRICING RULES (exhibition configuration, supplied by the backend)
// ============================================================================

// DiscountKind is how a discount rule is expressed
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// DiscountRule is a configured discount. Multiple active rules apply
// cumulatively in configuration list order, each computed independently
// against the same base amount (not cascading).
type DiscountRule struct {
	Name   string       `json:"name"`
	Kind   DiscountKind `json:"kind"`
	Value  float64      `json:"value"`
	Active bool         `json:"active"`
}

// TaxRule is a configured tax, applied on the single post-discount base.
// Taxes do not compound on each other.
type TaxRule struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"` // percent
	Active bool    `json:"active"`
}

// BasicAmenity is auto-included in a booking at zero cost; its quantity is
// derived from the total booked area.
type BasicAmenity struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PerArea      float64 `json:"per_area"`      // sqm per allocation threshold
	UnitQuantity int     `json:"unit_quantity"` // units granted per threshold
}

// ExtraAmenity is an optional paid amenity offered in the catalog
type ExtraAmenity struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Rate float64 `json:"rate"`
}

// AmenitySelection is an extra amenity the customer opted into
type AmenitySelection struct {
	AmenityID string  `json:"amenity_id"`
	Name      string  `json:"name"`
	Rate      float64 `json:"rate"`
	Quantity  int     `json:"quantity"` // always >= 1
}

// ============================================================================
// BOOKING SUMMARY (derived, recomputed on every draft mutation)
// ============================================================================

// DiscountLine is one applied discount in the itemized summary
type DiscountLine struct {
	Name   string       `json:"name"`
	Kind   DiscountKind `json:"kind"`
	Value  float64      `json:"value"`
	Amount float64      `json:"amount"`
}

// TaxLine is one applied tax in the itemized summary
type TaxLine struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// BasicAmenityLine reports an auto-included amenity and its derived quantity.
// It contributes no monetary cost.
type BasicAmenityLine struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	PerArea            float64 `json:"per_area"`
	UnitQuantity       int     `json:"unit_quantity"`
	CalculatedQuantity int     `json:"calculated_quantity"`
}

// AmenityLine is one paid extra amenity in the itemized summary
type AmenityLine struct {
	AmenityID string  `json:"amenity_id"`
	Name      string  `json:"name"`
	Rate      float64 `json:"rate"`
	Quantity  int     `json:"quantity"`
	Total     float64 `json:"total"`
}

// BookingSummary is the itemized pricing result. It is always recomputable
// deterministically from the draft; no cached partials survive a mutation.
type BookingSummary struct {
	TotalArea           float64            `json:"total_area"`
	BaseAmount          float64            `json:"base_amount"`
	Discounts           []DiscountLine     `json:"discounts"`
	TotalDiscount       float64            `json:"total_discount"`
	AmountAfterDiscount float64            `json:"amount_after_discount"`
	Taxes               []TaxLine          `json:"taxes"`
	TotalTax            float64            `json:"total_tax"`
	BasicAmenities      []BasicAmenityLine `json:"basic_amenities"`
	ItemizedAmenities   []AmenityLine      `json:"itemized_amenities"`
	AmenitiesTotal      float64            `json:"amenities_total"`
	GrandTotal          float64            `json:"grand_total"`
	Currency            string             `json:"currency"`
}
