package services

import (
	"math"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// PricingContext bundles the exhibition's pricing configuration: discount
// and tax rules plus the amenity catalog, as supplied by the backend when
// the wizard starts. Rules apply in configuration list order.
type PricingContext struct {
	Currency       string
	Discounts      []models.DiscountRule
	Taxes          []models.TaxRule
	BasicAmenities []models.BasicAmenity
	ExtraAmenities []models.ExtraAmenity
}

// FindExtraAmenity looks up a catalog entry by id
func (p *PricingContext) FindExtraAmenity(id string) (models.ExtraAmenity, bool) {
	for _, a := range p.ExtraAmenities {
		if a.ID == id {
			return a, true
		}
	}
	return models.ExtraAmenity{}, false
}

// PricingEngine turns a stall selection plus the exhibition's discount,
// tax, and amenity configuration into an itemized booking summary. Pure
// computation: no I/O, deterministic for identical inputs.
type PricingEngine struct{}

// NewPricingEngine creates a new pricing engine
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

// Compute produces the booking summary. Order of operations:
//  1. base amount = sum of stall prices
//  2. each active discount computed independently against the base
//  3. amount after discount = base - total discount, floored at 0
//  4. each active tax computed on the single post-discount base
//  5. amenities: basic lines at zero cost, extras at rate * quantity
//  6. grand total = post-discount amount + total tax + amenities total
//
// Negative or missing rate/value inputs are rejected with a
// ValidationError, never silently coerced to zero.
func (e *PricingEngine) Compute(
	stalls []models.StallSelection,
	discounts []models.DiscountRule,
	taxes []models.TaxRule,
	basics []models.BasicAmenity,
	extras []models.AmenitySelection,
) (*models.BookingSummary, error) {
	summary := &models.BookingSummary{
		Discounts:         []models.DiscountLine{},
		Taxes:             []models.TaxLine{},
		BasicAmenities:    []models.BasicAmenityLine{},
		ItemizedAmenities: []models.AmenityLine{},
	}

	// 1. Base amount
	for _, stall := range stalls {
		if err := stall.Validate(); err != nil {
			return nil, err
		}
		summary.TotalArea += stall.Area()
		summary.BaseAmount += stall.Price()
	}

	// 2. Discounts: each active rule is independent of the others, applied
	// against the same base (not cascading on top of prior discounts)
	for _, rule := range discounts {
		if rule.Value < 0 {
			return nil, &models.ValidationError{Field: "discount." + rule.Name, Message: "discount value cannot be negative"}
		}
		if !rule.Active {
			continue
		}
		var amount float64
		switch rule.Kind {
		case models.DiscountPercentage:
			amount = summary.BaseAmount * clampPercent(rule.Value) / 100
		case models.DiscountFixed:
			amount = math.Min(rule.Value, summary.BaseAmount)
		default:
			return nil, &models.ValidationError{Field: "discount." + rule.Name, Message: "unknown discount kind: " + string(rule.Kind)}
		}
		summary.Discounts = append(summary.Discounts, models.DiscountLine{
			Name:   rule.Name,
			Kind:   rule.Kind,
			Value:  rule.Value,
			Amount: amount,
		})
		summary.TotalDiscount += amount
	}

	// 3. Post-discount base, floored at 0
	summary.AmountAfterDiscount = summary.BaseAmount - summary.TotalDiscount
	if summary.AmountAfterDiscount < 0 {
		summary.AmountAfterDiscount = 0
	}

	// 4. Taxes: each computed independently on the post-discount base;
	// taxes do not compound on each other
	for _, rule := range taxes {
		if rule.Rate < 0 {
			return nil, &models.ValidationError{Field: "tax." + rule.Name, Message: "tax rate cannot be negative"}
		}
		if !rule.Active {
			continue
		}
		amount := summary.AmountAfterDiscount * clampPercent(rule.Rate) / 100
		summary.Taxes = append(summary.Taxes, models.TaxLine{
			Name:   rule.Name,
			Rate:   rule.Rate,
			Amount: amount,
		})
		summary.TotalTax += amount
	}

	// 5. Amenities. Basic amenities are auto-included at zero cost with an
	// area-derived quantity; a derived quantity of 0 is still reported.
	for _, basic := range basics {
		if basic.PerArea <= 0 {
			return nil, &models.ValidationError{Field: "amenity." + basic.Name, Message: "per-area threshold must be positive"}
		}
		if basic.UnitQuantity < 0 {
			return nil, &models.ValidationError{Field: "amenity." + basic.Name, Message: "unit quantity cannot be negative"}
		}
		calculated := int(math.Floor(summary.TotalArea/basic.PerArea)) * basic.UnitQuantity
		summary.BasicAmenities = append(summary.BasicAmenities, models.BasicAmenityLine{
			ID:                 basic.ID,
			Name:               basic.Name,
			PerArea:            basic.PerArea,
			UnitQuantity:       basic.UnitQuantity,
			CalculatedQuantity: calculated,
		})
		// A derived quantity of 0 is reported above but kept off the
		// itemized list
		if calculated > 0 {
			summary.ItemizedAmenities = append(summary.ItemizedAmenities, models.AmenityLine{
				AmenityID: basic.ID,
				Name:      basic.Name,
				Rate:      0,
				Quantity:  calculated,
				Total:     0,
			})
		}
	}

	// Extra amenities are opt-in and paid; quantity below 1 is a caller bug
	for _, extra := range extras {
		if extra.Rate < 0 {
			return nil, &models.ValidationError{Field: "amenity." + extra.Name, Message: "amenity rate cannot be negative"}
		}
		if extra.Quantity < 1 {
			return nil, &models.ValidationError{Field: "amenity." + extra.Name, Message: "quantity must be at least 1"}
		}
		total := extra.Rate * float64(extra.Quantity)
		summary.ItemizedAmenities = append(summary.ItemizedAmenities, models.AmenityLine{
			AmenityID: extra.AmenityID,
			Name:      extra.Name,
			Rate:      extra.Rate,
			Quantity:  extra.Quantity,
			Total:     total,
		})
		summary.AmenitiesTotal += total
	}

	// 6. Grand total
	summary.GrandTotal = summary.AmountAfterDiscount + summary.TotalTax + summary.AmenitiesTotal

	return summary, nil
}

// clampPercent clamps a percentage value to [0, 100]
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
