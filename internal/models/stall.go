package models

// ============================================================================
// STALL SELECTION (immutable snapshot captured at wizard entry)
// ============================================================================

// StallDimensionType describes the footprint variant of a stall
type StallDimensionType string

const (
	DimensionRectangle StallDimensionType = "rectangle"
	DimensionLShape    StallDimensionType = "l-shape"
)

// StallPriceType describes how a stall is priced
type StallPriceType string

const (
	PricePerArea StallPriceType = "per_area"
	PriceFixed   StallPriceType = "fixed"
)

// Rectangle is a width x height footprint in meters
type Rectangle struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the rectangle area in square meters
func (r Rectangle) Area() float64 {
	return r.Width * r.Height
}

// StallDimensions is a tagged variant: rectangle uses Rect, l-shape uses
// Rect1 + Rect2 (the two legs of the L)
type StallDimensions struct {
	Type  StallDimensionType `json:"type"`
	Rect  *Rectangle         `json:"rect,omitempty"`
	Rect1 *Rectangle         `json:"rect1,omitempty"`
	Rect2 *Rectangle         `json:"rect2,omitempty"`
}

// Area returns the total footprint area for either variant
func (d StallDimensions) Area() float64 {
	switch d.Type {
	case DimensionRectangle:
		if d.Rect == nil {
			return 0
		}
		return d.Rect.Area()
	case DimensionLShape:
		var total float64
		if d.Rect1 != nil {
			total += d.Rect1.Area()
		}
		if d.Rect2 != nil {
			total += d.Rect2.Area()
		}
		return total
	}
	return 0
}

// Validate checks the dimension variant is well-formed
func (d StallDimensions) Validate() error {
	switch d.Type {
	case DimensionRectangle:
		if d.Rect == nil {
			return &ValidationError{Field: "dimensions.rect", Message: "rectangle dimensions are required"}
		}
		if d.Rect.Width <= 0 || d.Rect.Height <= 0 {
			return &ValidationError{Field: "dimensions.rect", Message: "rectangle sides must be positive"}
		}
	case DimensionLShape:
		if d.Rect1 == nil || d.Rect2 == nil {
			return &ValidationError{Field: "dimensions", Message: "l-shape requires both rectangles"}
		}
		if d.Rect1.Width <= 0 || d.Rect1.Height <= 0 || d.Rect2.Width <= 0 || d.Rect2.Height <= 0 {
			return &ValidationError{Field: "dimensions", Message: "l-shape sides must be positive"}
		}
	default:
		return &ValidationError{Field: "dimensions.type", Message: "unknown dimension type: " + string(d.Type)}
	}
	return nil
}

// StallSelection is the snapshot of a stall taken from the inventory service
// when the wizard starts. It never mutates for the lifetime of the draft;
// later inventory changes require explicit re-validation.
type StallSelection struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	HallID      string          `json:"hall_id"`
	HallName    string          `json:"hall_name,omitempty"`
	Dimensions  StallDimensions `json:"dimensions"`
	PriceType   StallPriceType  `json:"price_type"`
	RatePerArea float64         `json:"rate_per_area,omitempty"`
	FixedPrice  float64         `json:"fixed_price,omitempty"`
}

// Area returns the stall footprint in square meters
func (s StallSelection) Area() float64 {
	return s.Dimensions.Area()
}

// Price returns the derived stall price
func (s StallSelection) Price() float64 {
	if s.PriceType == PriceFixed {
		return s.FixedPrice
	}
	return s.Area() * s.RatePerArea
}

// Validate checks the snapshot is priceable
func (s StallSelection) Validate() error {
	if s.ID == "" {
		return &ValidationError{Field: "stall.id", Message: "stall id is required"}
	}
	if err := s.Dimensions.Validate(); err != nil {
		return err
	}
	switch s.PriceType {
	case PricePerArea:
		if s.RatePerArea <= 0 {
			return &ValidationError{Field: "stall.rate_per_area", Message: "rate per area must be positive"}
		}
	case PriceFixed:
		if s.FixedPrice <= 0 {
			return &ValidationError{Field: "stall.fixed_price", Message: "fixed price must be positive"}
		}
	default:
		return &ValidationError{Field: "stall.price_type", Message: "unknown price type: " + string(s.PriceType)}
	}
	return nil
}

// CustomerInfo is the exhibitor contact captured on the draft
type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
}
