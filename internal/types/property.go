package types

import "time"

// PropertyRecord holds one parcel as supplied by a property data source.
// The analysis packages treat it as read-only.
type PropertyRecord struct {
	ID       string
	ParcelID string

	Address      string
	City         string
	State        string
	Zip          string
	Neighborhood string

	LivingArea float64
	LotSize    float64
	YearBuilt  int
	Bedrooms   float64
	Bathrooms  float64

	AssessedValue    float64
	MarketValue      float64
	LandValue        float64
	ImprovementValue float64

	// Coordinates are optional; nil means the parcel is not geocoded.
	Latitude  *float64
	Longitude *float64

	PropertyClass  string
	AssessmentYear int

	SalePrice float64
	SaleDate  time.Time
}

// HasCoordinates reports whether both latitude and longitude are present.
func (p PropertyRecord) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// HasValidSale reports whether the record carries a usable sale.
func (p PropertyRecord) HasValidSale() bool {
	return p.SalePrice > 0 && p.AssessedValue > 0 && !p.SaleDate.IsZero()
}

// SaleRecord is a sale paired with the assessment in force at the time of sale.
type SaleRecord struct {
	ID             string
	ParcelID       string
	AssessedValue  float64
	SalePrice      float64
	SaleDate       time.Time
	PropertyType   string
	Neighborhood   string
	Latitude       *float64
	Longitude      *float64
	AssessmentYear int

	// TimeAdjustment multiplies the sale price when set.
	TimeAdjustment *float64
}

// SalesFromProperties derives sale records from the properties that have valid sale data.
func SalesFromProperties(props []PropertyRecord) []SaleRecord {
	var sales []SaleRecord
	for _, p := range props {
		if !p.HasValidSale() {
			continue
		}
		sales = append(sales, SaleRecord{
			ID:             p.ID,
			ParcelID:       p.ParcelID,
			AssessedValue:  p.AssessedValue,
			SalePrice:      p.SalePrice,
			SaleDate:       p.SaleDate,
			PropertyType:   p.PropertyClass,
			Neighborhood:   p.Neighborhood,
			Latitude:       p.Latitude,
			Longitude:      p.Longitude,
			AssessmentYear: p.AssessmentYear,
		})
	}
	return sales
}

// Float returns a pointer to v. Handy for optional coordinates.
func Float(v float64) *float64 { return &v }
