package types

import "time"

// Field names used by the validation engine and by remediation.
const (
	FieldID               = "id"
	FieldParcelID         = "parcel_id"
	FieldAddress          = "address"
	FieldCity             = "city"
	FieldState            = "state"
	FieldZip              = "zip"
	FieldNeighborhood     = "neighborhood"
	FieldLivingArea       = "living_area"
	FieldLotSize          = "lot_size"
	FieldYearBuilt        = "year_built"
	FieldBedrooms         = "bedrooms"
	FieldBathrooms        = "bathrooms"
	FieldAssessedValue    = "assessed_value"
	FieldMarketValue      = "market_value"
	FieldLandValue        = "land_value"
	FieldImprovementValue = "improvement_value"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldPropertyClass    = "property_class"
	FieldAssessmentYear   = "assessment_year"
	FieldSalePrice        = "sale_price"
	FieldSaleDate         = "sale_date"
)

// Fields flattens the record into a generic field map. Missing coordinates and
// a zero sale date are reported as nil so that "required" rules can see them.
func (p PropertyRecord) Fields() map[string]any {
	f := map[string]any{
		FieldID:               p.ID,
		FieldParcelID:         p.ParcelID,
		FieldAddress:          p.Address,
		FieldCity:             p.City,
		FieldState:            p.State,
		FieldZip:              p.Zip,
		FieldNeighborhood:     p.Neighborhood,
		FieldLivingArea:       p.LivingArea,
		FieldLotSize:          p.LotSize,
		FieldYearBuilt:        float64(p.YearBuilt),
		FieldBedrooms:         p.Bedrooms,
		FieldBathrooms:        p.Bathrooms,
		FieldAssessedValue:    p.AssessedValue,
		FieldMarketValue:      p.MarketValue,
		FieldLandValue:        p.LandValue,
		FieldImprovementValue: p.ImprovementValue,
		FieldLatitude:         nil,
		FieldLongitude:        nil,
		FieldPropertyClass:    p.PropertyClass,
		FieldAssessmentYear:   float64(p.AssessmentYear),
		FieldSalePrice:        p.SalePrice,
		FieldSaleDate:         nil,
	}
	if p.Latitude != nil {
		f[FieldLatitude] = *p.Latitude
	}
	if p.Longitude != nil {
		f[FieldLongitude] = *p.Longitude
	}
	if !p.SaleDate.IsZero() {
		f[FieldSaleDate] = p.SaleDate
	}
	return f
}

// WithFields returns a copy of p with any recognised fields in f applied.
// Values of the wrong type are ignored.
func (p PropertyRecord) WithFields(f map[string]any) PropertyRecord {
	out := p
	for k, v := range f {
		switch k {
		case FieldID:
			setString(&out.ID, v)
		case FieldParcelID:
			setString(&out.ParcelID, v)
		case FieldAddress:
			setString(&out.Address, v)
		case FieldCity:
			setString(&out.City, v)
		case FieldState:
			setString(&out.State, v)
		case FieldZip:
			setString(&out.Zip, v)
		case FieldNeighborhood:
			setString(&out.Neighborhood, v)
		case FieldPropertyClass:
			setString(&out.PropertyClass, v)
		case FieldLivingArea:
			setFloat(&out.LivingArea, v)
		case FieldLotSize:
			setFloat(&out.LotSize, v)
		case FieldBedrooms:
			setFloat(&out.Bedrooms, v)
		case FieldBathrooms:
			setFloat(&out.Bathrooms, v)
		case FieldAssessedValue:
			setFloat(&out.AssessedValue, v)
		case FieldMarketValue:
			setFloat(&out.MarketValue, v)
		case FieldLandValue:
			setFloat(&out.LandValue, v)
		case FieldImprovementValue:
			setFloat(&out.ImprovementValue, v)
		case FieldSalePrice:
			setFloat(&out.SalePrice, v)
		case FieldYearBuilt:
			if n, ok := ToFloat(v); ok {
				out.YearBuilt = int(n)
			}
		case FieldAssessmentYear:
			if n, ok := ToFloat(v); ok {
				out.AssessmentYear = int(n)
			}
		case FieldLatitude:
			if n, ok := ToFloat(v); ok {
				out.Latitude = Float(n)
			}
		case FieldLongitude:
			if n, ok := ToFloat(v); ok {
				out.Longitude = Float(n)
			}
		case FieldSaleDate:
			if t, ok := v.(time.Time); ok {
				out.SaleDate = t
			}
		}
	}
	return out
}

// ToFloat converts the numeric kinds that appear in field maps to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func setString(dst *string, v any) {
	if s, ok := v.(string); ok {
		*dst = s
	}
}

func setFloat(dst *float64, v any) {
	if n, ok := ToFloat(v); ok {
		*dst = n
	}
}
