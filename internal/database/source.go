// Package database loads property records from the appraisal district's
// Oracle tables, a PostgreSQL property table or the district's pipe-delimited
// export files.
package database

import (
	"context"
	"sort"
	"strings"

	"appraisal/internal/types"
)

// Filter narrows the properties a source returns. The zero value returns all.
type Filter struct {
	Subdivision string
	Limit       int
}

func (f Filter) matches(p types.PropertyRecord) bool {
	return f.Subdivision == "" || strings.EqualFold(strings.TrimSpace(p.Neighborhood), strings.TrimSpace(f.Subdivision))
}

// PropertySource supplies the properties for an analysis run.
type PropertySource interface {
	Properties(ctx context.Context, f Filter) ([]types.PropertyRecord, error)
	Close() error
}

// Column names shared by the Oracle tables and the export files.
const (
	colAccount      = "Account_Num"
	colSupAccount   = "AccountNumber"
	colAddress      = "Situs_Address"
	colSubdivision  = "SubdivisionName"
	colCity         = "City"
	colLandValue    = "Land_Value"
	colImprovement  = "Improvement_Value"
	colTotalValue   = "Total_Value"
	colAppraised    = "Appraised_Value"
	colDeedDate     = "Deed_Date"
	colYearBuilt    = "Year_Built"
	colLivingArea   = "Living_Area"
	colBedrooms     = "Num_Bedrooms"
	colBathrooms    = "Num_Bathrooms"
	colClass        = "Property_Class"
	colStateUseCode = "State_Use_Code"
	colLandSqFt     = "Land_SqFt"
	colLatitude     = "Latitude"
	colLongitude    = "Longitude"
	colLastSaleDate = "LastSaleDate"
	colSalePrice    = "Sale_Price"
	colYear         = "Appraisal_Year"
)

// districtState is the state every district record belongs to.
const districtState = "TX"

// fromColumns converts one district record, keyed by column name, into a
// property. Records without an account number are rejected.
func fromColumns(rec map[string]string) (types.PropertyRecord, bool) {
	acct := strings.TrimSpace(rec[colAccount])
	if acct == "" {
		return types.PropertyRecord{}, false
	}
	dollar := func(col string) float64 {
		v, _ := types.ParseDollar(rec[col])
		return v
	}

	p := types.PropertyRecord{
		ID:               acct,
		ParcelID:         acct,
		Address:          types.Normalize(rec[colAddress]),
		City:             strings.TrimSpace(rec[colCity]),
		State:            districtState,
		Neighborhood:     strings.TrimSpace(rec[colSubdivision]),
		LivingArea:       dollar(colLivingArea),
		LotSize:          dollar(colLandSqFt),
		YearBuilt:        types.ParseInt(rec[colYearBuilt]),
		Bedrooms:         dollar(colBedrooms),
		Bathrooms:        dollar(colBathrooms),
		AssessedValue:    dollar(colTotalValue),
		MarketValue:      dollar(colAppraised),
		LandValue:        dollar(colLandValue),
		ImprovementValue: dollar(colImprovement),
		AssessmentYear:   types.ParseInt(rec[colYear]),
		SalePrice:        dollar(colSalePrice),
	}

	// State use codes classify more reliably than the free-form class column.
	p.PropertyClass = types.NormalizeClass(rec[colStateUseCode])
	if p.PropertyClass == "" {
		p.PropertyClass = types.NormalizeClass(rec[colClass])
	}

	if lat, lon, ok := types.ParseLatLon(rec[colLatitude], rec[colLongitude]); ok && (lat != 0 || lon != 0) {
		p.Latitude, p.Longitude = types.Float(lat), types.Float(lon)
	}

	if d, ok := types.ParseDate(rec[colLastSaleDate]); ok {
		p.SaleDate = d
	} else if d, ok := types.ParseDate(rec[colDeedDate]); ok && p.SalePrice > 0 {
		p.SaleDate = d
	}
	return p, true
}

// finish applies the filter, orders by account and enforces the limit.
func finish(props []types.PropertyRecord, f Filter) []types.PropertyRecord {
	out := props[:0]
	for _, p := range props {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
