package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSalesFromProperties(t *testing.T) {
	saleDate := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	props := []PropertyRecord{
		{ID: "a", AssessedValue: 200000, SalePrice: 210000, SaleDate: saleDate, PropertyClass: "residential"},
		{ID: "b", AssessedValue: 200000, SalePrice: 0, SaleDate: saleDate},
		{ID: "c", AssessedValue: 0, SalePrice: 150000, SaleDate: saleDate},
		{ID: "d", AssessedValue: 90000, SalePrice: 100000},
	}

	sales := SalesFromProperties(props)
	require.Len(t, sales, 1)
	assert.Equal(t, "a", sales[0].ID)
	assert.Equal(t, "residential", sales[0].PropertyType)
	assert.Equal(t, 210000.0, sales[0].SalePrice)
}

func TestFieldsRoundTrip(t *testing.T) {
	p := PropertyRecord{
		ID:            "p1",
		AssessedValue: 100,
		YearBuilt:     1990,
		Latitude:      Float(32.7),
	}

	f := p.Fields()
	assert.Equal(t, 100.0, f[FieldAssessedValue])
	assert.Equal(t, 1990.0, f[FieldYearBuilt])
	assert.Equal(t, 32.7, f[FieldLatitude])
	assert.Nil(t, f[FieldLongitude])
	assert.Nil(t, f[FieldSaleDate])

	q := p.WithFields(map[string]any{
		FieldAssessedValue: 150.0,
		FieldYearBuilt:     2001,
		FieldLongitude:     -97.3,
		FieldCity:          42, // wrong type, ignored
	})
	assert.Equal(t, 150.0, q.AssessedValue)
	assert.Equal(t, 2001, q.YearBuilt)
	require.NotNil(t, q.Longitude)
	assert.Equal(t, -97.3, *q.Longitude)
	assert.Equal(t, "", q.City)

	// original untouched
	assert.Equal(t, 100.0, p.AssessedValue)
	assert.Nil(t, p.Longitude)
}

func TestParseHelpers(t *testing.T) {
	v, ok := ParseDollar(" $1,234,500 ")
	assert.True(t, ok)
	assert.Equal(t, 1234500.0, v)

	_, ok = ParseDollar("")
	assert.False(t, ok)

	lat, lon, ok := ParseLatLon("32.75", " -97.33")
	assert.True(t, ok)
	assert.Equal(t, 32.75, lat)
	assert.Equal(t, -97.33, lon)

	_, _, ok = ParseLatLon("", "-97")
	assert.False(t, ok)

	d, ok := ParseDate("03-15-2021")
	assert.True(t, ok)
	assert.Equal(t, time.March, d.Month())

	_, ok = ParseDate("not a date")
	assert.False(t, ok)

	assert.Equal(t, "123 MAIN ST FORT WORTH", Normalize(" 123  Main St, Fort Worth "))
	assert.Equal(t, 0, ParseInt("n/a"))
}

func TestNormalizeClass(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"Residential": ClassResidential,
		"A1":          ClassResidential,
		"commercial":  ClassIncomeProducing,
		"F1":          ClassIncomeProducing,
		"C1":          ClassVacantLand,
		"Vacant Land": ClassVacantLand,
		"X9":          "x9",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeClass(in), "input %q", in)
	}
}
