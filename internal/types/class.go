package types

import "strings"

// Property classes understood by the validation rule sets and the IAAO COD bands.
const (
	ClassResidential     = "residential"
	ClassIncomeProducing = "income_producing"
	ClassVacantLand      = "vacant_land"
)

// NormalizeClass maps free-form class names and Texas state use codes onto the
// three classes used for rule selection and compliance bands. Unknown values
// are returned lower-cased.
func NormalizeClass(s string) string {
	c := strings.ToLower(strings.TrimSpace(s))
	switch c {
	case "":
		return ""
	case ClassResidential, "res", "single_family", "single family":
		return ClassResidential
	case ClassIncomeProducing, "commercial", "industrial", "multifamily", "income":
		return ClassIncomeProducing
	case ClassVacantLand, "vacant", "land", "vacant land":
		return ClassVacantLand
	}

	// State use codes: A/B/E residential, C/D vacant or acreage, F/J/L commercial and industrial.
	switch strings.ToUpper(c[:1]) {
	case "A", "B", "E", "M":
		return ClassResidential
	case "C", "D":
		return ClassVacantLand
	case "F", "J", "L":
		return ClassIncomeProducing
	}
	return c
}
