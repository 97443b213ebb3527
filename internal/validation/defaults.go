package validation

import (
	"math"
	"time"

	"appraisal/internal/types"
)

func bound(v float64) *float64 { return &v }

// valueTolerance is how far land + improvement may drift from the assessed total
// before the components check reports it.
const valueTolerance = 0.05

// DefaultPropertyRules returns the rule set applied to appraisal-district
// property records when the caller does not supply one.
func DefaultPropertyRules() RuleSet {
	maxYear := float64(time.Now().Year() + 1)

	base := []Rule{
		Required(types.FieldID, SeverityCritical),
		Required(types.FieldParcelID, SeverityError),
		Pattern(types.FieldParcelID, SeverityWarning, `^[A-Za-z0-9][A-Za-z0-9.\-]*$`),
		Range(types.FieldAssessedValue, SeverityError, bound(0), bound(1e10)),
		Range(types.FieldLandValue, SeverityError, bound(0), nil),
		Range(types.FieldImprovementValue, SeverityError, bound(0), nil),
		Range(types.FieldLivingArea, SeverityWarning, bound(0), bound(100000)),
		Range(types.FieldSalePrice, SeverityError, bound(0), nil),
		Custom("year_built_plausible", types.FieldYearBuilt, SeverityWarning,
			func(v any) bool {
				y, ok := types.ToFloat(v)
				// zero means unknown, which is normal for land
				return ok && (y == 0 || (y >= 1800 && y <= maxYear))
			}, nil),
		optional(Range(types.FieldLatitude, SeverityError, bound(-90), bound(90))),
		optional(Range(types.FieldLongitude, SeverityError, bound(-180), bound(180))),
		Relationship("land_within_assessed", types.FieldLandValue, SeverityError,
			[]string{types.FieldLandValue, types.FieldAssessedValue},
			func(v map[string]any) bool {
				land, ok1 := types.ToFloat(v[types.FieldLandValue])
				total, ok2 := types.ToFloat(v[types.FieldAssessedValue])
				return !ok1 || !ok2 || land <= total
			}),
		Relationship("improvement_within_assessed", types.FieldImprovementValue, SeverityWarning,
			[]string{types.FieldImprovementValue, types.FieldAssessedValue},
			func(v map[string]any) bool {
				imp, ok1 := types.ToFloat(v[types.FieldImprovementValue])
				total, ok2 := types.ToFloat(v[types.FieldAssessedValue])
				return !ok1 || !ok2 || imp <= total
			}),
		Relationship("components_sum_to_assessed", types.FieldAssessedValue, SeverityInfo,
			[]string{types.FieldLandValue, types.FieldImprovementValue, types.FieldAssessedValue},
			componentsMatch),
	}

	rs := RuleSet{Name: "property-default", Rules: base}

	rs = rs.Extend(types.ClassResidential,
		Custom("residential_living_area", types.FieldLivingArea, SeverityWarning,
			func(v any) bool {
				a, ok := types.ToFloat(v)
				return ok && a > 0
			}, nil),
	)

	rs = rs.Extend(types.ClassVacantLand,
		Custom("vacant_land_no_improvements", types.FieldImprovementValue, SeverityError,
			func(v any) bool {
				imp, ok := types.ToFloat(v)
				return ok && imp <= 0
			},
			func(any, Record) any { return 0.0 }).
			WithMessage("vacant land must not carry an improvement value"),
	)

	rs = rs.Extend(types.ClassIncomeProducing,
		Range(types.FieldAssessedValue, SeverityWarning, bound(1000), nil),
	)
	return rs
}

func optional(r Rule) Rule {
	r.Optional = true
	return r
}

// componentsMatch passes when land + improvement is within valueTolerance of the
// assessed total, or when any part is missing or the components are both zero.
func componentsMatch(v map[string]any) bool {
	land, ok1 := types.ToFloat(v[types.FieldLandValue])
	imp, ok2 := types.ToFloat(v[types.FieldImprovementValue])
	total, ok3 := types.ToFloat(v[types.FieldAssessedValue])
	if !ok1 || !ok2 || !ok3 || total <= 0 || land+imp == 0 {
		return true
	}
	return math.Abs(land+imp-total)/total <= valueTolerance
}
