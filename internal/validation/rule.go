package validation

import (
	"fmt"
	"regexp"
	"strings"

	"appraisal/internal/types"
)

// Severity ranks a rule failure. Only SeverityError and SeverityCritical make a
// record invalid.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a failure at this severity invalidates a record.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Kind selects which variant of Rule is populated.
type Kind string

const (
	KindRange        Kind = "range"
	KindPattern      Kind = "pattern"
	KindRequired     Kind = "required"
	KindCustom       Kind = "custom"
	KindRelationship Kind = "relationship"
)

// Record is the generic field map the engine validates.
type Record = map[string]any

// Rule is a tagged union over the five rule kinds. Kind decides which of the
// remaining fields are meaningful; function-valued fields are not serialized.
type Rule struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"kind"`
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`

	// Optional rules pass when the field is absent or nil.
	Optional bool `json:"optional,omitempty"`

	// range
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// pattern
	Pattern string `json:"pattern,omitempty"`

	// relationship
	Fields []string `json:"fields,omitempty"`

	// Predicate is the extra range check or the custom rule's test.
	Predicate func(value any) bool `json:"-"`
	// Relation is the joint test of a relationship rule over Fields.
	Relation func(values map[string]any) bool `json:"-"`
	// Remediate proposes a replacement for a failing value.
	Remediate func(value any, rec Record) any `json:"-"`

	re *regexp.Regexp
}

// Range builds a numeric bounds rule. Either bound may be nil.
func Range(field string, sev Severity, min, max *float64) Rule {
	return Rule{
		Name:     field + "_range",
		Kind:     KindRange,
		Field:    field,
		Severity: sev,
		Min:      min,
		Max:      max,
	}
}

// Pattern builds a regular-expression rule. The expression must compile.
func Pattern(field string, sev Severity, expr string) Rule {
	return Rule{
		Name:     field + "_pattern",
		Kind:     KindPattern,
		Field:    field,
		Severity: sev,
		Pattern:  expr,
		re:       regexp.MustCompile(expr),
	}
}

// Required builds a presence rule.
func Required(field string, sev Severity) Rule {
	return Rule{
		Name:     field + "_required",
		Kind:     KindRequired,
		Field:    field,
		Severity: sev,
	}
}

// Custom builds a predicate rule with an optional remediation callback.
func Custom(name, field string, sev Severity, pred func(any) bool, fix func(any, Record) any) Rule {
	return Rule{
		Name:      name,
		Kind:      KindCustom,
		Field:     field,
		Severity:  sev,
		Predicate: pred,
		Remediate: fix,
	}
}

// Relationship builds a joint rule over fields. Failures are reported against field.
func Relationship(name, field string, sev Severity, fields []string, rel func(map[string]any) bool) Rule {
	return Rule{
		Name:     name,
		Kind:     KindRelationship,
		Field:    field,
		Severity: sev,
		Fields:   fields,
		Relation: rel,
	}
}

// WithMessage returns a copy of r with a custom failure message.
func (r Rule) WithMessage(msg string) Rule {
	r.Message = msg
	return r
}

// Result is the outcome of one rule against one record.
type Result struct {
	Rule           string   `json:"rule"`
	Kind           Kind     `json:"kind"`
	Field          string   `json:"field"`
	Passed         bool     `json:"passed"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message,omitempty"`
	OriginalValue  any      `json:"original_value"`
	SuggestedValue any      `json:"suggested_value,omitempty"`
}

// Evaluate applies r to rec.
func (r Rule) Evaluate(rec Record) Result {
	value, present := rec[r.Field]
	res := Result{
		Rule:          r.Name,
		Kind:          r.Kind,
		Field:         r.Field,
		Passed:        true,
		Severity:      r.Severity,
		OriginalValue: value,
	}

	if r.Optional && (!present || value == nil) && r.Kind != KindRelationship {
		return res
	}

	var msg string
	switch r.Kind {
	case KindRange:
		msg, res.SuggestedValue = r.evalRange(value)
	case KindPattern:
		msg = r.evalPattern(value)
	case KindRequired:
		if isEmpty(value) {
			msg = fmt.Sprintf("%s is required", r.Field)
		}
	case KindCustom:
		if r.Predicate != nil && !r.Predicate(value) {
			msg = fmt.Sprintf("%s failed check %s", r.Field, r.Name)
			if r.Remediate != nil {
				res.SuggestedValue = r.Remediate(value, rec)
			}
		}
	case KindRelationship:
		msg = r.evalRelationship(rec)
		if msg != "" && r.Remediate != nil {
			res.SuggestedValue = r.Remediate(value, rec)
		}
	default:
		msg = fmt.Sprintf("unknown rule kind %q", r.Kind)
	}

	if msg != "" {
		res.Passed = false
		res.Message = msg
		if r.Message != "" {
			res.Message = r.Message
		}
	}
	return res
}

func (r Rule) evalRange(value any) (string, any) {
	v, ok := types.ToFloat(value)
	if !ok {
		return fmt.Sprintf("%s is not numeric", r.Field), nil
	}
	if r.Min != nil && v < *r.Min {
		return fmt.Sprintf("%s %.2f is below minimum %.2f", r.Field, v, *r.Min), *r.Min
	}
	if r.Max != nil && v > *r.Max {
		return fmt.Sprintf("%s %.2f is above maximum %.2f", r.Field, v, *r.Max), *r.Max
	}
	if r.Predicate != nil && !r.Predicate(value) {
		return fmt.Sprintf("%s %.2f failed check %s", r.Field, v, r.Name), nil
	}
	return "", nil
}

func (r Rule) evalPattern(value any) string {
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%s is not a string", r.Field)
	}
	re := r.re
	if re == nil {
		var err error
		if re, err = regexp.Compile(r.Pattern); err != nil {
			return fmt.Sprintf("invalid pattern for %s: %v", r.Field, err)
		}
	}
	if !re.MatchString(s) {
		return fmt.Sprintf("%s %q does not match %s", r.Field, s, r.Pattern)
	}
	return ""
}

func (r Rule) evalRelationship(rec Record) string {
	if r.Relation == nil {
		return ""
	}
	vals := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		vals[f] = rec[f]
	}
	if !r.Relation(vals) {
		return fmt.Sprintf("relationship %s failed for %s", r.Name, strings.Join(r.Fields, ", "))
	}
	return ""
}

func isEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	}
	return false
}
