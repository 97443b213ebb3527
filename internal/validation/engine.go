package validation

import (
	"fmt"
	"sort"

	"appraisal/internal/types"
)

// RuleSet is a base list of rules plus extra rules keyed by normalized property class.
type RuleSet struct {
	Name   string            `json:"name"`
	Rules  []Rule            `json:"rules"`
	ByType map[string][]Rule `json:"by_type,omitempty"`
}

// ForType returns the base rules followed by any rules registered for class.
func (rs RuleSet) ForType(class string) []Rule {
	extra := rs.ByType[types.NormalizeClass(class)]
	out := make([]Rule, 0, len(rs.Rules)+len(extra))
	out = append(out, rs.Rules...)
	return append(out, extra...)
}

// Extend returns a copy of rs with rules added for class.
func (rs RuleSet) Extend(class string, rules ...Rule) RuleSet {
	byType := make(map[string][]Rule, len(rs.ByType)+1)
	for k, v := range rs.ByType {
		byType[k] = v
	}
	key := types.NormalizeClass(class)
	byType[key] = append(append([]Rule(nil), byType[key]...), rules...)
	return RuleSet{Name: rs.Name, Rules: rs.Rules, ByType: byType}
}

// Summary aggregates the rule results for one record.
type Summary struct {
	EntityID   string           `json:"entity_id"`
	Valid      bool             `json:"valid"`
	Results    []Result         `json:"results"`
	Failed     int              `json:"failed"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Failures returns only the failing results.
func (s Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Report aggregates summaries across a dataset.
type Report struct {
	RuleSet    string           `json:"rule_set"`
	Total      int              `json:"total"`
	Valid      int              `json:"valid"`
	Invalid    int              `json:"invalid"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByField    map[string]int   `json:"by_field"`
	Summaries  []Summary        `json:"summaries"`
}

// Issue is a field with its failure count, used to rank data problems.
type Issue struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// Issues ranks failing fields by frequency, most frequent first.
func (r Report) Issues() []Issue {
	out := make([]Issue, 0, len(r.ByField))
	for f, n := range r.ByField {
		out = append(out, Issue{Field: f, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Field < out[j].Field
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// Validate evaluates every applicable rule against rec. Rules for the record's
// property class are included when the record carries one.
func Validate(rec Record, rs RuleSet) Summary {
	class, _ := rec[types.FieldPropertyClass].(string)
	rules := rs.ForType(class)

	s := Summary{
		EntityID:   entityID(rec),
		Valid:      true,
		Results:    make([]Result, 0, len(rules)),
		BySeverity: make(map[Severity]int),
	}
	for _, rule := range rules {
		res := rule.Evaluate(rec)
		s.Results = append(s.Results, res)
		if res.Passed {
			continue
		}
		s.Failed++
		s.BySeverity[res.Severity]++
		if res.Severity.Blocking() {
			s.Valid = false
		}
	}
	return s
}

// ValidateBatch validates every record and aggregates the outcome.
func ValidateBatch(records []Record, rs RuleSet) Report {
	rep := Report{
		RuleSet:    rs.Name,
		Total:      len(records),
		BySeverity: make(map[Severity]int),
		ByField:    make(map[string]int),
		Summaries:  make([]Summary, 0, len(records)),
	}
	for _, rec := range records {
		s := Validate(rec, rs)
		if s.Valid {
			rep.Valid++
		} else {
			rep.Invalid++
		}
		for sev, n := range s.BySeverity {
			rep.BySeverity[sev] += n
		}
		for _, f := range s.Failures() {
			rep.ByField[f.Field]++
		}
		rep.Summaries = append(rep.Summaries, s)
	}
	return rep
}

// ValidateProperties is ValidateBatch over property records.
func ValidateProperties(props []types.PropertyRecord, rs RuleSet) Report {
	recs := make([]Record, len(props))
	for i, p := range props {
		recs[i] = p.Fields()
	}
	return ValidateBatch(recs, rs)
}

// Remediate returns a new record with every suggested value from summary applied.
// The input record is not modified.
func Remediate(rec Record, summary Summary) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, r := range summary.Results {
		if r.SuggestedValue != nil {
			out[r.Field] = r.SuggestedValue
		}
	}
	return out
}

// RemediateProperty applies the suggestions in summary to a copy of p.
func RemediateProperty(p types.PropertyRecord, summary Summary) types.PropertyRecord {
	fixes := make(map[string]any)
	for _, r := range summary.Results {
		if r.SuggestedValue != nil {
			fixes[r.Field] = r.SuggestedValue
		}
	}
	return p.WithFields(fixes)
}

func entityID(rec Record) string {
	if id, ok := rec[types.FieldID]; ok && id != nil {
		return fmt.Sprint(id)
	}
	return ""
}
