package ratiostudy

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"appraisal/internal/types"
)

// StratifyBy selects how sales are grouped for stratified studies.
type StratifyBy string

const (
	ByNeighborhood StratifyBy = "neighborhood"
	ByValueTier    StratifyBy = "value_tier"
	ByPropertyType StratifyBy = "property_type"
)

// MinStratumSize is the smallest group that gets its own study.
const MinStratumSize = 3

// Value tiers, split on sale price quartiles.
var valueTiers = []string{"Low", "Medium-Low", "Medium-High", "High"}

// Stratum is one group's ratio study.
type Stratum struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Result Result `json:"result"`
}

// Stratify runs a ratio study per group. Groups smaller than MinStratumSize are
// skipped. Strata are ordered by key, except value tiers which keep tier order.
func Stratify(sales []types.SaleRecord, meta Metadata, cfg Config, by StratifyBy) ([]Stratum, error) {
	groups, order, err := group(sales, by)
	if err != nil {
		return nil, err
	}

	var out []Stratum
	for _, key := range order {
		members := groups[key]
		if len(members) < MinStratumSize {
			continue
		}
		m := meta
		switch by {
		case ByNeighborhood:
			m.Geography = key
		case ByPropertyType:
			m.PropertyType = key
		}
		res, err := Perform(members, m, cfg)
		if err != nil {
			return nil, fmt.Errorf("stratum %s: %w", key, err)
		}
		out = append(out, Stratum{Key: key, Count: len(members), Result: res})
	}
	return out, nil
}

func group(sales []types.SaleRecord, by StratifyBy) (map[string][]types.SaleRecord, []string, error) {
	groups := make(map[string][]types.SaleRecord)
	switch by {
	case ByNeighborhood:
		for _, s := range sales {
			key := strings.ToUpper(strings.TrimSpace(s.Neighborhood))
			if key == "" {
				key = "UNKNOWN"
			}
			groups[key] = append(groups[key], s)
		}
	case ByPropertyType:
		for _, s := range sales {
			key := types.NormalizeClass(s.PropertyType)
			if key == "" {
				key = "unknown"
			}
			groups[key] = append(groups[key], s)
		}
	case ByValueTier:
		if len(sales) == 0 {
			return groups, nil, nil
		}
		prices := make([]float64, len(sales))
		for i, s := range sales {
			prices[i] = s.SalePrice
		}
		sort.Float64s(prices)
		q1 := stat.Quantile(0.25, stat.Empirical, prices, nil)
		q2 := stat.Quantile(0.50, stat.Empirical, prices, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, prices, nil)
		for _, s := range sales {
			tier := valueTiers[3]
			switch {
			case s.SalePrice <= q1:
				tier = valueTiers[0]
			case s.SalePrice <= q2:
				tier = valueTiers[1]
			case s.SalePrice <= q3:
				tier = valueTiers[2]
			}
			groups[tier] = append(groups[tier], s)
		}
		return groups, valueTiers, nil
	default:
		return nil, nil, fmt.Errorf("unknown stratification %q", by)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys, nil
}
