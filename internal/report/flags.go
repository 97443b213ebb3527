package report

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"

	"appraisal/internal/appraisal"
	"appraisal/internal/autocorr"
	"appraisal/internal/types"
)

// Review thresholds.
const (
	// MinComparables is the smallest neighbour set a neighbour comparison uses.
	MinComparables = 3
	// ModelTolerance is how far an assessment may sit from the model value.
	ModelTolerance = 0.15
)

// Acceptable range for an individual sale ratio.
var ratioLow, ratioHigh = 0.90, 1.10

// Flag is a property worth a second look, with the reasons why.
type Flag struct {
	Property types.PropertyRecord

	NeighborCount int
	NeighborMean  float64
	NeighborStd   float64

	Ratio     *float64
	Predicted *float64
	Cluster   autocorr.Cluster
	Reasons   []string
}

// Summary is a one-line listing of the flag.
func (f Flag) Summary() string {
	addr := f.Property.Address
	if addr == "" {
		addr = f.Property.ID
	}
	return fmt.Sprintf("%-40.40s %-20.20s $%11.0f  %s", addr, f.Property.Neighborhood, f.Property.AssessedValue, f.Reasons[0])
}

// FlagProperties lists properties whose assessment stands out from their
// neighbours, their sale or the model, in input order. Stages that were
// skipped contribute no reasons.
func FlagProperties(res *appraisal.Results, props []types.PropertyRecord) []Flag {
	m := res.Matrix()
	assessed := make(map[string]float64, len(props))
	for _, p := range props {
		assessed[p.ID] = p.AssessedValue
	}
	predicted := make(map[string]float64, len(res.Predictions))
	for _, pr := range res.Predictions {
		predicted[pr.ID] = pr.Value
	}
	clusters := make(map[string]autocorr.Cluster)
	if ac := res.Autocorrelation; ac != nil {
		for _, l := range ac.Local {
			clusters[l.ID] = l.Cluster
		}
	}

	var flags []Flag
	for _, p := range props {
		if p.AssessedValue <= 0 {
			continue
		}
		f := Flag{Property: p}

		if m != nil {
			if i, ok := m.Lookup(p.ID); ok {
				var vals []float64
				for _, nb := range m.Neighbors(i) {
					if v := assessed[m.ID(nb.Index)]; v > 0 {
						vals = append(vals, v)
					}
				}
				if len(vals) >= MinComparables {
					f.NeighborCount = len(vals)
					f.NeighborMean, f.NeighborStd = stat.PopMeanStdDev(vals, nil)
					switch {
					case p.AssessedValue < f.NeighborMean-f.NeighborStd:
						f.Reasons = append(f.Reasons, fmt.Sprintf("%.0f%% below %d neighbours", 100*(1-p.AssessedValue/f.NeighborMean), f.NeighborCount))
					case p.AssessedValue > f.NeighborMean+f.NeighborStd:
						f.Reasons = append(f.Reasons, fmt.Sprintf("%.0f%% above %d neighbours", 100*(p.AssessedValue/f.NeighborMean-1), f.NeighborCount))
					}
				}
			}
		}

		if c := clusters[p.ID]; c == autocorr.HighLow || c == autocorr.LowHigh {
			f.Cluster = c
			f.Reasons = append(f.Reasons, fmt.Sprintf("spatial outlier (%s)", c))
		}

		if p.HasValidSale() {
			r := p.AssessedValue / p.SalePrice
			f.Ratio = &r
			if r < ratioLow || r > ratioHigh {
				f.Reasons = append(f.Reasons, fmt.Sprintf("sale ratio %.3f", r))
			}
		}

		if v, ok := predicted[p.ID]; ok && v > 0 {
			f.Predicted = &v
			if math.Abs(p.AssessedValue/v-1) > ModelTolerance {
				f.Reasons = append(f.Reasons, fmt.Sprintf("%+.0f%% from model value $%.0f", 100*(p.AssessedValue/v-1), v))
			}
		}

		if len(f.Reasons) > 0 {
			flags = append(flags, f)
		}
	}
	return flags
}

// RenderFlag prints the details of one flagged property.
func RenderFlag(w io.Writer, f Flag, colour bool) {
	p := palette(colour)
	prop := f.Property

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Address           : %s\n", prop.Address)
	fmt.Fprintf(w, "Account           : %s\n", prop.ID)
	fmt.Fprintf(w, "Neighbourhood     : %s\n", prop.Neighborhood)
	fmt.Fprintf(w, "Class             : %s\n", prop.PropertyClass)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Assessed Value    : $%.0f\n", prop.AssessedValue)
	fmt.Fprintf(w, "  Improvement     : $%.0f\n", prop.ImprovementValue)
	fmt.Fprintf(w, "  Land            : $%.0f\n", prop.LandValue)
	fmt.Fprintf(w, "Year Built        : %d\n", prop.YearBuilt)
	fmt.Fprintf(w, "Living Area (sf)  : %.0f\n", prop.LivingArea)
	fmt.Fprintf(w, "Bedrooms/Bath     : %.0f / %.1f\n", prop.Bedrooms, prop.Bathrooms)
	fmt.Fprintln(w)

	if f.NeighborCount > 0 {
		fmt.Fprintf(w, "Neighbours        : %d, mean $%.0f, std dev $%.0f\n", f.NeighborCount, f.NeighborMean, f.NeighborStd)
	}
	if f.Ratio != nil {
		fmt.Fprintf(w, "Sale              : $%.0f on %s, ratio %.3f\n", prop.SalePrice, prop.SaleDate.Format("2006-01-02"), *f.Ratio)
	}
	if f.Predicted != nil {
		fmt.Fprintf(w, "Model Value       : $%.0f\n", *f.Predicted)
	}
	for _, r := range f.Reasons {
		fmt.Fprintf(w, "  %s\n", p.wrap(colorRed, r))
	}
	fmt.Fprintln(w, rule)
}
