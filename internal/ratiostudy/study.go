package ratiostudy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"appraisal/internal/types"
)

// minPRBSales is the smallest sample for which the PRB regression is reported.
const minPRBSales = 5

// Band is an inclusive acceptable range for a statistic.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies in the band.
func (b Band) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// IAAO acceptable ranges.
var (
	PRDBand = Band{Min: 0.98, Max: 1.03}
	PRBBand = Band{Min: -0.05, Max: 0.05}
)

// CODBand returns the IAAO COD range for a property class. Unknown classes
// use the residential band.
func CODBand(propertyType string) Band {
	switch types.NormalizeClass(propertyType) {
	case types.ClassIncomeProducing:
		return Band{Min: 5, Max: 20}
	case types.ClassVacantLand:
		return Band{Min: 5, Max: 25}
	}
	return Band{Min: 5, Max: 15}
}

// Interval is a two-sided confidence interval around the mean ratio.
type Interval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Percentiles of the trimmed ratio distribution.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// Compliance breaks the IAAO check into its parts.
type Compliance struct {
	COD     bool `json:"cod"`
	PRD     bool `json:"prd"`
	PRB     bool `json:"prb"`
	Overall bool `json:"overall"`
}

// Result is an immutable ratio study outcome.
type Result struct {
	Metadata Metadata `json:"metadata"`

	SampleSize   int `json:"sample_size"`
	TrimmedCount int `json:"trimmed_count"`

	MedianRatio       float64 `json:"median_ratio"`
	MeanRatio         float64 `json:"mean_ratio"`
	WeightedMeanRatio float64 `json:"weighted_mean_ratio"`
	MinRatio          float64 `json:"min_ratio"`
	MaxRatio          float64 `json:"max_ratio"`

	COD float64 `json:"cod"`
	PRD float64 `json:"prd"`
	PRB float64 `json:"prb"`
	COV float64 `json:"cov"`

	ConfidenceInterval Interval    `json:"confidence_interval"`
	Percentiles        Percentiles `json:"percentiles"`

	IAAOCompliant bool       `json:"iaao_compliant"`
	Compliance    Compliance `json:"compliance"`

	// PRBCalculated is false when the sample was too small or had no spread.
	PRBCalculated bool `json:"prb_calculated"`

	Degenerate     bool     `json:"degenerate"`
	Interpretation string   `json:"interpretation"`
	Notes          []string `json:"notes,omitempty"`
}

// PRDInterpretation classifies vertical equity from the PRD.
func (r Result) PRDInterpretation() string {
	switch {
	case r.Degenerate || r.PRD == 0:
		return "PRD cannot be calculated"
	case r.PRD > PRDBand.Max:
		return "regressive: high-value properties are under-assessed relative to low-value properties"
	case r.PRD < PRDBand.Min:
		return "progressive: high-value properties are over-assessed relative to low-value properties"
	}
	return "acceptable vertical equity"
}

// pair is one sale after filtering and time adjustment.
type pair struct {
	sale     types.SaleRecord
	assessed float64
	price    float64
	ratio    float64
}

// Perform runs a ratio study over sales. Configuration errors are returned;
// insufficient data yields a degenerate Result and a nil error.
func Perform(sales []types.SaleRecord, meta Metadata, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("ratio study config: %w", err)
	}

	res := Result{Metadata: meta}

	pairs := preparePairs(sales, cfg)
	if len(pairs) == 0 {
		res.Degenerate = true
		res.Interpretation = "ratio statistics cannot be calculated: no valid sales"
		return res, nil
	}

	all := make([]float64, len(pairs))
	var sumAssessed, sumPrice float64
	for i, p := range pairs {
		all[i] = p.ratio
		sumAssessed += p.assessed
		sumPrice += p.price
	}

	kept := all
	if cfg.TrimOutliers {
		var dropped int
		kept, dropped = trimMAD(all, cfg.outlierThreshold())
		res.TrimmedCount = dropped
	}

	sorted := append([]float64(nil), kept...)
	sort.Float64s(sorted)

	res.SampleSize = len(sorted)
	res.MedianRatio = median(sorted)
	res.MeanRatio = stat.Mean(sorted, nil)
	res.MinRatio = sorted[0]
	res.MaxRatio = sorted[len(sorted)-1]
	res.WeightedMeanRatio = safeDiv(sumAssessed, sumPrice)
	res.PRD = safeDiv(res.MeanRatio, res.WeightedMeanRatio)
	res.Percentiles = percentiles(sorted)

	sd := 0.0
	if len(sorted) > 1 {
		sd = stat.StdDev(sorted, nil)
	}

	if sd == 0 || res.MedianRatio == 0 {
		res.Degenerate = true
		res.Interpretation = "COD cannot be calculated: ratios have zero variance"
		if res.MedianRatio == 0 {
			res.Interpretation = "COD cannot be calculated: median ratio is zero"
		}
		res.ConfidenceInterval = Interval{Level: cfg.confidenceLevel(), Lower: res.MeanRatio, Upper: res.MeanRatio}
		res.Notes = append(res.Notes, "PRB cannot be calculated: ratios have zero variance")
		return res, nil
	}

	res.COD = cod(sorted, res.MedianRatio)
	res.COV = 100 * safeDiv(sd, res.MeanRatio)
	res.ConfidenceInterval = confidenceInterval(res.MeanRatio, sd, len(sorted), cfg.confidenceLevel())

	prices := make([]float64, len(pairs))
	for i, p := range pairs {
		prices[i] = p.price
	}
	if prb, ok, note := priceRelatedBias(all, prices); ok {
		res.PRB = prb
		res.PRBCalculated = true
	} else {
		res.Notes = append(res.Notes, note)
	}

	res.Compliance = Compliance{
		COD: CODBand(meta.PropertyType).Contains(res.COD),
		PRD: PRDBand.Contains(res.PRD),
		PRB: !res.PRBCalculated || PRBBand.Contains(res.PRB),
	}
	res.Compliance.Overall = res.Compliance.COD && res.Compliance.PRD && res.Compliance.PRB
	res.IAAOCompliant = res.Compliance.Overall
	res.Interpretation = interpret(res)
	return res, nil
}

// preparePairs filters sales, applies time adjustment and computes ratios.
// Sales without a positive price or assessment are dropped.
func preparePairs(sales []types.SaleRecord, cfg Config) []pair {
	var candidates []types.SaleRecord
	for _, s := range sales {
		if cfg.Filter != nil && !cfg.Filter(s) {
			continue
		}
		if s.SalePrice <= 0 || s.AssessedValue <= 0 {
			continue
		}
		candidates = append(candidates, s)
	}

	var reference time.Time
	for _, s := range candidates {
		if s.SaleDate.After(reference) {
			reference = s.SaleDate
		}
	}

	pairs := make([]pair, 0, len(candidates))
	for _, s := range candidates {
		price := adjustPrice(s, reference, cfg.TimeAdjustment)
		if s.TimeAdjustment != nil && *s.TimeAdjustment > 0 {
			price *= *s.TimeAdjustment
		}
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		pairs = append(pairs, pair{
			sale:     s,
			assessed: s.AssessedValue,
			price:    price,
			ratio:    s.AssessedValue / price,
		})
	}
	return pairs
}

// adjustPrice compounds the per-period rate over the time between the sale
// and the reference date.
func adjustPrice(s types.SaleRecord, reference time.Time, adj TimeAdjustment) float64 {
	switch adj.Method {
	case AdjustCustom:
		return adj.Func(s, reference)
	case AdjustMonthly, AdjustQuarterly:
		if s.SaleDate.IsZero() || reference.IsZero() {
			return s.SalePrice
		}
		periods := monthsBetween(s.SaleDate, reference)
		if adj.Method == AdjustQuarterly {
			periods /= 3
		}
		return s.SalePrice * math.Pow(1+adj.Rate, periods)
	}
	return s.SalePrice
}

const daysPerMonth = 365.25 / 12

func monthsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / daysPerMonth
}

// trimMAD drops ratios further than k median absolute deviations from the
// median. A zero MAD leaves the set untouched.
func trimMAD(ratios []float64, k float64) ([]float64, int) {
	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)
	med := median(sorted)

	dev := make([]float64, len(sorted))
	for i, r := range sorted {
		dev[i] = math.Abs(r - med)
	}
	sort.Float64s(dev)
	mad := median(dev)
	if mad == 0 {
		return ratios, 0
	}

	kept := make([]float64, 0, len(ratios))
	for _, r := range ratios {
		if math.Abs(r-med) <= k*mad {
			kept = append(kept, r)
		}
	}
	return kept, len(ratios) - len(kept)
}

// cod is 100 × mean absolute deviation from the median, over the median.
func cod(ratios []float64, med float64) float64 {
	var sum float64
	for _, r := range ratios {
		sum += math.Abs(r - med)
	}
	return 100 * safeDiv(sum/float64(len(ratios)), med)
}

// priceRelatedBias regresses the centred ratio on the centred log sale price
// and returns the slope.
func priceRelatedBias(ratios, prices []float64) (float64, bool, string) {
	if len(ratios) < minPRBSales {
		return 0, false, fmt.Sprintf("PRB cannot be calculated: fewer than %d sales", minPRBSales)
	}
	logs := make([]float64, len(prices))
	for i, p := range prices {
		logs[i] = math.Log(p)
	}
	meanLog := stat.Mean(logs, nil)
	meanRatio := stat.Mean(ratios, nil)

	x := make([]float64, len(logs))
	y := make([]float64, len(ratios))
	for i := range logs {
		x[i] = logs[i] - meanLog
		y[i] = ratios[i] - meanRatio
	}
	if stat.Variance(x, nil) == 0 {
		return 0, false, "PRB cannot be calculated: sale prices have zero variance"
	}
	if stat.Variance(y, nil) == 0 {
		return 0, false, "PRB cannot be calculated: ratios have zero variance"
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false, "PRB cannot be calculated: regression did not converge"
	}
	return slope, true, ""
}

func percentiles(sorted []float64) Percentiles {
	q := func(p float64) float64 { return stat.Quantile(p, stat.Empirical, sorted, nil) }
	return Percentiles{P10: q(0.10), P25: q(0.25), P50: q(0.50), P75: q(0.75), P90: q(0.90)}
}

// median of an already sorted slice; averages the middle pair for even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func interpret(r Result) string {
	level := "appropriate"
	switch {
	case r.MedianRatio < 0.90:
		level = "below the 0.90 to 1.10 target"
	case r.MedianRatio > 1.10:
		level = "above the 0.90 to 1.10 target"
	}
	uniformity := "meets"
	if !r.Compliance.COD {
		uniformity = "does not meet"
	}
	return fmt.Sprintf("assessment level %.3f is %s; COD %.2f %s the IAAO standard; %s",
		r.MedianRatio, level, r.COD, uniformity, r.PRDInterpretation())
}
