// Package autocorr measures spatial autocorrelation of a property variable
// over a spatial weight matrix: global Moran's I, Geary's C and General G,
// local Moran (LISA) clusters and Getis-Ord Gi* hot spots.
package autocorr

import (
	"errors"
	"fmt"

	"appraisal/internal/monitoring"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
)

// DefaultSignificance is the α used when Options.Significance is zero.
const DefaultSignificance = 0.05

// Selector extracts the analysed variable from a property. ok is false when
// the property has no value, which drops it from the analysis.
type Selector func(p types.PropertyRecord) (v float64, ok bool)

// AssessedValue selects the assessed value.
func AssessedValue(p types.PropertyRecord) (float64, bool) {
	return p.AssessedValue, p.AssessedValue > 0
}

// Field selects a numeric field by its validation field name.
func Field(name string) Selector {
	return func(p types.PropertyRecord) (float64, bool) {
		return types.ToFloat(p.Fields()[name])
	}
}

// Options controls which statistics are computed.
type Options struct {
	Variable     string  `json:"variable"`
	Significance float64 `json:"significance"`
	Local        bool    `json:"local"`
	HotSpots     bool    `json:"hot_spots"`
}

// DefaultOptions computes every statistic at α = 0.05.
func DefaultOptions() Options {
	return Options{Variable: types.FieldAssessedValue, Significance: DefaultSignificance, Local: true, HotSpots: true}
}

func (o Options) alpha() float64 {
	if o.Significance <= 0 || o.Significance >= 1 {
		return DefaultSignificance
	}
	return o.Significance
}

// Result is the outcome of one analysis.
type Result struct {
	Variable string          `json:"variable"`
	N        int             `json:"n"`
	Dropped  int             `json:"dropped"`
	S0       float64         `json:"s0"`
	MoransI  Statistic       `json:"morans_i"`
	GearysC  Statistic       `json:"gearys_c"`
	GeneralG Statistic       `json:"general_g"`
	Local    []Local         `json:"local,omitempty"`
	HotSpots []HotSpotResult `json:"hot_spots,omitempty"`
	Clusters map[Cluster]int `json:"clusters,omitempty"`
	Spots    map[Spot]int    `json:"spots,omitempty"`
	Summary  string          `json:"summary"`
}

// LocalByID returns the LISA result of a property.
func (r Result) LocalByID(id string) (Local, bool) {
	for _, l := range r.Local {
		if l.ID == id {
			return l, true
		}
	}
	return Local{}, false
}

// Analyze runs the autocorrelation statistics for the properties that appear
// in the weight matrix and have a value under sel. Matrix entries without a
// value are removed along with their weights. Too little data produces
// degenerate statistics, not an error.
func Analyze(props []types.PropertyRecord, sel Selector, w *spatial.Matrix, opts Options) (Result, error) {
	if w == nil {
		return Result{}, errors.New("autocorrelation: nil weight matrix")
	}
	if sel == nil {
		return Result{}, errors.New("autocorrelation: nil variable selector")
	}

	x := make([]float64, w.Len())
	ok := make([]bool, w.Len())
	for _, p := range props {
		i, found := w.Lookup(p.ID)
		if !found {
			continue
		}
		if v, has := sel(p); has {
			x[i], ok[i] = v, true
		}
	}
	l := newLattice(w, x, ok)
	res := analyzeLattice(l, opts)
	res.Dropped = w.Len() - l.n()
	monitoring.Logf("autocorrelation: %s n=%d I=%.4f p=%.4f", res.Variable, res.N, res.MoransI.Value, res.MoransI.PValue)
	return res, nil
}

// AnalyzeValues runs the analysis on a vector indexed like the matrix.
func AnalyzeValues(w *spatial.Matrix, values []float64, opts Options) (Result, error) {
	if w == nil {
		return Result{}, errors.New("autocorrelation: nil weight matrix")
	}
	if len(values) != w.Len() {
		return Result{}, fmt.Errorf("autocorrelation: %d values for a %d-property matrix", len(values), w.Len())
	}
	return analyzeLattice(newLattice(w, values, allTrue(len(values))), opts), nil
}

// Moran computes global Moran's I of values indexed like the matrix.
func Moran(w *spatial.Matrix, values []float64, alpha float64) Statistic {
	if w == nil || len(values) != w.Len() {
		return degenerate(nameMoran, "values do not match the weight matrix")
	}
	l := newLattice(w, values, allTrue(len(values)))
	s0, s1, s2 := l.weightSums()
	return moransI(l, l.moments(), s0, s1, s2, alpha)
}

func allTrue(n int) []bool {
	ok := make([]bool, n)
	for i := range ok {
		ok[i] = true
	}
	return ok
}

func analyzeLattice(l *lattice, opts Options) Result {
	alpha := opts.alpha()
	res := Result{Variable: opts.Variable, N: l.n()}
	if l.n() == 0 {
		reason := "no located observations"
		res.MoransI = degenerate(nameMoran, reason)
		res.GearysC = degenerate(nameGeary, reason)
		res.GeneralG = degenerate(nameG, reason)
		res.Summary = res.MoransI.Interpretation
		return res
	}

	mo := l.moments()
	s0, s1, s2 := l.weightSums()
	res.S0 = s0
	res.MoransI = moransI(l, mo, s0, s1, s2, alpha)
	res.GearysC = gearysC(l, mo, s0, s1, s2, alpha)
	res.GeneralG = generalG(l, s0, s1, s2, alpha)

	if opts.Local && !res.MoransI.Degenerate && l.n() > 2 {
		res.Local = lisa(l, mo, alpha)
		res.Clusters = make(map[Cluster]int)
		for _, loc := range res.Local {
			res.Clusters[loc.Cluster]++
		}
	}
	if opts.HotSpots && mo.m2 > 0 && l.n() > 1 {
		res.HotSpots = giStar(l, mo, alpha)
		res.Spots = make(map[Spot]int)
		for _, h := range res.HotSpots {
			res.Spots[h.Class]++
		}
	}
	res.Summary = summarize(res)
	return res
}

// MoranByID computes global Moran's I of values keyed by property id, such as
// model residuals. Matrix entries without a value are left out.
func MoranByID(w *spatial.Matrix, values map[string]float64, alpha float64) Statistic {
	if w == nil {
		return degenerate(nameMoran, "no spatial weights")
	}
	x := make([]float64, w.Len())
	ok := make([]bool, w.Len())
	for id, v := range values {
		if i, found := w.Lookup(id); found {
			x[i], ok[i] = v, true
		}
	}
	l := newLattice(w, x, ok)
	s0, s1, s2 := l.weightSums()
	return moransI(l, l.moments(), s0, s1, s2, alpha)
}
