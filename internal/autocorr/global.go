package autocorr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Statistic is one global autocorrelation test.
type Statistic struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	Expected       float64 `json:"expected"`
	Variance       float64 `json:"variance"`
	ZScore         float64 `json:"z_score"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	Degenerate     bool    `json:"degenerate,omitempty"`
	Interpretation string  `json:"interpretation"`
}

const (
	nameMoran = "Moran's I"
	nameGeary = "Geary's C"
	nameG     = "General G"
)

func degenerate(name, reason string) Statistic {
	return Statistic{
		Name:           name,
		PValue:         1,
		Degenerate:     true,
		Interpretation: fmt.Sprintf("%s cannot be calculated: %s", name, reason),
	}
}

// twoTailed returns the two-sided standard normal p-value of z.
func twoTailed(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// inference fills variance, z and p from an expected value and variance.
// Fewer than four observations leave the statistic without a test.
func (s *Statistic) inference(variance float64, n int, alpha float64) {
	s.Variance = finite(variance)
	if n < 4 || s.Variance <= 0 {
		s.ZScore, s.PValue = 0, 1
		return
	}
	s.ZScore = finite((s.Value - s.Expected) / math.Sqrt(s.Variance))
	s.PValue = twoTailed(s.ZScore)
	s.Significant = s.PValue < alpha
}

// checkLattice reports why no global statistic can be computed, if so.
func checkLattice(n int, s0 float64, mo moments) string {
	switch {
	case n < 2:
		return fmt.Sprintf("need at least 2 located observations, have %d", n)
	case s0 == 0:
		return "no location has a neighbour (S0 = 0)"
	case mo.m2 == 0:
		return "the variable has zero variance"
	}
	return ""
}

func moransI(l *lattice, mo moments, s0, s1, s2, alpha float64) Statistic {
	n := l.n()
	if reason := checkLattice(n, s0, mo); reason != "" {
		return degenerate(nameMoran, reason)
	}
	var cross float64
	for i, row := range l.nbrs {
		for _, nb := range row {
			cross += nb.Weight * mo.z[i] * mo.z[nb.Index]
		}
	}
	nf := float64(n)
	st := Statistic{
		Name:     nameMoran,
		Value:    finite(nf / s0 * cross / mo.ss),
		Expected: -1 / (nf - 1),
	}

	// randomisation assumption
	var variance float64
	if n > 3 {
		b2 := mo.kurtosis()
		num := nf*((nf*nf-3*nf+3)*s1-nf*s2+3*s0*s0) -
			b2*((nf*nf-nf)*s1-2*nf*s2+6*s0*s0)
		den := (nf - 1) * (nf - 2) * (nf - 3) * s0 * s0
		variance = num/den - st.Expected*st.Expected
	}
	st.inference(variance, n, alpha)
	st.Interpretation = InterpretMoran(st)
	return st
}

func gearysC(l *lattice, mo moments, s0, s1, s2, alpha float64) Statistic {
	n := l.n()
	if reason := checkLattice(n, s0, mo); reason != "" {
		return degenerate(nameGeary, reason)
	}
	var sq float64
	for i, row := range l.nbrs {
		for _, nb := range row {
			d := l.x[i] - l.x[nb.Index]
			sq += nb.Weight * d * d
		}
	}
	nf := float64(n)
	st := Statistic{
		Name:     nameGeary,
		Value:    finite((nf - 1) * sq / (2 * s0 * mo.ss)),
		Expected: 1,
	}

	// randomisation assumption
	var variance float64
	if n > 3 {
		b2 := mo.kurtosis()
		num := (nf-1)*s1*(nf*nf-3*nf+3-(nf-1)*b2) -
			0.25*(nf-1)*s2*(nf*nf+3*nf-6-(nf*nf-nf+2)*b2) +
			s0*s0*(nf*nf-3-(nf-1)*(nf-1)*b2)
		variance = num / (nf * (nf - 2) * (nf - 3) * s0 * s0)
	}
	st.inference(variance, n, alpha)
	st.Interpretation = InterpretGeary(st)
	return st
}

func generalG(l *lattice, s0, s1, s2, alpha float64) Statistic {
	n := l.n()
	if n < 2 {
		return degenerate(nameG, fmt.Sprintf("need at least 2 located observations, have %d", n))
	}
	if s0 == 0 {
		return degenerate(nameG, "no location has a neighbour (S0 = 0)")
	}
	var m1, m2, m3, m4 float64
	for _, v := range l.x {
		if v < 0 {
			return degenerate(nameG, "requires non-negative values")
		}
		m1 += v
		m2 += v * v
		m3 += v * v * v
		m4 += v * v * v * v
	}
	// Σ_{i≠j} x_i x_j
	denom := m1*m1 - m2
	if denom <= 0 {
		return degenerate(nameG, "fewer than two non-zero values")
	}
	var num float64
	for i, row := range l.nbrs {
		for _, nb := range row {
			num += nb.Weight * l.x[i] * l.x[nb.Index]
		}
	}
	nf := float64(n)
	st := Statistic{
		Name:     nameG,
		Value:    finite(num / denom),
		Expected: s0 / (nf * (nf - 1)),
	}

	var variance float64
	if n > 3 {
		s02 := s0 * s0
		b0 := (nf*nf-3*nf+3)*s1 - nf*s2 + 3*s02
		b1 := -((nf*nf-nf)*s1 - 2*nf*s2 + 6*s02)
		b2 := -(2*nf*s1 - (nf+3)*s2 + 6*s02)
		b3 := 4*(nf-1)*s1 - 2*(nf+1)*s2 + 8*s02
		b4 := s1 - s2 + s02
		eg2 := (b0*m2*m2 + b1*m4 + b2*m1*m1*m2 + b3*m1*m3 + b4*m1*m1*m1*m1) /
			(denom * denom * nf * (nf - 1) * (nf - 2) * (nf - 3))
		variance = eg2 - st.Expected*st.Expected
	}
	st.inference(variance, n, alpha)
	st.Interpretation = InterpretGeneralG(st)
	return st
}
