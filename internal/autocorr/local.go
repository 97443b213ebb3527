package autocorr

import "math"

// Cluster is the LISA quadrant of a location.
type Cluster string

const (
	HighHigh       Cluster = "high-high"
	LowLow         Cluster = "low-low"
	HighLow        Cluster = "high-low"
	LowHigh        Cluster = "low-high"
	NotSignificant Cluster = "not-significant"
)

// Local is the local Moran statistic of one property.
type Local struct {
	ID       string  `json:"id"`
	Value    float64 `json:"value"`
	I        float64 `json:"i"`
	Expected float64 `json:"expected"`
	Variance float64 `json:"variance"`
	ZScore   float64 `json:"z_score"`
	PValue   float64 `json:"p_value"`
	Cluster  Cluster `json:"cluster"`
}

// Spot is the Getis-Ord hot/cold spot class of a location.
type Spot string

const (
	HotSpot  Spot = "hot_spot"
	ColdSpot Spot = "cold_spot"
	NoSpot   Spot = "not_significant"
)

// HotSpotResult is the Gi* z-score of one property.
type HotSpotResult struct {
	ID     string  `json:"id"`
	Value  float64 `json:"value"`
	GiStar float64 `json:"gi_star"`
	PValue float64 `json:"p_value"`
	Class  Spot    `json:"class"`

	// Confidence is the highest of 0.90, 0.95 and 0.99 the spot reaches, 0 otherwise.
	Confidence float64 `json:"confidence"`
}

func lisa(l *lattice, mo moments, alpha float64) []Local {
	n := l.n()
	nf := float64(n)
	b2 := mo.kurtosis()
	out := make([]Local, n)
	parallelFor(n, func(i int) {
		var lag, wi, wi2 float64
		for _, nb := range l.nbrs[i] {
			lag += nb.Weight * mo.z[nb.Index]
			wi += nb.Weight
			wi2 += nb.Weight * nb.Weight
		}
		loc := Local{
			ID:       l.ids[i],
			Value:    l.x[i],
			I:        finite(mo.z[i] / mo.m2 * lag),
			Expected: -wi / (nf - 1),
			PValue:   1,
			Cluster:  NotSignificant,
		}
		wikh := wi*wi - wi2
		variance := wi2*(nf-b2)/(nf-1) + wikh*(2*b2-nf)/((nf-1)*(nf-2)) - loc.Expected*loc.Expected
		loc.Variance = finite(variance)
		if loc.Variance > 0 {
			loc.ZScore = finite((loc.I - loc.Expected) / math.Sqrt(loc.Variance))
			loc.PValue = twoTailed(loc.ZScore)
		}
		if loc.PValue < alpha {
			loc.Cluster = quadrant(mo.z[i], lag)
		}
		out[i] = loc
	})
	return out
}

func quadrant(z, lag float64) Cluster {
	switch {
	case z > 0 && lag > 0:
		return HighHigh
	case z < 0 && lag < 0:
		return LowLow
	case z > 0 && lag < 0:
		return HighLow
	case z < 0 && lag > 0:
		return LowHigh
	}
	return NotSignificant
}

// giStar computes Getis-Ord Gi* with each location counted in its own
// neighbourhood. The self weight is the largest weight in the row, or 1 for
// an isolated location.
func giStar(l *lattice, mo moments, alpha float64) []HotSpotResult {
	n := l.n()
	nf := float64(n)
	var sq float64
	for _, v := range l.x {
		sq += v * v
	}
	s := math.Sqrt(math.Max(sq/nf-mo.mean*mo.mean, 0))

	out := make([]HotSpotResult, n)
	parallelFor(n, func(i int) {
		self := 0.0
		for _, nb := range l.nbrs[i] {
			self = math.Max(self, nb.Weight)
		}
		if self == 0 {
			self = 1
		}
		wi, wi2, wx := self, self*self, self*l.x[i]
		for _, nb := range l.nbrs[i] {
			wi += nb.Weight
			wi2 += nb.Weight * nb.Weight
			wx += nb.Weight * l.x[nb.Index]
		}
		h := HotSpotResult{ID: l.ids[i], Value: l.x[i], PValue: 1, Class: NoSpot}
		den := s * math.Sqrt((nf*wi2-wi*wi)/(nf-1))
		if den > 0 {
			h.GiStar = finite((wx - mo.mean*wi) / den)
			h.PValue = twoTailed(h.GiStar)
		}
		if h.PValue < alpha {
			h.Class = HotSpot
			if h.GiStar < 0 {
				h.Class = ColdSpot
			}
		}
		switch {
		case h.PValue < 0.01:
			h.Confidence = 0.99
		case h.PValue < 0.05:
			h.Confidence = 0.95
		case h.PValue < 0.10:
			h.Confidence = 0.90
		}
		out[i] = h
	})
	return out
}
