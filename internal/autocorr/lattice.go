package autocorr

import (
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"appraisal/internal/spatial"
)

// lattice is the weight structure restricted to the locations that have a
// value, re-indexed densely so every statistic can loop over 0..n-1.
type lattice struct {
	ids  []string
	x    []float64
	nbrs [][]spatial.Neighbor
}

// newLattice keeps matrix index i when ok[i] is true.
func newLattice(m *spatial.Matrix, x []float64, ok []bool) *lattice {
	remap := make([]int, m.Len())
	l := &lattice{}
	for i := 0; i < m.Len(); i++ {
		remap[i] = -1
		if ok[i] {
			remap[i] = len(l.ids)
			l.ids = append(l.ids, m.ID(i))
			l.x = append(l.x, x[i])
		}
	}
	l.nbrs = make([][]spatial.Neighbor, len(l.ids))
	for i := 0; i < m.Len(); i++ {
		if remap[i] < 0 {
			continue
		}
		var row []spatial.Neighbor
		for _, n := range m.Neighbors(i) {
			if j := remap[n.Index]; j >= 0 {
				row = append(row, spatial.Neighbor{Index: j, Weight: n.Weight, DistanceKm: n.DistanceKm})
			}
		}
		l.nbrs[remap[i]] = row
	}
	return l
}

func (l *lattice) n() int { return len(l.x) }

// moments holds the deviations from the mean and their central moments.
type moments struct {
	mean float64
	z    []float64
	m2   float64 // Σz²/n
	m4   float64 // Σz⁴/n
	ss   float64 // Σz²
}

func (l *lattice) moments() moments {
	n := float64(l.n())
	var mo moments
	for _, v := range l.x {
		mo.mean += v
	}
	mo.mean /= n
	mo.z = make([]float64, l.n())
	for i, v := range l.x {
		d := v - mo.mean
		mo.z[i] = d
		mo.ss += d * d
		mo.m4 += d * d * d * d
	}
	mo.m2 = mo.ss / n
	mo.m4 /= n
	// treat round-off noise around a constant vector as zero variance
	if mo.m2 <= 1e-12*math.Max(1, mo.mean*mo.mean) {
		mo.m2, mo.ss = 0, 0
	}
	return mo
}

// kurtosis is m4/m2², the b2 term of the randomisation variances.
func (mo moments) kurtosis() float64 {
	if mo.m2 == 0 {
		return 0
	}
	return mo.m4 / (mo.m2 * mo.m2)
}

// weightSums returns S0, S1 and S2 over the lattice.
func (l *lattice) weightSums() (s0, s1, s2 float64) {
	n := l.n()
	rowSum := make([]float64, n)
	colSum := make([]float64, n)
	for i, row := range l.nbrs {
		for _, nb := range row {
			w := nb.Weight
			s0 += w
			rowSum[i] += w
			colSum[nb.Index] += w
			wji := l.weight(nb.Index, i)
			s1 += (w + wji) * (w + wji)
		}
	}
	// pairs where only w_ji is non-zero were not visited from row i
	for i, row := range l.nbrs {
		for _, nb := range row {
			if l.weight(nb.Index, i) == 0 {
				s1 += nb.Weight * nb.Weight
			}
		}
	}
	s1 /= 2
	for i := 0; i < n; i++ {
		t := rowSum[i] + colSum[i]
		s2 += t * t
	}
	return s0, s1, s2
}

// weight relies on rows staying ordered by index after the remap.
func (l *lattice) weight(i, j int) float64 {
	row := l.nbrs[i]
	k := sort.Search(len(row), func(k int) bool { return row[k].Index >= j })
	if k < len(row) && row[k].Index == j {
		return row[k].Weight
	}
	return 0
}

func (l *lattice) rowSum(i int) float64 {
	var s float64
	for _, nb := range l.nbrs[i] {
		s += nb.Weight
	}
	return s
}

// parallelFor runs fn for every index on a CPU-bounded pool. fn must only
// write state owned by its index.
func parallelFor(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
