package spatial

import "sort"

// Neighbor is one non-zero entry of a weight matrix row.
type Neighbor struct {
	Index      int     `json:"index"`
	Weight     float64 `json:"weight"`
	DistanceKm float64 `json:"distance_km"`
}

// Matrix is a sparse spatial weight matrix stored as an arena of property ids
// with a neighbour list per index. It is read-only once built and safe for
// concurrent readers.
type Matrix struct {
	ids          []string
	index        map[string]int
	neighbors    [][]Neighbor
	rowSums      []float64
	standardized bool
}

// Len is the number of properties in the matrix.
func (m *Matrix) Len() int { return len(m.ids) }

// ID returns the property id at index i.
func (m *Matrix) ID(i int) string { return m.ids[i] }

// IDs returns the property ids in index order.
func (m *Matrix) IDs() []string { return append([]string(nil), m.ids...) }

// Lookup returns the index of a property id.
func (m *Matrix) Lookup(id string) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// Neighbors returns row i ordered by neighbour index. Callers must not modify it.
func (m *Matrix) Neighbors(i int) []Neighbor { return m.neighbors[i] }

// RowSum is the sum of row i: 1 for a standardized row, 0 for an isolated property.
func (m *Matrix) RowSum(i int) float64 { return m.rowSums[i] }

// Standardized reports whether rows were divided by their sums.
func (m *Matrix) Standardized() bool { return m.standardized }

// Weight returns w(i,j), zero when j is not a neighbour of i.
func (m *Matrix) Weight(i, j int) float64 {
	row := m.neighbors[i]
	k := sort.Search(len(row), func(k int) bool { return row[k].Index >= j })
	if k < len(row) && row[k].Index == j {
		return row[k].Weight
	}
	return 0
}

// S0 is the sum of all weights.
func (m *Matrix) S0() float64 {
	var s float64
	for _, r := range m.rowSums {
		s += r
	}
	return s
}

// Isolated returns the ids of properties with no neighbours.
func (m *Matrix) Isolated() []string {
	var out []string
	for i, row := range m.neighbors {
		if len(row) == 0 {
			out = append(out, m.ids[i])
		}
	}
	return out
}

// AverageNeighbors is the mean neighbour count per property.
func (m *Matrix) AverageNeighbors() float64 {
	if len(m.ids) == 0 {
		return 0
	}
	var n int
	for _, row := range m.neighbors {
		n += len(row)
	}
	return float64(n) / float64(len(m.ids))
}

// AsMap returns the nested id → neighbour id → weight form used by hosts.
func (m *Matrix) AsMap() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m.ids))
	for i, row := range m.neighbors {
		inner := make(map[string]float64, len(row))
		for _, n := range row {
			inner[m.ids[n.Index]] = n.Weight
		}
		out[m.ids[i]] = inner
	}
	return out
}

// Lag returns the spatial lag Wx. values must be indexed like the matrix.
func (m *Matrix) Lag(values []float64) []float64 {
	lag := make([]float64, len(m.ids))
	for i, row := range m.neighbors {
		var s float64
		for _, n := range row {
			s += n.Weight * values[n.Index]
		}
		lag[i] = s
	}
	return lag
}
