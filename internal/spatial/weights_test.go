package spatial

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/internal/types"
)

// grid returns an n×n lattice of points 0.01° apart near downtown Fort Worth.
func grid(n int) []Point {
	var pts []Point
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			pts = append(pts, Point{
				ID:  fmt.Sprintf("p%d_%d", r, c),
				Lat: 32.75 + 0.01*float64(r),
				Lon: -97.33 + 0.01*float64(c),
			})
		}
	}
	return pts
}

func assertRowSums(t *testing.T, m *Matrix) {
	t.Helper()
	for i := 0; i < m.Len(); i++ {
		var s float64
		for _, n := range m.Neighbors(i) {
			assert.GreaterOrEqual(t, n.Weight, 0.0)
			s += n.Weight
		}
		if len(m.Neighbors(i)) == 0 {
			assert.Zero(t, s)
			assert.Zero(t, m.RowSum(i))
			continue
		}
		assert.InDelta(t, 1.0, s, 1e-9, "row %s", m.ID(i))
		assert.InDelta(t, 1.0, m.RowSum(i), 1e-9)
	}
}

func TestDistance(t *testing.T) {
	// Fort Worth to Dallas city halls, roughly 30 miles.
	d := DistanceMiles(32.7555, -97.3308, 32.7767, -96.7970)
	assert.InDelta(t, 31.0, d, 1.0)
	assert.InDelta(t, d*1.609344, DistanceKm(32.7555, -97.3308, 32.7767, -96.7970), 0.1)
	assert.Zero(t, DistanceKm(10, 10, 10, 10))
}

func TestBuildKNearest(t *testing.T) {
	m, err := Build(grid(3), Config{Method: KNearest, K: 4, RowStandardize: true})
	require.NoError(t, err)
	require.Equal(t, 9, m.Len())

	centre, ok := m.Lookup("p1_1")
	require.True(t, ok)
	row := m.Neighbors(centre)
	require.Len(t, row, 4)
	got := map[string]bool{}
	for _, n := range row {
		got[m.ID(n.Index)] = true
		assert.InDelta(t, 0.25, n.Weight, 1e-12)
	}
	// The four rook neighbours are nearer than the diagonals.
	for _, id := range []string{"p0_1", "p1_0", "p1_2", "p2_1"} {
		assert.True(t, got[id], "missing %s", id)
	}
	assertRowSums(t, m)
	assert.InDelta(t, float64(m.Len()), m.S0(), 1e-9)
	assert.InDelta(t, 4.0, m.AverageNeighbors(), 1e-12)
}

func TestBuildDistanceBandWithIsolate(t *testing.T) {
	pts := append(grid(2), Point{ID: "far", Lat: 33.5, Lon: -96.0})
	m, err := Build(pts, Config{Method: DistanceBand, BandKm: 1.6, Decay: DecayInverse, RowStandardize: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"far"}, m.Isolated())
	assertRowSums(t, m)

	// Nearer neighbours weigh more under inverse decay.
	i, _ := m.Lookup("p0_0")
	lat, _ := m.Lookup("p1_0")  // ~1.11 km
	diag, _ := m.Lookup("p1_1") // ~1.45 km
	assert.Greater(t, m.Weight(i, lat), m.Weight(i, diag))
	assert.Zero(t, m.Weight(i, i))
}

func TestBuildUnstandardized(t *testing.T) {
	m, err := Build(grid(2), Config{Method: KNearest, K: 2})
	require.NoError(t, err)
	for i := 0; i < m.Len(); i++ {
		assert.InDelta(t, 2.0, m.RowSum(i), 1e-12)
	}
	assert.False(t, m.Standardized())
}

func TestDecayWeights(t *testing.T) {
	assert.Equal(t, 1.0, decayWeight(2, DecayNone, 0))
	assert.InDelta(t, 0.5, decayWeight(2, DecayInverse, 0), 1e-12)
	assert.InDelta(t, 0.25, decayWeight(2, DecayInverseSquared, 0), 1e-12)
	assert.InDelta(t, math.Exp(-0.5), decayWeight(2, DecayGaussian, 2), 1e-12)
	assert.InDelta(t, 1/minDistanceKm, decayWeight(0, DecayInverse, 0), 1e-9)
}

func TestBuildConfigErrors(t *testing.T) {
	_, err := Build(grid(2), Config{Method: "queen"})
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = Build(grid(2), Config{Method: DistanceBand})
	assert.Error(t, err)

	_, err = Build(grid(2), Config{Method: KNearest, K: -1})
	assert.Error(t, err)

	_, err = Build(grid(2), Config{Method: KNearest, Decay: "cubic"})
	assert.ErrorIs(t, err, ErrUnknownDecay)

	_, err = Build([]Point{{ID: "a"}, {ID: "a", Lat: 1}}, DefaultConfig())
	assert.Error(t, err)
}

func TestPointsFromProperties(t *testing.T) {
	props := []types.PropertyRecord{
		{ID: "a", Latitude: types.Float(32.7), Longitude: types.Float(-97.3)},
		{ID: "b", Latitude: types.Float(32.7)},
		{ID: "c"},
	}
	pts := PointsFromProperties(props)
	require.Len(t, pts, 1)
	assert.Equal(t, "a", pts[0].ID)
}

func TestBuildDuplicateID(t *testing.T) {
	pts := grid(2)
	pts[3].ID = pts[0].ID
	_, err := Build(pts, DefaultConfig())
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Contains(t, err.Error(), pts[0].ID)
}

func TestLagAndAsMap(t *testing.T) {
	m, err := Build(grid(2), Config{Method: KNearest, K: 3, RowStandardize: true})
	require.NoError(t, err)

	values := []float64{1, 2, 3, 4}
	lag := m.Lag(values)
	// every point neighbours all three others
	for i := range values {
		assert.InDelta(t, (10-values[i])/3, lag[i], 1e-12)
	}

	asMap := m.AsMap()
	assert.Len(t, asMap, 4)
	assert.InDelta(t, 1.0/3, asMap["p0_0"]["p1_1"], 1e-12)
}

func TestNeighborsOfOutsidePoint(t *testing.T) {
	pts := grid(3)
	origin := Point{ID: "new", Lat: 32.7501, Lon: -97.3301}
	row, err := NeighborsOf(origin, pts, Config{Method: KNearest, K: 2})
	require.NoError(t, err)
	require.Len(t, row, 2)
	assert.Equal(t, "p0_0", pts[row[0].Index].ID)
	for _, n := range row {
		assert.Equal(t, 1.0, n.Weight)
	}

	// a point already in the set never neighbours itself
	row, err = NeighborsOf(pts[4], pts, Config{Method: KNearest, K: 8})
	require.NoError(t, err)
	assert.Len(t, row, 8)
	for _, n := range row {
		assert.NotEqual(t, 4, n.Index)
	}

	_, err = NeighborsOf(origin, pts, Config{Method: "queen"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}
