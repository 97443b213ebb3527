package spatial

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"appraisal/internal/types"
)

// Method selects how neighbours are chosen.
type Method string

const (
	KNearest     Method = "knn"
	DistanceBand Method = "distance_band"
)

// Decay attenuates neighbour weights with distance.
type Decay string

const (
	DecayNone           Decay = "none"
	DecayInverse        Decay = "inverse"
	DecayInverseSquared Decay = "inverse_squared"
	DecayGaussian       Decay = "gaussian"
)

// DefaultK is the neighbour count used when Config.K is zero.
const DefaultK = 5

// minDistanceKm stands in for the distance between coincident parcels
// (condominium units share a centroid) so inverse decays stay finite.
const minDistanceKm = 0.001

var (
	ErrUnknownMethod = errors.New("unknown spatial weight method")
	ErrUnknownDecay  = errors.New("unknown distance decay")
	ErrDuplicateID   = errors.New("duplicate property id")
)

// Config describes how to build a weight matrix.
type Config struct {
	Method Method  `json:"method"`
	K      int     `json:"k,omitempty"`
	BandKm float64 `json:"band_km,omitempty"`
	Decay  Decay   `json:"decay,omitempty"`
	// BandwidthKm is the Gaussian kernel bandwidth. When zero the band radius
	// is used, or for k-nearest the distance to the k-th neighbour.
	BandwidthKm    float64 `json:"bandwidth_km,omitempty"`
	RowStandardize bool    `json:"row_standardize"`
}

// DefaultConfig is five nearest neighbours, unweighted, row-standardized.
func DefaultConfig() Config {
	return Config{Method: KNearest, K: DefaultK, Decay: DecayNone, RowStandardize: true}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch c.Method {
	case KNearest:
		if c.K < 0 {
			return fmt.Errorf("k must be positive, got %d", c.K)
		}
	case DistanceBand:
		if c.BandKm <= 0 {
			return fmt.Errorf("distance band must be positive, got %.3f km", c.BandKm)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, c.Method)
	}
	switch c.Decay {
	case "", DecayNone, DecayInverse, DecayInverseSquared, DecayGaussian:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDecay, c.Decay)
	}
	if c.BandwidthKm < 0 {
		return fmt.Errorf("bandwidth must not be negative")
	}
	return nil
}

func (c Config) k() int {
	if c.K == 0 {
		return DefaultK
	}
	return c.K
}

// Point is a geocoded property.
type Point struct {
	ID  string
	Lat float64
	Lon float64
}

// PointsFromProperties returns a point per property with coordinates, in input order.
func PointsFromProperties(props []types.PropertyRecord) []Point {
	pts := make([]Point, 0, len(props))
	for _, p := range props {
		if !p.HasCoordinates() {
			continue
		}
		pts = append(pts, Point{ID: p.ID, Lat: *p.Latitude, Lon: *p.Longitude})
	}
	return pts
}

// Build constructs a sparse weight matrix over points. Points are indexed in
// input order; ids must be unique.
func Build(points []Point, cfg Config) (*Matrix, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("spatial weights: %w", err)
	}

	m := &Matrix{
		ids:          make([]string, len(points)),
		index:        make(map[string]int, len(points)),
		neighbors:    make([][]Neighbor, len(points)),
		rowSums:      make([]float64, len(points)),
		standardized: cfg.RowStandardize,
	}
	for i, p := range points {
		if _, dup := m.index[p.ID]; dup {
			return nil, fmt.Errorf("spatial weights: %w %q", ErrDuplicateID, p.ID)
		}
		m.ids[i] = p.ID
		m.index[p.ID] = i
	}

	// Rows are independent; each goroutine writes only its own row.
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range points {
		g.Go(func() error {
			row := neighborsOf(points[i], i, points, cfg)
			var sum float64
			for _, n := range row {
				sum += n.Weight
			}
			if cfg.RowStandardize && sum > 0 {
				for j := range row {
					row[j].Weight /= sum
				}
				sum = 1
			}
			m.neighbors[i] = row
			m.rowSums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// NeighborsOf selects and weights the neighbours of origin among points, as
// Build would for a row. Points sharing origin's id are skipped, so a model
// can find the neighbours of a property that was not part of the matrix.
func NeighborsOf(origin Point, points []Point, cfg Config) ([]Neighbor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("spatial weights: %w", err)
	}
	return neighborsOf(origin, -1, points, cfg), nil
}

// neighborsOf selects and weights the neighbours of origin, ordered by index.
// skip is the origin's own index, or -1.
func neighborsOf(origin Point, skip int, points []Point, cfg Config) []Neighbor {
	cands := make([]Neighbor, 0, len(points))
	for j, p := range points {
		if j == skip || (skip < 0 && p.ID == origin.ID) {
			continue
		}
		d := DistanceKm(origin.Lat, origin.Lon, p.Lat, p.Lon)
		if cfg.Method == DistanceBand && d > cfg.BandKm {
			continue
		}
		cands = append(cands, Neighbor{Index: j, DistanceKm: d})
	}

	if cfg.Method == KNearest {
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].DistanceKm == cands[b].DistanceKm {
				return cands[a].Index < cands[b].Index
			}
			return cands[a].DistanceKm < cands[b].DistanceKm
		})
		if k := cfg.k(); len(cands) > k {
			cands = cands[:k]
		}
	}

	bandwidth := cfg.BandwidthKm
	if bandwidth == 0 {
		if cfg.Method == DistanceBand {
			bandwidth = cfg.BandKm
		} else if len(cands) > 0 {
			bandwidth = cands[len(cands)-1].DistanceKm
		}
	}
	for j := range cands {
		cands[j].Weight = decayWeight(cands[j].DistanceKm, cfg.Decay, bandwidth)
	}

	sort.Slice(cands, func(a, b int) bool { return cands[a].Index < cands[b].Index })
	return cands
}

func decayWeight(d float64, decay Decay, bandwidth float64) float64 {
	d = math.Max(d, minDistanceKm)
	switch decay {
	case DecayInverse:
		return 1 / d
	case DecayInverseSquared:
		return 1 / (d * d)
	case DecayGaussian:
		if bandwidth <= 0 {
			return 1
		}
		z := d / bandwidth
		return math.Exp(-0.5 * z * z)
	}
	return 1
}
