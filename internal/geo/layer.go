// Package geo loads polygon layers from shapefiles and tags properties with
// the attributes of the polygon they fall in.
package geo

import (
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	shp "github.com/jonas-p/go-shp"
)

// CRS names the coordinate system of a layer.
type CRS string

const (
	WGS84             CRS = "wgs84"
	TexasNorthCentral CRS = "epsg:2276"
)

// Feature is a polygon (possibly multi-part) together with its attribute
// table values.
type Feature struct {
	Parts [][][2]float64    // Each part is a closed ring of [y, x] points
	Attrs map[string]string // DBF attribute values keyed by field name
	MinY  float64
	MinX  float64
	MaxY  float64
	MaxX  float64
}

// Layer is one shapefile's polygons.
type Layer struct {
	Name     string
	CRS      CRS
	Features []Feature
}

// LoadLayer reads the polygons of the shapefile at path. The coordinate
// system comes from the .prj file next to it, or failing that from the
// magnitude of the coordinates.
func LoadLayer(path string) (*Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()

	layer := &Layer{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		// Split the flat points slice into parts.
		numParts := len(poly.Parts)
		parts := make([][][2]float64, numParts)

		minY, minX := math.MaxFloat64, math.MaxFloat64
		maxY, maxX := -math.MaxFloat64, -math.MaxFloat64

		for partIdx := 0; partIdx < numParts; partIdx++ {
			start := poly.Parts[partIdx]
			end := int32(len(poly.Points))
			if partIdx+1 < numParts {
				end = poly.Parts[partIdx+1]
			}
			ring := make([][2]float64, 0, int(end-start))
			for i := start; i < end; i++ {
				pt := poly.Points[i]
				ring = append(ring, [2]float64{pt.Y, pt.X})
				minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
				minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			}
			parts[partIdx] = ring
		}

		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			// DBF text is padded with spaces or NULs
			attrs[f.String()] = strings.Trim(r.ReadAttribute(idx, i), " \x00")
		}

		layer.Features = append(layer.Features, Feature{
			Parts: parts,
			Attrs: attrs,
			MinY:  minY,
			MinX:  minX,
			MaxY:  maxY,
			MaxX:  maxX,
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}

	layer.CRS = detectCRS(path, r.BBox())
	return layer, nil
}

func detectCRS(path string, box shp.Box) CRS {
	prj, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
	if err == nil {
		s := strings.ToUpper(string(prj))
		if strings.Contains(s, "LAMBERT") || strings.Contains(s, "NORTH_CENTRAL") {
			return TexasNorthCentral
		}
		if strings.HasPrefix(strings.TrimSpace(s), "GEOGCS") {
			return WGS84
		}
	}
	if math.Abs(box.MinX) > 360 || math.Abs(box.MaxX) > 360 || math.Abs(box.MaxY) > 360 {
		return TexasNorthCentral
	}
	return WGS84
}

// LoadLayers loads every .shp file below dir in path order.
func LoadLayers(dir string) ([]*Layer, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	layers := make([]*Layer, 0, len(paths))
	for _, p := range paths {
		l, err := LoadLayer(p)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// Locate returns the attributes of the first polygon containing the WGS-84
// point.
func (l *Layer) Locate(lat, lon float64) (map[string]string, bool) {
	y, x := lat, lon
	if l.CRS == TexasNorthCentral {
		y, x = ToTexasNorthCentral(lat, lon)
	}
	for _, f := range l.Features {
		if y < f.MinY || y > f.MaxY || x < f.MinX || x > f.MaxX {
			continue // quick bbox reject
		}
		for _, ring := range f.Parts {
			if pointInPolygon(y, x, ring) {
				return f.Attrs, true
			}
		}
	}
	return nil, false
}

// pointInPolygon implements the ray-casting algorithm. Shapefile rings are
// closed but closure is not required.
func pointInPolygon(y, x float64, ring [][2]float64) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		yi, xi := ring[i][0], ring[i][1]
		yj, xj := ring[j][0], ring[j][1]
		intersect := ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi)+xi)
		if intersect {
			inside = !inside
		}
		j = i
	}
	return inside
}
