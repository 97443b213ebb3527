package geo

import (
	"appraisal/internal/monitoring"
	"appraisal/internal/types"
)

// DefaultAttributes are the attribute names tried, in order, when tagging
// neighbourhoods: district neighbourhood codes, subdivisions, then zoning.
var DefaultAttributes = []string{"NBHD", "NEIGHBORHOOD", "SUBDIVISION", "SUBDIV_NAM", "ZONING", "BASE_ZONIN"}

// Attribute returns the first non-empty value among names of the first
// polygon, across layers in order, that contains the point.
func Attribute(layers []*Layer, lat, lon float64, names ...string) (string, bool) {
	for _, l := range layers {
		attrs, found := l.Locate(lat, lon)
		if !found {
			continue
		}
		for _, n := range names {
			if v := attrs[n]; v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// TagNeighborhoods fills the neighbourhood of geocoded properties that have
// none from the layers. The input is not modified; the number of properties
// tagged is returned.
func TagNeighborhoods(props []types.PropertyRecord, layers []*Layer, names ...string) ([]types.PropertyRecord, int) {
	if len(names) == 0 {
		names = DefaultAttributes
	}
	out := make([]types.PropertyRecord, len(props))
	copy(out, props)
	tagged, untagged := 0, 0
	for i := range out {
		p := &out[i]
		if p.Neighborhood != "" || !p.HasCoordinates() {
			continue
		}
		if v, ok := Attribute(layers, *p.Latitude, *p.Longitude, names...); ok {
			p.Neighborhood = v
			tagged++
		} else {
			untagged++
		}
	}
	if untagged > 0 {
		monitoring.Logf("geo: %d geocoded properties fall outside every layer", untagged)
	}
	return out, tagged
}
