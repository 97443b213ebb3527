package autocorr

import (
	"fmt"
	"strings"
)

// InterpretMoran describes a Moran's I test in plain words.
func InterpretMoran(s Statistic) string {
	if s.Degenerate {
		return s.Interpretation
	}
	switch {
	case !s.Significant:
		return fmt.Sprintf("no significant spatial autocorrelation (I=%.4f, p=%.4f): values look spatially random", s.Value, s.PValue)
	case s.Value > s.Expected:
		return fmt.Sprintf("significant positive spatial autocorrelation (I=%.4f, p=%.4f): similar values cluster together", s.Value, s.PValue)
	default:
		return fmt.Sprintf("significant negative spatial autocorrelation (I=%.4f, p=%.4f): neighbouring values are dissimilar", s.Value, s.PValue)
	}
}

// InterpretGeary describes a Geary's C test. C below 1 means positive autocorrelation.
func InterpretGeary(s Statistic) string {
	if s.Degenerate {
		return s.Interpretation
	}
	switch {
	case !s.Significant:
		return fmt.Sprintf("no significant local dissimilarity (C=%.4f, p=%.4f)", s.Value, s.PValue)
	case s.Value < 1:
		return fmt.Sprintf("neighbours are more alike than random (C=%.4f, p=%.4f)", s.Value, s.PValue)
	default:
		return fmt.Sprintf("neighbours are less alike than random (C=%.4f, p=%.4f)", s.Value, s.PValue)
	}
}

// InterpretGeneralG describes a General G test.
func InterpretGeneralG(s Statistic) string {
	if s.Degenerate {
		return s.Interpretation
	}
	switch {
	case !s.Significant:
		return fmt.Sprintf("no significant concentration of high or low values (G=%.6f, p=%.4f)", s.Value, s.PValue)
	case s.Value > s.Expected:
		return fmt.Sprintf("high values are spatially concentrated (G=%.6f, p=%.4f)", s.Value, s.PValue)
	default:
		return fmt.Sprintf("low values are spatially concentrated (G=%.6f, p=%.4f)", s.Value, s.PValue)
	}
}

func summarize(r Result) string {
	var b strings.Builder
	b.WriteString(r.MoransI.Interpretation)
	if len(r.Clusters) > 0 {
		fmt.Fprintf(&b, "; LISA clusters HH=%d LL=%d, outliers HL=%d LH=%d",
			r.Clusters[HighHigh], r.Clusters[LowLow], r.Clusters[HighLow], r.Clusters[LowHigh])
	}
	if len(r.Spots) > 0 {
		fmt.Fprintf(&b, "; %d hot and %d cold spots", r.Spots[HotSpot], r.Spots[ColdSpot])
	}
	return b.String()
}
