// Package report renders analysis results for the terminal and as charts.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"appraisal/internal/appraisal"
	"appraisal/internal/autocorr"
	"appraisal/internal/ratiostudy"
)

const (
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// palette applies ANSI colours when enabled.
type palette bool

func (p palette) wrap(color, s string) string {
	if !p {
		return s
	}
	return color + s + colorReset
}

func (p palette) mark(ok bool) string {
	if ok {
		return p.wrap(colorGreen, "[PASS]")
	}
	return p.wrap(colorRed, "[FAIL]")
}

var rule = strings.Repeat("-", 80)

// Render writes a readable report of res. colour enables ANSI colours.
func Render(w io.Writer, res *appraisal.Results, colour bool) {
	p := palette(colour)

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Run               : %s\n", res.RunID)
	fmt.Fprintf(w, "Started           : %s (%v)\n", res.StartedAt.Format("2006-01-02 15:04:05"), res.Duration.Round(time.Millisecond))
	for _, st := range res.Stages {
		status := p.wrap(colorGreen, string(st.Status))
		if st.Status == appraisal.StageSkipped {
			status = p.wrap(colorYellow, string(st.Status)) + ": " + st.Reason
		}
		fmt.Fprintf(w, "  %-16s: %s\n", st.Name, status)
	}
	fmt.Fprintln(w)

	if v := res.Validation; v != nil {
		fmt.Fprintf(w, "Validation        : %d valid, %d invalid of %d (%s rules)\n", v.Valid, v.Invalid, v.Total, v.RuleSet)
		for i, is := range v.Issues() {
			if i == 5 {
				break
			}
			fmt.Fprintf(w, "  %-16s: %d failures\n", is.Field, is.Count)
		}
		fmt.Fprintln(w)
	}

	if rs := res.RatioStudy; rs != nil {
		renderRatioStudy(w, p, rs)
		bys := make([]string, 0, len(res.Strata))
		for by := range res.Strata {
			bys = append(bys, string(by))
		}
		sort.Strings(bys)
		for _, by := range bys {
			renderStrata(w, p, ratiostudy.StratifyBy(by), res.Strata[ratiostudy.StratifyBy(by)])
		}
	}

	if ws := res.Weights; ws != nil {
		fmt.Fprintf(w, "Spatial Weights   : %s, %d properties, %.1f neighbours on average", ws.Config.Method, ws.Properties, ws.AverageNeighbors)
		if len(ws.Isolated) > 0 {
			fmt.Fprintf(w, ", %s", p.wrap(colorYellow, fmt.Sprintf("%d isolated", len(ws.Isolated))))
		}
		fmt.Fprintln(w)
	}
	if ac := res.Autocorrelation; ac != nil {
		renderAutocorrelation(w, p, ac)
	}

	if m := res.Model; m != nil {
		d := m.Diagnostics
		fmt.Fprintf(w, "Model             : %s on %s, n=%d\n", m.Spec.Type, m.Spec.Dependent, d.N)
		fmt.Fprintf(w, "  R² / adj. R²    : %.3f / %.3f\n", d.RSquared, d.AdjRSquared)
		fmt.Fprintf(w, "  RMSE / MAPE     : %.2f / %.2f%%\n", d.RMSE, d.MAPE)
		fmt.Fprintf(w, "  AIC / BIC       : %.1f / %.1f\n", d.AIC, d.BIC)
		if m.Spec.Type.Spatial() {
			fmt.Fprintf(w, "  rho             : %.4f\n", m.Rho)
		}
		if !d.ResidualMoran.Degenerate {
			fmt.Fprintf(w, "  residual Moran  : %.4f (p=%.3f)%s\n", d.ResidualMoran.Value, d.ResidualMoran.PValue,
				residualNote(p, d.ResidualMoran))
		}
		fmt.Fprintf(w, "  %-20s %14s %12s %8s %8s\n", "coefficient", "estimate", "std err", "t", "p")
		for _, c := range d.Coefficients {
			fmt.Fprintf(w, "  %-20s %14.4f %12.4f %8.2f %8.4f\n", c.Name, c.Value, c.StdErr, c.TStat, c.PValue)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Summary           : %s\n", res.Summary.Text)
	fmt.Fprintln(w, rule)
}

func renderRatioStudy(w io.Writer, p palette, rs *ratiostudy.Result) {
	if rs.Degenerate {
		fmt.Fprintf(w, "Ratio Study       : %s\n\n", p.wrap(colorYellow, rs.Interpretation))
		return
	}
	fmt.Fprintf(w, "Ratio Study       : %d sales (%d trimmed)\n", rs.SampleSize, rs.TrimmedCount)
	fmt.Fprintf(w, "  Median ratio    : %.3f  [%.3f, %.3f] at %.0f%%\n", rs.MedianRatio,
		rs.ConfidenceInterval.Lower, rs.ConfidenceInterval.Upper, rs.ConfidenceInterval.Level*100)
	fmt.Fprintf(w, "  Mean / weighted : %.3f / %.3f\n", rs.MeanRatio, rs.WeightedMeanRatio)
	fmt.Fprintf(w, "  COD             : %.2f %s\n", rs.COD, p.mark(rs.Compliance.COD))
	fmt.Fprintf(w, "  PRD             : %.3f %s\n", rs.PRD, p.mark(rs.Compliance.PRD))
	if rs.PRBCalculated {
		fmt.Fprintf(w, "  PRB             : %.4f %s\n", rs.PRB, p.mark(rs.Compliance.PRB))
	} else {
		fmt.Fprintln(w, "  PRB             : not calculated")
	}
	fmt.Fprintf(w, "  Percentiles     : p10 %.3f  p25 %.3f  p50 %.3f  p75 %.3f  p90 %.3f\n",
		rs.Percentiles.P10, rs.Percentiles.P25, rs.Percentiles.P50, rs.Percentiles.P75, rs.Percentiles.P90)
	fmt.Fprintf(w, "  IAAO            : %s\n", p.mark(rs.IAAOCompliant))
	fmt.Fprintf(w, "  %s\n", rs.PRDInterpretation())
	for _, n := range rs.Notes {
		fmt.Fprintf(w, "  note: %s\n", n)
	}
	fmt.Fprintln(w)
}

func renderStrata(w io.Writer, p palette, by ratiostudy.StratifyBy, strata []ratiostudy.Stratum) {
	fmt.Fprintf(w, "By %s:\n", by)
	fmt.Fprintf(w, "  %-24s %6s %8s %8s %8s\n", "stratum", "sales", "median", "COD", "PRD")
	for _, s := range strata {
		r := s.Result
		fmt.Fprintf(w, "  %-24s %6d %8.3f %8.2f %8.3f %s\n", s.Key, s.Count, r.MedianRatio, r.COD, r.PRD, p.mark(r.IAAOCompliant))
	}
	fmt.Fprintln(w)
}

func renderAutocorrelation(w io.Writer, p palette, ac *autocorr.Result) {
	fmt.Fprintf(w, "Autocorrelation   : %s over %d properties\n", ac.Variable, ac.N)
	for _, s := range []autocorr.Statistic{ac.MoransI, ac.GearysC, ac.GeneralG} {
		if s.Degenerate {
			fmt.Fprintf(w, "  %-16s: %s\n", s.Name, p.wrap(colorYellow, s.Interpretation))
			continue
		}
		fmt.Fprintf(w, "  %-16s: %.4f (z=%.2f, p=%.4f) %s\n", s.Name, s.Value, s.ZScore, s.PValue, s.Interpretation)
	}
	if ac.Summary != "" {
		fmt.Fprintf(w, "  %s\n", ac.Summary)
	}
	fmt.Fprintln(w)
}

func residualNote(p palette, s autocorr.Statistic) string {
	if s.Significant {
		return " " + p.wrap(colorRed, "[spatial pattern left in residuals]")
	}
	return ""
}
