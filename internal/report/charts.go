package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"appraisal/internal/appraisal"
	"appraisal/internal/autocorr"
	"appraisal/internal/monitoring"
	"appraisal/internal/types"
)

const histogramBins = 20

var clusterColors = map[autocorr.Cluster]color.Color{
	autocorr.HighHigh:       color.RGBA{R: 200, A: 255},
	autocorr.LowLow:         color.RGBA{B: 200, A: 255},
	autocorr.HighLow:        color.RGBA{R: 255, G: 150, A: 255},
	autocorr.LowHigh:        color.RGBA{G: 180, B: 220, A: 255},
	autocorr.NotSignificant: color.Gray{Y: 190},
}

// WriteCharts saves PNG charts of res into dir and returns the files written.
// Charts whose stage was skipped are left out.
func WriteCharts(dir string, res *appraisal.Results, props []types.PropertyRecord) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}

	var written []string
	save := func(p *plot.Plot, name string) error {
		file := filepath.Join(dir, name)
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
		written = append(written, file)
		return nil
	}

	sales := types.SalesFromProperties(props)
	if res.RatioStudy != nil && len(sales) > 0 {
		p, err := ratioScatter(sales, res.RatioStudy.MedianRatio)
		if err != nil {
			return written, err
		}
		if err := save(p, "ratio_vs_price.png"); err != nil {
			return written, err
		}
		p, err = ratioHistogram(sales)
		if err != nil {
			return written, err
		}
		if err := save(p, "ratio_histogram.png"); err != nil {
			return written, err
		}
	}

	if ac := res.Autocorrelation; ac != nil && len(ac.Local) > 0 {
		p, err := clusterMap(ac.Local, props)
		if err != nil {
			return written, err
		}
		if err := save(p, "lisa_clusters.png"); err != nil {
			return written, err
		}
	}

	if len(res.Predictions) > 0 {
		p, err := modelFit(res, props)
		if err != nil {
			return written, err
		}
		if p != nil {
			if err := save(p, "model_fit.png"); err != nil {
				return written, err
			}
		}
	}

	monitoring.Logf("report: wrote %d charts to %s", len(written), dir)
	return written, nil
}

func ratioScatter(sales []types.SaleRecord, median float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Sale Ratio vs Sale Price"
	p.X.Label.Text = "Sale Price ($)"
	p.Y.Label.Text = "Assessment / Sale"

	pts := make(plotter.XYs, 0, len(sales))
	minX, maxX := sales[0].SalePrice, sales[0].SalePrice
	for _, s := range sales {
		pts = append(pts, plotter.XY{X: s.SalePrice, Y: s.AssessedValue / s.SalePrice})
		minX = min(minX, s.SalePrice)
		maxX = max(maxX, s.SalePrice)
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratio scatter: %w", err)
	}
	sc.Shape = draw.CircleGlyph{}
	sc.Radius = vg.Points(2)
	sc.Color = color.RGBA{B: 160, A: 255}

	ml, err := plotter.NewLine(plotter.XYs{{X: minX, Y: median}, {X: maxX, Y: median}})
	if err != nil {
		return nil, fmt.Errorf("failed to create median line: %w", err)
	}
	ml.Color = color.RGBA{R: 200, A: 255}
	ml.Width = vg.Points(1)

	p.Add(sc, ml)
	p.Legend.Add("sales", sc)
	p.Legend.Add(fmt.Sprintf("median %.3f", median), ml)
	return p, nil
}

func ratioHistogram(sales []types.SaleRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Sale Ratio Distribution"
	p.X.Label.Text = "Assessment / Sale"
	p.Y.Label.Text = "Sales"

	vals := make(plotter.Values, len(sales))
	for i, s := range sales {
		vals[i] = s.AssessedValue / s.SalePrice
	}
	h, err := plotter.NewHist(vals, histogramBins)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratio histogram: %w", err)
	}
	h.FillColor = color.RGBA{G: 120, B: 200, A: 255}
	p.Add(h)
	return p, nil
}

func clusterMap(local []autocorr.Local, props []types.PropertyRecord) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Local Moran Clusters"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	byID := make(map[string]types.PropertyRecord, len(props))
	for _, pr := range props {
		byID[pr.ID] = pr
	}
	groups := make(map[autocorr.Cluster]plotter.XYs)
	for _, l := range local {
		pr, ok := byID[l.ID]
		if !ok || !pr.HasCoordinates() {
			continue
		}
		groups[l.Cluster] = append(groups[l.Cluster], plotter.XY{X: *pr.Longitude, Y: *pr.Latitude})
	}

	for _, c := range []autocorr.Cluster{autocorr.NotSignificant, autocorr.HighHigh, autocorr.LowLow, autocorr.HighLow, autocorr.LowHigh} {
		pts := groups[c]
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s scatter: %w", c, err)
		}
		sc.Shape = draw.CircleGlyph{}
		sc.Radius = vg.Points(3)
		sc.Color = clusterColors[c]
		p.Add(sc)
		p.Legend.Add(string(c), sc)
	}
	return p, nil
}

// modelFit plots model values against sale prices. It returns nil when no
// sold property was valued.
func modelFit(res *appraisal.Results, props []types.PropertyRecord) (*plot.Plot, error) {
	price := make(map[string]float64)
	for _, pr := range props {
		if pr.HasValidSale() {
			price[pr.ID] = pr.SalePrice
		}
	}
	var pts plotter.XYs
	lo, hi := 0.0, 0.0
	for _, pred := range res.Predictions {
		sp, ok := price[pred.ID]
		if !ok {
			continue
		}
		if len(pts) == 0 {
			lo, hi = sp, sp
		}
		pts = append(pts, plotter.XY{X: sp, Y: pred.Value})
		lo = min(lo, sp, pred.Value)
		hi = max(hi, sp, pred.Value)
	}
	if len(pts) == 0 {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Model Fit (%s)", res.Model.Spec.Type)
	p.X.Label.Text = "Sale Price ($)"
	p.Y.Label.Text = "Model Value ($)"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create fit scatter: %w", err)
	}
	sc.Shape = draw.CircleGlyph{}
	sc.Radius = vg.Points(2)
	sc.Color = color.RGBA{G: 140, A: 255}

	diag, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, fmt.Errorf("failed to create diagonal: %w", err)
	}
	diag.Color = color.Gray{Y: 100}
	diag.Width = vg.Points(1)

	p.Add(sc, diag)
	p.Legend.Add("sales", sc)
	p.Legend.Add("value = price", diag)
	return p, nil
}
