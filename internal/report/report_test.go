package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/internal/appraisal"
	"appraisal/internal/monitoring"
	"appraisal/internal/regression"
	"appraisal/internal/types"
)

func init() { monitoring.SetLogger(nil) }

const center = "R012"

// street builds a 5×5 block of sold houses assessed at 95% of price. The
// house in the middle is assessed at half its price.
func street() []types.PropertyRecord {
	sold := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var props []types.PropertyRecord
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			i := r*5 + c
			area := 1500 + 10*float64(i%3)
			price := 100000 + 100*area
			ratio := 0.95
			if i == 12 {
				ratio = 0.5
			}
			props = append(props, types.PropertyRecord{
				ID:            fmt.Sprintf("R%03d", i),
				ParcelID:      fmt.Sprintf("P%03d", i),
				Address:       fmt.Sprintf("%d ELM ST", 100+i),
				Neighborhood:  "ELM",
				LivingArea:    area,
				AssessedValue: ratio * price,
				SalePrice:     price,
				SaleDate:      sold,
				PropertyClass: types.ClassResidential,
				Latitude:      types.Float(32.75 + 0.01*float64(r)),
				Longitude:     types.Float(-97.33 + 0.01*float64(c)),
			})
		}
	}
	return props
}

func perform(t *testing.T, props []types.PropertyRecord) *appraisal.Results {
	t.Helper()
	cfg := appraisal.DefaultConfig(props)
	cfg.Model = &regression.Spec{
		Dependent:   types.FieldSalePrice,
		Independent: []string{types.FieldLivingArea},
		Intercept:   true,
		Type:        regression.OLS,
	}
	res, err := appraisal.Perform(cfg)
	require.NoError(t, err)
	return res
}

func TestRender(t *testing.T) {
	res := perform(t, street())

	var plain bytes.Buffer
	Render(&plain, res, false)
	out := plain.String()
	assert.Contains(t, out, res.RunID)
	assert.Contains(t, out, "Ratio Study")
	assert.Contains(t, out, "Autocorrelation")
	assert.Contains(t, out, "Model             : ols")
	assert.Contains(t, out, res.Summary.Text)
	assert.Regexp(t, `\[(PASS|FAIL)\]`, out)
	assert.NotContains(t, out, "\033[")

	var coloured bytes.Buffer
	Render(&coloured, res, true)
	assert.Contains(t, coloured.String(), colorReset)
}

func TestRenderSkippedStages(t *testing.T) {
	res, err := appraisal.Perform(appraisal.DefaultConfig([]types.PropertyRecord{
		{ID: "A", ParcelID: "A1", AssessedValue: 100000},
	}))
	require.NoError(t, err)

	var buf bytes.Buffer
	Render(&buf, res, false)
	out := buf.String()
	assert.Contains(t, out, "skipped: no valid sales")
	assert.NotContains(t, out, "Ratio Study")
	assert.NotContains(t, out, "Model ")
}

func TestFlagProperties(t *testing.T) {
	props := street()
	props = append(props, types.PropertyRecord{ID: "R999", ParcelID: "P999"})
	res := perform(t, props)

	flags := FlagProperties(res, props)
	require.NotEmpty(t, flags)

	var found *Flag
	prev := -1
	for i := range flags {
		f := flags[i]
		assert.NotEmpty(t, f.Reasons)
		assert.NotEqual(t, "R999", f.Property.ID)

		idx := -1
		for j, p := range props {
			if p.ID == f.Property.ID {
				idx = j
			}
		}
		assert.Greater(t, idx, prev, "flags keep input order")
		prev = idx

		if f.Property.ID == center {
			found = &flags[i]
		}
	}
	require.NotNil(t, found)

	assert.GreaterOrEqual(t, found.NeighborCount, MinComparables)
	assert.Less(t, found.Property.AssessedValue, found.NeighborMean-found.NeighborStd)
	require.NotNil(t, found.Ratio)
	assert.InDelta(t, 0.5, *found.Ratio, 1e-9)
	require.NotNil(t, found.Predicted)
	assert.InDelta(t, found.Property.SalePrice, *found.Predicted, 1)

	joined := fmt.Sprint(found.Reasons)
	assert.Contains(t, joined, "below")
	assert.Contains(t, joined, "sale ratio 0.500")
	assert.Contains(t, joined, "from model value")
	assert.Contains(t, found.Summary(), "112 ELM ST")

	var buf bytes.Buffer
	RenderFlag(&buf, *found, false)
	assert.Contains(t, buf.String(), "Account           : "+center)
	assert.Contains(t, buf.String(), "ratio 0.500")
}

func TestFlagPropertiesWithoutAnalysis(t *testing.T) {
	props := []types.PropertyRecord{{ID: "A", ParcelID: "A1", AssessedValue: 100000}}
	res, err := appraisal.Perform(appraisal.DefaultConfig(props))
	require.NoError(t, err)
	assert.Empty(t, FlagProperties(res, props))
}

func TestWriteCharts(t *testing.T) {
	props := street()
	res := perform(t, props)

	dir := filepath.Join(t.TempDir(), "charts")
	files, err := WriteCharts(dir, res, props)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, []string{"ratio_vs_price.png", "ratio_histogram.png", "lisa_clusters.png", "model_fit.png"}, names)
}

func TestWriteChartsNothingToPlot(t *testing.T) {
	props := []types.PropertyRecord{{ID: "A", ParcelID: "A1", AssessedValue: 100000}}
	res, err := appraisal.Perform(appraisal.DefaultConfig(props))
	require.NoError(t, err)

	files, err := WriteCharts(t.TempDir(), res, props)
	require.NoError(t, err)
	assert.Empty(t, files)
}
