package appraisal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/internal/monitoring"
	"appraisal/internal/ratiostudy"
	"appraisal/internal/regression"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
)

func init() { monitoring.SetLogger(nil) }

// neighbourhood builds an n×n block of sold, geocoded houses. Assessments run
// a few percent under the sale prices and the west half sells at a premium.
func neighbourhood(n int) []types.PropertyRecord {
	saleDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var props []types.PropertyRecord
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			i := r*n + c
			area := 1200 + float64((r*7+c*13)%11)*150
			price := 40000 + 110*area
			if c < n/2 {
				price += 60000
			}
			ratio := 0.92 + 0.01*float64(i%7)
			props = append(props, types.PropertyRecord{
				ID:            fmt.Sprintf("R%03d", i),
				ParcelID:      fmt.Sprintf("04%06d", i),
				Neighborhood:  fmt.Sprintf("NB%d", c/3),
				LivingArea:    area,
				AssessedValue: ratio * price,
				SalePrice:     price,
				SaleDate:      saleDate.AddDate(0, -(i % 12), 0),
				PropertyClass: types.ClassResidential,
				Latitude:      types.Float(32.70 + 0.01*float64(r)),
				Longitude:     types.Float(-97.40 + 0.01*float64(c)),
			})
		}
	}
	return props
}

func livingAreaModel() *regression.Spec {
	return &regression.Spec{
		Dependent:   types.FieldSalePrice,
		Independent: []string{types.FieldLivingArea},
		Intercept:   true,
		Type:        regression.SpatialLag,
	}
}

func TestPerformFullRun(t *testing.T) {
	cfg := DefaultConfig(neighbourhood(6))
	cfg.Model = livingAreaModel()
	cfg.Stratify = []ratiostudy.StratifyBy{ratiostudy.ByNeighborhood, ratiostudy.ByValueTier}

	res, err := Perform(cfg)
	require.NoError(t, err)

	_, err = uuid.Parse(res.RunID)
	assert.NoError(t, err)
	for _, stage := range []string{StageValidation, StageSales, StageRatioStudy, StageStratification, StageWeights, StageAutocorrelation, StageRegression} {
		assert.True(t, res.Ran(stage), stage)
	}

	require.NotNil(t, res.Validation)
	assert.Equal(t, 36, res.Validation.Valid)

	require.NotNil(t, res.RatioStudy)
	assert.Equal(t, 36, res.RatioStudy.SampleSize)
	assert.Len(t, res.Strata[ratiostudy.ByNeighborhood], 2)
	assert.NotEmpty(t, res.Strata[ratiostudy.ByValueTier])

	require.NotNil(t, res.Weights)
	assert.Equal(t, 36, res.Weights.Properties)
	assert.InDelta(t, 5.0, res.Weights.AverageNeighbors, 1e-12)
	require.NotNil(t, res.Matrix())

	require.NotNil(t, res.Autocorrelation)
	assert.False(t, res.Autocorrelation.MoransI.Degenerate)
	assert.Len(t, res.Autocorrelation.Local, 36)

	require.NotNil(t, res.Model)
	assert.Equal(t, regression.SpatialLag, res.Model.Spec.Type)
	assert.Len(t, res.Predictions, 36)
	assert.True(t, res.TrainedModel().Trained())

	s := res.Summary
	assert.Equal(t, 36, s.Properties)
	assert.Equal(t, 36, s.Sales)
	require.NotNil(t, s.AssessmentLevel)
	assert.InDelta(t, res.RatioStudy.MedianRatio, *s.AssessmentLevel, 1e-12)
	require.NotNil(t, s.COD)
	require.NotNil(t, s.PRD)
	require.NotNil(t, s.MoransI)
	require.NotNil(t, s.RSquared)
	assert.Contains(t, s.Text, "assessment level")
	assert.Positive(t, res.Duration)

	// results are plain data and serialise for hosts
	_, err = json.Marshal(res)
	assert.NoError(t, err)
}

func TestPerformPartialResults(t *testing.T) {
	// no sales, no coordinates: only validation has anything to do
	props := []types.PropertyRecord{
		{ID: "A", ParcelID: "A1", AssessedValue: 100000},
		{ID: "B", ParcelID: "B1", AssessedValue: 120000},
	}
	res, err := Perform(DefaultConfig(props))
	require.NoError(t, err)

	assert.True(t, res.Ran(StageValidation))
	for _, stage := range []string{StageRatioStudy, StageWeights, StageAutocorrelation, StageRegression} {
		st, ok := res.Stage(stage)
		require.True(t, ok, stage)
		assert.Equal(t, StageSkipped, st.Status, stage)
		assert.NotEmpty(t, st.Reason, stage)
	}
	assert.Nil(t, res.RatioStudy)
	assert.Nil(t, res.Autocorrelation)
	assert.Nil(t, res.Model)
	assert.Equal(t, 2, res.Summary.Valid)
	assert.Nil(t, res.Summary.COD)
	assert.Contains(t, res.Summary.Text, "2 of 2 properties valid")
}

func TestPerformTooFewSalesForRegression(t *testing.T) {
	props := neighbourhood(3)
	cfg := DefaultConfig(props)
	cfg.Model = livingAreaModel()
	res, err := Perform(cfg)
	require.NoError(t, err)

	assert.True(t, res.Ran(StageRatioStudy))
	assert.True(t, res.Ran(StageAutocorrelation))
	st, _ := res.Stage(StageRegression)
	assert.Equal(t, StageSkipped, st.Status)
	assert.Equal(t, "9 located sales, need 10", st.Reason)
	assert.Nil(t, res.Summary.RSquared)
}

func TestPerformSingularModelIsSkipped(t *testing.T) {
	// the default model includes attributes these records leave at zero
	res, err := Perform(DefaultConfig(neighbourhood(4)))
	require.NoError(t, err)
	st, _ := res.Stage(StageRegression)
	assert.Equal(t, StageSkipped, st.Status)
	assert.Contains(t, st.Reason, "singular")
}

func TestPerformConfigErrors(t *testing.T) {
	cfg := DefaultConfig(neighbourhood(2))
	cfg.Weights = spatial.Config{Method: "queen"}
	_, err := Perform(cfg)
	assert.ErrorIs(t, err, spatial.ErrUnknownMethod)

	cfg = DefaultConfig(neighbourhood(2))
	cfg.Model = &regression.Spec{Dependent: types.FieldSalePrice, Independent: []string{types.FieldLivingArea}, Type: "gwr"}
	_, err = Perform(cfg)
	assert.ErrorIs(t, err, regression.ErrUnknownModelType)

	cfg = DefaultConfig(neighbourhood(2))
	cfg.RatioStudy.TimeAdjustment.Method = ratiostudy.AdjustCustom
	_, err = Perform(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig(neighbourhood(2))
	cfg.Stratify = []ratiostudy.StratifyBy{"zip"}
	_, err = Perform(cfg)
	assert.Error(t, err)
}

func TestPerformExcludeInvalid(t *testing.T) {
	props := neighbourhood(3)
	props[0].ParcelID = ""

	cfg := DefaultConfig(props)
	cfg.ExcludeInvalid = true
	res, err := Perform(cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Validation.Invalid)
	assert.Equal(t, 8, res.Summary.Properties)
	assert.Equal(t, 8, res.Weights.Properties)
	assert.Equal(t, 8, res.RatioStudy.SampleSize)
}

func TestPrepareRemediates(t *testing.T) {
	props := neighbourhood(2)
	props[1].PropertyClass = types.ClassVacantLand
	props[1].ImprovementValue = 5000

	res, err := Perform(Config{Properties: props, ValidateRecords: true})
	require.NoError(t, err)
	require.Equal(t, 1, res.Validation.Invalid)

	fixed := prepare(props, *res.Validation, true, false)
	require.Len(t, fixed, 4)
	assert.Zero(t, fixed[1].ImprovementValue)
	assert.Equal(t, 5000.0, props[1].ImprovementValue, "input must not be modified")
}

func TestPerformDuplicateIDs(t *testing.T) {
	props := neighbourhood(4)
	twin := props[5]
	twin.AssessedValue *= 2
	props = append(props, twin)

	cfg := DefaultConfig(props)
	cfg.Model = livingAreaModel()
	res, err := Perform(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{props[5].ID}, res.Duplicates)
	assert.Equal(t, 1, res.Summary.Duplicates)
	assert.Contains(t, res.Summary.Text, "1 duplicate records dropped")
	assert.Equal(t, 16, res.Summary.Properties)
	assert.Equal(t, 16, res.Validation.Total)
	for _, stage := range []string{StageRatioStudy, StageWeights, StageAutocorrelation, StageRegression} {
		assert.True(t, res.Ran(stage), stage)
	}
	// the first record is the one kept
	for _, l := range res.Autocorrelation.Local {
		if l.ID == props[5].ID {
			assert.Equal(t, props[5].AssessedValue, l.Value)
		}
	}
}

func TestPerformAllSameID(t *testing.T) {
	props := []types.PropertyRecord{
		{ID: "A", ParcelID: "A1", AssessedValue: 100000, Latitude: types.Float(32.7), Longitude: types.Float(-97.3)},
		{ID: "A", ParcelID: "A2", AssessedValue: 110000, Latitude: types.Float(32.8), Longitude: types.Float(-97.4)},
		{ID: "B", ParcelID: "B1", AssessedValue: 120000},
	}
	res, err := Perform(DefaultConfig(props))
	require.NoError(t, err)
	require.NotNil(t, res.Validation)
	assert.Equal(t, 2, res.Validation.Total)
	assert.Equal(t, []string{"A"}, res.Duplicates)

	st, ok := res.Stage(StageWeights)
	require.True(t, ok)
	assert.Equal(t, StageSkipped, st.Status)
	assert.Equal(t, "1 properties with coordinates, need 2", st.Reason)
}

func TestSummaryKeepsLevelForUniformRatios(t *testing.T) {
	props := neighbourhood(3)
	for i := range props {
		props[i].AssessedValue = props[i].SalePrice
	}
	res, err := Perform(DefaultConfig(props))
	require.NoError(t, err)
	require.NotNil(t, res.RatioStudy)
	require.True(t, res.RatioStudy.Degenerate)

	s := res.Summary
	require.NotNil(t, s.AssessmentLevel)
	assert.InDelta(t, 1.0, *s.AssessmentLevel, 1e-12)
	require.NotNil(t, s.PRD)
	assert.InDelta(t, 1.0, *s.PRD, 1e-12)
	assert.Nil(t, s.COD)
	assert.Nil(t, s.IAAOCompliant)
	assert.Contains(t, s.Text, "assessment level 1.000")
	assert.Contains(t, s.Text, "zero variance")
}

func TestUniqueByID(t *testing.T) {
	props := []types.PropertyRecord{{ID: "a"}, {ID: "b"}, {ID: "a", ParcelID: "x"}, {ID: "c"}, {ID: "b"}}
	out, dups := uniqueByID(props)
	assert.Equal(t, []string{"a", "b"}, dups)
	require.Len(t, out, 3)
	assert.Empty(t, out[0].ParcelID)

	same, none := uniqueByID(props[:2])
	assert.Nil(t, none)
	assert.Len(t, same, 2)
}
