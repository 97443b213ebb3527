package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/internal/appraisal"
	"appraisal/internal/monitoring"
	"appraisal/internal/regression"
	"appraisal/internal/types"
)

func init() { monitoring.SetLogger(nil) }

func block(n int) []types.PropertyRecord {
	var props []types.PropertyRecord
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			i := r*n + c
			area := 1300 + float64((r*5+c*3)%7)*200
			price := 50000 + 100*area
			props = append(props, types.PropertyRecord{
				ID:            fmt.Sprintf("A%02d", i),
				ParcelID:      fmt.Sprintf("P%02d", i),
				Neighborhood:  "NB1",
				LivingArea:    area,
				AssessedValue: (0.93 + 0.01*float64(i%5)) * price,
				SalePrice:     price,
				SaleDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				PropertyClass: types.ClassResidential,
				Latitude:      types.Float(32.70 + 0.01*float64(r)),
				Longitude:     types.Float(-97.40 + 0.01*float64(c)),
			})
		}
	}
	return props
}

func perform(t *testing.T) *appraisal.Results {
	t.Helper()
	cfg := appraisal.DefaultConfig(block(5))
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

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenMigrates(t *testing.T) {
	s, path := openStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	// reopening an up-to-date archive is a no-op
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	version, _, err = s2.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	res := perform(t)
	require.True(t, res.Ran(appraisal.StageRegression))

	require.NoError(t, s.SaveRun(ctx, "2025 roll", res))

	got, err := s.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, got.RunID)
	assert.True(t, res.StartedAt.Equal(got.StartedAt))
	if diff := cmp.Diff(res.Summary, got.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(res.RatioStudy, got.RatioStudy); diff != "" {
		t.Errorf("ratio study mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(res.Model, got.Model); diff != "" {
		t.Errorf("model mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(res.Stages, got.Stages); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.Matrix(), "the weight matrix is not archived")

	stages, err := s.Stages(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, stages, len(res.Stages))
	for i := range stages {
		assert.Equal(t, res.Stages[i].Name, stages[i].Name)
		assert.Equal(t, res.Stages[i].Status, stages[i].Status)
	}

	// a run id is stored once
	assert.Error(t, s.SaveRun(ctx, "again", res))
	assert.Error(t, s.SaveRun(ctx, "none", &appraisal.Results{}))
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)

	older := perform(t)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := perform(t)
	partial, err := appraisal.Perform(appraisal.DefaultConfig([]types.PropertyRecord{{ID: "X", ParcelID: "X1", AssessedValue: 1}}))
	require.NoError(t, err)
	partial.StartedAt = older.StartedAt.Add(-time.Hour)

	for _, r := range []*appraisal.Results{older, newer, partial} {
		require.NoError(t, s.SaveRun(ctx, "roll", r))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{newer.RunID, older.RunID, partial.RunID}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	top := runs[0]
	assert.Equal(t, "roll", top.Label)
	assert.Equal(t, 25, top.Properties)
	assert.Equal(t, 25, top.Sales)
	require.NotNil(t, top.MedianRatio)
	assert.Equal(t, *newer.Summary.AssessmentLevel, *top.MedianRatio)
	require.NotNil(t, top.IAAOCompliant)
	assert.Equal(t, *newer.Summary.IAAOCompliant, *top.IAAOCompliant)
	assert.Equal(t, newer.StartedAt.UnixNano(), top.StartedAt.UnixNano())

	last := runs[2]
	assert.Nil(t, last.MedianRatio)
	assert.Nil(t, last.COD)
	assert.Nil(t, last.IAAOCompliant)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	res := perform(t)
	require.NoError(t, s.SaveRun(ctx, "", res))

	require.NoError(t, s.DeleteRun(ctx, res.RunID))
	_, err := s.GetRun(ctx, res.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	stages, err := s.Stages(ctx, res.RunID)
	require.NoError(t, err)
	assert.Empty(t, stages, "stages are removed with their run")

	assert.ErrorIs(t, s.DeleteRun(ctx, res.RunID), ErrRunNotFound)
}
