package regression

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"appraisal/internal/monitoring"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
)

func init() { monitoring.SetLogger(nil) }

// linear returns properties with sale_price = a + b·living_area exactly.
func linear(n int, a, b float64) []types.PropertyRecord {
	props := make([]types.PropertyRecord, n)
	for i := range props {
		x := float64(i + 1)
		props[i] = types.PropertyRecord{ID: fmt.Sprintf("L%02d", i), LivingArea: x, SalePrice: a + b*x}
	}
	return props
}

// located lays out an n×n grid with a west-side premium the attributes do
// not explain.
func located(n int) []types.PropertyRecord {
	var props []types.PropertyRecord
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			area := 1000 + float64((r*7+c*13)%11)*100
			price := 50000 + 100*area
			if c < n/2 {
				price += 40000
			}
			props = append(props, types.PropertyRecord{
				ID:         fmt.Sprintf("g%d_%d", r, c),
				LivingArea: area,
				SalePrice:  price,
				Latitude:   types.Float(32.70 + 0.01*float64(r)),
				Longitude:  types.Float(-97.40 + 0.01*float64(c)),
			})
		}
	}
	return props
}

func simpleSpec() Spec {
	return Spec{Dependent: types.FieldSalePrice, Independent: []string{types.FieldLivingArea}, Intercept: true, Type: OLS}
}

func knn4() *spatial.Config {
	return &spatial.Config{Method: spatial.KNearest, K: 4, RowStandardize: true}
}

func TestOLSRecoversExactLine(t *testing.T) {
	for _, solver := range []Solver{SolverGaussJordan, SolverQR} {
		t.Run(string(solver), func(t *testing.T) {
			spec := simpleSpec()
			spec.Solver = solver
			m, err := New(spec)
			require.NoError(t, err)
			require.NoError(t, m.Train(linear(20, 2, 3), nil))

			d, err := m.Diagnostics()
			require.NoError(t, err)
			icpt, ok := d.Intercept()
			require.True(t, ok)
			assert.InDelta(t, 2.0, icpt.Value, 1e-6)
			slope, ok := d.Coefficient(types.FieldLivingArea)
			require.True(t, ok)
			assert.InDelta(t, 3.0, slope.Value, 1e-8)
			assert.InDelta(t, 1.0, d.RSquared, 1e-9)
			assert.InDelta(t, 0.0, d.RMSE, 1e-6)
			assert.Equal(t, 20, d.N)
			assert.Equal(t, 2, d.Parameters)
			assert.True(t, d.ResidualMoran.Degenerate)

			pred, err := m.Predict(types.PropertyRecord{ID: "new", LivingArea: 100})
			require.NoError(t, err)
			assert.InDelta(t, 302.0, pred.Value, 1e-5)
			assert.Equal(t, 100.0, pred.Inputs[types.FieldLivingArea])
		})
	}
}

func TestOLSWithNoise(t *testing.T) {
	props := linear(30, 10, 2)
	for i := range props {
		// alternating ±1 residual
		props[i].SalePrice += float64(1 - 2*(i%2))
	}
	m, err := New(simpleSpec())
	require.NoError(t, err)
	require.NoError(t, m.Train(props, nil))
	d, err := m.Diagnostics()
	require.NoError(t, err)

	slope, _ := d.Coefficient(types.FieldLivingArea)
	assert.InDelta(t, 2.0, slope.Value, 0.01)
	assert.Positive(t, slope.StdErr)
	assert.Greater(t, slope.TStat, 10.0)
	assert.Less(t, slope.PValue, 1e-6)
	assert.Less(t, d.RSquared, 1.0)
	assert.Greater(t, d.RSquared, 0.99)
	assert.Less(t, d.AdjRSquared, d.RSquared)
	assert.False(t, math.IsNaN(d.LogLikelihood))
	assert.InDelta(t, 2*2-2*d.LogLikelihood, d.AIC, 1e-9)
	assert.InDelta(t, 2*math.Log(30)-2*d.LogLikelihood, d.BIC, 1e-9)
	assert.Positive(t, d.MAPE)

	pred, err := m.Predict(types.PropertyRecord{ID: "p", LivingArea: 15})
	require.NoError(t, err)
	assert.Less(t, pred.Lower, pred.Value)
	assert.Greater(t, pred.Upper, pred.Value)
	assert.Positive(t, pred.StandardError)
}

func TestPredictBeforeTrain(t *testing.T) {
	m, err := New(simpleSpec())
	require.NoError(t, err)
	assert.False(t, m.Trained())

	_, err = m.Predict(types.PropertyRecord{ID: "a", LivingArea: 1})
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = m.Diagnostics()
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = m.Snapshot()
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestPredictDeterministic(t *testing.T) {
	spec := simpleSpec()
	spec.Type = SpatialLag
	spec.Weights = knn4()
	m, err := New(spec)
	require.NoError(t, err)
	props := located(6)
	require.NoError(t, m.Train(props, nil))

	a, err := m.Predict(props[7])
	require.NoError(t, err)
	b, err := m.Predict(props[7])
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSingularMatrix(t *testing.T) {
	props := linear(12, 5, 1)
	for i := range props {
		props[i].LotSize = 2 * props[i].LivingArea
	}
	spec := simpleSpec()
	spec.Independent = []string{types.FieldLivingArea, types.FieldLotSize}
	m, err := New(spec)
	require.NoError(t, err)
	err = m.Train(props, nil)
	assert.ErrorIs(t, err, ErrSingularMatrix)
	assert.False(t, m.Trained())
}

func TestGaussJordanInverse(t *testing.T) {
	a := [][]float64{{0, 2, 1}, {1, 1, 0}, {2, 0, 3}}
	m := mat.NewDense(3, 3, []float64{0, 2, 1, 1, 1, 0, 2, 0, 3})
	inv, err := gaussJordanInverse(m)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a[i][k] * inv.At(k, j)
			}
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, s, 1e-12)
		}
	}
	// the input is left untouched
	assert.Equal(t, 0.0, m.At(0, 0))

	_, err = gaussJordanInverse(mat.NewDense(2, 2, []float64{1, 2, 2, 4}))
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestLogTransforms(t *testing.T) {
	// sale = e·√area, so log(sale) = 1 + 0.5·log(area)
	var props []types.PropertyRecord
	for i := 1; i <= 15; i++ {
		area := float64(500 * i)
		props = append(props, types.PropertyRecord{ID: fmt.Sprint(i), LivingArea: area, SalePrice: math.E * math.Sqrt(area)})
	}
	spec := simpleSpec()
	spec.Transforms = map[string]Transform{types.FieldSalePrice: TransformLog, types.FieldLivingArea: TransformLog}
	m, preds, err := TrainAndPredict(props, spec)
	require.NoError(t, err)
	require.Len(t, preds, 15)

	d, _ := m.Diagnostics()
	slope, _ := d.Coefficient(types.FieldLivingArea)
	assert.InDelta(t, 0.5, slope.Value, 1e-9)
	for i, p := range preds {
		assert.InDelta(t, props[i].SalePrice, p.Value, 1e-6*props[i].SalePrice)
		assert.InDelta(t, math.Log(props[i].SalePrice), p.Modelled, 1e-9)
	}

	// a zero area is outside log's domain
	_, err = m.Predict(types.PropertyRecord{ID: "z"})
	assert.ErrorIs(t, err, ErrInvalidTransform)
}

func TestMAPEOnOriginalScale(t *testing.T) {
	// log(sale) = 10 + 0.001·area with alternating ±10% errors on the price
	var props []types.PropertyRecord
	for i := 1; i <= 20; i++ {
		area := float64(1000 + 50*i)
		price := math.Exp(10 + 0.001*area)
		if i%2 == 0 {
			price *= 1.1
		} else {
			price /= 1.1
		}
		props = append(props, types.PropertyRecord{ID: fmt.Sprint(i), LivingArea: area, SalePrice: price})
	}
	spec := simpleSpec()
	spec.Transforms = map[string]Transform{types.FieldSalePrice: TransformLog}
	m, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, m.Train(props, nil))
	d, err := m.Diagnostics()
	require.NoError(t, err)

	var ape float64
	for _, p := range props {
		pred, err := m.Predict(p)
		require.NoError(t, err)
		ape += math.Abs((p.SalePrice - pred.Value) / p.SalePrice)
	}
	assert.InDelta(t, 100*ape/float64(len(props)), d.MAPE, 1e-9)
	// on the log scale the same errors would read well under 1%
	assert.Greater(t, d.MAPE, 5.0)
}

func TestCustomTransform(t *testing.T) {
	spec := simpleSpec()
	spec.Transforms = map[string]Transform{types.FieldLivingArea: TransformCustom}
	_, err := New(spec)
	assert.Error(t, err)

	spec.Custom = map[string]func(float64) float64{types.FieldLivingArea: func(v float64) float64 { return v / 10 }}
	m, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, m.Train(linear(10, 1, 4), nil))
	d, _ := m.Diagnostics()
	slope, _ := d.Coefficient(types.FieldLivingArea)
	assert.InDelta(t, 40.0, slope.Value, 1e-8)
}

func TestSpatialModels(t *testing.T) {
	props := located(6)
	for _, typ := range []ModelType{SpatialLag, SpatialError, SpatialDurbin} {
		t.Run(string(typ), func(t *testing.T) {
			spec := simpleSpec()
			spec.Type = typ
			spec.Weights = knn4()
			m, err := New(spec)
			require.NoError(t, err)
			require.NoError(t, m.Train(props, nil))

			d, err := m.Diagnostics()
			require.NoError(t, err)
			assert.Equal(t, typ, d.Type)
			assert.False(t, math.IsNaN(d.Rho))
			assert.NotZero(t, d.Rho)
			assert.False(t, d.ResidualMoran.Degenerate)
			if typ == SpatialDurbin {
				_, ok := d.Coefficient(lagPrefix + types.FieldLivingArea)
				assert.True(t, ok)
				assert.Equal(t, 3, d.Parameters)
			}

			pred, err := m.Predict(props[0])
			require.NoError(t, err)
			assert.Equal(t, 4, pred.Neighbors)
			assert.InDelta(t, d.Rho, pred.SpatialComponent/meanNeighbourPrice(t, props, pred), 1e-9)

			// a parcel that was not in the training set finds its neighbours by distance
			fresh := types.PropertyRecord{ID: "fresh", LivingArea: 1500, Latitude: types.Float(32.705), Longitude: types.Float(-97.395)}
			pred, err = m.Predict(fresh)
			require.NoError(t, err)
			assert.Equal(t, 4, pred.Neighbors)
			assert.Positive(t, pred.Value)
		})
	}
}

// meanNeighbourPrice recomputes the lagged neighbour price for p0_0, whose
// four nearest training parcels are found with the same row-standardised
// weights.
func meanNeighbourPrice(t *testing.T, props []types.PropertyRecord, pred Prediction) float64 {
	t.Helper()
	w, err := spatial.Build(spatial.PointsFromProperties(props), *knn4())
	require.NoError(t, err)
	i, ok := w.Lookup(pred.ID)
	require.True(t, ok)
	var s float64
	for _, n := range w.Neighbors(i) {
		s += n.Weight * props[n.Index].SalePrice
	}
	return s
}

func TestRhoWithUnstandardisedWeights(t *testing.T) {
	props := located(6)
	cfg := spatial.Config{Method: spatial.DistanceBand, BandKm: 1.5, Decay: spatial.DecayInverse}
	w, err := spatial.Build(spatial.PointsFromProperties(props), cfg)
	require.NoError(t, err)
	require.False(t, w.Standardized())

	spec := simpleSpec()
	spec.Type = SpatialLag
	spec.Weights = &cfg
	m, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, m.Train(props, w))

	// residuals in matrix order; every parcel is both a row and a point
	fit := m.fit
	resid := make([]float64, w.Len())
	for i, r := range fit.rows {
		x := fit.design(spec, r.x, fit.links[i])
		yhat := 0.0
		for k, b := range fit.beta {
			yhat += b * x[k]
		}
		idx, ok := w.Lookup(r.id)
		require.True(t, ok)
		resid[idx] = r.y - yhat
	}
	we := w.Lag(resid)
	var num, den float64
	for i := range resid {
		num += resid[i] * we[i]
		den += we[i] * we[i]
	}
	d, err := m.Diagnostics()
	require.NoError(t, err)
	assert.InDelta(t, num/den, d.Rho, 1e-9*math.Abs(num/den))

	prices := make([]float64, w.Len())
	for _, p := range props {
		idx, _ := w.Lookup(p.ID)
		prices[idx] = p.SalePrice
	}
	first, _ := w.Lookup(props[0].ID)
	pred, err := m.Predict(props[0])
	require.NoError(t, err)
	assert.InDelta(t, d.Rho*w.Lag(prices)[first], pred.SpatialComponent, 1e-6)
}

func TestResidualMoranDetectsPattern(t *testing.T) {
	spec := simpleSpec()
	spec.Weights = knn4()
	m, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, m.Train(located(6), nil))
	d, err := m.Diagnostics()
	require.NoError(t, err)
	assert.False(t, d.ResidualMoran.Degenerate)
	assert.Greater(t, d.ResidualMoran.Value, 0.3)
	assert.True(t, d.ResidualMoran.Significant)
	assert.Zero(t, d.Rho)
}

func TestTrainDuplicateID(t *testing.T) {
	props := linear(10, 2, 3)
	props[7].ID = props[2].ID
	m, err := New(simpleSpec())
	require.NoError(t, err)
	assert.ErrorIs(t, m.Train(props, nil), spatial.ErrDuplicateID)
	assert.False(t, m.Trained())
}

func TestRetrainReplacesState(t *testing.T) {
	m, err := New(simpleSpec())
	require.NoError(t, err)
	require.NoError(t, m.Train(linear(10, 2, 3), nil))
	before, err := m.Snapshot()
	require.NoError(t, err)

	require.NoError(t, m.Train(linear(10, 5, 1), nil))
	d, _ := m.Diagnostics()
	slope, _ := d.Coefficient(types.FieldLivingArea)
	assert.InDelta(t, 1.0, slope.Value, 1e-8)

	// the snapshot taken earlier is unaffected
	assert.InDelta(t, 3.0, before.Coefficients[1].Value, 1e-8)
}

func TestConcurrentPredictDuringTrain(t *testing.T) {
	m, err := New(simpleSpec())
	require.NoError(t, err)
	require.NoError(t, m.Train(linear(10, 2, 3), nil))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := m.Predict(types.PropertyRecord{ID: "x", LivingArea: 3})
				assert.NoError(t, err)
			}
		}()
	}
	for j := 0; j < 5; j++ {
		require.NoError(t, m.Train(linear(10+j, 2, 3), nil))
	}
	wg.Wait()
}

func TestInsufficientData(t *testing.T) {
	m, err := New(simpleSpec())
	require.NoError(t, err)
	err = m.Train(linear(2, 1, 1), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	spec := simpleSpec()
	spec.Type = SpatialLag
	spec.Weights = knn4()
	m, err = New(spec)
	require.NoError(t, err)
	// no coordinates, so nothing can enter a spatial model
	err = m.Train(linear(20, 1, 1), nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSpecValidation(t *testing.T) {
	spec := simpleSpec()
	spec.Type = "gwr"
	_, err := New(spec)
	assert.ErrorIs(t, err, ErrUnknownModelType)

	spec = simpleSpec()
	spec.Type = SpatialError
	_, err = New(spec)
	assert.ErrorIs(t, err, ErrMissingWeights)

	spec = simpleSpec()
	spec.Dependent = ""
	_, err = New(spec)
	assert.Error(t, err)

	spec = simpleSpec()
	spec.Solver = "svd"
	_, err = New(spec)
	assert.Error(t, err)

	_, err = New(DefaultSpec())
	assert.NoError(t, err)
}
