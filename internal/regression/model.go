// Package regression fits hedonic value models by ordinary least squares with
// optional spatial lag, spatial error and spatial Durbin extensions.
//
// The spatial coefficient ρ is a residual-correlation estimate,
// Σ(e·We)/Σ(We)², not a maximum-likelihood fit. It is applied only when
// predicting, by adding ρ times the spatial lag Σ w·y of the neighbours'
// training values of the dependent variable.
package regression

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"appraisal/internal/monitoring"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
)

const (
	interceptName = "(intercept)"
	lagPrefix     = "W_"

	// PredictionLevel is the confidence level of prediction intervals.
	PredictionLevel = 0.95
)

// Prediction is the model estimate for one property.
type Prediction struct {
	ID string `json:"id"`

	// Value and its interval are on the original scale of the dependent variable.
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// Modelled and StandardError are on the transformed scale.
	Modelled         float64            `json:"modelled"`
	StandardError    float64            `json:"standard_error"`
	SpatialComponent float64            `json:"spatial_component"`
	Neighbors        int                `json:"neighbors"`
	Inputs           map[string]float64 `json:"inputs"`
}

// link is a neighbour among the training rows.
type link struct {
	row    int
	weight float64
}

type trainingRow struct {
	id     string
	point  *spatial.Point
	inputs map[string]float64
	x      []float64 // transformed independents, spec order
	y      float64   // transformed dependent
}

// fitted is the immutable state produced by one Train call.
type fitted struct {
	names  []string
	beta   []float64
	xtxInv *mat.Dense
	sigma2 float64
	df     int
	rho    float64

	rows    []trainingRow
	byID    map[string]int
	points  []spatial.Point
	ptRow   []int
	w       *spatial.Matrix
	links   [][]link
	diag    Diagnostics
	trained time.Time
}

// Model is a regression model. Train may be called again to refit; readers
// running concurrently with Train see either the old or the new fit.
type Model struct {
	mu   sync.RWMutex
	spec Spec
	fit  *fitted
}

// New validates spec and returns an untrained model.
func New(spec Spec) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("regression: %w", err)
	}
	return &Model{spec: spec}, nil
}

// Spec returns the model specification.
func (m *Model) Spec() Spec { return m.spec }

// Trained reports whether Train has succeeded at least once.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fit != nil
}

// Train fits the model to every property with a positive dependent value and
// all independent variables present. w supplies the neighbour structure for
// spatial terms and residual diagnostics; when nil it is built over the
// training properties from the spec's weight configuration.
func (m *Model) Train(props []types.PropertyRecord, w *spatial.Matrix) error {
	fit, err := m.train(props, w)
	if err != nil {
		return fmt.Errorf("regression: %w", err)
	}
	m.mu.Lock()
	m.fit = fit
	m.mu.Unlock()
	monitoring.Logf("regression: %s trained on %d properties (%d dropped), R²=%.4f",
		m.spec.Type, fit.diag.N, fit.diag.Dropped, fit.diag.RSquared)
	return nil
}

func (m *Model) train(props []types.PropertyRecord, given *spatial.Matrix) (*fitted, error) {
	spec := m.spec
	fit := &fitted{byID: make(map[string]int), w: given, trained: time.Now()}

	dropped := 0
	for _, p := range props {
		r, err := spec.extract(p, true)
		if err != nil || (spec.Type.Spatial() && r.point == nil) {
			dropped++
			continue
		}
		if _, dup := fit.byID[r.id]; dup {
			return nil, fmt.Errorf("%w %q", spatial.ErrDuplicateID, r.id)
		}
		fit.byID[r.id] = len(fit.rows)
		if r.point != nil {
			fit.points = append(fit.points, *r.point)
			fit.ptRow = append(fit.ptRow, len(fit.rows))
		}
		fit.rows = append(fit.rows, r)
	}

	if fit.w == nil && spec.Weights != nil && len(fit.points) >= 2 {
		w, err := spatial.Build(fit.points, *spec.Weights)
		if err != nil {
			return nil, err
		}
		fit.w = w
	}
	if spec.Type.Spatial() && fit.w == nil {
		return nil, fmt.Errorf("%w: %s needs at least 2 located properties", ErrInsufficientData, spec.Type)
	}
	fit.links = fit.trainingLinks()

	fit.names = spec.regressorNames()
	n, p := len(fit.rows), len(fit.names)
	if n <= p {
		return nil, fmt.Errorf("%w: %d usable properties for %d parameters", ErrInsufficientData, n, p)
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, r := range fit.rows {
		x.SetRow(i, fit.design(spec, r.x, fit.links[i]))
		y.SetVec(i, r.y)
	}
	beta, inv, err := leastSquares(x, y, spec.solver())
	if err != nil {
		return nil, err
	}
	fit.beta = mat.Col(nil, 0, beta)
	fit.xtxInv = inv
	fit.df = n - p

	var fittedY mat.VecDense
	fittedY.MulVec(x, beta)
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = y.AtVec(i) - fittedY.AtVec(i)
	}
	if spec.Type.Spatial() {
		fit.rho = fit.estimateRho(resid)
	}
	fit.diag = fit.diagnostics(spec, resid, dropped)
	fit.sigma2 = fit.diag.Sigma2
	return fit, nil
}

// extract reads and transforms a property's variables. The dependent is only
// required when training.
func (s Spec) extract(p types.PropertyRecord, needY bool) (trainingRow, error) {
	fields := p.Fields()
	r := trainingRow{id: p.ID, inputs: make(map[string]float64, len(s.Independent)+1)}
	if p.HasCoordinates() {
		r.point = &spatial.Point{ID: p.ID, Lat: *p.Latitude, Lon: *p.Longitude}
	}
	if needY {
		v, ok := types.ToFloat(fields[s.Dependent])
		if !ok || v <= 0 {
			return r, fmt.Errorf("%w: %s", ErrMissingVariable, s.Dependent)
		}
		ty, err := s.transform(s.Dependent, v)
		if err != nil {
			return r, err
		}
		r.inputs[s.Dependent] = v
		r.y = ty
	}
	r.x = make([]float64, len(s.Independent))
	for k, name := range s.Independent {
		v, ok := types.ToFloat(fields[name])
		if !ok {
			return r, fmt.Errorf("%w: %s", ErrMissingVariable, name)
		}
		tv, err := s.transform(name, v)
		if err != nil {
			return r, err
		}
		r.inputs[name] = v
		r.x[k] = tv
	}
	return r, nil
}

func (s Spec) regressorNames() []string {
	var names []string
	if s.Intercept {
		names = append(names, interceptName)
	}
	names = append(names, s.Independent...)
	if s.Type == SpatialDurbin {
		for _, v := range s.Independent {
			names = append(names, lagPrefix+v)
		}
	}
	return names
}

// design builds one row of X from transformed independents.
func (f *fitted) design(s Spec, x []float64, nbrs []link) []float64 {
	row := make([]float64, 0, len(f.names))
	if s.Intercept {
		row = append(row, 1)
	}
	row = append(row, x...)
	if s.Type == SpatialDurbin {
		for k := range x {
			row = append(row, f.lag(nbrs, func(r int) float64 { return f.rows[r].x[k] }))
		}
	}
	return row
}

// trainingLinks maps each training row to its neighbours among the training rows.
func (f *fitted) trainingLinks() [][]link {
	links := make([][]link, len(f.rows))
	if f.w == nil {
		return links
	}
	for i, r := range f.rows {
		idx, ok := f.w.Lookup(r.id)
		if !ok {
			continue
		}
		links[i] = f.fromMatrix(idx)
	}
	return links
}

func (f *fitted) fromMatrix(idx int) []link {
	var out []link
	for _, nb := range f.w.Neighbors(idx) {
		if r, ok := f.byID[f.w.ID(nb.Index)]; ok {
			out = append(out, link{row: r, weight: nb.Weight})
		}
	}
	return out
}

// lag is Σ w·v over the neighbours, the row of W·v. It is the weighted mean
// only when the weights are row-standardised.
func (f *fitted) lag(nbrs []link, v func(row int) float64) float64 {
	var sum float64
	for _, l := range nbrs {
		sum += l.weight * v(l.row)
	}
	return sum
}

func (f *fitted) estimateRho(resid []float64) float64 {
	var num, den float64
	for i := range resid {
		we := f.lag(f.links[i], func(r int) float64 { return resid[r] })
		num += resid[i] * we
		den += we * we
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// neighbors finds the training neighbours of a property being predicted.
func (f *fitted) neighbors(s Spec, r trainingRow) ([]link, error) {
	if i, ok := f.byID[r.id]; ok {
		return f.links[i], nil
	}
	if r.point != nil && s.Weights != nil && len(f.points) > 0 {
		nbrs, err := spatial.NeighborsOf(*r.point, f.points, *s.Weights)
		if err != nil {
			return nil, err
		}
		out := make([]link, len(nbrs))
		for k, nb := range nbrs {
			out[k] = link{row: f.ptRow[nb.Index], weight: nb.Weight}
		}
		return out, nil
	}
	if f.w != nil {
		if idx, ok := f.w.Lookup(r.id); ok {
			return f.fromMatrix(idx), nil
		}
	}
	return nil, nil
}

// Predict estimates the dependent variable for a property. It is
// deterministic for a given fit and property.
func (m *Model) Predict(p types.PropertyRecord) (Prediction, error) {
	m.mu.RLock()
	fit := m.fit
	m.mu.RUnlock()
	if fit == nil {
		return Prediction{}, ErrNotTrained
	}
	spec := m.spec

	r, err := spec.extract(p, false)
	if err != nil {
		return Prediction{}, fmt.Errorf("regression: predict %s: %w", p.ID, err)
	}
	nbrs, err := fit.neighbors(spec, r)
	if err != nil {
		return Prediction{}, fmt.Errorf("regression: predict %s: %w", p.ID, err)
	}
	x0 := fit.design(spec, r.x, nbrs)

	var yhat float64
	for k, b := range fit.beta {
		yhat += b * x0[k]
	}
	pred := Prediction{ID: p.ID, Inputs: r.inputs, Neighbors: len(nbrs)}
	if spec.Type.Spatial() {
		pred.SpatialComponent = fit.rho * fit.lag(nbrs, func(row int) float64 { return fit.rows[row].y })
		yhat += pred.SpatialComponent
	}
	pred.Modelled = yhat

	xv := mat.NewVecDense(len(x0), x0)
	pred.StandardError = math.Sqrt(math.Max(fit.sigma2*mat.Inner(xv, fit.xtxInv, xv), 0))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(fit.df)}.Quantile(1 - (1-PredictionLevel)/2)
	pred.Value = spec.untransform(yhat)
	pred.Lower = spec.untransform(yhat - t*pred.StandardError)
	pred.Upper = spec.untransform(yhat + t*pred.StandardError)
	return pred, nil
}

// PredictAll predicts every property that has the independent variables.
// Properties that cannot be predicted are counted in skipped.
func (m *Model) PredictAll(props []types.PropertyRecord) (preds []Prediction, skipped int, err error) {
	for _, p := range props {
		pred, perr := m.Predict(p)
		switch {
		case perr == nil:
			preds = append(preds, pred)
		case errors.Is(perr, ErrNotTrained):
			return nil, 0, perr
		default:
			skipped++
		}
	}
	return preds, skipped, nil
}

// Diagnostics returns the fit statistics of the current model.
func (m *Model) Diagnostics() (Diagnostics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fit == nil {
		return Diagnostics{}, ErrNotTrained
	}
	return m.fit.diag.clone(), nil
}

// Snapshot is a copy of a trained model's parameters.
type Snapshot struct {
	Spec         Spec          `json:"spec"`
	Coefficients []Coefficient `json:"coefficients"`
	Rho          float64       `json:"rho"`
	Diagnostics  Diagnostics   `json:"diagnostics"`
	TrainedAt    time.Time     `json:"trained_at"`
}

// Snapshot copies the current coefficients and diagnostics, for callers that
// want to keep reading while the model is retrained.
func (m *Model) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fit == nil {
		return Snapshot{}, ErrNotTrained
	}
	d := m.fit.diag.clone()
	return Snapshot{
		Spec:         m.spec,
		Coefficients: d.Coefficients,
		Rho:          m.fit.rho,
		Diagnostics:  d,
		TrainedAt:    m.fit.trained,
	}, nil
}

// TrainAndPredict trains a model on props and predicts every property that
// has the independent variables.
func TrainAndPredict(props []types.PropertyRecord, spec Spec) (*Model, []Prediction, error) {
	m, err := New(spec)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Train(props, nil); err != nil {
		return nil, nil, err
	}
	preds, skipped, err := m.PredictAll(props)
	if err != nil {
		return nil, nil, err
	}
	if skipped > 0 {
		monitoring.Logf("regression: %d properties lack model variables and were not predicted", skipped)
	}
	return m, preds, nil
}
