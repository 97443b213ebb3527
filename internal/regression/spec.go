package regression

import (
	"errors"
	"fmt"
	"math"

	"appraisal/internal/spatial"
)

// ModelType selects the regression specification.
type ModelType string

const (
	OLS           ModelType = "ols"
	SpatialLag    ModelType = "spatial_lag"
	SpatialError  ModelType = "spatial_error"
	SpatialDurbin ModelType = "spatial_durbin"
)

// Spatial reports whether the model type estimates a spatial coefficient.
func (t ModelType) Spatial() bool {
	return t == SpatialLag || t == SpatialError || t == SpatialDurbin
}

// Transform is applied to a variable before fitting and before prediction.
type Transform string

const (
	TransformNone   Transform = ""
	TransformLog    Transform = "log"
	TransformSqrt   Transform = "sqrt"
	TransformSquare Transform = "square"
	TransformCustom Transform = "custom"
)

// Solver selects the least-squares routine.
type Solver string

const (
	// SolverGaussJordan inverts XᵀX by Gauss-Jordan elimination with partial
	// pivoting. It has no regularisation and fails on collinear features.
	SolverGaussJordan Solver = "gauss_jordan"
	// SolverQR solves the least-squares problem by QR factorisation of X.
	SolverQR Solver = "qr"
)

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrSingularMatrix   = errors.New("singular matrix")
	ErrUnknownModelType = errors.New("unknown model type")
	ErrMissingWeights   = errors.New("spatial model requires a weight configuration")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrMissingVariable  = errors.New("missing variable")
	ErrInvalidTransform = errors.New("value outside transform domain")
)

// Spec describes a model. Variable names are validation field names such as
// "sale_price" or "living_area".
type Spec struct {
	Dependent   string               `json:"dependent"`
	Independent []string             `json:"independent"`
	Intercept   bool                 `json:"intercept"`
	Type        ModelType            `json:"type"`
	Weights     *spatial.Config      `json:"weights,omitempty"`
	Solver      Solver               `json:"solver,omitempty"`
	Transforms  map[string]Transform `json:"transforms,omitempty"`

	// Custom holds the function for every variable whose transform is custom.
	Custom map[string]func(float64) float64 `json:"-"`
}

// DefaultSpec is a hedonic OLS of sale price on the physical attributes.
func DefaultSpec() Spec {
	w := spatial.DefaultConfig()
	return Spec{
		Dependent:   "sale_price",
		Independent: []string{"living_area", "lot_size", "year_built", "bedrooms", "bathrooms"},
		Intercept:   true,
		Type:        OLS,
		Weights:     &w,
		Solver:      SolverGaussJordan,
	}
}

// Validate reports configuration errors.
func (s Spec) Validate() error {
	if s.Dependent == "" {
		return errors.New("dependent variable is required")
	}
	if len(s.Independent) == 0 && !s.Intercept {
		return errors.New("model has no regressors")
	}
	seen := map[string]bool{s.Dependent: true}
	for _, v := range s.Independent {
		if seen[v] {
			return fmt.Errorf("variable %q listed twice", v)
		}
		seen[v] = true
	}
	switch s.Type {
	case OLS, SpatialLag, SpatialError, SpatialDurbin:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownModelType, s.Type)
	}
	if s.Type.Spatial() && s.Weights == nil {
		return ErrMissingWeights
	}
	if s.Weights != nil {
		if err := s.Weights.Validate(); err != nil {
			return err
		}
	}
	for v, t := range s.Transforms {
		switch t {
		case TransformNone, TransformLog, TransformSqrt, TransformSquare:
		case TransformCustom:
			if s.Custom[v] == nil {
				return fmt.Errorf("custom transform for %q has no function", v)
			}
		default:
			return fmt.Errorf("unknown transform %q for %q", t, v)
		}
	}
	switch s.Solver {
	case "", SolverGaussJordan, SolverQR:
	default:
		return fmt.Errorf("unknown solver %q", s.Solver)
	}
	return nil
}

func (s Spec) transform(name string, v float64) (float64, error) {
	var out float64
	switch s.Transforms[name] {
	case TransformLog:
		if v <= 0 {
			return 0, fmt.Errorf("%w: log(%g) for %s", ErrInvalidTransform, v, name)
		}
		out = math.Log(v)
	case TransformSqrt:
		if v < 0 {
			return 0, fmt.Errorf("%w: sqrt(%g) for %s", ErrInvalidTransform, v, name)
		}
		out = math.Sqrt(v)
	case TransformSquare:
		out = v * v
	case TransformCustom:
		out = s.Custom[name](v)
	default:
		out = v
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: %s = %g", ErrInvalidTransform, name, v)
	}
	return out, nil
}

// untransform maps a dependent value back to its original scale. Custom
// transforms have no inverse and stay on the modelled scale.
func (s Spec) untransform(v float64) float64 {
	switch s.Transforms[s.Dependent] {
	case TransformLog:
		return math.Exp(v)
	case TransformSqrt:
		return v * v
	case TransformSquare:
		return math.Sqrt(math.Max(v, 0))
	}
	return v
}

func (s Spec) solver() Solver {
	if s.Solver == "" {
		return SolverGaussJordan
	}
	return s.Solver
}
