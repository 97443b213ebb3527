package appraisal

import (
	"fmt"
	"strings"
	"time"

	"appraisal/internal/autocorr"
	"appraisal/internal/ratiostudy"
	"appraisal/internal/regression"
	"appraisal/internal/spatial"
	"appraisal/internal/validation"
)

// StageStatus records whether a stage ran.
type StageStatus string

const (
	StageRan     StageStatus = "ran"
	StageSkipped StageStatus = "skipped"
)

// Stage names, in execution order.
const (
	StageValidation      = "validation"
	StageSales           = "sales"
	StageRatioStudy      = "ratio_study"
	StageStratification  = "stratification"
	StageWeights         = "spatial_weights"
	StageAutocorrelation = "autocorrelation"
	StageRegression      = "regression"
)

// Stage is one entry of the run log.
type Stage struct {
	Name     string        `json:"name"`
	Status   StageStatus   `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// WeightsSummary describes the matrix built for a run.
type WeightsSummary struct {
	Config           spatial.Config `json:"config"`
	Properties       int            `json:"properties"`
	AverageNeighbors float64        `json:"average_neighbors"`
	Isolated         []string       `json:"isolated,omitempty"`
}

// Summary is the one-screen digest of a run. Pointer fields are nil when the
// stage producing them was skipped.
type Summary struct {
	Properties      int      `json:"properties"`
	Valid           int      `json:"valid"`
	Invalid         int      `json:"invalid"`
	Sales           int      `json:"sales"`
	Duplicates      int      `json:"duplicates,omitempty"`
	AssessmentLevel *float64 `json:"assessment_level,omitempty"`
	COD             *float64 `json:"cod,omitempty"`
	PRD             *float64 `json:"prd,omitempty"`
	PRB             *float64 `json:"prb,omitempty"`
	IAAOCompliant   *bool    `json:"iaao_compliant,omitempty"`
	MoransI         *float64 `json:"morans_i,omitempty"`
	RSquared        *float64 `json:"r_squared,omitempty"`
	Text            string   `json:"text"`
}

// Results is everything one analysis run produced.
type Results struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Validation      *validation.Report                             `json:"validation,omitempty"`
	RatioStudy      *ratiostudy.Result                             `json:"ratio_study,omitempty"`
	Strata          map[ratiostudy.StratifyBy][]ratiostudy.Stratum `json:"strata,omitempty"`
	Weights         *WeightsSummary                                `json:"weights,omitempty"`
	Autocorrelation *autocorr.Result                               `json:"autocorrelation,omitempty"`
	Model           *regression.Snapshot                           `json:"model,omitempty"`
	Predictions     []regression.Prediction                        `json:"predictions,omitempty"`

	// Duplicates lists ids of records dropped for repeating an earlier id.
	Duplicates []string `json:"duplicates,omitempty"`

	Stages  []Stage `json:"stages"`
	Summary Summary `json:"summary"`

	matrix *spatial.Matrix
	model  *regression.Model
}

// Matrix returns the weight matrix built for the run, or nil.
func (r *Results) Matrix() *spatial.Matrix { return r.matrix }

// TrainedModel returns the model trained in the run, or nil.
func (r *Results) TrainedModel() *regression.Model { return r.model }

// Stage returns the log entry of a stage.
func (r *Results) Stage(name string) (Stage, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Ran reports whether a stage executed.
func (r *Results) Ran(name string) bool {
	s, ok := r.Stage(name)
	return ok && s.Status == StageRan
}

func (r *Results) summarize(properties, sales int) {
	s := Summary{Properties: properties, Sales: sales}
	var parts []string
	if n := len(r.Duplicates); n > 0 {
		s.Duplicates = n
		parts = append(parts, fmt.Sprintf("%d duplicate records dropped", n))
	}
	if r.Validation != nil {
		s.Valid, s.Invalid = r.Validation.Valid, r.Validation.Invalid
		parts = append(parts, fmt.Sprintf("%d of %d properties valid", s.Valid, properties))
	}
	if rs := r.RatioStudy; rs != nil && rs.SampleSize > 0 {
		// level and PRD survive a zero-variance ratio set; COD does not
		s.AssessmentLevel = ptr(rs.MedianRatio)
		if rs.PRD != 0 {
			s.PRD = ptr(rs.PRD)
		}
		if rs.Degenerate {
			parts = append(parts, fmt.Sprintf("assessment level %.3f over %d sales (%s)", rs.MedianRatio, sales, rs.Interpretation))
		} else {
			s.COD = ptr(rs.COD)
			if rs.PRBCalculated {
				s.PRB = ptr(rs.PRB)
			}
			compliant := rs.IAAOCompliant
			s.IAAOCompliant = &compliant
			parts = append(parts, fmt.Sprintf("assessment level %.3f, COD %.1f, PRD %.3f over %d sales", rs.MedianRatio, rs.COD, rs.PRD, sales))
		}
	}
	if ac := r.Autocorrelation; ac != nil && !ac.MoransI.Degenerate {
		s.MoransI = ptr(ac.MoransI.Value)
		parts = append(parts, fmt.Sprintf("Moran's I %.3f (p=%.3f)", ac.MoransI.Value, ac.MoransI.PValue))
	}
	if r.Model != nil {
		s.RSquared = ptr(r.Model.Diagnostics.RSquared)
		parts = append(parts, fmt.Sprintf("%s model R² %.3f", r.Model.Spec.Type, r.Model.Diagnostics.RSquared))
	}
	if len(parts) == 0 {
		parts = append(parts, "no analysis stage had enough data")
	}
	s.Text = strings.Join(parts, "; ")
	r.Summary = s
}

func ptr[T any](v T) *T { return &v }
