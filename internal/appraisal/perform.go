// Package appraisal runs a complete mass appraisal analysis: validation,
// ratio study, spatial weights, spatial autocorrelation and a value model,
// each stage skipped with a recorded reason when the data cannot support it.
package appraisal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"appraisal/internal/autocorr"
	"appraisal/internal/monitoring"
	"appraisal/internal/ratiostudy"
	"appraisal/internal/regression"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
	"appraisal/internal/validation"
)

// DefaultMinRegressionSales is the smallest number of located sales the
// regression stage will train on.
const DefaultMinRegressionSales = 10

// Config is the input to one analysis run.
type Config struct {
	Properties []types.PropertyRecord

	// ValidateRecords runs the rule engine first. Rules defaults to
	// validation.DefaultPropertyRules.
	ValidateRecords bool
	Rules           *validation.RuleSet

	// Remediate applies suggested values before analysis. ExcludeInvalid
	// drops properties that failed an error or critical rule.
	Remediate      bool
	ExcludeInvalid bool

	Metadata   ratiostudy.Metadata
	RatioStudy ratiostudy.Config
	Stratify   []ratiostudy.StratifyBy

	Weights         spatial.Config
	Autocorrelation autocorr.Options

	// Model defaults to regression.DefaultSpec. A model without its own weight
	// configuration uses Weights.
	Model              *regression.Spec
	MinRegressionSales int
}

// DefaultConfig validates, trims ratio outliers, uses five nearest neighbours
// and fits the default hedonic model.
func DefaultConfig(props []types.PropertyRecord) Config {
	return Config{
		Properties:         props,
		ValidateRecords:    true,
		RatioStudy:         ratiostudy.DefaultConfig(),
		Weights:            spatial.DefaultConfig(),
		Autocorrelation:    autocorr.DefaultOptions(),
		MinRegressionSales: DefaultMinRegressionSales,
	}
}

func (c Config) minRegressionSales() int {
	if c.MinRegressionSales <= 0 {
		return DefaultMinRegressionSales
	}
	return c.MinRegressionSales
}

func (c Config) model() regression.Spec {
	spec := regression.DefaultSpec()
	if c.Model != nil {
		spec = *c.Model
	}
	if spec.Weights == nil {
		w := c.weights()
		spec.Weights = &w
	}
	return spec
}

func (c Config) weights() spatial.Config {
	if c.Weights.Method == "" {
		return spatial.DefaultConfig()
	}
	return c.Weights
}

// Validate reports configuration errors before any stage runs.
func (c Config) Validate() error {
	if err := c.RatioStudy.Validate(); err != nil {
		return fmt.Errorf("ratio study: %w", err)
	}
	if err := c.weights().Validate(); err != nil {
		return fmt.Errorf("spatial weights: %w", err)
	}
	if err := c.model().Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	for _, by := range c.Stratify {
		switch by {
		case ratiostudy.ByNeighborhood, ratiostudy.ByValueTier, ratiostudy.ByPropertyType:
		default:
			return fmt.Errorf("unknown stratification %q", by)
		}
	}
	return nil
}

// run accumulates results and the stage log.
type run struct {
	res   *Results
	start time.Time
}

func (r *run) begin() { r.start = time.Now() }

func (r *run) ran(name string) {
	r.res.Stages = append(r.res.Stages, Stage{Name: name, Status: StageRan, Duration: time.Since(r.start)})
}

func (r *run) skip(name, format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	r.res.Stages = append(r.res.Stages, Stage{Name: name, Status: StageSkipped, Reason: reason})
	monitoring.Logf("appraisal %s: %s skipped: %s", r.res.RunID, name, reason)
}

// Perform runs the analysis. Only configuration errors are returned; stages
// without enough data are skipped and partial results are a normal outcome.
func Perform(cfg Config) (*Results, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("appraisal: %w", err)
	}
	r := &run{res: &Results{RunID: uuid.NewString(), StartedAt: time.Now()}}
	res := r.res
	monitoring.Logf("appraisal %s: starting with %d properties", res.RunID, len(cfg.Properties))

	props, dups := uniqueByID(cfg.Properties)
	if len(dups) > 0 {
		res.Duplicates = dups
		monitoring.Logf("appraisal %s: dropped %d records repeating an earlier property id", res.RunID, len(dups))
	}
	r.begin()
	if cfg.ValidateRecords {
		rules := validation.DefaultPropertyRules()
		if cfg.Rules != nil {
			rules = *cfg.Rules
		}
		report := validation.ValidateProperties(props, rules)
		res.Validation = &report
		props = prepare(props, report, cfg.Remediate, cfg.ExcludeInvalid)
		r.ran(StageValidation)
	} else {
		r.skip(StageValidation, "not requested")
	}

	r.begin()
	sales := types.SalesFromProperties(props)
	r.ran(StageSales)

	r.begin()
	if len(sales) >= 1 {
		study, err := ratiostudy.Perform(sales, cfg.Metadata, cfg.RatioStudy)
		if err != nil {
			return nil, fmt.Errorf("appraisal: ratio study: %w", err)
		}
		res.RatioStudy = &study
		r.ran(StageRatioStudy)
	} else {
		r.skip(StageRatioStudy, "no valid sales")
	}

	if len(cfg.Stratify) > 0 {
		r.begin()
		if len(sales) >= ratiostudy.MinStratumSize {
			res.Strata = make(map[ratiostudy.StratifyBy][]ratiostudy.Stratum, len(cfg.Stratify))
			for _, by := range cfg.Stratify {
				strata, err := ratiostudy.Stratify(sales, cfg.Metadata, cfg.RatioStudy, by)
				if err != nil {
					return nil, fmt.Errorf("appraisal: stratify by %s: %w", by, err)
				}
				res.Strata[by] = strata
			}
			r.ran(StageStratification)
		} else {
			r.skip(StageStratification, "%d sales, need %d", len(sales), ratiostudy.MinStratumSize)
		}
	}

	if err := r.spatialStages(cfg, props); err != nil {
		return nil, fmt.Errorf("appraisal: %w", err)
	}

	r.begin()
	var training []types.PropertyRecord
	for _, p := range props {
		if p.HasValidSale() && p.HasCoordinates() {
			training = append(training, p)
		}
	}
	if need := cfg.minRegressionSales(); len(training) < need {
		r.skip(StageRegression, "%d located sales, need %d", len(training), need)
	} else if err := trainModel(res, cfg.model(), training, props); err != nil {
		if !dataError(err) {
			return nil, fmt.Errorf("appraisal: %w", err)
		}
		r.skip(StageRegression, "%v", err)
	} else {
		r.ran(StageRegression)
	}

	res.summarize(len(props), len(sales))
	res.Duration = time.Since(res.StartedAt)
	monitoring.Logf("appraisal %s: done in %s: %s", res.RunID, res.Duration, res.Summary.Text)
	return res, nil
}

// spatialStages builds the weight matrix and runs autocorrelation. Only
// configuration errors are returned.
func (r *run) spatialStages(cfg Config, props []types.PropertyRecord) error {
	r.begin()
	points := spatial.PointsFromProperties(props)
	if len(points) < 2 {
		r.skip(StageWeights, "%d properties with coordinates, need 2", len(points))
		r.skip(StageAutocorrelation, "no spatial weights")
		return nil
	}
	wcfg := cfg.weights()
	m, err := spatial.Build(points, wcfg)
	if err != nil {
		if !dataError(err) {
			return err
		}
		r.skip(StageWeights, "%v", err)
		r.skip(StageAutocorrelation, "no spatial weights")
		return nil
	}
	r.res.matrix = m
	r.res.Weights = &WeightsSummary{
		Config:           wcfg,
		Properties:       m.Len(),
		AverageNeighbors: m.AverageNeighbors(),
		Isolated:         m.Isolated(),
	}
	r.ran(StageWeights)

	r.begin()
	opts := cfg.Autocorrelation
	if opts.Variable == "" {
		opts.Variable = types.FieldAssessedValue
	}
	ac, err := autocorr.Analyze(props, autocorr.AssessedValue, m, opts)
	if err != nil {
		return err
	}
	r.res.Autocorrelation = &ac
	r.ran(StageAutocorrelation)
	return nil
}

// dataError reports whether err comes from the data rather than the
// configuration; such stages are skipped.
func dataError(err error) bool {
	return errors.Is(err, regression.ErrSingularMatrix) ||
		errors.Is(err, regression.ErrInsufficientData) ||
		errors.Is(err, spatial.ErrDuplicateID)
}

// uniqueByID keeps the first record of each property id and returns the ids
// of the records dropped, in input order.
func uniqueByID(props []types.PropertyRecord) ([]types.PropertyRecord, []string) {
	seen := make(map[string]bool, len(props))
	var dups []string
	for _, p := range props {
		if seen[p.ID] {
			dups = append(dups, p.ID)
		}
		seen[p.ID] = true
	}
	if len(dups) == 0 {
		return props, nil
	}
	out := make([]types.PropertyRecord, 0, len(props)-len(dups))
	clear(seen)
	for _, p := range props {
		if !seen[p.ID] {
			out = append(out, p)
			seen[p.ID] = true
		}
	}
	return out, dups
}

func trainModel(res *Results, spec regression.Spec, training, all []types.PropertyRecord) error {
	m, err := regression.New(spec)
	if err != nil {
		return err
	}
	if err := m.Train(training, nil); err != nil {
		return err
	}
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	preds, skipped, err := m.PredictAll(all)
	if err != nil {
		return err
	}
	if skipped > 0 {
		monitoring.Logf("appraisal %s: %d properties could not be valued by the model", res.RunID, skipped)
	}
	res.model = m
	res.Model = &snap
	res.Predictions = preds
	return nil
}

// prepare applies remediation and exclusion after validation. Summaries are
// in property order.
func prepare(props []types.PropertyRecord, report validation.Report, remediate, exclude bool) []types.PropertyRecord {
	if !remediate && !exclude {
		return props
	}
	out := make([]types.PropertyRecord, 0, len(props))
	for i, p := range props {
		s := report.Summaries[i]
		if exclude && !s.Valid {
			continue
		}
		if remediate {
			p = validation.RemediateProperty(p, s)
		}
		out = append(out, p)
	}
	return out
}
