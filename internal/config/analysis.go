// Package config loads the analysis configuration file and the connection
// settings the command line tool reads from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"appraisal/internal/appraisal"
	"appraisal/internal/autocorr"
	"appraisal/internal/ratiostudy"
	"appraisal/internal/regression"
	"appraisal/internal/spatial"
	"appraisal/internal/types"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// AnalysisConfig is the JSON form of an analysis run. Every field is optional;
// the Get* methods return the documented default for fields left out.
type AnalysisConfig struct {
	// Validation
	ValidateRecords *bool `json:"validate,omitempty"`
	Remediate       *bool `json:"remediate,omitempty"`
	ExcludeInvalid  *bool `json:"exclude_invalid,omitempty"`

	// Ratio study
	TrimOutliers       *bool    `json:"trim_outliers,omitempty"`
	OutlierThreshold   *float64 `json:"outlier_threshold,omitempty"`
	ConfidenceLevel    *float64 `json:"confidence_level,omitempty"`
	TimeAdjustment     *string  `json:"time_adjustment,omitempty"` // none, monthly or quarterly
	TimeAdjustmentRate *float64 `json:"time_adjustment_rate,omitempty"`
	Stratify           []string `json:"stratify,omitempty"`

	// Spatial weights
	WeightMethod   *string  `json:"weight_method,omitempty"`
	Neighbors      *int     `json:"neighbors,omitempty"`
	DistanceBandKm *float64 `json:"distance_band_km,omitempty"`
	Decay          *string  `json:"decay,omitempty"`
	RowStandardize *bool    `json:"row_standardize,omitempty"`

	// Autocorrelation
	SignificanceLevel *float64 `json:"significance_level,omitempty"`
	Local             *bool    `json:"local,omitempty"`
	HotSpots          *bool    `json:"hot_spots,omitempty"`

	// Model
	ModelType          *string           `json:"model_type,omitempty"`
	Solver             *string           `json:"solver,omitempty"`
	Dependent          *string           `json:"dependent,omitempty"`
	Independent        []string          `json:"independent,omitempty"`
	Intercept          *bool             `json:"intercept,omitempty"`
	Transforms         map[string]string `json:"transforms,omitempty"`
	MinRegressionSales *int              `json:"min_regression_sales,omitempty"`
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file with a .json
// extension no larger than 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &AnalysisConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that were set. Enumerations are checked by
// converting to the analysis configuration and validating that.
func (c *AnalysisConfig) Validate() error {
	if c.OutlierThreshold != nil && *c.OutlierThreshold <= 0 {
		return fmt.Errorf("outlier_threshold must be positive, got %f", *c.OutlierThreshold)
	}
	if c.ConfidenceLevel != nil && (*c.ConfidenceLevel <= 0 || *c.ConfidenceLevel >= 1) {
		return fmt.Errorf("confidence_level must be between 0 and 1, got %f", *c.ConfidenceLevel)
	}
	if c.SignificanceLevel != nil && (*c.SignificanceLevel <= 0 || *c.SignificanceLevel >= 1) {
		return fmt.Errorf("significance_level must be between 0 and 1, got %f", *c.SignificanceLevel)
	}
	if c.Neighbors != nil && *c.Neighbors < 1 {
		return fmt.Errorf("neighbors must be at least 1, got %d", *c.Neighbors)
	}
	if c.MinRegressionSales != nil && *c.MinRegressionSales < 1 {
		return fmt.Errorf("min_regression_sales must be at least 1, got %d", *c.MinRegressionSales)
	}
	if c.Dependent != nil && *c.Dependent == "" {
		return fmt.Errorf("dependent must not be empty")
	}
	if c.TimeAdjustment != nil && ratiostudy.TimeAdjustMethod(*c.TimeAdjustment) == ratiostudy.AdjustCustom {
		return fmt.Errorf("time_adjustment %q needs a function and cannot be configured from a file", *c.TimeAdjustment)
	}
	for name, t := range c.Transforms {
		if regression.Transform(t) == regression.TransformCustom {
			return fmt.Errorf("transform %q for %s cannot be configured from a file", t, name)
		}
	}
	return c.ToAnalysisConfig(nil).Validate()
}

// GetValidate returns whether records are validated before analysis (default true).
func (c *AnalysisConfig) GetValidate() bool {
	if c.ValidateRecords == nil {
		return true
	}
	return *c.ValidateRecords
}

// GetRemediate returns whether suggested values are applied (default false).
func (c *AnalysisConfig) GetRemediate() bool {
	return c.Remediate != nil && *c.Remediate
}

// GetExcludeInvalid returns whether invalid records are dropped (default false).
func (c *AnalysisConfig) GetExcludeInvalid() bool {
	return c.ExcludeInvalid != nil && *c.ExcludeInvalid
}

// GetTrimOutliers returns whether ratio outliers are trimmed (default true).
func (c *AnalysisConfig) GetTrimOutliers() bool {
	if c.TrimOutliers == nil {
		return true
	}
	return *c.TrimOutliers
}

// GetOutlierThreshold returns the MAD multiple beyond which ratios are trimmed.
func (c *AnalysisConfig) GetOutlierThreshold() float64 {
	if c.OutlierThreshold == nil {
		return ratiostudy.DefaultOutlierThreshold
	}
	return *c.OutlierThreshold
}

// GetConfidenceLevel returns the confidence level of the median interval.
func (c *AnalysisConfig) GetConfidenceLevel() float64 {
	if c.ConfidenceLevel == nil {
		return ratiostudy.DefaultConfidenceLevel
	}
	return *c.ConfidenceLevel
}

// GetTimeAdjustment returns the time adjustment method and rate (default none).
func (c *AnalysisConfig) GetTimeAdjustment() ratiostudy.TimeAdjustment {
	ta := ratiostudy.TimeAdjustment{Method: ratiostudy.AdjustNone}
	if c.TimeAdjustment != nil {
		ta.Method = ratiostudy.TimeAdjustMethod(*c.TimeAdjustment)
	}
	if c.TimeAdjustmentRate != nil {
		ta.Rate = *c.TimeAdjustmentRate
	}
	return ta
}

// GetWeights returns the spatial weight configuration. Unset fields take
// the values of spatial.DefaultConfig.
func (c *AnalysisConfig) GetWeights() spatial.Config {
	w := spatial.DefaultConfig()
	if c.WeightMethod != nil {
		w.Method = spatial.Method(*c.WeightMethod)
	}
	if c.Neighbors != nil {
		w.K = *c.Neighbors
	}
	if c.DistanceBandKm != nil {
		w.BandKm = *c.DistanceBandKm
	}
	if c.Decay != nil {
		w.Decay = spatial.Decay(*c.Decay)
	}
	if c.RowStandardize != nil {
		w.RowStandardize = *c.RowStandardize
	}
	return w
}

// GetSignificanceLevel returns the autocorrelation significance level.
func (c *AnalysisConfig) GetSignificanceLevel() float64 {
	if c.SignificanceLevel == nil {
		return autocorr.DefaultSignificance
	}
	return *c.SignificanceLevel
}

// GetMinRegressionSales returns the smallest training set the model stage accepts.
func (c *AnalysisConfig) GetMinRegressionSales() int {
	if c.MinRegressionSales == nil {
		return appraisal.DefaultMinRegressionSales
	}
	return *c.MinRegressionSales
}

// GetModel returns the model specification, starting from regression.DefaultSpec.
func (c *AnalysisConfig) GetModel() regression.Spec {
	s := regression.DefaultSpec()
	s.Weights = nil
	if c.ModelType != nil {
		s.Type = regression.ModelType(*c.ModelType)
	}
	if c.Solver != nil {
		s.Solver = regression.Solver(*c.Solver)
	}
	if c.Dependent != nil {
		s.Dependent = *c.Dependent
	}
	if len(c.Independent) > 0 {
		s.Independent = append([]string(nil), c.Independent...)
	}
	if c.Intercept != nil {
		s.Intercept = *c.Intercept
	}
	if len(c.Transforms) > 0 {
		s.Transforms = make(map[string]regression.Transform, len(c.Transforms))
		for name, t := range c.Transforms {
			s.Transforms[name] = regression.Transform(t)
		}
	}
	return s
}

// ToAnalysisConfig builds the run configuration for props. The model uses
// the run's spatial weights.
func (c *AnalysisConfig) ToAnalysisConfig(props []types.PropertyRecord) appraisal.Config {
	cfg := appraisal.DefaultConfig(props)
	cfg.ValidateRecords = c.GetValidate()
	cfg.Remediate = c.GetRemediate()
	cfg.ExcludeInvalid = c.GetExcludeInvalid()

	cfg.RatioStudy.TrimOutliers = c.GetTrimOutliers()
	cfg.RatioStudy.OutlierThreshold = c.GetOutlierThreshold()
	cfg.RatioStudy.ConfidenceLevel = c.GetConfidenceLevel()
	cfg.RatioStudy.TimeAdjustment = c.GetTimeAdjustment()
	for _, by := range c.Stratify {
		cfg.Stratify = append(cfg.Stratify, ratiostudy.StratifyBy(by))
	}

	cfg.Weights = c.GetWeights()
	cfg.Autocorrelation.Significance = c.GetSignificanceLevel()
	if c.Local != nil {
		cfg.Autocorrelation.Local = *c.Local
	}
	if c.HotSpots != nil {
		cfg.Autocorrelation.HotSpots = *c.HotSpots
	}

	model := c.GetModel()
	cfg.Model = &model
	cfg.MinRegressionSales = c.GetMinRegressionSales()
	return cfg
}
