package ratiostudy

import (
	"fmt"
	"time"

	"appraisal/internal/types"
)

// Defaults used when a Config field is left at its zero value.
const (
	DefaultOutlierThreshold = 3.0
	DefaultConfidenceLevel  = 0.95
)

// TimeAdjustMethod selects how sale prices are brought to a common date.
type TimeAdjustMethod string

const (
	AdjustNone      TimeAdjustMethod = "none"
	AdjustMonthly   TimeAdjustMethod = "monthly"
	AdjustQuarterly TimeAdjustMethod = "quarterly"
	AdjustCustom    TimeAdjustMethod = "custom"
)

// TimeAdjustment describes a market-trend adjustment of sale prices. Rate is
// the compound price change per period (0.005 = +0.5% a month). Func, used
// with AdjustCustom, returns the adjusted price for a sale given the
// reference date (the most recent sale in the study).
type TimeAdjustment struct {
	Method TimeAdjustMethod
	Rate   float64
	Func   func(sale types.SaleRecord, reference time.Time) float64
}

// Config controls a ratio study. The zero value is usable: no filtering, no
// time adjustment, no trimming, 95% confidence.
type Config struct {
	Filter           func(types.SaleRecord) bool
	TimeAdjustment   TimeAdjustment
	TrimOutliers     bool
	OutlierThreshold float64
	ConfidenceLevel  float64
}

// DefaultConfig returns the configuration used by the orchestrator: MAD
// trimming at 3 and a 95% confidence interval.
func DefaultConfig() Config {
	return Config{
		TrimOutliers:     true,
		OutlierThreshold: DefaultOutlierThreshold,
		ConfidenceLevel:  DefaultConfidenceLevel,
	}
}

func (c Config) outlierThreshold() float64 {
	if c.OutlierThreshold <= 0 {
		return DefaultOutlierThreshold
	}
	return c.OutlierThreshold
}

func (c Config) confidenceLevel() float64 {
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return DefaultConfidenceLevel
	}
	return c.ConfidenceLevel
}

// Validate reports configuration errors that must not be silently defaulted.
func (c Config) Validate() error {
	switch c.TimeAdjustment.Method {
	case "", AdjustNone, AdjustMonthly, AdjustQuarterly:
	case AdjustCustom:
		if c.TimeAdjustment.Func == nil {
			return fmt.Errorf("custom time adjustment requires a function")
		}
	default:
		return fmt.Errorf("unknown time adjustment method %q", c.TimeAdjustment.Method)
	}
	if c.TimeAdjustment.Rate <= -1 {
		return fmt.Errorf("time adjustment rate %.4f would make prices non-positive", c.TimeAdjustment.Rate)
	}
	return nil
}

// Metadata labels a study.
type Metadata struct {
	PropertyType string `json:"property_type"`
	Period       string `json:"period"`
	Geography    string `json:"geography"`
}
