// Package alert evaluates edge-triggered order-flow rules against state owned
// by the caller.
package alert

import (
	"fmt"
	"math"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Kind string

const (
	BigBlock      Kind = "BIG_BLOCK"
	Imbalance     Kind = "IMBALANCE"
	HighVolume    Kind = "HIGH_VOLUME"
	CVDDivergence Kind = "CVD_DIVERGENCE"
)

// Kinds lists every rule in evaluation order.
var Kinds = []Kind{BigBlock, Imbalance, HighVolume, CVDDivergence}

type Severity string

const (
	Critical Severity = "CRITICAL"
	Warning  Severity = "WARNING"
	Info     Severity = "INFO"
)

func (k Kind) Severity() Severity {
	switch k {
	case BigBlock:
		return Critical
	case Imbalance:
		return Warning
	default:
		return Info
	}
}

// Payload is the rule-specific detail of an alert. Value may be +Inf for an
// imbalance with an empty side.
type Payload struct {
	Direction string  `json:"direction,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// MarshalJSON encodes an unbounded Value as null with "unbounded": true,
// since JSON has no infinity.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := struct {
		Direction string   `json:"direction,omitempty"`
		Price     float64  `json:"price,omitempty"`
		Value     *float64 `json:"value"`
		Unbounded bool     `json:"unbounded,omitempty"`
		Threshold float64  `json:"threshold"`
		Message   string   `json:"message"`
	}{
		Direction: p.Direction,
		Price:     p.Price,
		Threshold: p.Threshold,
		Message:   p.Message,
	}

	if math.IsInf(p.Value, 0) || math.IsNaN(p.Value) {
		out.Unbounded = true
	} else {
		out.Value = &p.Value
	}
	return json.Marshal(out)
}

// Alert is immutable once emitted.
type Alert struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s %s", a.Severity, a.Kind, a.Payload.Message)
}

// Config holds rule thresholds. Every window length is required; there are
// no implicit defaults at this level.
type Config struct {
	BigBlockThreshold      float64       `mapstructure:"big_block_threshold"`
	ImbalanceRatio         float64       `mapstructure:"imbalance_ratio"`
	ImbalanceWindow        time.Duration `mapstructure:"imbalance_window"`
	HighVolumeMultiplier   float64       `mapstructure:"high_volume_multiplier"`
	VolumeBucket           time.Duration `mapstructure:"volume_bucket"`
	VolumeLookback         int           `mapstructure:"volume_lookback"`
	DivergenceLookback     int           `mapstructure:"divergence_lookback"`
	DivergenceMinPriceMove float64       `mapstructure:"divergence_min_price_move"`
	DivergenceMinCVDMove   float64       `mapstructure:"divergence_min_cvd_move"`
}

// ValidationErrors collects every configuration problem found.
type ValidationErrors struct {
	Problems []string
}

func (e *ValidationErrors) HasErrors() bool {
	return len(e.Problems) > 0
}

func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("alert configuration invalid:\n")
	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("  - %s\n", p))
	}
	return sb.String()
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (c Config) Validate() error {
	errs := &ValidationErrors{}

	if !(c.BigBlockThreshold > 0) {
		errs.add("big_block_threshold must be > 0, got %v", c.BigBlockThreshold)
	}
	if !(c.ImbalanceRatio > 1) {
		errs.add("imbalance_ratio must be > 1, got %v", c.ImbalanceRatio)
	}
	if c.ImbalanceWindow <= 0 {
		errs.add("imbalance_window must be > 0, got %s", c.ImbalanceWindow)
	}
	if !(c.HighVolumeMultiplier > 1) {
		errs.add("high_volume_multiplier must be > 1, got %v", c.HighVolumeMultiplier)
	}
	if c.VolumeBucket <= 0 {
		errs.add("volume_bucket must be > 0, got %s", c.VolumeBucket)
	}
	if c.VolumeLookback < 1 {
		errs.add("volume_lookback must be >= 1, got %d", c.VolumeLookback)
	}
	if c.DivergenceLookback < 4 || c.DivergenceLookback%2 != 0 {
		errs.add("divergence_lookback must be an even number >= 4, got %d", c.DivergenceLookback)
	}
	if c.DivergenceMinPriceMove < 0 || c.DivergenceMinCVDMove < 0 {
		errs.add("divergence minimum moves must be >= 0")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
