package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dgnsrekt/gexflow/internal/alert"
)

// FieldError is one invalid configuration key
type FieldError struct {
	Key     string
	Problem string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationErrors) add(key, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Key: key, Problem: fmt.Sprintf(format, args...)})
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Key, f.Problem))
	}

	return sb.String()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateInstrument(errs, c.Instrument)
	validatePricing(errs, c.Pricing)
	validateOrderFlow(errs, c.OrderFlow)

	if err := c.Alerts.Config.Validate(); err != nil {
		var aerr *alert.ValidationErrors
		if errors.As(err, &aerr) {
			for _, p := range aerr.Problems {
				errs.add("alerts", "%s", p)
			}
		} else {
			errs.add("alerts", "%v", err)
		}
	}
	if c.Alerts.BufferSize < 1 {
		errs.add("alerts.buffer_size", "must be >= 1, got %d", c.Alerts.BufferSize)
	}
	if c.Alerts.EvaluateInterval <= 0 {
		errs.add("alerts.evaluate_interval", "must be > 0, got %s", c.Alerts.EvaluateInterval)
	}

	if c.Session.ResetSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.ResetSchedule); err != nil {
			errs.add("session.reset_schedule", "invalid cron spec %q: %v", c.Session.ResetSchedule, err)
		}
	}

	if c.Server.Port == "" {
		errs.add("server.port", "is required")
	}
	if c.Server.EventsHeartbeat <= 0 {
		errs.add("server.events_heartbeat", "must be > 0, got %s", c.Server.EventsHeartbeat)
	}
	if c.WebSocket.Enabled && c.WebSocket.StreamInterval < 100*time.Millisecond {
		errs.add("websocket.stream_interval", "must be >= 100ms, got %s", c.WebSocket.StreamInterval)
	}

	validateNotify(errs, c.Notify)

	if !ValidLogLevels[c.Logging.Level] {
		errs.add("logging.level", "invalid level %q (valid: %s)", c.Logging.Level, keys(ValidLogLevels))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs.add("logging.format", "must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateInstrument(errs *ValidationErrors, in InstrumentConfig) {
	if in.Expiry != "" {
		if _, err := time.Parse(time.RFC3339, in.Expiry); err != nil {
			errs.add("instrument.expiry", "must be RFC3339, got %q", in.Expiry)
		}
	} else {
		if _, err := ParseWeekday(in.ExpiryWeekday); err != nil {
			errs.add("instrument.expiry_weekday", "%v", err)
		}
		if _, _, err := ParseCutoff(in.ExpiryCutoff); err != nil {
			errs.add("instrument.expiry_cutoff", "%v", err)
		}
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		errs.add("instrument.timezone", "%v", err)
	}
	if !ValidCalendars[in.Calendar] {
		errs.add("instrument.calendar", "unsupported calendar %q (valid: %s)", in.Calendar, keys(ValidCalendars))
	}
	if !(in.LotSize > 0) {
		errs.add("instrument.lot_size", "must be > 0, got %v", in.LotSize)
	}
	if !(in.OIPerContract > 0) {
		errs.add("instrument.oi_per_contract", "must be > 0, got %v", in.OIPerContract)
	}
	if in.StrikeInterval < 0 {
		errs.add("instrument.strike_interval", "must be >= 0, got %v", in.StrikeInterval)
	}
	if in.StrikeWindow < 0 {
		errs.add("instrument.strike_window", "must be >= 0, got %d", in.StrikeWindow)
	}
}

func validatePricing(errs *ValidationErrors, p PricingConfig) {
	if p.RiskFreeRate < 0 || p.RiskFreeRate > 1 {
		errs.add("pricing.risk_free_rate", "must be within [0, 1], got %v", p.RiskFreeRate)
	}
	if p.DividendYield < 0 || p.DividendYield > 1 {
		errs.add("pricing.dividend_yield", "must be within [0, 1], got %v", p.DividendYield)
	}
	if !(p.MinT > 0) {
		errs.add("pricing.min_t", "must be > 0, got %v", p.MinT)
	}
	if p.MaxQuoteAge <= 0 {
		errs.add("pricing.max_quote_age", "is required, got %s", p.MaxQuoteAge)
	}
	if p.Solver.MaxIter < 1 {
		errs.add("pricing.solver.max_iter", "must be >= 1, got %d", p.Solver.MaxIter)
	}
	if !(p.Solver.Tolerance > 0) {
		errs.add("pricing.solver.tolerance", "must be > 0, got %v", p.Solver.Tolerance)
	}
	if p.Solver.MinTimeValue < 0 {
		errs.add("pricing.solver.min_time_value", "must be >= 0, got %v", p.Solver.MinTimeValue)
	}
	if !(p.Solver.VolLow > 0) || !(p.Solver.VolHigh > p.Solver.VolLow) {
		errs.add("pricing.solver", "need 0 < vol_low < vol_high, got [%v, %v]", p.Solver.VolLow, p.Solver.VolHigh)
	}
}

func validateOrderFlow(errs *ValidationErrors, o OrderFlowConfig) {
	if !(o.TickSize > 0) {
		errs.add("orderflow.tick_size", "must be > 0, got %v", o.TickSize)
	}
	if o.FootprintRetention < 1 {
		errs.add("orderflow.footprint_retention", "must be >= 1, got %d", o.FootprintRetention)
	}
	if o.CandleInterval <= 0 {
		errs.add("orderflow.candle_interval", "must be > 0, got %s", o.CandleInterval)
	}
	if o.CandleRetention < 1 {
		errs.add("orderflow.candle_retention", "must be >= 1, got %d", o.CandleRetention)
	}
}

func validateNotify(errs *ValidationErrors, n NotifyConfig) {
	if !n.Enabled {
		return
	}
	if n.Topic == "" {
		errs.add("notify.topic", "is required when notify.enabled=true")
	}
	if !ValidPriorities[n.Priority] {
		errs.add("notify.priority", "invalid priority %q (valid: min, low, default, high, urgent)", n.Priority)
	}
	if _, ok := ValidSeverities[n.MinSeverity]; !ok {
		errs.add("notify.min_severity", "invalid severity %q (valid: INFO, WARNING, CRITICAL)", n.MinSeverity)
	}
	if n.RatePerMinute < 1 {
		errs.add("notify.rate_per_minute", "must be >= 1, got %d", n.RatePerMinute)
	}
}

func keys[V any](m map[string]V) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
