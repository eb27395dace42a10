package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults must load: %v", err)
	}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Errorf("expected defaults to validate, got: %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig(t)
	cfg.Instrument.ExpiryWeekday = "someday"
	cfg.Instrument.Calendar = "XLON"
	cfg.Pricing.MaxQuoteAge = 0
	cfg.OrderFlow.TickSize = 0
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	verr, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verr.Fields) != 5 {
		t.Errorf("expected 5 problems, got %d: %v", len(verr.Fields), err)
	}

	for _, key := range []string{"instrument.expiry_weekday", "instrument.calendar", "pricing.max_quote_age", "orderflow.tick_size", "logging.level"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s, got: %v", key, err)
		}
	}
}

func TestValidate_PinnedExpirySkipsWeekday(t *testing.T) {
	cfg := validConfig(t)
	cfg.Instrument.Expiry = "2025-10-21T15:30:00+05:30"
	cfg.Instrument.ExpiryWeekday = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("pinned expiry should not need a weekday, got: %v", err)
	}

	cfg.Instrument.Expiry = "next tuesday"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "RFC3339") {
		t.Errorf("expected RFC3339 error, got: %v", err)
	}
}

func TestValidate_AlertProblemsSurface(t *testing.T) {
	cfg := validConfig(t)
	cfg.Alerts.ImbalanceRatio = 1
	cfg.Alerts.VolumeBucket = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "imbalance_ratio") || !strings.Contains(err.Error(), "volume_bucket") {
		t.Errorf("expected both alert problems, got: %v", err)
	}
}

func TestValidate_Notify(t *testing.T) {
	cfg := validConfig(t)
	cfg.Notify.Enabled = true

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "notify.topic") {
		t.Errorf("expected missing topic error, got: %v", err)
	}

	cfg.Notify.Topic = "nifty-flow"
	cfg.Notify.MinSeverity = "LOUD"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "notify.min_severity") {
		t.Errorf("expected severity error, got: %v", err)
	}

	cfg.Notify.MinSeverity = "CRITICAL"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid notify config, got: %v", err)
	}
}

func TestValidate_ResetSchedule(t *testing.T) {
	cfg := validConfig(t)
	cfg.Session.ResetSchedule = "every morning"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "session.reset_schedule") {
		t.Errorf("expected cron error, got: %v", err)
	}

	cfg.Session.ResetSchedule = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty schedule disables reset, got: %v", err)
	}
}

func TestValidate_SolverBracket(t *testing.T) {
	cfg := validConfig(t)
	cfg.Pricing.Solver.VolLow = 2
	cfg.Pricing.Solver.VolHigh = 1

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "vol_low") {
		t.Errorf("expected bracket error, got: %v", err)
	}
}

func TestValidate_StreamInterval(t *testing.T) {
	cfg := validConfig(t)
	cfg.WebSocket.StreamInterval = 10 * time.Millisecond

	if err := cfg.Validate(); err == nil {
		t.Error("expected stream interval error")
	}

	cfg.WebSocket.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled websocket should skip interval check, got: %v", err)
	}
}

func TestParseCutoff(t *testing.T) {
	h, m, err := ParseCutoff("15:30")
	if err != nil || h != 15 || m != 30 {
		t.Errorf("expected 15:30, got %d:%d (%v)", h, m, err)
	}
	if _, _, err := ParseCutoff("3pm"); err == nil {
		t.Error("expected error for 3pm")
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday(" Thursday ")
	if err != nil || d != time.Thursday {
		t.Errorf("expected Thursday, got %v (%v)", d, err)
	}
	if _, err := ParseWeekday("thu"); err == nil {
		t.Error("expected error for abbreviation")
	}
}
