package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults to load, got error: %v", err)
	}

	if cfg.Instrument.Symbol != "NIFTY" {
		t.Errorf("expected symbol NIFTY, got '%s'", cfg.Instrument.Symbol)
	}
	if cfg.Pricing.RiskFreeRate != 0.065 {
		t.Errorf("expected rate 0.065, got %v", cfg.Pricing.RiskFreeRate)
	}
	if cfg.Pricing.MaxQuoteAge != 30*time.Second {
		t.Errorf("expected 30s quote age, got %s", cfg.Pricing.MaxQuoteAge)
	}
	if cfg.Alerts.BigBlockThreshold != 3750 {
		t.Errorf("expected big block threshold 3750, got %v", cfg.Alerts.BigBlockThreshold)
	}
	if cfg.Alerts.ImbalanceWindow != 5*time.Minute {
		t.Errorf("expected 5m imbalance window, got %s", cfg.Alerts.ImbalanceWindow)
	}
	if cfg.Alerts.DivergenceLookback != 20 {
		t.Errorf("expected divergence lookback 20, got %d", cfg.Alerts.DivergenceLookback)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GEXFLOW_INSTRUMENT_SYMBOL", "BANKNIFTY")
	t.Setenv("GEXFLOW_ALERTS_BIG_BLOCK_THRESHOLD", "1500")
	t.Setenv("NTFY_TOKEN", "tk_secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Instrument.Symbol != "BANKNIFTY" {
		t.Errorf("expected env symbol, got '%s'", cfg.Instrument.Symbol)
	}
	if cfg.Alerts.BigBlockThreshold != 1500 {
		t.Errorf("expected env threshold 1500, got %v", cfg.Alerts.BigBlockThreshold)
	}
	if cfg.Notify.Token != "tk_secret" {
		t.Errorf("expected token from NTFY_TOKEN, got '%s'", cfg.Notify.Token)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gexflow.yaml")
	body := []byte(`
instrument:
  symbol: FINNIFTY
  strike_interval: 100
alerts:
  imbalance_ratio: 4
logging:
  level: debug
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Instrument.StrikeInterval != 100 {
		t.Errorf("expected strike interval 100, got %v", cfg.Instrument.StrikeInterval)
	}
	if cfg.Alerts.ImbalanceRatio != 4 {
		t.Errorf("expected imbalance ratio 4, got %v", cfg.Alerts.ImbalanceRatio)
	}
	if cfg.Instrument.LotSize != 75 {
		t.Errorf("expected default lot size to survive, got %v", cfg.Instrument.LotSize)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("alerts:\n  divergence_lookback: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected odd divergence lookback to fail validation")
	}
}

func TestResolveExpiry(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	loc, _ := time.LoadLocation("Asia/Kolkata")
	// Wednesday
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, loc)
	expiry, err := cfg.ResolveExpiry(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2025, 10, 21, 15, 30, 0, 0, loc)
	if !expiry.Equal(want) {
		t.Errorf("expected next Tuesday %s, got %s", want, expiry)
	}

	// Republic Day 2027 falls on a Tuesday
	expiry, err = cfg.ResolveExpiry(time.Date(2027, 1, 20, 10, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = time.Date(2027, 1, 25, 15, 30, 0, 0, loc)
	if !expiry.Equal(want) {
		t.Errorf("expected holiday expiry rolled back to %s, got %s", want, expiry)
	}

	cfg.Instrument.Expiry = "2025-10-16T15:30:00+05:30"
	pinned, err := cfg.ResolveExpiry(now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pinned.Day() != 16 {
		t.Errorf("expected pinned expiry, got %s", pinned)
	}
}

func TestSessionMapping(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	expiry := time.Date(2025, 10, 21, 10, 0, 0, 0, time.UTC)
	sc := cfg.SessionParams(expiry)

	if err := sc.Validate(); err != nil {
		t.Fatalf("mapped session config should validate: %v", err)
	}
	if sc.GEX.Multiplier != cfg.Instrument.LotSize {
		t.Errorf("expected multiplier from lot size, got %v", sc.GEX.Multiplier)
	}
	if sc.OrderFlow.Retention != cfg.OrderFlow.FootprintRetention {
		t.Errorf("expected footprint retention %d, got %d", cfg.OrderFlow.FootprintRetention, sc.OrderFlow.Retention)
	}
	if sc.AlertBuffer != cfg.Alerts.BufferSize {
		t.Errorf("expected alert buffer %d, got %d", cfg.Alerts.BufferSize, sc.AlertBuffer)
	}
	if !sc.Expiry.Equal(expiry) {
		t.Errorf("expected expiry %s, got %s", expiry, sc.Expiry)
	}
}

func TestDetectLatestDate(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2025-10-13", "2025-10-15", "2025-10-17", "notes"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// Only non-empty folders count
	for _, d := range []string{"2025-10-13", "2025-10-15"} {
		if err := os.WriteFile(filepath.Join(dir, d, "ticks.csv"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := DetectLatestDate(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != "2025-10-15" {
		t.Errorf("expected 2025-10-15, got %s", latest)
	}

	r := ReplayConfig{DataDir: dir, Date: "latest"}
	path, date, err := r.ResolveDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date != "2025-10-15" || path != filepath.Join(dir, "2025-10-15") {
		t.Errorf("unexpected resolution %s %s", path, date)
	}

	if _, err := DetectLatestDate(t.TempDir()); err == nil {
		t.Error("expected error for empty data dir")
	}
}
