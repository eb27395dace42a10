package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/gexflow/internal/alert"
)

type Config struct {
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	OrderFlow  OrderFlowConfig  `mapstructure:"orderflow"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Session    SessionConfig    `mapstructure:"session"`
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type InstrumentConfig struct {
	Symbol         string  `mapstructure:"symbol"`
	Expiry         string  `mapstructure:"expiry"`         // RFC3339; empty resolves from the weekly calendar
	ExpiryWeekday  string  `mapstructure:"expiry_weekday"` // e.g. "tuesday"
	ExpiryCutoff   string  `mapstructure:"expiry_cutoff"`  // HH:MM local
	Timezone       string  `mapstructure:"timezone"`
	Calendar       string  `mapstructure:"calendar"` // exchange MIC or "none"
	StrikeInterval float64 `mapstructure:"strike_interval"`
	LotSize        float64 `mapstructure:"lot_size"`
	OIPerContract  float64 `mapstructure:"oi_per_contract"`
	StrikeWindow   int     `mapstructure:"strike_window"` // default ± strikes around ATM for GEX queries
}

type PricingConfig struct {
	RiskFreeRate     float64       `mapstructure:"risk_free_rate"`
	DividendYield    float64       `mapstructure:"dividend_yield"`
	YieldFromFutures bool          `mapstructure:"yield_from_futures"`
	MinT             float64       `mapstructure:"min_t"`
	MaxQuoteAge      time.Duration `mapstructure:"max_quote_age"`
	Solver           SolverConfig  `mapstructure:"solver"`
}

type SolverConfig struct {
	MaxIter      int     `mapstructure:"max_iter"`
	Tolerance    float64 `mapstructure:"tolerance"`
	MinTimeValue float64 `mapstructure:"min_time_value"`
	VolLow       float64 `mapstructure:"vol_low"`
	VolHigh      float64 `mapstructure:"vol_high"`
}

type OrderFlowConfig struct {
	TickSize           float64       `mapstructure:"tick_size"`
	FootprintRetention int           `mapstructure:"footprint_retention"`
	CandleInterval     time.Duration `mapstructure:"candle_interval"`
	CandleRetention    int           `mapstructure:"candle_retention"`
}

type AlertsConfig struct {
	alert.Config     `mapstructure:",squash"`
	BufferSize       int           `mapstructure:"buffer_size"`
	EvaluateInterval time.Duration `mapstructure:"evaluate_interval"`
}

type SessionConfig struct {
	ResetSchedule    string `mapstructure:"reset_schedule"` // cron spec, empty disables
	BusinessDaysOnly bool   `mapstructure:"business_days_only"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("GEXFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("notify.token", "NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instrument.symbol", "NIFTY")
	v.SetDefault("instrument.expiry", "")
	v.SetDefault("instrument.expiry_weekday", "tuesday")
	v.SetDefault("instrument.expiry_cutoff", "15:30")
	v.SetDefault("instrument.timezone", "Asia/Kolkata")
	v.SetDefault("instrument.calendar", "XBOM")
	v.SetDefault("instrument.strike_interval", 50)
	v.SetDefault("instrument.lot_size", 75)
	v.SetDefault("instrument.oi_per_contract", 75)
	v.SetDefault("instrument.strike_window", 10)

	v.SetDefault("pricing.risk_free_rate", 0.065)
	v.SetDefault("pricing.dividend_yield", 0.0)
	v.SetDefault("pricing.yield_from_futures", false)
	v.SetDefault("pricing.min_t", 1e-5)
	v.SetDefault("pricing.max_quote_age", "30s")
	v.SetDefault("pricing.solver.max_iter", 100)
	v.SetDefault("pricing.solver.tolerance", 1e-6)
	v.SetDefault("pricing.solver.min_time_value", 0.5)
	v.SetDefault("pricing.solver.vol_low", 1e-4)
	v.SetDefault("pricing.solver.vol_high", 5.0)

	v.SetDefault("orderflow.tick_size", 0.05)
	v.SetDefault("orderflow.footprint_retention", 400)
	v.SetDefault("orderflow.candle_interval", "1m")
	v.SetDefault("orderflow.candle_retention", 375)

	v.SetDefault("alerts.big_block_threshold", 3750)
	v.SetDefault("alerts.imbalance_ratio", 2.5)
	v.SetDefault("alerts.imbalance_window", "5m")
	v.SetDefault("alerts.high_volume_multiplier", 3.0)
	v.SetDefault("alerts.volume_bucket", "1m")
	v.SetDefault("alerts.volume_lookback", 20)
	v.SetDefault("alerts.divergence_lookback", 20)
	v.SetDefault("alerts.divergence_min_price_move", 10)
	v.SetDefault("alerts.divergence_min_cvd_move", 1000)
	v.SetDefault("alerts.buffer_size", 256)
	v.SetDefault("alerts.evaluate_interval", "5s")

	v.SetDefault("session.reset_schedule", "0 9 * * 1-5")
	v.SetDefault("session.business_days_only", true)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.validate_requests", true)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.events_heartbeat", "15s")

	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.stream_interval", "1s")
	v.SetDefault("websocket.compression", true)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("notify.min_severity", "WARNING")
	v.SetDefault("notify.rate_per_minute", 6)

	v.SetDefault("replay.data_dir", "data")
	v.SetDefault("replay.date", "latest")
	v.SetDefault("replay.snapshots_file", "snapshots.jsonl")
	v.SetDefault("replay.ticks_file", "ticks.csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
