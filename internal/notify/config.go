package notify

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/config"
)

// Config holds ntfy notification configuration.
type Config struct {
	Enabled       bool           // Whether notifications are enabled
	Server        string         // ntfy server URL (default: https://ntfy.sh)
	Topic         string         // Topic name (required if enabled)
	Priority      string         // Priority for WARNING and INFO alerts
	Tags          string         // Comma-separated emoji tags prepended to every message
	Token         string         // Optional access token for private topics
	Symbol        string         // Underlying named in titles
	MinSeverity   alert.Severity // Alerts below this are not sent
	RatePerMinute int            // Sustained send budget; bursts up to the same count
	QueueSize     int            // Pending alerts held by the dispatcher
}

// FromConfig maps the application config onto a notifier Config.
func FromConfig(cfg *config.Config) *Config {
	return &Config{
		Enabled:       cfg.Notify.Enabled,
		Server:        cfg.Notify.Server,
		Topic:         cfg.Notify.Topic,
		Priority:      cfg.Notify.Priority,
		Tags:          cfg.Notify.Tags,
		Token:         cfg.Notify.Token,
		Symbol:        cfg.Instrument.Symbol,
		MinSeverity:   alert.Severity(cfg.Notify.MinSeverity),
		RatePerMinute: cfg.Notify.RatePerMinute,
		QueueSize:     cfg.Alerts.BufferSize,
	}
}

// Validate checks configuration is valid when enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Topic == "" {
		return errors.New("notify topic is required when notifications are enabled")
	}
	if !config.ValidPriorities[c.Priority] {
		return fmt.Errorf("invalid notify priority: %s (valid: min, low, default, high, urgent)", c.Priority)
	}
	if _, ok := config.ValidSeverities[string(c.MinSeverity)]; !ok {
		return fmt.Errorf("invalid notify min severity: %s", c.MinSeverity)
	}
	if c.RatePerMinute < 1 {
		return fmt.Errorf("notify rate per minute must be >= 1, got %d", c.RatePerMinute)
	}

	return nil
}

// allows reports whether an alert of severity s clears the minimum.
func (c *Config) allows(s alert.Severity) bool {
	return config.ValidSeverities[string(s)] >= config.ValidSeverities[string(c.MinSeverity)]
}
