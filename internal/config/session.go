package config

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/pricing"
	"github.com/dgnsrekt/gexflow/internal/session"
)

// ExpiryCalendar builds the weekly expiry resolver for the instrument.
func (c *Config) ExpiryCalendar() (*pricing.ExpiryCalendar, error) {
	day, err := ParseWeekday(c.Instrument.ExpiryWeekday)
	if err != nil {
		return nil, err
	}
	hour, minute, err := ParseCutoff(c.Instrument.ExpiryCutoff)
	if err != nil {
		return nil, err
	}
	return pricing.NewExpiryCalendar(day, hour, minute, c.Instrument.Timezone, c.Instrument.Calendar)
}

// ResolveExpiry returns the pinned expiry when one is configured, otherwise
// the next weekly expiry after now.
func (c *Config) ResolveExpiry(now time.Time) (time.Time, error) {
	if c.Instrument.Expiry != "" {
		t, err := time.Parse(time.RFC3339, c.Instrument.Expiry)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing instrument.expiry: %w", err)
		}
		return t, nil
	}
	cal, err := c.ExpiryCalendar()
	if err != nil {
		return time.Time{}, err
	}
	return cal.Next(now), nil
}

// SessionParams maps the loaded configuration onto a session config.
func (c *Config) SessionParams(expiry time.Time) session.Config {
	return session.Config{
		Expiry:           expiry,
		MinT:             c.Pricing.MinT,
		Rate:             c.Pricing.RiskFreeRate,
		Yield:            c.Pricing.DividendYield,
		YieldFromFutures: c.Pricing.YieldFromFutures,
		MaxQuoteAge:      c.Pricing.MaxQuoteAge,
		StrikeInterval:   c.Instrument.StrikeInterval,
		Solver: pricing.Solver{
			MaxIter:      c.Pricing.Solver.MaxIter,
			Tolerance:    c.Pricing.Solver.Tolerance,
			MinTimeValue: c.Pricing.Solver.MinTimeValue,
			VolLow:       c.Pricing.Solver.VolLow,
			VolHigh:      c.Pricing.Solver.VolHigh,
		},
		GEX: gex.Params{
			Multiplier:    c.Instrument.LotSize,
			OIPerContract: c.Instrument.OIPerContract,
		},
		OrderFlow: orderflow.Config{
			TickSize:        c.OrderFlow.TickSize,
			Retention:       c.OrderFlow.FootprintRetention,
			CandleInterval:  c.OrderFlow.CandleInterval,
			CandleRetention: c.OrderFlow.CandleRetention,
		},
		Alerts:      c.Alerts.Config,
		AlertBuffer: c.Alerts.BufferSize,
	}
}
