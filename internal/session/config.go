package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/pricing"
)

var ErrInvalidConfig = errors.New("invalid session config")

// Config is the static configuration of a session.
type Config struct {
	Expiry           time.Time
	MinT             float64
	Rate             float64
	Yield            float64
	YieldFromFutures bool
	MaxQuoteAge      time.Duration
	StrikeInterval   float64
	Solver           pricing.Solver
	GEX              gex.Params
	OrderFlow        orderflow.Config
	Alerts           alert.Config
	AlertBuffer      int
}

func (c Config) Validate() error {
	switch {
	case c.MaxQuoteAge <= 0:
		return fmt.Errorf("%w: quote staleness bound must be set", ErrInvalidConfig)
	case !(c.GEX.Multiplier > 0):
		return fmt.Errorf("%w: contract multiplier must be positive", ErrInvalidConfig)
	case c.StrikeInterval < 0:
		return fmt.Errorf("%w: strike interval must not be negative", ErrInvalidConfig)
	case c.AlertBuffer < 1:
		return fmt.Errorf("%w: alert buffer must hold at least one alert", ErrInvalidConfig)
	case c.Solver.MaxIter < 1 || !(c.Solver.Tolerance > 0):
		return fmt.Errorf("%w: solver needs a positive iteration limit and tolerance", ErrInvalidConfig)
	case !(c.Solver.VolLow > 0) || !(c.Solver.VolHigh > c.Solver.VolLow):
		return fmt.Errorf("%w: solver volatility bracket [%v, %v]", ErrInvalidConfig, c.Solver.VolLow, c.Solver.VolHigh)
	}
	return nil
}
