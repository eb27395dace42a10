package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/dgnsrekt/gexflow/internal/market"
)

var (
	ErrInvalidInput = market.ErrInvalidInput

	// ErrNoConvergence is returned when no volatility in the bracket
	// reproduces the observed price within MaxIter iterations.
	ErrNoConvergence = errors.New("implied volatility did not converge")

	// ErrIllConditioned marks a deep-ITM quote whose time value is too
	// small to solve directly.
	ErrIllConditioned = errors.New("quote is ill-conditioned for a direct solve")

	// ErrStaleQuote flags quotes older than the configured bound.
	ErrStaleQuote = errors.New("stale quote")
)

// Source records how an implied volatility was obtained.
type Source string

const (
	SourceDirect Source = "direct"
	SourceParity Source = "parity"
)

// minVega below which a Newton step is not trusted.
const minVega = 1e-8

type Solver struct {
	MaxIter      int
	Tolerance    float64 // absolute price tolerance
	MinTimeValue float64 // deep-ITM threshold on price - intrinsic
	VolLow       float64
	VolHigh      float64
}

func DefaultSolver() Solver {
	return Solver{
		MaxIter:      100,
		Tolerance:    1e-6,
		MinTimeValue: 0.5,
		VolLow:       1e-4,
		VolHigh:      5.0,
	}
}

// Solve finds sigma such that Price(t, in, sigma) matches price.
//
// Newton-Raphson steps are taken from inside a bisection bracket; whenever
// vega is too small or the step would leave the bracket the midpoint is used
// instead, so the bracket shrinks on every iteration.
func (s Solver) Solve(t market.OptionType, in Inputs, price float64) (float64, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: option type %q", ErrInvalidInput, string(t))
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: price %v", ErrInvalidInput, price)
	}

	intrinsic := Intrinsic(t, in.Spot, in.Strike)
	if price <= intrinsic {
		return 0, fmt.Errorf("%w: price %v at or below intrinsic %v", ErrInvalidInput, price, intrinsic)
	}
	if intrinsic > 0 && price-intrinsic < s.MinTimeValue {
		return 0, fmt.Errorf("%w: time value %.4f below %.4f", ErrIllConditioned, price-intrinsic, s.MinTimeValue)
	}

	lo, hi := s.VolLow, s.VolHigh
	if Price(t, in, lo)-price > s.Tolerance {
		return 0, fmt.Errorf("%w: price %v below model floor at vol %v", ErrNoConvergence, price, lo)
	}
	if Price(t, in, hi)-price < -s.Tolerance {
		return 0, fmt.Errorf("%w: price %v above model ceiling at vol %v", ErrNoConvergence, price, hi)
	}

	// Brenner-Subrahmanyam seed
	sigma := math.Sqrt(2*math.Pi/in.T) * price / in.Spot
	if !(sigma > lo && sigma < hi) {
		sigma = 0.5 * (lo + hi)
	}

	for i := 0; i < s.MaxIter; i++ {
		diff := Price(t, in, sigma) - price
		if math.Abs(diff) < s.Tolerance {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}
		if hi-lo < 1e-12 {
			return sigma, nil
		}

		next := 0.5 * (lo + hi)
		if v := Vega(in, sigma); v > minVega {
			if step := sigma - diff/v; step > lo && step < hi {
				next = step
			}
		}
		sigma = next
	}

	return 0, fmt.Errorf("%w: after %d iterations", ErrNoConvergence, s.MaxIter)
}

// SolveWithParity solves directly and, for ill-conditioned deep-ITM quotes,
// substitutes the volatility of the out-of-the-money contract of the other
// type at the same strike. counterpart is that contract's observed price;
// zero means no quote.
func (s Solver) SolveWithParity(t market.OptionType, in Inputs, price, counterpart float64) (float64, Source, error) {
	vol, err := s.Solve(t, in, price)
	if err == nil {
		return vol, SourceDirect, nil
	}
	if !errors.Is(err, ErrIllConditioned) {
		return 0, "", err
	}

	other := t.Opposite()
	if counterpart <= 0 {
		return 0, "", fmt.Errorf("%w: deep ITM %s with no %s quote at strike %g", ErrNoConvergence, t, other, in.Strike)
	}
	vol, err = s.Solve(other, in, counterpart)
	if err != nil {
		return 0, "", fmt.Errorf("%w: parity fallback via %s failed: %v", ErrNoConvergence, other, err)
	}
	return vol, SourceParity, nil
}
