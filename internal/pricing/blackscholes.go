// Package pricing implements the dividend-aware Black-Scholes model, the
// implied volatility solver and the time-to-expiry clock.
//
// All prices are in index points. Volatility and rates are annualised
// decimals (0.15 == 15%).
package pricing

import (
	"fmt"
	"math"

	"github.com/dgnsrekt/gexflow/internal/market"
)

// Inputs are the market parameters shared by pricing, solving and Greeks.
type Inputs struct {
	Spot   float64
	Strike float64
	T      float64 // years
	Rate   float64
	Yield  float64
}

func (in Inputs) Validate() error {
	switch {
	case !(in.Spot > 0) || math.IsInf(in.Spot, 0):
		return fmt.Errorf("%w: spot %v", ErrInvalidInput, in.Spot)
	case !(in.Strike > 0) || math.IsInf(in.Strike, 0):
		return fmt.Errorf("%w: strike %v", ErrInvalidInput, in.Strike)
	case !(in.T > 0):
		return fmt.Errorf("%w: time to expiry %v", ErrInvalidInput, in.T)
	case math.IsNaN(in.Rate) || math.IsNaN(in.Yield):
		return fmt.Errorf("%w: rate/yield is NaN", ErrInvalidInput)
	}
	return nil
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// D1D2 returns the Black-Scholes d1 and d2 terms with continuous yield q.
func D1D2(in Inputs, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate-in.Yield+0.5*sigma*sigma)*in.T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Intrinsic is the undiscounted exercise value.
func Intrinsic(t market.OptionType, spot, strike float64) float64 {
	switch t {
	case market.Call:
		return math.Max(spot-strike, 0)
	case market.Put:
		return math.Max(strike-spot, 0)
	default:
		panic(fmt.Sprintf("pricing: invalid option type %q", string(t)))
	}
}

// Price returns the model price. A non-positive sigma degenerates to the
// discounted forward intrinsic value.
func Price(t market.OptionType, in Inputs, sigma float64) float64 {
	dfq := math.Exp(-in.Yield * in.T)
	dfr := math.Exp(-in.Rate * in.T)

	if sigma <= 0 || in.T <= 0 {
		switch t {
		case market.Call:
			return math.Max(in.Spot*dfq-in.Strike*dfr, 0)
		case market.Put:
			return math.Max(in.Strike*dfr-in.Spot*dfq, 0)
		default:
			panic(fmt.Sprintf("pricing: invalid option type %q", string(t)))
		}
	}

	d1, d2 := D1D2(in, sigma)
	switch t {
	case market.Call:
		return in.Spot*dfq*NormCDF(d1) - in.Strike*dfr*NormCDF(d2)
	case market.Put:
		return in.Strike*dfr*NormCDF(-d2) - in.Spot*dfq*NormCDF(-d1)
	default:
		panic(fmt.Sprintf("pricing: invalid option type %q", string(t)))
	}
}

// Vega is dPrice/dSigma (per 1.00 of volatility), identical for calls and puts.
func Vega(in Inputs, sigma float64) float64 {
	if sigma <= 0 || in.T <= 0 {
		return 0
	}
	d1, _ := D1D2(in, sigma)
	return in.Spot * math.Exp(-in.Yield*in.T) * NormPDF(d1) * math.Sqrt(in.T)
}

// ImpliedYield backs out the continuous dividend yield from the futures
// basis, q = r - ln(F/S)/T, clamped to [0, 5%].
func ImpliedYield(spot, futures, t, rate float64) float64 {
	if spot <= 0 || futures <= 0 || t <= 0 {
		return 0
	}
	q := rate - math.Log(futures/spot)/t
	return math.Max(0, math.Min(q, 0.05))
}
