// Package greeks computes option sensitivities from solved implied volatility
// and evaluates a whole option chain snapshot contract by contract.
package greeks

import (
	"math"

	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/pricing"
)

// Record holds the Greeks of one contract for one snapshot.
// Available is false when no volatility could be solved; a zero Gamma on an
// available record is a legitimate value.
type Record struct {
	ImpliedVol float64        `json:"iv"`
	Delta      float64        `json:"delta"`
	Gamma      float64        `json:"gamma"`
	Theta      float64        `json:"theta"` // per calendar day
	Vega       float64        `json:"vega"`  // per 1 vol point
	Available  bool           `json:"available"`
	Stale      bool           `json:"stale"`
	Source     pricing.Source `json:"source,omitempty"`
}

// Compute returns closed-form dividend-aware Greeks at sigma.
func Compute(t market.OptionType, in pricing.Inputs, sigma float64) Record {
	if !(sigma > 0) || math.IsInf(sigma, 0) || in.Validate() != nil {
		return Record{}
	}

	sqrtT := math.Sqrt(in.T)
	d1, d2 := pricing.D1D2(in, sigma)
	dfq := math.Exp(-in.Yield * in.T)
	dfr := math.Exp(-in.Rate * in.T)
	pdf := pricing.NormPDF(d1)

	rec := Record{
		ImpliedVol: sigma,
		Gamma:      dfq * pdf / (in.Spot * sigma * sqrtT),
		Vega:       in.Spot * dfq * pdf * sqrtT / 100,
		Available:  true,
	}

	decay := -in.Spot * dfq * pdf * sigma / (2 * sqrtT)
	switch t {
	case market.Call:
		rec.Delta = dfq * pricing.NormCDF(d1)
		rec.Theta = decay - in.Rate*in.Strike*dfr*pricing.NormCDF(d2) + in.Yield*in.Spot*dfq*pricing.NormCDF(d1)
	case market.Put:
		rec.Delta = dfq * (pricing.NormCDF(d1) - 1)
		rec.Theta = decay + in.Rate*in.Strike*dfr*pricing.NormCDF(-d2) - in.Yield*in.Spot*dfq*pricing.NormCDF(-d1)
	default:
		return Record{}
	}
	rec.Theta /= 365

	return rec
}
