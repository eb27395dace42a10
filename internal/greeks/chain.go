package greeks

import (
	"fmt"
	"sort"
	"time"

	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/pricing"
)

// Params carries the static pricing configuration plus the evaluation time.
type Params struct {
	Solver pricing.Solver
	Clock  pricing.ExpiryClock
	Rate   float64
	Yield  float64
	// YieldFromFutures replaces Yield with the basis-implied yield when the
	// snapshot carries a futures price.
	YieldFromFutures bool
	// MaxQuoteAge flags snapshots older than this as stale. Zero disables.
	MaxQuoteAge time.Duration
	Now         time.Time
}

// Result is the outcome for one contract. Err is set when the contract could
// not be priced; Warn carries non-fatal conditions such as ErrStaleQuote.
type Result struct {
	Key    market.ContractKey `json:"key"`
	Record Record             `json:"greeks"`
	Err    error              `json:"-"`
	Warn   error              `json:"-"`
}

// Inputs builds the shared pricing inputs for a snapshot at p.Now.
func (p Params) Inputs(snap market.ChainSnapshot) pricing.Inputs {
	t := p.Clock.YearFraction(p.Now)
	yield := p.Yield
	if p.YieldFromFutures && snap.Underlying.FuturesPrice > 0 {
		yield = pricing.ImpliedYield(snap.Underlying.SpotPrice, snap.Underlying.FuturesPrice, t, p.Rate)
	}
	return pricing.Inputs{
		Spot:  snap.Underlying.SpotPrice,
		T:     t,
		Rate:  p.Rate,
		Yield: yield,
	}
}

// EvaluateChain solves every contract in the snapshot independently.
// A failure on one contract never affects the others.
func EvaluateChain(snap market.ChainSnapshot, p Params) []Result {
	if err := snap.Validate(); err != nil {
		return nil
	}

	base := p.Inputs(snap)

	var stale error
	if ts := snapshotTime(snap); p.MaxQuoteAge > 0 && !ts.IsZero() && p.Now.Sub(ts) > p.MaxQuoteAge {
		stale = fmt.Errorf("%w: snapshot age %s exceeds %s", pricing.ErrStaleQuote, p.Now.Sub(ts).Truncate(time.Millisecond), p.MaxQuoteAge)
	}

	byKey := make(map[market.ContractKey]market.ContractQuote, len(snap.Quotes))
	for _, q := range snap.Quotes {
		byKey[q.Key()] = q
	}

	results := make([]Result, 0, len(byKey))
	for key, q := range byKey {
		res := Result{Key: key, Warn: stale}
		res.Record, res.Err = evaluate(q, byKey, base, p.Solver)
		res.Record.Stale = stale != nil
		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Key.Strike != results[j].Key.Strike {
			return results[i].Key.Strike < results[j].Key.Strike
		}
		return results[i].Key.Type < results[j].Key.Type
	})
	return results
}

func evaluate(q market.ContractQuote, chain map[market.ContractKey]market.ContractQuote, base pricing.Inputs, solver pricing.Solver) (Record, error) {
	if err := q.Validate(); err != nil {
		return Record{}, err
	}
	price := q.ObservedPrice()
	if price <= 0 {
		return Record{}, fmt.Errorf("%w: no traded or quoted price for %s", pricing.ErrInvalidInput, q.Key())
	}

	in := base
	in.Strike = q.Strike

	var counterpart float64
	if other, ok := chain[market.ContractKey{Strike: q.Strike, Type: q.Type.Opposite()}]; ok {
		counterpart = other.ObservedPrice()
	}

	vol, src, err := solver.SolveWithParity(q.Type, in, price, counterpart)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", q.Key(), err)
	}

	rec := Compute(q.Type, in, vol)
	rec.Source = src
	return rec, nil
}

func snapshotTime(snap market.ChainSnapshot) time.Time {
	if !snap.Timestamp.IsZero() {
		return snap.Timestamp
	}
	return snap.Underlying.Timestamp
}
