// Package orderflow classifies trade prints as buyer or seller initiated and
// accumulates cumulative volume delta, the price footprint and delta candles.
package orderflow

import (
	"time"

	"github.com/dgnsrekt/gexflow/internal/market"
)

type Direction string

const (
	Buy     Direction = "BUY"
	Sell    Direction = "SELL"
	Unknown Direction = "UNKNOWN"
)

// Sign is +1 for Buy, -1 for Sell and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// Trade is a classified print. It is never modified after classification.
type Trade struct {
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
}

// Basis is the tick-rule reference carried from the previous print.
type Basis struct {
	LTP       float64
	Direction Direction // last non-UNKNOWN direction
	Valid     bool
}

// Classify applies the quote rule, falling back to the tick rule when the
// print lands strictly inside the spread. The result depends only on its
// arguments: ltp, best bid and ask, and the full Basis. A print at the
// previous price repeats prev.Direction, so the last classified direction is
// part of the input alongside prev.LTP.
func Classify(tick market.Tick, prev Basis) Direction {
	bid, ask := tick.BestBid(), tick.BestAsk()

	switch {
	case ask > 0 && tick.LTP >= ask:
		return Buy
	case bid > 0 && tick.LTP <= bid:
		return Sell
	}

	if !prev.Valid {
		return Unknown
	}
	switch {
	case tick.LTP > prev.LTP:
		return Buy
	case tick.LTP < prev.LTP:
		return Sell
	case prev.Direction == Buy || prev.Direction == Sell:
		return prev.Direction
	default:
		return Unknown
	}
}

// Next returns the basis for the print following tick.
func (b Basis) Next(tick market.Tick, dir Direction) Basis {
	next := Basis{LTP: tick.LTP, Direction: b.Direction, Valid: true}
	if dir == Buy || dir == Sell {
		next.Direction = dir
	}
	return next
}

// Classifier keeps the running basis for a single instrument stream.
type Classifier struct {
	basis Basis
}

func (c *Classifier) Classify(tick market.Tick) Trade {
	dir := Classify(tick, c.basis)
	c.basis = c.basis.Next(tick, dir)
	return Trade{
		Price:     tick.LTP,
		Quantity:  tick.LTQ,
		Timestamp: tick.Timestamp,
		Direction: dir,
	}
}

func (c *Classifier) Basis() Basis {
	return c.basis
}

func (c *Classifier) Reset() {
	c.basis = Basis{}
}
