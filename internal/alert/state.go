package alert

import (
	"time"

	"github.com/dgnsrekt/gexflow/internal/orderflow"
)

type flowSample struct {
	at        time.Time
	direction orderflow.Direction
	qty       float64
}

// State is the per-session memory of the rules: arm flags and the rolling
// windows. The session owns it and passes it to Engine.Evaluate.
type State struct {
	cfg    Config
	active map[Kind]bool

	// imbalance: classified trades inside ImbalanceWindow
	flow []flowSample

	// high volume: current bucket plus completed buckets
	bucketStart  time.Time
	bucketVolume float64
	completed    []float64

	// divergence: last DivergenceLookback (price, cvd) samples
	prices []float64
	cvds   []float64

	lastPrice float64
}

func newState(cfg Config) *State {
	return &State{cfg: cfg, active: make(map[Kind]bool, len(Kinds))}
}

// Active reports whether a rule's condition held at the last evaluation.
func (s *State) Active(k Kind) bool {
	return s.active[k]
}

func (s *State) Reset() {
	*s = *newState(s.cfg)
}

func (s *State) record(tr orderflow.Trade, cvd orderflow.CVDState) {
	s.lastPrice = tr.Price

	if tr.Direction == orderflow.Buy || tr.Direction == orderflow.Sell {
		s.flow = append(s.flow, flowSample{at: tr.Timestamp, direction: tr.Direction, qty: tr.Quantity})
	}

	s.rollBuckets(tr.Timestamp)
	s.bucketVolume += tr.Quantity

	s.prices = appendBounded(s.prices, tr.Price, s.cfg.DivergenceLookback)
	s.cvds = appendBounded(s.cvds, cvd.CumulativeDelta, s.cfg.DivergenceLookback)
}

// advance moves time-based windows forward to now.
func (s *State) advance(now time.Time) {
	if now.IsZero() {
		return
	}
	cutoff := now.Add(-s.cfg.ImbalanceWindow)
	i := 0
	for i < len(s.flow) && !s.flow[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		s.flow = append(s.flow[:0], s.flow[i:]...)
	}
	s.rollBuckets(now)
}

func (s *State) rollBuckets(now time.Time) {
	start := now.Truncate(s.cfg.VolumeBucket)
	if s.bucketStart.IsZero() {
		s.bucketStart = start
		return
	}
	if !start.After(s.bucketStart) {
		return
	}

	// close the current bucket and any empty ones in between
	gap := int(start.Sub(s.bucketStart) / s.cfg.VolumeBucket)
	s.completed = appendBounded(s.completed, s.bucketVolume, s.cfg.VolumeLookback)
	for i := 1; i < gap && i <= s.cfg.VolumeLookback; i++ {
		s.completed = appendBounded(s.completed, 0, s.cfg.VolumeLookback)
	}
	s.bucketStart = start
	s.bucketVolume = 0
}

func (s *State) flowTotals() (buy, sell float64) {
	for _, f := range s.flow {
		if f.direction == orderflow.Buy {
			buy += f.qty
		} else {
			sell += f.qty
		}
	}
	return buy, sell
}

func appendBounded(xs []float64, v float64, limit int) []float64 {
	xs = append(xs, v)
	if len(xs) > limit {
		xs = append(xs[:0], xs[len(xs)-limit:]...)
	}
	return xs
}
