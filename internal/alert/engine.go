package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/dgnsrekt/gexflow/internal/orderflow"
)

// Observation is one evaluation input. Trade is nil for cadence evaluations,
// which skip BIG_BLOCK but still let windowed rules clear and re-arm.
type Observation struct {
	Now   time.Time
	Trade *orderflow.Trade
	CVD   orderflow.CVDState
}

// Engine holds validated thresholds only; all mutable state lives in State.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// NewState returns an empty state sized for this engine's windows.
func (e *Engine) NewState() *State {
	return newState(e.cfg)
}

// Evaluate folds the observation into st and returns alerts for every rule
// whose condition became true since the previous evaluation.
func (e *Engine) Evaluate(st *State, obs Observation) []Alert {
	if obs.Now.IsZero() && obs.Trade != nil {
		obs.Now = obs.Trade.Timestamp
	}
	if obs.Trade != nil {
		st.record(*obs.Trade, obs.CVD)
	}
	st.advance(obs.Now)

	var out []Alert
	emit := func(kind Kind, cond bool, p Payload) {
		if cond && !st.active[kind] {
			out = append(out, Alert{
				ID:        uuid.NewString(),
				Kind:      kind,
				Severity:  kind.Severity(),
				Timestamp: obs.Now,
				Payload:   p,
			})
		}
		st.active[kind] = cond
	}

	if obs.Trade != nil {
		cond, p := e.bigBlock(*obs.Trade)
		emit(BigBlock, cond, p)
	}

	cond, p := e.imbalance(st)
	emit(Imbalance, cond, p)

	cond, p = e.highVolume(st)
	emit(HighVolume, cond, p)

	cond, p = e.divergence(st)
	emit(CVDDivergence, cond, p)

	return out
}

func (e *Engine) bigBlock(tr orderflow.Trade) (bool, Payload) {
	if tr.Quantity <= e.cfg.BigBlockThreshold {
		return false, Payload{}
	}
	return true, Payload{
		Direction: string(tr.Direction),
		Price:     tr.Price,
		Value:     tr.Quantity,
		Threshold: e.cfg.BigBlockThreshold,
		Message:   fmt.Sprintf("block of %g at %g (%s)", tr.Quantity, tr.Price, tr.Direction),
	}
}

func (e *Engine) imbalance(st *State) (bool, Payload) {
	buy, sell := st.flowTotals()
	ratio, dir, ok := Ratio(buy, sell)
	if !ok || ratio <= e.cfg.ImbalanceRatio {
		return false, Payload{}
	}

	msg := fmt.Sprintf("%s imbalance %.2fx over %s (buy %g / sell %g)", dir, ratio, e.cfg.ImbalanceWindow, buy, sell)
	if math.IsInf(ratio, 1) {
		msg = fmt.Sprintf("one-sided %s flow over %s (buy %g / sell %g)", dir, e.cfg.ImbalanceWindow, buy, sell)
	}
	return true, Payload{
		Direction: string(dir),
		Price:     st.lastPrice,
		Value:     ratio,
		Threshold: e.cfg.ImbalanceRatio,
		Message:   msg,
	}
}

// Ratio is max(buy,sell)/min(buy,sell) with the dominant side. A zero
// minority side yields +Inf; ok is false when there is no volume at all.
func Ratio(buy, sell float64) (float64, orderflow.Direction, bool) {
	hi, lo, dir := buy, sell, orderflow.Buy
	if sell > buy {
		hi, lo, dir = sell, buy, orderflow.Sell
	}
	if hi <= 0 {
		return 0, orderflow.Unknown, false
	}
	if lo <= 0 {
		return math.Inf(1), dir, true
	}
	return hi / lo, dir, true
}

func (e *Engine) highVolume(st *State) (bool, Payload) {
	if len(st.completed) < e.cfg.VolumeLookback {
		return false, Payload{}
	}
	avg, err := stats.Mean(stats.Float64Data(st.completed))
	if err != nil || avg <= 0 {
		return false, Payload{}
	}

	limit := e.cfg.HighVolumeMultiplier * avg
	if st.bucketVolume <= limit {
		return false, Payload{}
	}
	return true, Payload{
		Price:     st.lastPrice,
		Value:     st.bucketVolume,
		Threshold: limit,
		Message:   fmt.Sprintf("bucket volume %g vs trailing average %.1f", st.bucketVolume, avg),
	}
}

func (e *Engine) divergence(st *State) (bool, Payload) {
	n := e.cfg.DivergenceLookback
	if len(st.prices) < n {
		return false, Payload{}
	}

	priceTrend, err := halfTrend(st.prices)
	if err != nil {
		return false, Payload{}
	}
	cvdTrend, err := halfTrend(st.cvds)
	if err != nil {
		return false, Payload{}
	}

	var dir string
	switch {
	case priceTrend > e.cfg.DivergenceMinPriceMove && cvdTrend < -e.cfg.DivergenceMinCVDMove:
		dir = "BEARISH"
	case priceTrend < -e.cfg.DivergenceMinPriceMove && cvdTrend > e.cfg.DivergenceMinCVDMove:
		dir = "BULLISH"
	default:
		return false, Payload{}
	}

	return true, Payload{
		Direction: dir,
		Price:     st.lastPrice,
		Value:     cvdTrend,
		Threshold: e.cfg.DivergenceMinCVDMove,
		Message:   fmt.Sprintf("%s divergence: price %+.2f, cvd %+.0f over %d trades", dir, priceTrend, cvdTrend, n),
	}
}

// halfTrend is mean(second half) - mean(first half).
func halfTrend(xs []float64) (float64, error) {
	mid := len(xs) / 2
	first, err := stats.Mean(stats.Float64Data(xs[:mid]))
	if err != nil {
		return 0, err
	}
	second, err := stats.Mean(stats.Float64Data(xs[mid:]))
	if err != nil {
		return 0, err
	}
	return second - first, nil
}
