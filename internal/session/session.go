// Package session owns every mutable accumulator for one underlying and
// exposes the ingest and query contract used by the outer adapters.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/greeks"
	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/metrics"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/pricing"
)

const alertTopic = "alert"

var (
	ErrNoSnapshot = errors.New("no snapshot processed yet")
	ErrNotFound   = errors.New("contract not found")
)

// Session is the single owner of order-flow, chain and alert state. All
// mutation is serialized behind mu; readers receive copies.
type Session struct {
	cfg    Config
	clock  pricing.ExpiryClock
	engine *alert.Engine
	bus    EventBus.Bus
	logger *zap.Logger

	// one bus topic per subscriber, in subscription order
	subMu   sync.Mutex
	topics  []string
	nextSub uint64

	mu sync.RWMutex

	snapshot   market.ChainSnapshot
	processed  time.Time
	greeks     map[market.ContractKey]greeks.Record
	failures   map[market.ContractKey]string
	report     gex.Report
	classifier orderflow.Classifier
	book       *orderflow.Book
	alertState *alert.State
	alerts     []alert.Alert
	seq        uint64
}

func New(cfg Config, logger *zap.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock, err := pricing.NewExpiryClock(cfg.Expiry, cfg.MinT)
	if err != nil {
		return nil, err
	}
	engine, err := alert.NewEngine(cfg.Alerts)
	if err != nil {
		return nil, err
	}
	book, err := orderflow.NewBook(cfg.OrderFlow)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		cfg:        cfg,
		clock:      clock,
		engine:     engine,
		bus:        EventBus.New(),
		logger:     logger,
		greeks:     make(map[market.ContractKey]greeks.Record),
		failures:   make(map[market.ContractKey]string),
		book:       book,
		alertState: engine.NewState(),
	}, nil
}

// OnSnapshot solves the chain and recomputes GEX. The solve runs without
// holding the lock; the results replace the previous snapshot atomically.
func (s *Session) OnSnapshot(snap market.ChainSnapshot, now time.Time) (SnapshotSummary, error) {
	if err := snap.Validate(); err != nil {
		metrics.RejectedInputs.WithLabelValues("snapshot").Inc()
		return SnapshotSummary{}, err
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now
	}

	s.mu.RLock()
	clock := s.clock
	s.mu.RUnlock()

	start := time.Now()
	params := greeks.Params{
		Solver:           s.cfg.Solver,
		Clock:            clock,
		Rate:             s.cfg.Rate,
		Yield:            s.cfg.Yield,
		YieldFromFutures: s.cfg.YieldFromFutures,
		MaxQuoteAge:      s.cfg.MaxQuoteAge,
		Now:              now,
	}
	results := greeks.EvaluateChain(snap, params)
	report := gex.Aggregate(results, snap.Quotes, snap.Underlying.SpotPrice, s.cfg.GEX)

	records := make(map[market.ContractKey]greeks.Record, len(results))
	failures := make(map[market.ContractKey]string)
	summary := SnapshotSummary{
		Spot:      snap.Underlying.SpotPrice,
		ATMStrike: s.atmStrike(snap.Underlying.SpotPrice),
		Contracts: len(results),
		Strikes:   len(report.Rows),
		TotalGEX:  report.TotalGEX,
		Timestamp: snap.Timestamp,
	}
	for _, r := range results {
		records[r.Key] = r.Record
		switch {
		case r.Err != nil:
			failures[r.Key] = r.Err.Error()
			summary.Failed++
			metrics.UnpricedContracts.WithLabelValues(failureReason(r.Err)).Inc()
			s.logger.Debug("contract unpriced", zap.String("contract", r.Key.String()), zap.Error(r.Err))
		case r.Record.Source == pricing.SourceParity:
			summary.Parity++
			metrics.ParityFallbacks.Inc()
		}
		if r.Record.Available {
			summary.Priced++
		}
		if r.Warn != nil && !summary.Stale {
			summary.Stale = true
			metrics.StaleSnapshots.Inc()
			s.logger.Warn("stale chain snapshot", zap.Error(r.Warn))
		}
	}
	if wall, err := gex.Wall(report.Rows); err == nil {
		summary.Wall = &wall
	}
	if flip, err := gex.Flip(report.Rows, report.Spot); err == nil {
		summary.Flip = &flip
	}

	if !s.swap(snap, now, records, failures, report) {
		s.logger.Debug("dropping out-of-order snapshot", zap.Time("timestamp", snap.Timestamp))
		summary.Dropped = true
		return summary, nil
	}

	metrics.SnapshotsTotal.Inc()
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	metrics.NetGEX.Set(report.TotalGEX)

	return summary, nil
}

// swap installs a solved snapshot unless one at the same or a later time is
// already in place.
func (s *Session) swap(snap market.ChainSnapshot, now time.Time, records map[market.ContractKey]greeks.Record, failures map[market.ContractKey]string, report gex.Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.snapshot.Timestamp.IsZero() && !snap.Timestamp.After(s.snapshot.Timestamp) {
		return false
	}
	s.snapshot = snap
	s.processed = now
	s.greeks = records
	s.failures = failures
	s.report = report
	return true
}

// OnTick classifies a trade, folds it into the book and runs the alert rules.
func (s *Session) OnTick(tick market.Tick) (orderflow.Trade, []alert.Alert, error) {
	if err := tick.Validate(); err != nil {
		metrics.RejectedInputs.WithLabelValues("tick").Inc()
		return orderflow.Trade{}, nil, err
	}

	trade, cvd, fired := s.applyTick(tick)

	metrics.TicksTotal.WithLabelValues(string(trade.Direction)).Inc()
	metrics.CumulativeDelta.Set(cvd.CumulativeDelta)
	s.publish(fired)

	return trade, fired, nil
}

func (s *Session) applyTick(tick market.Tick) (orderflow.Trade, orderflow.CVDState, []alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade := s.classifier.Classify(tick)
	s.book.Apply(trade)
	cvd := s.book.CVD()
	fired := s.engine.Evaluate(s.alertState, alert.Observation{Now: tick.Timestamp, Trade: &trade, CVD: cvd})
	return trade, cvd, s.store(fired)
}

// Evaluate runs the windowed rules without a trade so that conditions can
// clear and re-arm during quiet periods.
func (s *Session) Evaluate(now time.Time) []alert.Alert {
	fired := s.evaluate(now)
	s.publish(fired)
	return fired
}

func (s *Session) evaluate(now time.Time) []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	fired := s.engine.Evaluate(s.alertState, alert.Observation{Now: now, CVD: s.book.CVD()})
	return s.store(fired)
}

// store assigns sequence numbers and appends to the poll buffer. Caller holds mu.
func (s *Session) store(fired []alert.Alert) []alert.Alert {
	for i := range fired {
		s.seq++
		fired[i].Seq = s.seq
		s.alerts = append(s.alerts, fired[i])
	}
	if over := len(s.alerts) - s.cfg.AlertBuffer; over > 0 {
		s.alerts = append(s.alerts[:0], s.alerts[over:]...)
	}
	return fired
}

func (s *Session) publish(fired []alert.Alert) {
	for _, a := range fired {
		metrics.AlertsTotal.WithLabelValues(string(a.Kind)).Inc()
		s.logger.Info("alert",
			zap.String("kind", string(a.Kind)),
			zap.String("severity", string(a.Severity)),
			zap.Uint64("seq", a.Seq),
			zap.String("message", a.Payload.Message),
		)
	}
	if len(fired) == 0 {
		return
	}

	s.subMu.Lock()
	topics := append([]string(nil), s.topics...)
	s.subMu.Unlock()

	for _, a := range fired {
		for _, topic := range topics {
			s.bus.Publish(topic, a)
		}
	}
}

// Subscribe registers fn for every alert emitted after the call. Handlers run
// synchronously on the ingesting goroutine, after the session lock is released.
// Each subscription has its own bus topic; the returned func removes only it.
func (s *Session) Subscribe(fn func(alert.Alert)) (func(), error) {
	s.subMu.Lock()
	s.nextSub++
	topic := fmt.Sprintf("%s.%d", alertTopic, s.nextSub)
	if err := s.bus.Subscribe(topic, fn); err != nil {
		s.subMu.Unlock()
		return nil, fmt.Errorf("subscribing to alerts: %w", err)
	}
	s.topics = append(s.topics, topic)
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, t := range s.topics {
				if t == topic {
					s.topics = append(s.topics[:i], s.topics[i+1:]...)
					break
				}
			}
			_ = s.bus.Unsubscribe(topic, fn)
		})
	}, nil
}

// Reset clears the order-flow accumulators and alert state. The last chain
// snapshot and its Greeks are kept until the next snapshot replaces them.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.classifier.Reset()
	s.book.Reset()
	s.alertState.Reset()
	s.alerts = nil
	metrics.CumulativeDelta.Set(0)
	s.logger.Info("session reset")
}

// SetExpiry moves the session to a new expiry. Greeks computed against the
// old expiry stay visible until the next snapshot.
func (s *Session) SetExpiry(expiry time.Time) error {
	clock, err := pricing.NewExpiryClock(expiry, s.cfg.MinT)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.clock = clock
	s.mu.Unlock()
	s.logger.Info("expiry updated", zap.Time("expiry", expiry))
	return nil
}

func (s *Session) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Expiry
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, pricing.ErrNoConvergence):
		return "no_convergence"
	case errors.Is(err, pricing.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}
