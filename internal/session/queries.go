package session

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/greeks"
	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/pricing"
)

// SnapshotSummary describes the outcome of one OnSnapshot call.
type SnapshotSummary struct {
	Spot      float64    `json:"spot"`
	ATMStrike float64    `json:"atm_strike"`
	Contracts int        `json:"contracts"`
	Priced    int        `json:"priced"`
	Failed    int        `json:"failed"`
	Parity    int        `json:"parity"`
	Stale     bool       `json:"stale"`
	Strikes   int        `json:"strikes"`
	TotalGEX  float64    `json:"total_gex"`
	Wall      *gex.Level `json:"wall,omitempty"`
	Flip      *gex.Level `json:"flip,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	// Dropped is set when a snapshot at the same or a later time was
	// already applied; the summary then describes the discarded chain.
	Dropped bool `json:"dropped,omitempty"`
}

// ContractGreeks pairs a contract with its Greeks or failure reason.
type ContractGreeks struct {
	market.ContractKey
	greeks.Record
	Error string `json:"error,omitempty"`
}

// Status is a point-in-time overview for health checks.
type Status struct {
	Spot       float64   `json:"spot"`
	ATMStrike  float64   `json:"atm_strike"`
	SnapshotAt time.Time `json:"snapshot_at,omitempty"`
	Contracts  int       `json:"contracts"`
	Unpriced   int       `json:"unpriced"`
	Trades     int64     `json:"trades"`
	AlertSeq   uint64    `json:"alert_seq"`
	Expiry     time.Time `json:"expiry"`
	YearsLeft  float64   `json:"years_to_expiry"`
}

// Greeks returns the Greeks for one contract. An unpriced contract returns
// a record with Available=false and the failure reason.
func (s *Session) Greeks(strike float64, t market.OptionType) (ContractGreeks, error) {
	if !t.Valid() {
		return ContractGreeks{}, fmt.Errorf("%w: option type %q", pricing.ErrInvalidInput, string(t))
	}
	key := market.ContractKey{Strike: strike, Type: t}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.processed.IsZero() {
		return ContractGreeks{}, ErrNoSnapshot
	}
	rec, ok := s.greeks[key]
	if !ok {
		return ContractGreeks{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return ContractGreeks{ContractKey: key, Record: rec, Error: s.failures[key]}, nil
}

// Chain returns every contract's Greeks in strike order.
func (s *Session) Chain() []ContractGreeks {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ContractGreeks, 0, len(s.greeks))
	for key, rec := range s.greeks {
		out = append(out, ContractGreeks{ContractKey: key, Record: rec, Error: s.failures[key]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strike != out[j].Strike {
			return out[i].Strike < out[j].Strike
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// GEXRows returns a copy of the latest report.
func (s *Session) GEXRows() (gex.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.processed.IsZero() {
		return gex.Report{}, ErrNoSnapshot
	}
	report := s.report
	report.Rows = append([]gex.Row(nil), s.report.Rows...)
	return report, nil
}

func (s *Session) GammaWall() (gex.Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.processed.IsZero() {
		return gex.Level{}, ErrNoSnapshot
	}
	return gex.Wall(s.report.Rows)
}

// GammaFlip returns gex.ErrNoLevel when cumulative exposure never changes sign.
func (s *Session) GammaFlip() (gex.Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.processed.IsZero() {
		return gex.Level{}, ErrNoSnapshot
	}
	return gex.Flip(s.report.Rows, s.report.Spot)
}

func (s *Session) CVD() orderflow.CVDState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.CVD()
}

func (s *Session) Footprint() []orderflow.Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Footprint()
}

func (s *Session) Candles() []orderflow.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Candles()
}

// Alerts returns buffered alerts with Seq > after, oldest first.
func (s *Session) Alerts(after uint64) []alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.alerts), func(i int) bool { return s.alerts[i].Seq > after })
	return append([]alert.Alert(nil), s.alerts[i:]...)
}

func (s *Session) Status(now time.Time) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		Spot:       s.snapshot.Underlying.SpotPrice,
		ATMStrike:  s.atmStrike(s.snapshot.Underlying.SpotPrice),
		SnapshotAt: s.snapshot.Timestamp,
		Contracts:  len(s.greeks),
		Unpriced:   len(s.failures),
		Trades:     s.book.CVD().Trades,
		AlertSeq:   s.seq,
		Expiry:     s.clock.Expiry,
		YearsLeft:  s.clock.YearFraction(now),
	}
}

// atmStrike rounds spot to the nearest multiple of the strike interval.
func (s *Session) atmStrike(spot float64) float64 {
	if s.cfg.StrikeInterval <= 0 || spot <= 0 {
		return 0
	}
	return math.Round(spot/s.cfg.StrikeInterval) * s.cfg.StrikeInterval
}
