// Package gex aggregates per-contract gamma into dealer gamma exposure per
// strike and derives the gamma wall and gamma flip levels.
package gex

import (
	"errors"
	"math"
	"sort"

	"github.com/dgnsrekt/gexflow/internal/greeks"
	"github.com/dgnsrekt/gexflow/internal/market"
)

// ErrNoLevel is returned when a wall or flip cannot be determined.
var ErrNoLevel = errors.New("no gamma level")

type Params struct {
	Multiplier    float64 // contract lot size
	OIPerContract float64 // open interest units per contract; 1 when OI is in contracts
}

// Row is the exposure at one strike, in index points per 1% spot move.
type Row struct {
	Strike   float64 `json:"strike"`
	CallGEX  float64 `json:"call_gex"`
	PutGEX   float64 `json:"put_gex"`
	NetGEX   float64 `json:"net_gex"`
	CallOI   float64 `json:"call_oi"`
	PutOI    float64 `json:"put_oi"`
	Complete bool    `json:"complete"` // false when a leg had no gamma
}

// Report is the full result for one (snapshot, spot) pair.
type Report struct {
	Spot     float64 `json:"spot"`
	Rows     []Row   `json:"rows"`
	TotalGEX float64 `json:"total_gex"`
}

// Level is a reported gamma wall or gamma flip.
type Level struct {
	Strike float64 `json:"strike"`
	NetGEX float64 `json:"net_gex"`
	// Crossing is the interpolated zero of cumulative net GEX (flip only).
	Crossing float64 `json:"crossing,omitempty"`
}

// Aggregate computes per-strike exposure. Contracts without available gamma
// contribute zero and leave their row marked incomplete. A contract listed
// more than once counts once, using its last quote as EvaluateChain does.
func Aggregate(results []greeks.Result, quotes []market.ContractQuote, spot float64, p Params) Report {
	perContract := p.OIPerContract
	if perContract <= 0 {
		perContract = 1
	}
	scale := p.Multiplier * spot * spot * 0.01

	gamma := make(map[market.ContractKey]greeks.Record, len(results))
	for _, r := range results {
		gamma[r.Key] = r.Record
	}

	last := make(map[market.ContractKey]int, len(quotes))
	for i, q := range quotes {
		last[q.Key()] = i
	}

	rows := make(map[float64]*Row)
	for i, q := range quotes {
		if last[q.Key()] != i || q.Validate() != nil {
			continue
		}
		row, ok := rows[q.Strike]
		if !ok {
			row = &Row{Strike: q.Strike, Complete: true}
			rows[q.Strike] = row
		}

		rec, ok := gamma[q.Key()]
		if !ok || !rec.Available {
			row.Complete = false
		}
		exposure := rec.Gamma * (q.OpenInterest / perContract) * scale

		switch q.Type {
		case market.Call:
			row.CallGEX += exposure
			row.CallOI += q.OpenInterest
		case market.Put:
			row.PutGEX -= exposure
			row.PutOI += q.OpenInterest
		}
	}

	report := Report{Spot: spot, Rows: make([]Row, 0, len(rows))}
	for _, row := range rows {
		row.NetGEX = row.CallGEX + row.PutGEX
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool { return report.Rows[i].Strike < report.Rows[j].Strike })
	for _, row := range report.Rows {
		report.TotalGEX += row.NetGEX
	}
	return report
}

// Wall returns the strike with the largest absolute net exposure.
// Ties resolve to the lower strike.
func Wall(rows []Row) (Level, error) {
	best := -1
	for i, row := range rows {
		if best < 0 || math.Abs(row.NetGEX) > math.Abs(rows[best].NetGEX) {
			best = i
		}
	}
	if best < 0 || rows[best].NetGEX == 0 {
		return Level{}, ErrNoLevel
	}
	return Level{Strike: rows[best].Strike, NetGEX: rows[best].NetGEX}, nil
}

// Flip walks ascending strikes accumulating net exposure and reports the
// listed strike nearest the interpolated zero crossing. With several
// crossings the one closest to spot wins. rows must be sorted by strike.
func Flip(rows []Row, spot float64) (Level, error) {
	var (
		found   bool
		best    Level
		bestGap float64
		cum     float64
	)

	for i, row := range rows {
		prev := cum
		cum += row.NetGEX
		if i == 0 || !crosses(prev, cum) {
			continue
		}

		// cumulative exposure moves linearly from prev at rows[i-1] to cum at rows[i]
		lo, hi := rows[i-1].Strike, row.Strike
		crossing := lo + (hi-lo)*prev/(prev-cum)

		level := Level{Strike: hi, NetGEX: row.NetGEX, Crossing: crossing}
		if crossing-lo < hi-crossing {
			level.Strike = lo
			level.NetGEX = rows[i-1].NetGEX
		}

		if gap := math.Abs(crossing - spot); !found || gap < bestGap {
			found, best, bestGap = true, level, gap
		}
	}

	if !found {
		return Level{}, ErrNoLevel
	}
	return best, nil
}

// crosses reports a strict sign change, or landing on zero from non-zero.
func crosses(prev, cur float64) bool {
	if prev == 0 {
		return false
	}
	return (prev > 0 && cur <= 0) || (prev < 0 && cur >= 0)
}

// Window keeps rows within n strike intervals of atm. A non-positive n or
// interval returns rows unchanged.
func Window(rows []Row, atm, interval float64, n int) []Row {
	if n <= 0 || interval <= 0 {
		return rows
	}
	reach := float64(n)*interval + interval*1e-9
	out := make([]Row, 0, 2*n+1)
	for _, row := range rows {
		if math.Abs(row.Strike-atm) <= reach {
			out = append(out, row)
		}
	}
	return out
}
