package data

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dgnsrekt/gexflow/internal/market"
)

// tickRow is one line of the tick recording. Extra columns are ignored.
type tickRow struct {
	Timestamp string  `csv:"timestamp"`
	LTP       float64 `csv:"ltp"`
	LTQ       float64 `csv:"ltq"`
	BestBid   float64 `csv:"best_bid"`
	BestAsk   float64 `csv:"best_ask"`
}

// timeOfDayLayouts cover recordings that store only the wall-clock time;
// the date comes from the folder name.
var timeOfDayLayouts = []string{"15:04:05.000", "15:04:05"}

// parseTimestamp accepts RFC3339 or a time of day on day in loc.
func parseTimestamp(raw string, day time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range timeOfDayLayouts {
		clock, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func (r tickRow) toTick(day time.Time, loc *time.Location) (market.Tick, error) {
	ts, err := parseTimestamp(r.Timestamp, day, loc)
	if err != nil {
		return market.Tick{}, err
	}
	for _, v := range []float64{r.LTP, r.LTQ, r.BestBid, r.BestAsk} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return market.Tick{}, fmt.Errorf("%w: non-finite value in tick row", market.ErrInvalidInput)
		}
	}
	tick := market.Tick{LTP: r.LTP, LTQ: r.LTQ, Timestamp: ts}
	if r.BestBid > 0 {
		tick.BestBids = []float64{r.BestBid}
	}
	if r.BestAsk > 0 {
		tick.BestAsks = []float64{r.BestAsk}
	}
	return tick, nil
}
