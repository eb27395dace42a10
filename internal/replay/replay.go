// Package replay drives recorded sessions through the analytics core.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/config"
	"github.com/dgnsrekt/gexflow/internal/data"
	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/session"
)

// Result is the closing state of one replayed session.
type Result struct {
	Date      string
	Snapshots int
	Ticks     int
	Skipped   int // events rejected as invalid input
	Alerts    []alert.Alert
	Start     time.Time
	End       time.Time
	Session   *session.Session
}

// AlertCounts tallies alerts by kind.
func (r *Result) AlertCounts() map[alert.Kind]int {
	counts := make(map[alert.Kind]int, len(alert.Kinds))
	for _, a := range r.Alerts {
		counts[a.Kind]++
	}
	return counts
}

// Run replays the recordings in dir through a fresh session. The expiry is
// resolved from the first event, so every date gets its own weekly expiry.
// Alerts are collected from the session subscription rather than the
// bounded alert buffer.
func Run(ctx context.Context, cfg *config.Config, dir, date string, logger *zap.Logger) (*Result, error) {
	loc, err := time.LoadLocation(cfg.Instrument.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone: %w", err)
	}

	rep, err := data.LoadReplay(dir, date, loc, data.Files{
		Snapshots: cfg.Replay.SnapshotsFile,
		Ticks:     cfg.Replay.TicksFile,
	}, logger)
	if err != nil {
		return nil, err
	}

	events := rep.Events()
	start := events[0].At
	expiry, err := cfg.ResolveExpiry(start)
	if err != nil {
		return nil, fmt.Errorf("resolving expiry: %w", err)
	}
	sess, err := session.New(cfg.SessionParams(expiry), logger)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	res := &Result{Date: date, Start: start, End: events[len(events)-1].At, Session: sess}
	unsubscribe, err := sess.Subscribe(func(a alert.Alert) {
		res.Alerts = append(res.Alerts, a)
	})
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	lastEval := start
	err = rep.Play(ctx, func(ev data.Event) error {
		var err error
		switch ev.Kind {
		case data.SnapshotEvent:
			_, err = sess.OnSnapshot(*ev.Snapshot, ev.At)
			if err == nil {
				res.Snapshots++
			}
		case data.TickEvent:
			_, _, err = sess.OnTick(*ev.Tick)
			if err == nil {
				res.Ticks++
			}
		}
		if errors.Is(err, market.ErrInvalidInput) {
			res.Skipped++
			logger.Debug("skipping invalid replay event", zap.Stringer("kind", ev.Kind), zap.Error(err))
			err = nil
		}
		if err != nil {
			return err
		}

		// quiet stretches still get the windowed rules at the live cadence
		if ev.At.Sub(lastEval) >= cfg.Alerts.EvaluateInterval {
			sess.Evaluate(ev.At)
			lastEval = ev.At
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("replay complete",
		zap.String("date", date),
		zap.Int("snapshots", res.Snapshots),
		zap.Int("ticks", res.Ticks),
		zap.Int("skipped", res.Skipped),
		zap.Int("alerts", len(res.Alerts)),
	)
	return res, nil
}
