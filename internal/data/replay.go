package data

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/market"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Replay holds one recorded session merged into time order.
type Replay struct {
	events    []Event
	snapshots int
	ticks     int
	rejected  int
	logger    *zap.Logger
}

// LoadReplay reads the recordings in dir. date is the folder's YYYY-MM-DD
// name and anchors time-of-day tick timestamps in loc. Either file may be
// missing, not both. Malformed rows are skipped and counted.
func LoadReplay(dir, date string, loc *time.Location, files Files, logger *zap.Logger) (*Replay, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing replay date %q: %w", date, err)
	}

	r := &Replay{logger: logger}

	snapPath := filepath.Join(dir, files.Snapshots)
	tickPath := filepath.Join(dir, files.Ticks)

	snapErr := r.loadSnapshots(snapPath)
	if snapErr != nil && !errors.Is(snapErr, ErrNotFound) {
		return nil, snapErr
	}
	tickErr := r.loadTicks(tickPath, day, loc)
	if tickErr != nil && !errors.Is(tickErr, ErrNotFound) {
		return nil, tickErr
	}
	if snapErr != nil && tickErr != nil {
		return nil, fmt.Errorf("%w: neither %s nor %s exists in %s", ErrNotFound, files.Snapshots, files.Ticks, dir)
	}
	if len(r.events) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoEvents, dir)
	}

	// snapshots sort ahead of ticks at the same instant so the chain is
	// priced before the trade is classified
	sort.SliceStable(r.events, func(i, j int) bool {
		a, b := r.events[i], r.events[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.Kind < b.Kind
	})

	logger.Info("loaded replay",
		zap.String("dir", dir),
		zap.Int("snapshots", r.snapshots),
		zap.Int("ticks", r.ticks),
		zap.Int("rejected", r.rejected),
	)
	return r, nil
}

func (r *Replay) loadSnapshots(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("opening snapshots: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	// Chain snapshots run long; allow up to 8MB per line
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var snap market.ChainSnapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			r.reject(path, lineNum, err)
			continue
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = snap.Underlying.Timestamp
		}
		if snap.Timestamp.IsZero() {
			r.reject(path, lineNum, errors.New("snapshot has no timestamp"))
			continue
		}
		r.events = append(r.events, Event{Kind: SnapshotEvent, At: snap.Timestamp, Snapshot: &snap})
		r.snapshots++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading snapshots: %w", err)
	}
	return nil
}

func (r *Replay) loadTicks(path string, day time.Time, loc *time.Location) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("opening ticks: %w", err)
	}
	defer file.Close()

	var rows []tickRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return fmt.Errorf("decoding ticks: %w", err)
	}

	for i, row := range rows {
		tick, err := row.toTick(day, loc)
		if err != nil {
			// header is line 1
			r.reject(path, i+2, err)
			continue
		}
		r.events = append(r.events, Event{Kind: TickEvent, At: tick.Timestamp, Tick: &tick})
		r.ticks++
	}
	return nil
}

func (r *Replay) reject(path string, line int, err error) {
	r.rejected++
	r.logger.Warn("skipping replay row",
		zap.String("path", path),
		zap.Int("line", line),
		zap.Error(err),
	)
}

// Events returns the merged events in time order.
func (r *Replay) Events() []Event {
	return r.events
}

func (r *Replay) Len() int {
	return len(r.events)
}

// Counts returns the loaded snapshot and tick totals and the rows skipped.
func (r *Replay) Counts() (snapshots, ticks, rejected int) {
	return r.snapshots, r.ticks, r.rejected
}

// Play hands each event to fn in order. It stops at the first error from fn
// or when ctx is cancelled.
func (r *Replay) Play(ctx context.Context, fn func(Event) error) error {
	for _, ev := range r.events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return fmt.Errorf("replaying %s at %s: %w", ev.Kind, ev.At.Format(time.RFC3339), err)
		}
	}
	return nil
}
