package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testFiles = Files{Snapshots: "snapshots.jsonl", Ticks: "ticks.csv"}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func ist(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

const snapshotsJSONL = `{"underlying":{"spot":26150,"futures":26190},"quotes":[{"strike":26150,"type":"CE","ltp":120.5,"oi":1000}],"timestamp":"2025-10-15T09:15:00+05:30"}

{"underlying":{"spot":26160,"timestamp":"2025-10-15T09:16:00+05:30"},"quotes":[]}
{not json}
`

const ticksCSV = `timestamp,symbol,ltp,ltq,direction,best_bid,best_ask
09:15:00.000,NIFTY,26150.00,75,BUY,26149.50,26150.50
09:15:30.250,NIFTY,26151.00,150,BUY,0,0
2025-10-15T09:16:30+05:30,NIFTY,26149.00,75,SELL,26148.50,26149.50
bogus,NIFTY,1,1,BUY,0,0
`

func TestLoadReplay_MergesInTimeOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "snapshots.jsonl", snapshotsJSONL)
	writeFile(t, dir, "ticks.csv", ticksCSV)

	r, err := LoadReplay(dir, "2025-10-15", ist(t), testFiles, zap.NewNop())
	require.NoError(t, err)

	snaps, ticks, rejected := r.Counts()
	assert.Equal(t, 2, snaps)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 2, rejected)
	require.Equal(t, 5, r.Len())

	kinds := make([]EventKind, 0, r.Len())
	for _, ev := range r.Events() {
		kinds = append(kinds, ev.Kind)
	}
	// the 09:15:00 snapshot and tick tie; the snapshot goes first
	assert.Equal(t, []EventKind{SnapshotEvent, TickEvent, TickEvent, SnapshotEvent, TickEvent}, kinds)

	first := r.Events()[1].Tick
	require.NotNil(t, first)
	assert.Equal(t, 26149.5, first.BestBid())
	assert.Equal(t, 26150.5, first.BestAsk())

	second := r.Events()[2].Tick
	require.NotNil(t, second)
	assert.Empty(t, second.BestBids, "zero quotes should be dropped")
	assert.Equal(t, 250*time.Millisecond, second.Timestamp.Sub(first.Timestamp)-30*time.Second)

	// snapshot without its own timestamp inherits the underlying's
	late := r.Events()[3].Snapshot
	require.NotNil(t, late)
	assert.True(t, late.Timestamp.Equal(late.Underlying.Timestamp))
}

func TestLoadReplay_TicksOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ticks.csv", ticksCSV)

	r, err := LoadReplay(dir, "2025-10-15", ist(t), testFiles, zap.NewNop())
	require.NoError(t, err)
	snaps, ticks, _ := r.Counts()
	assert.Zero(t, snaps)
	assert.Equal(t, 3, ticks)
}

func TestLoadReplay_RejectsNonFiniteTicks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ticks.csv", `timestamp,ltp,ltq,best_bid,best_ask
09:15:00.000,+Inf,75,0,0
09:15:01.000,26150,NaN,0,0
09:15:02.000,26150,75,NaN,26151
09:15:03.000,26150,75,26149,26151
`)

	r, err := LoadReplay(dir, "2025-10-15", ist(t), testFiles, zap.NewNop())
	require.NoError(t, err)

	_, ticks, rejected := r.Counts()
	assert.Equal(t, 1, ticks)
	assert.Equal(t, 3, rejected)
	require.NoError(t, r.Events()[0].Tick.Validate())
}

func TestLoadReplay_Missing(t *testing.T) {
	_, err := LoadReplay(t.TempDir(), "2025-10-15", time.UTC, testFiles, zap.NewNop())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadReplay_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "snapshots.jsonl", "\n\n")
	_, err := LoadReplay(dir, "2025-10-15", time.UTC, testFiles, zap.NewNop())
	assert.True(t, errors.Is(err, ErrNoEvents))
}

func TestLoadReplay_BadDate(t *testing.T) {
	_, err := LoadReplay(t.TempDir(), "15-10-2025", time.UTC, testFiles, zap.NewNop())
	assert.Error(t, err)
}

func TestReplay_PlayStopsOnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ticks.csv", ticksCSV)
	r, err := LoadReplay(dir, "2025-10-15", ist(t), testFiles, zap.NewNop())
	require.NoError(t, err)

	boom := errors.New("boom")
	seen := 0
	err = r.Play(context.Background(), func(ev Event) error {
		seen++
		if seen == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, seen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Play(ctx, func(Event) error { return nil }), context.Canceled)
}

func TestParseTimestamp(t *testing.T) {
	loc := ist(t)
	day := time.Date(2025, 10, 15, 0, 0, 0, 0, loc)

	ts, err := parseTimestamp("09:15:01.500", day, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 15, 9, 15, 1, 500_000_000, loc), ts)

	ts, err = parseTimestamp("14:00:00", day, loc)
	require.NoError(t, err)
	assert.Equal(t, 14, ts.Hour())

	_, err = parseTimestamp("yesterday", day, loc)
	assert.Error(t, err)
}
