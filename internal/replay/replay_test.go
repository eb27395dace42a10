package replay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/config"
)

const snapshotsJSONL = `{"underlying":{"spot":26150,"futures":26190},"timestamp":"%sT09:15:00+05:30","quotes":[` +
	`{"strike":26100,"type":"CE","ltp":180,"oi":1200},{"strike":26100,"type":"PE","ltp":120,"oi":900},` +
	`{"strike":26150,"type":"CE","ltp":150,"oi":1500},{"strike":26150,"type":"PE","ltp":145,"oi":1400},` +
	`{"strike":26200,"type":"CE","ltp":120,"oi":2000},{"strike":26200,"type":"PE","ltp":170,"oi":800}]}
`

const ticksCSV = `timestamp,symbol,ltp,ltq,direction,best_bid,best_ask
09:15:01.000,NIFTY,26150.50,75,BUY,26150.00,26150.50
09:15:02.000,NIFTY,26151.00,4000,BUY,26150.50,26151.00
09:16:05.000,NIFTY,26149.00,150,SELL,26149.00,26149.50
09:16:06.000,NIFTY,0,150,SELL,26149.00,26149.50
`

func writeDay(t *testing.T, root, date string) string {
	t.Helper()
	dir := filepath.Join(root, date)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	snaps := strings.ReplaceAll(snapshotsJSONL, "%s", date)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshots.jsonl"), []byte(snaps), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ticks.csv"), []byte(ticksCSV), 0o644))
	return dir
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	dir := writeDay(t, root, "2025-10-15")

	res, err := Run(context.Background(), loadConfig(t), dir, "2025-10-15", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Snapshots)
	assert.Equal(t, 3, res.Ticks)
	assert.Equal(t, 1, res.Skipped, "zero ltp tick is rejected")
	assert.Equal(t, 1, res.AlertCounts()[alert.BigBlock])

	cvd := res.Session.CVD()
	assert.InDelta(t, 4075-150, cvd.CumulativeDelta, 1e-9)

	report, err := res.Session.GEXRows()
	require.NoError(t, err)
	assert.Len(t, report.Rows, 3)
	assert.Len(t, res.Session.Candles(), 2)
}

func TestRun_ContextCancelled(t *testing.T) {
	root := t.TempDir()
	dir := writeDay(t, root, "2025-10-15")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, loadConfig(t), dir, "2025-10-15", zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTasks(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"2025-10-13", "2025-10-14", "2025-10-15"} {
		writeDay(t, root, d)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0o755))

	tasks, err := Tasks(root, "2025-10-14", "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "2025-10-14", tasks[0].Date)
	assert.Equal(t, filepath.Join(root, "2025-10-15"), tasks[1].Dir)

	_, err = Tasks(root, "14/10/2025", "")
	assert.Error(t, err)
}

func TestManager_Execute(t *testing.T) {
	root := t.TempDir()
	writeDay(t, root, "2025-10-14")
	writeDay(t, root, "2025-10-15")
	// a date folder with no recordings fails on its own
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2025-10-16"), 0o755))

	tasks, err := Tasks(root, "", "")
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	m := NewManager(loadConfig(t), 2, zap.NewNop())
	batch, err := m.Execute(context.Background(), tasks)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 2, batch.Success)
	assert.Equal(t, 1, batch.Failed)
	require.Len(t, batch.Errors, 1)
	assert.True(t, strings.HasPrefix(batch.Errors[0], "2025-10-16:"))

	require.Len(t, batch.Results, 3)
	assert.Equal(t, "2025-10-14", batch.Results[0].Task.Date)
	assert.Equal(t, 3, batch.Results[1].Result.Ticks)
	assert.Nil(t, batch.Results[2].Result)
}

func TestManager_ExecuteEmpty(t *testing.T) {
	batch, err := NewManager(loadConfig(t), 4, zap.NewNop()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Total)
}

func TestExport(t *testing.T) {
	root := t.TempDir()
	dir := writeDay(t, root, "2025-10-15")
	res, err := Run(context.Background(), loadConfig(t), dir, "2025-10-15", zap.NewNop())
	require.NoError(t, err)

	out := t.TempDir()
	written, err := Export(out, res)
	require.NoError(t, err)
	require.Len(t, written, 3)

	candles, err := os.ReadFile(filepath.Join(out, "2025-10-15", CandlesFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(candles)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,open,high,low,close,buy_vol,sell_vol,delta,imbalance_ratio,cvd,tick_count", lines[0])
	// first bar is buy-only
	assert.Contains(t, lines[1], ",inf,")

	alerts, err := os.ReadFile(filepath.Join(out, "2025-10-15", AlertsFile))
	require.NoError(t, err)
	assert.Contains(t, string(alerts), "BIG_BLOCK")

	_, err = os.Stat(filepath.Join(out, "2025-10-15", FootprintFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFormatRatio(t *testing.T) {
	assert.Equal(t, "", formatRatio(0, false))
	assert.Equal(t, "2.50", formatRatio(2.5, true))
}
