package replay

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
)

const (
	CandlesFile   = "delta_candles.csv"
	FootprintFile = "footprint_data.csv"
	AlertsFile    = "alerts.csv"
)

type candleRow struct {
	Timestamp      string  `csv:"timestamp"`
	Open           float64 `csv:"open"`
	High           float64 `csv:"high"`
	Low            float64 `csv:"low"`
	Close          float64 `csv:"close"`
	BuyVolume      float64 `csv:"buy_vol"`
	SellVolume     float64 `csv:"sell_vol"`
	Delta          float64 `csv:"delta"`
	ImbalanceRatio string  `csv:"imbalance_ratio"`
	CVD            float64 `csv:"cvd"`
	TickCount      int64   `csv:"tick_count"`
}

type footprintRow struct {
	PriceLevel float64 `csv:"price_level"`
	BuyVolume  float64 `csv:"buy_vol"`
	SellVolume float64 `csv:"sell_vol"`
	Delta      float64 `csv:"delta"`
	Trades     int64   `csv:"trades"`
}

type alertRow struct {
	Seq       uint64  `csv:"seq"`
	Timestamp string  `csv:"timestamp"`
	Kind      string  `csv:"kind"`
	Severity  string  `csv:"severity"`
	Direction string  `csv:"direction"`
	Price     float64 `csv:"price"`
	Value     string  `csv:"value"`
	Threshold float64 `csv:"threshold"`
	Message   string  `csv:"message"`
}

// Export writes the session's candles, footprint and alerts as CSV into
// outDir/<date>/. Each file is written to a temp name and renamed into place.
func Export(outDir string, res *Result) ([]string, error) {
	dir := filepath.Join(outDir, res.Date)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	candles := res.Session.Candles()
	candleRows := make([]candleRow, 0, len(candles))
	for _, c := range candles {
		candleRows = append(candleRows, toCandleRow(c))
	}

	levels := res.Session.Footprint()
	footprintRows := make([]footprintRow, 0, len(levels))
	for _, l := range levels {
		footprintRows = append(footprintRows, footprintRow{
			PriceLevel: l.Price,
			BuyVolume:  l.BuyVolume,
			SellVolume: l.SellVolume,
			Delta:      l.Delta(),
			Trades:     l.Trades,
		})
	}

	alertRows := make([]alertRow, 0, len(res.Alerts))
	for _, a := range res.Alerts {
		alertRows = append(alertRows, toAlertRow(a))
	}

	outputs := []struct {
		name string
		rows any
	}{
		{CandlesFile, &candleRows},
		{FootprintFile, &footprintRows},
		{AlertsFile, &alertRows},
	}

	written := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := writeCSV(path, o.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeCSV(destPath string, rows any) error {
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	err = gocsv.MarshalFile(rows, f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(destPath), err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func toCandleRow(c orderflow.Candle) candleRow {
	ratio, _, ok := alert.Ratio(c.BuyVolume, c.SellVolume)
	return candleRow{
		Timestamp:      c.Start.Format(time.RFC3339),
		Open:           c.Open,
		High:           c.High,
		Low:            c.Low,
		Close:          c.Close,
		BuyVolume:      c.BuyVolume,
		SellVolume:     c.SellVolume,
		Delta:          c.Delta,
		ImbalanceRatio: formatRatio(ratio, ok),
		CVD:            c.CVD,
		TickCount:      c.Ticks,
	}
}

func toAlertRow(a alert.Alert) alertRow {
	return alertRow{
		Seq:       a.Seq,
		Timestamp: a.Timestamp.Format(time.RFC3339Nano),
		Kind:      string(a.Kind),
		Severity:  string(a.Severity),
		Direction: a.Payload.Direction,
		Price:     a.Payload.Price,
		Value:     formatRatio(a.Payload.Value, true),
		Threshold: a.Payload.Threshold,
		Message:   a.Payload.Message,
	}
}

func formatRatio(v float64, ok bool) string {
	switch {
	case !ok:
		return ""
	case math.IsInf(v, 1):
		return "inf"
	default:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
}
