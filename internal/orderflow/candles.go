package orderflow

import (
	"math"
	"time"
)

// Candle is a fixed-interval OHLC bar with the order-flow split.
type Candle struct {
	Start      time.Time `json:"start"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
	Delta      float64   `json:"delta"`
	CVD        float64   `json:"cvd"` // cumulative delta at the last trade in the bar
	Ticks      int64     `json:"ticks"`
}

// Candles keeps the most recent bars, oldest first.
type Candles struct {
	interval  time.Duration
	retention int
	bars      []Candle
}

func NewCandles(interval time.Duration, retention int) *Candles {
	return &Candles{interval: interval, retention: retention}
}

// Add folds a trade into its bar. Trades older than the current bar are
// merged into the current bar rather than reopening history.
func (c *Candles) Add(tr Trade, cvd float64) {
	start := tr.Timestamp.Truncate(c.interval)

	n := len(c.bars)
	if n == 0 || start.After(c.bars[n-1].Start) {
		c.bars = append(c.bars, Candle{
			Start: start,
			Open:  tr.Price,
			High:  tr.Price,
			Low:   tr.Price,
		})
		if len(c.bars) > c.retention {
			c.bars = append(c.bars[:0], c.bars[len(c.bars)-c.retention:]...)
		}
		n = len(c.bars)
	}

	bar := &c.bars[n-1]
	bar.High = math.Max(bar.High, tr.Price)
	bar.Low = math.Min(bar.Low, tr.Price)
	bar.Close = tr.Price
	bar.Ticks++
	bar.CVD = cvd

	switch tr.Direction {
	case Buy:
		bar.BuyVolume += tr.Quantity
	case Sell:
		bar.SellVolume += tr.Quantity
	}
	bar.Delta = bar.BuyVolume - bar.SellVolume
}

func (c *Candles) All() []Candle {
	out := make([]Candle, len(c.bars))
	copy(out, c.bars)
	return out
}

func (c *Candles) Reset() {
	c.bars = nil
}
