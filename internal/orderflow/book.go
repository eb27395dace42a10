package orderflow

import (
	"errors"
	"fmt"
	"time"

	rbt "github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid order flow config")

type Config struct {
	TickSize        float64       // footprint price granularity
	Retention       int           // max footprint levels kept
	CandleInterval  time.Duration // delta candle width
	CandleRetention int           // max candles kept
}

func (c Config) Validate() error {
	switch {
	case !(c.TickSize > 0):
		return fmt.Errorf("%w: tick size must be positive, got %v", ErrInvalidConfig, c.TickSize)
	case c.Retention < 1:
		return fmt.Errorf("%w: footprint retention must be at least 1, got %d", ErrInvalidConfig, c.Retention)
	case c.CandleInterval <= 0:
		return fmt.Errorf("%w: candle interval must be positive, got %s", ErrInvalidConfig, c.CandleInterval)
	case c.CandleRetention < 1:
		return fmt.Errorf("%w: candle retention must be at least 1, got %d", ErrInvalidConfig, c.CandleRetention)
	}
	return nil
}

// CVDState is the session's running order-flow totals.
type CVDState struct {
	CumulativeDelta float64 `json:"cumulative_delta"`
	TotalBuyVolume  float64 `json:"total_buy_volume"`
	TotalSellVolume float64 `json:"total_sell_volume"`
	Trades          int64   `json:"trades"`
	UnknownTrades   int64   `json:"unknown_trades"`
	UnknownVolume   float64 `json:"unknown_volume"`
	LastPrice       float64 `json:"last_price"`
}

// Level is the traded volume at one footprint price.
type Level struct {
	Tick       int64     `json:"tick"`
	Price      float64   `json:"price"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
	Trades     int64     `json:"trades"`
	LastTouch  time.Time `json:"last_touch"`

	touched uint64
}

func (l Level) Delta() float64 {
	return l.BuyVolume - l.SellVolume
}

// Book accumulates CVD, the footprint and delta candles. It is not safe for
// concurrent use; the owning session serializes access.
type Book struct {
	cfg      Config
	tickSize decimal.Decimal

	cvd     CVDState
	levels  *rbt.Tree // tick -> *Level, ascending price
	recency *rbt.Tree // touch seq -> tick, oldest first
	seq     uint64
	candles *Candles
}

func NewBook(cfg Config) (*Book, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Book{
		cfg:      cfg,
		tickSize: decimal.NewFromFloat(cfg.TickSize),
		levels:   rbt.NewWith(utils.Int64Comparator),
		recency:  rbt.NewWith(utils.UInt64Comparator),
		candles:  NewCandles(cfg.CandleInterval, cfg.CandleRetention),
	}, nil
}

// TickOf maps a price onto the integer footprint grid.
func (b *Book) TickOf(price float64) int64 {
	return decimal.NewFromFloat(price).Div(b.tickSize).Round(0).IntPart()
}

func (b *Book) PriceOf(tick int64) float64 {
	return decimal.NewFromInt(tick).Mul(b.tickSize).InexactFloat64()
}

// Apply folds one classified trade into the book. UNKNOWN trades are counted
// but never reach the delta or the footprint.
func (b *Book) Apply(tr Trade) {
	b.cvd.Trades++
	b.cvd.LastPrice = tr.Price

	switch tr.Direction {
	case Buy:
		b.cvd.TotalBuyVolume += tr.Quantity
		b.cvd.CumulativeDelta += tr.Quantity
	case Sell:
		b.cvd.TotalSellVolume += tr.Quantity
		b.cvd.CumulativeDelta -= tr.Quantity
	default:
		b.cvd.UnknownTrades++
		b.cvd.UnknownVolume += tr.Quantity
		b.candles.Add(tr, b.cvd.CumulativeDelta)
		return
	}

	b.touch(tr)
	b.candles.Add(tr, b.cvd.CumulativeDelta)
}

func (b *Book) touch(tr Trade) {
	tick := b.TickOf(tr.Price)

	var lvl *Level
	if v, ok := b.levels.Get(tick); ok {
		lvl = v.(*Level)
		b.recency.Remove(lvl.touched)
	} else {
		lvl = &Level{Tick: tick, Price: b.PriceOf(tick)}
		b.levels.Put(tick, lvl)
	}

	if tr.Direction == Buy {
		lvl.BuyVolume += tr.Quantity
	} else {
		lvl.SellVolume += tr.Quantity
	}
	lvl.Trades++
	lvl.LastTouch = tr.Timestamp

	b.seq++
	lvl.touched = b.seq
	b.recency.Put(b.seq, tick)

	for b.levels.Size() > b.cfg.Retention {
		oldest := b.recency.Left()
		b.recency.Remove(oldest.Key)
		b.levels.Remove(oldest.Value)
	}
}

func (b *Book) CVD() CVDState {
	return b.cvd
}

// Footprint returns a copy of the retained levels in ascending price order.
func (b *Book) Footprint() []Level {
	out := make([]Level, 0, b.levels.Size())
	it := b.levels.Iterator()
	for it.Next() {
		out = append(out, *it.Value().(*Level))
	}
	return out
}

// Level looks up the footprint level at price, if retained.
func (b *Book) Level(price float64) (Level, bool) {
	v, ok := b.levels.Get(b.TickOf(price))
	if !ok {
		return Level{}, false
	}
	return *v.(*Level), true
}

func (b *Book) Candles() []Candle {
	return b.candles.All()
}

// Reset clears everything, including the CVD counters.
func (b *Book) Reset() {
	b.cvd = CVDState{}
	b.levels.Clear()
	b.recency.Clear()
	b.seq = 0
	b.candles.Reset()
}
