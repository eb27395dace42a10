package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidInput is returned for malformed or out-of-domain numeric input.
// Other packages wrap it so callers can match with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// OptionType is the CE/PE tag carried by every contract.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// ParseOptionType accepts CE/PE (and CALL/PUT) case-insensitively.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL", "C":
		return Call, nil
	case "PE", "PUT", "P":
		return Put, nil
	default:
		return "", fmt.Errorf("%w: unknown option type %q", ErrInvalidInput, s)
	}
}

func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Opposite returns the other leg at the same strike.
func (t OptionType) Opposite() OptionType {
	switch t {
	case Call:
		return Put
	case Put:
		return Call
	default:
		panic(fmt.Sprintf("market: invalid option type %q", string(t)))
	}
}

// ContractKey identifies one contract in the chain.
type ContractKey struct {
	Strike float64    `json:"strike"`
	Type   OptionType `json:"type"`
}

func (k ContractKey) String() string {
	return fmt.Sprintf("%g%s", k.Strike, k.Type)
}

type ContractQuote struct {
	Strike          float64    `json:"strike"`
	Type            OptionType `json:"type"`
	LastTradedPrice float64    `json:"ltp"`
	BidPrice        float64    `json:"bid"`
	AskPrice        float64    `json:"ask"`
	OpenInterest    float64    `json:"oi"`
	Volume          float64    `json:"volume"`
	PreviousClose   float64    `json:"prev_close"`
}

func (q ContractQuote) Key() ContractKey {
	return ContractKey{Strike: q.Strike, Type: q.Type}
}

// ObservedPrice returns the price used for IV solving: LTP, or the bid/ask
// mid when no trade has printed yet. Zero means no usable price.
func (q ContractQuote) ObservedPrice() float64 {
	if q.LastTradedPrice > 0 {
		return q.LastTradedPrice
	}
	if q.BidPrice > 0 && q.AskPrice >= q.BidPrice {
		return (q.BidPrice + q.AskPrice) / 2
	}
	return 0
}

// finite reports whether every value is a real number.
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the fields every consumer relies on.
func (q ContractQuote) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("%w: option type %q", ErrInvalidInput, string(q.Type))
	}
	if !finite(q.Strike, q.LastTradedPrice, q.BidPrice, q.AskPrice, q.OpenInterest, q.Volume, q.PreviousClose) {
		return fmt.Errorf("%w: non-finite value at %s", ErrInvalidInput, q.Key())
	}
	if q.Strike <= 0 {
		return fmt.Errorf("%w: strike %v", ErrInvalidInput, q.Strike)
	}
	if q.OpenInterest < 0 || q.Volume < 0 {
		return fmt.Errorf("%w: negative open interest or volume at %s", ErrInvalidInput, q.Key())
	}
	return nil
}

type UnderlyingState struct {
	SpotPrice    float64   `json:"spot"`
	FuturesPrice float64   `json:"futures"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChainSnapshot is one full option-chain refresh with the attached spot.
type ChainSnapshot struct {
	Underlying UnderlyingState `json:"underlying"`
	Quotes     []ContractQuote `json:"quotes"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (s ChainSnapshot) Validate() error {
	if !finite(s.Underlying.SpotPrice, s.Underlying.FuturesPrice) {
		return fmt.Errorf("%w: non-finite spot %v or futures %v", ErrInvalidInput, s.Underlying.SpotPrice, s.Underlying.FuturesPrice)
	}
	if s.Underlying.SpotPrice <= 0 {
		return fmt.Errorf("%w: spot price %v", ErrInvalidInput, s.Underlying.SpotPrice)
	}
	if s.Underlying.FuturesPrice < 0 {
		return fmt.Errorf("%w: futures price %v", ErrInvalidInput, s.Underlying.FuturesPrice)
	}
	return nil
}

// Tick is a single trade print from the underlying's feed.
type Tick struct {
	LTP       float64   `json:"ltp"`
	LTQ       float64   `json:"ltq"`
	BestBids  []float64 `json:"best_bids,omitempty"`
	BestAsks  []float64 `json:"best_asks,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (t Tick) BestBid() float64 {
	if len(t.BestBids) == 0 {
		return 0
	}
	return t.BestBids[0]
}

func (t Tick) BestAsk() float64 {
	if len(t.BestAsks) == 0 {
		return 0
	}
	return t.BestAsks[0]
}

func (t Tick) Validate() error {
	if !(t.LTP > 0) || math.IsInf(t.LTP, 0) {
		return fmt.Errorf("%w: ltp %v", ErrInvalidInput, t.LTP)
	}
	if !(t.LTQ > 0) || math.IsInf(t.LTQ, 0) {
		return fmt.Errorf("%w: ltq %v", ErrInvalidInput, t.LTQ)
	}
	if !finite(t.BestBids...) || !finite(t.BestAsks...) {
		return fmt.Errorf("%w: non-finite best bid or ask", ErrInvalidInput)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing tick timestamp", ErrInvalidInput)
	}
	return nil
}
