package market

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		in   string
		want OptionType
	}{
		{"CE", Call},
		{"ce", Call},
		{"CALL", Call},
		{"PE", Put},
		{" put ", Put},
	}
	for _, tt := range tests {
		got, err := ParseOptionType(tt.in)
		if err != nil {
			t.Fatalf("ParseOptionType(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseOptionType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseOptionType("XX"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for XX, got %v", err)
	}
}

func TestOpposite(t *testing.T) {
	if Call.Opposite() != Put || Put.Opposite() != Call {
		t.Error("Opposite should swap CE and PE")
	}
}

func TestObservedPrice(t *testing.T) {
	q := ContractQuote{LastTradedPrice: 12.5, BidPrice: 12, AskPrice: 13}
	if q.ObservedPrice() != 12.5 {
		t.Errorf("expected LTP, got %v", q.ObservedPrice())
	}

	q.LastTradedPrice = 0
	if q.ObservedPrice() != 12.5 {
		t.Errorf("expected mid 12.5, got %v", q.ObservedPrice())
	}

	q.BidPrice = 0
	if q.ObservedPrice() != 0 {
		t.Errorf("expected 0 without a usable price, got %v", q.ObservedPrice())
	}
}

func TestTickValidate(t *testing.T) {
	ok := Tick{LTP: 100, LTQ: 75, Timestamp: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Tick{
		{LTP: 0, LTQ: 75, Timestamp: time.Now()},
		{LTP: 100, LTQ: -1, Timestamp: time.Now()},
		{LTP: 100, LTQ: 75},
		{LTP: math.Inf(1), LTQ: 75, Timestamp: time.Now()},
		{LTP: math.NaN(), LTQ: 75, Timestamp: time.Now()},
		{LTP: 100, LTQ: math.NaN(), Timestamp: time.Now()},
		{LTP: 100, LTQ: math.Inf(1), Timestamp: time.Now()},
		{LTP: 100, LTQ: 75, BestBids: []float64{math.NaN()}, Timestamp: time.Now()},
		{LTP: 100, LTQ: 75, BestAsks: []float64{101, math.Inf(1)}, Timestamp: time.Now()},
	}
	for i, tk := range bad {
		if err := tk.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestSnapshotValidate(t *testing.T) {
	s := ChainSnapshot{Underlying: UnderlyingState{SpotPrice: 0}}
	if err := s.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero spot, got %v", err)
	}
}

func TestSnapshotValidate_NonFinite(t *testing.T) {
	bad := []ChainSnapshot{
		{Underlying: UnderlyingState{SpotPrice: math.NaN()}},
		{Underlying: UnderlyingState{SpotPrice: math.Inf(1)}},
		{Underlying: UnderlyingState{SpotPrice: 26000, FuturesPrice: math.NaN()}},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestQuoteValidate(t *testing.T) {
	ok := ContractQuote{Strike: 26000, Type: Call, LastTradedPrice: 120, OpenInterest: 75000}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []ContractQuote{
		{Strike: math.NaN(), Type: Call},
		{Strike: 26000, Type: Call, LastTradedPrice: math.Inf(1)},
		{Strike: 26000, Type: Put, BidPrice: math.NaN()},
		{Strike: 26000, Type: Put, OpenInterest: math.Inf(1)},
		{Strike: 26000, Type: Put, OpenInterest: -1},
	}
	for i, q := range bad {
		if err := q.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}
