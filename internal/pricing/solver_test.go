package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/gexflow/internal/market"
)

func oneDay(t *testing.T) float64 {
	t.Helper()
	now := time.Date(2025, 1, 9, 15, 30, 0, 0, time.UTC)
	clock, err := NewExpiryClock(now.Add(24*time.Hour), DefaultMinT)
	require.NoError(t, err)
	return clock.YearFraction(now)
}

func TestSolve_NearTheMoneyCall(t *testing.T) {
	in := Inputs{Spot: 26172.40, Strike: 26200, T: oneDay(t), Rate: 0.065}

	vol, err := DefaultSolver().Solve(market.Call, in, 35.30)
	require.NoError(t, err)
	assert.Greater(t, vol, 0.0)
	assert.Less(t, vol, 1.0)
	assert.InDelta(t, 35.30, Price(market.Call, in, vol), 0.01)
}

func TestSolve_RoundTrip(t *testing.T) {
	solver := DefaultSolver()
	strikes := []float64{95, 100, 105, 110}
	vols := []float64{0.12, 0.25, 0.6}

	for _, k := range strikes {
		for _, sigma := range vols {
			for _, typ := range []market.OptionType{market.Call, market.Put} {
				in := Inputs{Spot: 100, Strike: k, T: 30.0 / 365, Rate: 0.05, Yield: 0.01}
				price := Price(typ, in, sigma)
				if price-Intrinsic(typ, in.Spot, in.Strike) < solver.MinTimeValue {
					continue
				}

				got, err := solver.Solve(typ, in, price)
				require.NoError(t, err, "K=%v sigma=%v %s", k, sigma, typ)
				assert.InDelta(t, price, Price(typ, in, got), 1e-4, "K=%v sigma=%v %s", k, sigma, typ)
				assert.InDelta(t, sigma, got, 1e-3)
			}
		}
	}
}

func TestPutCallParity(t *testing.T) {
	in := Inputs{Spot: 26172.40, Strike: 26000, T: 7.0 / 365, Rate: 0.065, Yield: 0.012}
	for _, sigma := range []float64{0.05, 0.15, 0.4} {
		c := Price(market.Call, in, sigma)
		p := Price(market.Put, in, sigma)
		forward := in.Spot*math.Exp(-in.Yield*in.T) - in.Strike*math.Exp(-in.Rate*in.T)
		assert.InDelta(t, forward, c-p, 1e-6)
	}
}

func TestSolve_InvalidInput(t *testing.T) {
	solver := DefaultSolver()
	in := Inputs{Spot: 100, Strike: 90, T: 0.1, Rate: 0.05}

	cases := []struct {
		name  string
		typ   market.OptionType
		in    Inputs
		price float64
	}{
		{"zero price", market.Call, in, 0},
		{"negative price", market.Put, in, -1},
		{"below intrinsic", market.Call, in, 9.5},
		{"at intrinsic", market.Call, in, 10},
		{"zero time", market.Call, Inputs{Spot: 100, Strike: 90, T: 0, Rate: 0.05}, 12},
		{"bad type", market.OptionType("XX"), in, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := solver.Solve(tc.typ, tc.in, tc.price)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSolve_PriceOutsideBracket(t *testing.T) {
	in := Inputs{Spot: 26172.40, Strike: 26200, T: 1.0 / 365, Rate: 0.065}
	_, err := DefaultSolver().Solve(market.Call, in, 5000)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestSolve_IterationLimit(t *testing.T) {
	solver := DefaultSolver()
	solver.MaxIter = 1
	in := Inputs{Spot: 100, Strike: 100, T: 0.5, Rate: 0.05}
	_, err := solver.Solve(market.Call, in, Price(market.Call, in, 1.7))
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestSolveWithParity_DeepITMCall(t *testing.T) {
	solver := DefaultSolver()
	in := Inputs{Spot: 26172.4, Strike: 25500, T: 1.0 / 365, Rate: 0.065}
	putPrice := Price(market.Put, in, 0.25)
	callPrice := Intrinsic(market.Call, in.Spot, in.Strike) + 0.3

	_, err := solver.Solve(market.Call, in, callPrice)
	require.ErrorIs(t, err, ErrIllConditioned)

	vol, src, err := solver.SolveWithParity(market.Call, in, callPrice, putPrice)
	require.NoError(t, err)
	assert.Equal(t, SourceParity, src)
	assert.InDelta(t, 0.25, vol, 1e-4)
}

func TestSolveWithParity_NoCounterpart(t *testing.T) {
	in := Inputs{Spot: 26172.4, Strike: 25500, T: 1.0 / 365, Rate: 0.065}
	callPrice := Intrinsic(market.Call, in.Spot, in.Strike) + 0.3

	_, _, err := DefaultSolver().SolveWithParity(market.Call, in, callPrice, 0)
	assert.ErrorIs(t, err, ErrNoConvergence)
}

func TestSolveWithParity_DirectWhenWellConditioned(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 100, T: 0.25, Rate: 0.05}
	price := Price(market.Call, in, 0.2)

	vol, src, err := DefaultSolver().SolveWithParity(market.Call, in, price, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, src)
	assert.InDelta(t, 0.2, vol, 1e-4)
}

func TestImpliedYield(t *testing.T) {
	assert.Equal(t, 0.0, ImpliedYield(100, 0, 0.1, 0.05))
	// futures at a discount to carry implies a positive yield
	q := ImpliedYield(100, 100.3, 0.1, 0.05)
	assert.InDelta(t, 0.05-math.Log(1.003)/0.1, q, 1e-12)
	// deep backwardation clamps to the 5% ceiling
	assert.Equal(t, 0.05, ImpliedYield(100, 90, 0.1, 0.05))
	// contango beyond carry clamps to zero
	assert.Equal(t, 0.0, ImpliedYield(100, 110, 0.1, 0.05))
}

func TestPrice_DegenerateSigma(t *testing.T) {
	in := Inputs{Spot: 110, Strike: 100, T: 0.5, Rate: 0.05}
	want := 110 - 100*math.Exp(-0.05*0.5)
	assert.InDelta(t, want, Price(market.Call, in, 0), 1e-12)
	assert.Equal(t, 0.0, Price(market.Put, in, 0))
}
