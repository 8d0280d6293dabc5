package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/alert"
	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/config"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/state"
)

func liveParams() config.AlgoParams {
	return config.AlgoParams{
		Mode:                      config.ModeLive,
		Symbol:                    "RELIANCE",
		InstrumentType:            "FUTURE",
		Qty:                       1,
		MaxLongPositions:          1,
		MaxShortPositions:         1,
		MaxTotalPositions:         1,
		PercMarketDirectionChange: 1,
		PercBrokerage:             0.03,
		SquareOffBrokerageFactor:  2,
		MarginFraction:            0.25,
	}
}

func newLiveEngine(t *testing.T, params config.AlgoParams, brk broker.Brokerage) *Engine {
	t.Helper()
	e := New(Options{
		Params:  params,
		Broker:  brk,
		Session: market.NewEquitySession(),
		Alerter: alert.Nop{},
		Log:     zap.NewNop(),
	})
	e.pollInterval = time.Millisecond
	return e
}

func TestTryPlaceOrderAdverseSpreadRejected(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)

	// Selling into a bid 0.2% under the last trade is outside the 0.06%
	// tolerance; nothing may reach the broker.
	tick := market.Tick{Time: time.Now(), Bid: 99.8, Offer: 100.1, Last: 100}
	ok := e.tryPlaceOrder(context.Background(), broker.Sell, tick, false)

	require.False(t, ok)
	require.Empty(t, m.Submissions)
	require.Zero(t, e.s.TotalSellTrades)
}

func TestTryPlaceOrderReloginAndRetry(t *testing.T) {
	m := broker.NewMock()
	m.PlaceErrs = []error{broker.ErrNotLoggedIn}
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	ok := e.tryPlaceOrder(context.Background(), broker.Buy, tick, false)

	require.True(t, ok)
	require.Equal(t, 1, m.LogoutCalls)
	require.Equal(t, 1, m.ForceLoginCalls)
	require.Len(t, m.Submissions, 1)
	require.Equal(t, 1, e.s.TotalBuyTrades)
	require.Equal(t, 1, e.day.NumTrades)
}

func TestTryPlaceOrderSubmitsAdjustedLimitPrice(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	require.True(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))

	req := m.Submissions[0]
	require.Equal(t, "RELIANCE", req.Symbol)
	require.Equal(t, broker.Buy, req.Direction)
	require.Equal(t, broker.PriceLimit, req.PriceType)
	require.Equal(t, broker.IOC, req.TimeInForce)
	// offer 100.02 plus the minimum 0.05 margin
	require.InDelta(t, 100.07, req.Price, 1e-9)
}

func TestAwaitExecutionWaitsOneIntervalBeforeFirstPoll(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)
	e.pollInterval = 50 * time.Millisecond

	// A context cancelled during the initial wait means the broker is never
	// polled at all: the first status check only happens a full interval
	// after submission.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	price, executed := e.awaitExecution(ctx, "ref-1")
	require.False(t, executed)
	require.EqualValues(t, broker.FillPriceUnavailable, price)
	require.Zero(t, m.StatusCalls)
}

func TestTryPlaceOrderFatalStatusAborts(t *testing.T) {
	m := broker.NewMock()
	m.StatusErrs = []error{&broker.FatalError{Kind: "order not found"}}
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	ok := e.tryPlaceOrder(context.Background(), broker.Buy, tick, false)

	require.False(t, ok)
	require.Equal(t, 1, e.failedOrders)
	require.Zero(t, e.s.TotalBuyTrades)
	require.Empty(t, e.s.OpenPositions)
}

func TestTryPlaceOrderPollsUntilTerminal(t *testing.T) {
	m := broker.NewMock()
	m.Statuses = []broker.Status{broker.StatusQueued, broker.StatusQueued, broker.StatusExecuted}
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	require.True(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))
	require.Equal(t, 3, m.StatusCalls)
}

func TestTryPlaceOrderRejectedTerminalIsFailure(t *testing.T) {
	m := broker.NewMock()
	m.Statuses = []broker.Status{broker.StatusRejected}
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	ok := e.tryPlaceOrder(context.Background(), broker.Buy, tick, false)

	require.False(t, ok)
	require.Equal(t, 1, e.failedOrders)
}

func TestFillPriceFallsBackToIntendedPrice(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	require.True(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))

	// The mock never knows its fill price: one initial attempt plus three
	// retries, then the intended quote price is booked.
	require.Equal(t, 1+fillPriceRetries, m.FillCalls)
	require.Len(t, e.s.OpenPositions, 1)
	require.InDelta(t, 100.02, e.s.OpenPositions[0].Price, 1e-9)
}

func TestFillPriceUsedWhenAvailable(t *testing.T) {
	m := broker.NewMock()
	m.Fills = []float64{100.04}
	e := newLiveEngine(t, liveParams(), m)

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	require.True(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))
	require.InDelta(t, 100.04, e.s.OpenPositions[0].Price, 1e-9)
}

func TestSquareOffBooksNettProfit(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)
	e.s.TotalBuyTrades = 1
	e.s.OpenPositions = []state.Order{{Direction: broker.Buy, Price: 100, ExpectedPrice: 100}}

	tick := market.Tick{Time: time.Now(), Bid: 102, Offer: 102.05, Last: 102}
	require.True(t, e.tryPlaceOrder(context.Background(), broker.Sell, tick, false))

	require.Empty(t, e.s.OpenPositions)
	require.Equal(t, 1, e.s.TotalSellTrades)

	brokerage := 2 * 0.03 * 1 * 102 / 100
	require.InDelta(t, brokerage, e.s.TotalBrokerageAmount, 1e-9)
	require.InDelta(t, 2-brokerage, e.day.ActualProfit, 1e-9)
	require.InDelta(t, 2-brokerage, e.totalActualNett, 1e-9)
	require.Equal(t, 1, e.nettProfitableTrades)
	require.Equal(t, 1, e.day.NumProfitTrades)
}

func TestTryPlaceOrderPositionLimitRejected(t *testing.T) {
	m := broker.NewMock()
	e := newLiveEngine(t, liveParams(), m)
	e.s.TotalBuyTrades = 1
	e.s.OpenPositions = []state.Order{{Direction: broker.Buy, Price: 100}}

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	ok := e.tryPlaceOrder(context.Background(), broker.Buy, tick, false)

	require.False(t, ok)
	require.Empty(t, m.Submissions)
	require.Equal(t, 1, e.limitShortages)
}

func TestStopForDayStickyAfterLossLimit(t *testing.T) {
	params := liveParams()
	params.DailyLossLimit = true
	params.PercPnLStopForDay = 2
	params.NumTradesStopForDay = 3
	m := broker.NewMock()
	e := newLiveEngine(t, params, m)

	// 3% realized loss on the day's min price trips the stop.
	e.day.ActualProfit = -3
	e.day.MinPrice = 100

	tick := market.Tick{Time: time.Now(), Bid: 99.98, Offer: 100.02, Last: 100}
	require.False(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))
	require.True(t, e.stopForDay)

	// Even after the day recovers, no new positions until the day rolls.
	e.day.ActualProfit = 0
	require.False(t, e.tryPlaceOrder(context.Background(), broker.Buy, tick, false))
	require.Empty(t, m.Submissions)
}

func TestPriceMargin(t *testing.T) {
	cases := []struct {
		price float64
		dir   broker.Direction
		want  float64
	}{
		{100, broker.Buy, 0.05},    // 0.01 snaps below the floor
		{300, broker.Buy, 0.05},    // 0.03 snaps to zero, floored
		{1000, broker.Buy, 0.10},   // 0.10 on the grid, within the cap
		{1000, broker.Sell, -0.10}, // negated for sells
		{2550, broker.Buy, 0.25},   // 0.255 rounds and snaps to 0.25
	}
	for _, tc := range cases {
		got := priceMargin(tc.price, tc.dir)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("priceMargin(%v, %v) = %v, want %v", tc.price, tc.dir, got, tc.want)
		}
	}
}
