package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/state"
)

// recordingAlerter captures alert subjects for assertions.
type recordingAlerter struct {
	subjects []string
}

func (a *recordingAlerter) Send(subject, _ string) {
	a.subjects = append(a.subjects, subject)
}

func TestProcessTickIgnoredUnlessRunning(t *testing.T) {
	e := newLiveEngine(t, mockParams(t), broker.NewMock())
	ctx := context.Background()

	// NOT_STARTED engine ignores ticks outright.
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.Zero(t, e.s.TotalTickCount)

	require.NoError(t, e.Prolog(ctx))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.EqualValues(t, 1, e.s.TotalTickCount)

	e.Pause(false)
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 99.95, 100.05, 100)))
	require.EqualValues(t, 1, e.s.TotalTickCount)

	e.Resume(false)
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.95, 100.05, 100)))
	require.EqualValues(t, 2, e.s.TotalTickCount)
}

func TestRoundTripKeepsExposureAndPositionsInSync(t *testing.T) {
	e := newLiveEngine(t, mockParams(t), broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))

	check := func() {
		t.Helper()
		require.Equal(t, e.s.GrossExposure(), len(e.s.OpenPositions))
	}

	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	check()
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 100.95, 101.05, 101)))
	check()

	// 1.09% down from the max of 101: sell fires and opens exposure.
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.85, 99.95, 99.9)))
	check()
	require.Equal(t, 1, e.s.TotalSellTrades)
	require.Equal(t, state.PeakTop, e.s.LastPeakKind)

	// 1.1% back up from the min: the buy squares the book off.
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 3, 100.95, 101.05, 101)))
	check()
	require.Equal(t, 1, e.s.TotalBuyTrades)
	require.Empty(t, e.s.OpenPositions)
	require.Equal(t, state.PeakBottom, e.s.LastPeakKind)
	require.Equal(t, 2, e.peakCount)
}

func TestPrologSeedsPositionsFromFile(t *testing.T) {
	params := mockParams(t)
	require.NoError(t, state.WritePositionsFile(params.PositionsFile, []state.Order{
		{Direction: broker.Buy, Price: 100.5},
	}))

	e := newLiveEngine(t, params, broker.NewMock())
	require.NoError(t, e.Prolog(context.Background()))

	require.Equal(t, Running, e.RunState())
	require.Len(t, e.s.OpenPositions, 1)
	require.Equal(t, broker.Buy, e.s.OpenPositions[0].Direction)
	require.Equal(t, 100.5, e.s.OpenPositions[0].Price)
	require.Equal(t, 1, e.s.TotalBuyTrades)
	require.Zero(t, e.s.TotalSellTrades)
}

func TestStateSurvivesRestart(t *testing.T) {
	params := mockParams(t)
	e := newLiveEngine(t, params, broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))

	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 100.95, 101.05, 101)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.85, 99.95, 99.9)))
	require.Equal(t, 1, e.s.TotalSellTrades)

	restarted := newLiveEngine(t, params, broker.NewMock())
	require.NoError(t, restarted.Prolog(ctx))
	require.Equal(t, 1, restarted.s.TotalSellTrades)
	require.Equal(t, state.PeakTop, restarted.s.LastPeakKind)
	require.Equal(t, e.s.PercChangeThreshold, restarted.s.PercChangeThreshold)
	require.True(t, restarted.s.IsFirstTickSeen)
}

func TestResetFullDiscardsEverything(t *testing.T) {
	e := newLiveEngine(t, mockParams(t), broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	e.s.TotalBuyTrades = 2
	e.s.TotalSellTrades = 1
	e.s.OpenPositions = []state.Order{{Direction: broker.Buy, Price: 100}}

	e.ResetFull(false)
	require.Equal(t, NotStarted, e.RunState())
	require.Zero(t, e.s.TotalBuyTrades)
	require.Empty(t, e.s.OpenPositions)
	require.Equal(t, state.PeakNone, e.s.LastPeakKind)
	require.Zero(t, e.day.NumTrades)
}

func TestEpilogWritesPositionsAndFinalizesPeriod(t *testing.T) {
	params := mockParams(t)
	e := newLiveEngine(t, params, broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))

	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 100.95, 101.05, 101)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.85, 99.95, 99.9)))
	require.Len(t, e.s.OpenPositions, 1)

	require.NoError(t, e.Epilog(ctx))
	require.Equal(t, Finished, e.RunState())

	// The open sell leg survives the run through the positions file.
	orders, err := state.ReadPositionsFile(params.PositionsFile)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, broker.Sell, orders[0].Direction)
	require.InDelta(t, 99.85, orders[0].Price, 1e-9)

	p := e.PeriodStats()
	require.Equal(t, "RELIANCE", p.Symbol)
	require.Zero(t, p.NumTrades) // one unpaired leg is not a round trip
	require.NotZero(t, p.AvgTradePrice)

	// FINISHED engines ignore further ticks.
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 3, 99.85, 99.95, 99.9)))
	require.EqualValues(t, 3, e.s.TotalTickCount)
}

func TestOpenPositionAlertThrottled(t *testing.T) {
	sink := &recordingAlerter{}
	e := New(Options{
		Params:  mockParams(t),
		Broker:  broker.NewMock(),
		Session: market.NewEquitySession(),
		Alerter: sink,
		Log:     zap.NewNop(),
	})
	e.pollInterval = time.Millisecond
	clock := time.Date(2015, 6, 1, 10, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return clock }

	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))
	e.s.TotalBuyTrades = 1
	e.s.OpenPositions = []state.Order{{Direction: broker.Buy, Price: 100}}

	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.Len(t, sink.subjects, 1)

	// One minute later the exposure is unchanged; the alert stays quiet
	// until fifteen minutes have passed since the last one.
	clock = clock.Add(time.Minute)
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 99.95, 100.05, 100)))
	require.Len(t, sink.subjects, 1)

	clock = clock.Add(16 * time.Minute)
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.95, 100.05, 100)))
	require.Len(t, sink.subjects, 2)
}

func TestEpilogEstimatesPeriodTicksWithoutDailyWindup(t *testing.T) {
	params := mockParams(t)
	params.MarketClosingSquareOff = false
	e := newLiveEngine(t, params, broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))

	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 1, 99.95, 100.05, 100)))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 2, 99.95, 100.05, 100)))

	// Without daily windups the period totals are estimated at the end of
	// the run from the overall tick count and the calendar span.
	require.NoError(t, e.Epilog(ctx))
	require.Equal(t, 3, e.period.NumTicks)
	require.Zero(t, e.period.NumDays)
	require.Zero(t, e.period.InMarketMinutes)
}

func TestResetDirectionKeepsWindow(t *testing.T) {
	e := newLiveEngine(t, mockParams(t), broker.NewMock())
	ctx := context.Background()
	require.NoError(t, e.Prolog(ctx))
	require.NoError(t, e.ProcessTick(ctx, mkTick(1, 10, 0, 99.95, 100.05, 100)))
	e.s.LastPeakKind = state.PeakTop
	e.s.TotalBuyTrades = 1

	e.ResetDirection(false)
	require.Zero(t, e.s.TotalBuyTrades)
	require.Equal(t, state.PeakNone, e.s.LastPeakKind)
	require.NotNil(t, e.s.MaxTick)
}
