package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/state"
	"github.com/varun432/algotrader/internal/stats"
)

// DayNett is one closed day's nett result, kept for the run summary.
type DayNett struct {
	Date time.Time
	Nett float64
}

// windupDay closes the trading day: squares off any open exposure, finalizes
// the day stats and folds them into the period. Returns false when the
// square-off order failed, so the next tick retries the whole windup.
func (e *Engine) windupDay(ctx context.Context, marketClosing bool) bool {
	e.log.Info("eod windup",
		zap.String("symbol", e.params.Symbol),
		zap.Bool("market_closing", marketClosing),
		zap.Int("buy_trades", e.s.TotalBuyTrades),
		zap.Int("sell_trades", e.s.TotalSellTrades))

	if net := e.s.NetExposure(); net != 0 {
		dir := broker.Sell
		if net < 0 {
			dir = broker.Buy
		}
		if !e.tryPlaceOrder(ctx, dir, *e.s.CurrTick, marketClosing) {
			e.log.Warn("eod square off failed, retrying on next tick",
				zap.String("symbol", e.params.Symbol),
				zap.String("direction", string(dir)))
			return false
		}
	}

	e.day.NumTicks = e.dayTickCount
	if !e.lastTickOfDay.IsZero() && !e.firstTickOfDay.IsZero() {
		e.day.InMarketMinutes = int(e.lastTickOfDay.Sub(e.firstTickOfDay).Minutes())
	}
	prevClose := 0.0
	if e.s.PrevTick != nil {
		prevClose = e.s.PrevTick.Price()
	}
	e.day.FinalizeDay(e.s.DayAnchor, e.params.Symbol, prevClose,
		e.params.Qty, e.params.MarginFraction, e.params.PercMarketDirectionChange)
	e.period.FoldDay(e.day)

	snapshot := *e.day
	e.journal.Append(Record{
		Kind:      recordEOD,
		Timestamp: e.s.DayAnchor,
		Symbol:    e.params.Symbol,
		Day:       &snapshot,
	})
	e.log.Info("eod stats",
		zap.Time("trade_date", e.day.TradeDate),
		zap.Int("num_trades", e.day.NumTrades),
		zap.Float64("actual_profit", e.day.ActualProfit),
		zap.Float64("expected_profit", e.day.ExpectedProfit),
		zap.Float64("brokerage", e.day.Brokerage),
		zap.Float64("actual_roi_perc", e.day.ActualROIPct),
		zap.Int("num_ticks", e.day.NumTicks),
		zap.Int("inmarket_minutes", e.day.InMarketMinutes))

	e.dailyNett = append(e.dailyNett, DayNett{Date: e.s.DayAnchor, Nett: e.day.ActualProfit})
	e.dailyExpectedNett = append(e.dailyExpectedNett, DayNett{Date: e.s.DayAnchor, Nett: e.day.ExpectedProfit})

	e.dayTickCount = 0
	e.lastPeak = nil
	e.s.MinTick, e.s.MaxTick = nil, nil
	e.s.LastPeakKind = state.PeakNone
	e.s.IsEODWindupDone = true
	return true
}

// startNewDay resets the per-day accumulators and reseeds the analysis
// window at the first tick of a fresh trading day.
func (e *Engine) startNewDay(ltp float64, tick *market.Tick) {
	e.log.Info("new trading day",
		zap.String("symbol", e.params.Symbol),
		zap.Time("first_tick", tick.Time))

	e.s.IsEODWindupDone = false
	e.stopForDay = false

	e.day = stats.NewDayStats(ltp)
	if e.params.ConsiderPrevClosing && e.s.PrevTick != nil {
		e.s.MinTick, e.s.MaxTick = e.s.PrevTick, e.s.PrevTick
	} else {
		e.s.MinTick, e.s.MaxTick = tick, tick
	}

	e.firstTickOfDay = tick.Time
	e.lastTickOfDay = tick.Time
	e.dayTickCount = 1
}
