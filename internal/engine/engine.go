package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/alert"
	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/config"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/risk"
	"github.com/varun432/algotrader/internal/state"
	"github.com/varun432/algotrader/internal/stats"
)

// RunState is the engine lifecycle state.
type RunState string

const (
	NotStarted RunState = "NOT_STARTED"
	Running    RunState = "RUNNING"
	Paused     RunState = "PAUSED"
	Finished   RunState = "FINISHED"
)

// positionAlertInterval bounds how often the open-exposure alert fires.
const positionAlertInterval = 15 * time.Minute

// Engine is the per-instrument orchestrator. One engine owns one
// EngineState; ticks are processed strictly sequentially and there is no
// internal concurrency.
type Engine struct {
	params  config.AlgoParams
	session market.Session
	broker  broker.Brokerage
	alerter alert.Alerter
	journal *Journal
	log     *zap.Logger

	s       *state.EngineState
	tracker *peakTracker
	limiter risk.Limiter

	day    *stats.DayStats
	period *stats.PeriodStats

	runState   RunState
	stopForDay bool

	startOrders []state.Order

	// run accumulators, not part of the persisted state
	ltp               float64
	totalActualNett   float64
	totalExpectedNett float64
	totalTurnover     float64
	avgTradePriceSum  float64
	currProfitPerc    float64

	dayTickCount      int
	firstTickOfPeriod time.Time
	lastTickOfPeriod  time.Time
	firstTickOfDay    time.Time
	lastTickOfDay     time.Time

	dailyNett         []DayNett
	dailyExpectedNett []DayNett

	profitableTrades     int
	nettProfitableTrades int
	lossTrades           int
	failedOrders         int
	limitShortages       int
	peakCount            int
	lastPeak             *market.Tick

	lastStateAlertTime time.Time

	pollInterval time.Duration
	now          func() time.Time
}

// Options wires the engine's collaborators.
type Options struct {
	Params      config.AlgoParams
	Broker      broker.Brokerage
	Session     market.Session
	Alerter     alert.Alerter
	Journal     *Journal
	Log         *zap.Logger
	StartOrders []state.Order
}

func New(opts Options) *Engine {
	s := state.New(opts.Params.PercMarketDirectionChange)
	e := &Engine{
		params:       opts.Params,
		session:      opts.Session,
		broker:       opts.Broker,
		alerter:      opts.Alerter,
		journal:      opts.Journal,
		log:          opts.Log,
		s:            s,
		day:          stats.NewDayStats(0),
		period:       &stats.PeriodStats{},
		runState:     NotStarted,
		startOrders:  opts.StartOrders,
		pollInterval: statusPollInterval,
		now:          time.Now,
	}
	e.tracker = &peakTracker{s: s, log: opts.Log}
	e.limiter = risk.Limiter{
		Limits: risk.Limits{
			MaxLongPositions:    opts.Params.MaxLongPositions,
			MaxShortPositions:   opts.Params.MaxShortPositions,
			MaxTotalPositions:   opts.Params.MaxTotalPositions,
			SingleTradePerDay:   opts.Params.SingleTradePerDay,
			DailyLossLimit:      opts.Params.DailyLossLimit,
			PercPnLStopForDay:   opts.Params.PercPnLStopForDay,
			NumTradesStopForDay: opts.Params.NumTradesStopForDay,
		},
		Log: opts.Log,
	}
	return e
}

// State exposes the engine state for inspection. Callers must not mutate
// it; the engine is the exclusive owner.
func (e *Engine) State() *state.EngineState { return e.s }

// RunState returns the current lifecycle state.
func (e *Engine) RunState() RunState { return e.runState }

// DayStats returns the live end-of-day accumulator.
func (e *Engine) DayStats() *stats.DayStats { return e.day }

// PeriodStats returns the live end-of-period accumulator.
func (e *Engine) PeriodStats() *stats.PeriodStats { return e.period }

// Prolog loads persisted state, applies seed orders and the open-positions
// file, and transitions to RUNNING.
func (e *Engine) Prolog(ctx context.Context) error {
	e.runState = Running
	e.log.Info("prolog enter", zap.String("symbol", e.params.Symbol), zap.String("mode", string(e.params.Mode)))

	if st, err := state.Load(e.params.StateFile); err == nil {
		e.s = st
		e.tracker.s = st
		e.log.Info("loaded engine state", zap.String("path", e.params.StateFile),
			zap.Int("buy_trades", st.TotalBuyTrades), zap.Int("sell_trades", st.TotalSellTrades))
	} else if !errors.Is(err, os.ErrNotExist) {
		e.log.Warn("engine state not loaded", zap.String("path", e.params.StateFile), zap.Error(err))
	}

	for _, o := range e.startOrders {
		e.s.OpenPositions = append(e.s.OpenPositions, o)
		switch o.Direction {
		case broker.Buy:
			e.s.TotalBuyTrades++
		case broker.Sell:
			e.s.TotalSellTrades++
		}
	}

	if _, err := os.Stat(e.params.PositionsFile); err == nil {
		orders, err := state.ReadPositionsFile(e.params.PositionsFile)
		if err != nil {
			return err
		}
		buys, sells := 0, 0
		for _, o := range orders {
			e.s.OpenPositions = append(e.s.OpenPositions, o)
			// Keeps the average trade price non-zero on an off-market start
			// with seeded positions.
			e.avgTradePriceSum = o.Price
			switch o.Direction {
			case broker.Buy:
				buys++
			case broker.Sell:
				sells++
			}
			e.log.Info("initial position", zap.String("direction", string(o.Direction)), zap.Float64("price", o.Price))
		}
		if buys > 0 {
			e.s.TotalBuyTrades = buys
		}
		if sells > 0 {
			e.s.TotalSellTrades = sells
		}
	}

	e.log.Info("prolog exit", zap.String("symbol", e.params.Symbol))
	return nil
}

// ProcessTick is the single per-tick entry point. A paused or finished
// engine ignores ticks entirely, so replaying a tick while paused cannot
// double-count trades.
func (e *Engine) ProcessTick(ctx context.Context, tick market.Tick) error {
	if e.runState != Running {
		return nil
	}

	e.s.TotalTickCount++
	proceed, marketClosing := e.updateTick(ctx, tick)
	if proceed {
		e.findPeaksAndOrder(ctx, marketClosing)
	}
	e.ltp = tick.Price()
	return e.postProcess()
}

// updateTick carries the day-boundary and window bookkeeping for one tick.
// It reports whether signal evaluation should run, plus the market-closing
// flag.
func (e *Engine) updateTick(ctx context.Context, tick market.Tick) (bool, bool) {
	cp := tick
	e.s.CurrTick = &cp

	marketClosing := e.session.AfterClose(tick.Time)

	// Start only when the day's live quotes have begun.
	if !e.params.IsMock() && !e.session.AfterOpen(tick.Time) {
		return false, marketClosing
	}
	// Initial no-trade buffer for prices to settle down.
	if e.params.AllowInitialTickStabilization && !e.session.AfterSettle(tick.Time) {
		return false, marketClosing
	}

	ltp := tick.Price()
	e.lastTickOfPeriod = tick.Time

	if !e.s.IsFirstTickSeen {
		e.s.IsFirstTickSeen = true
		e.firstTickOfPeriod = tick.Time
		e.s.DayAnchor = tick.Time
		e.s.IsEODWindupDone = false
		e.s.PrevTick = &cp

		if e.params.ConsiderPrevClosing {
			e.s.MinTick, e.s.MaxTick = e.s.PrevTick, e.s.PrevTick
		} else if e.s.MinTick == nil || e.s.MaxTick == nil {
			e.s.MinTick, e.s.MaxTick = &cp, &cp
		}
		e.firstTickOfDay = tick.Time

		e.day = stats.NewDayStats(ltp)
		e.period.MinPrice, e.period.MaxPrice = ltp, ltp
	}
	e.avgTradePriceSum += ltp

	// Intraday while live; day rollover is only observable from data in
	// mock and replay runs.
	if e.params.IsMock() || e.params.IsReplay() {
		e.s.IsNextDay = !market.SameDay(tick.Time, e.s.DayAnchor)
	}

	needsWindup := e.params.MarketClosingSquareOff && (marketClosing || e.s.IsNextDay) && !e.s.IsEODWindupDone
	if needsWindup {
		if !e.windupDay(ctx, marketClosing) {
			// Square-off failed; come again with another tick.
			return false, marketClosing
		}
	}

	if e.s.IsNextDay && e.s.IsEODWindupDone {
		e.startNewDay(ltp, &cp)
	}

	if e.s.IsNextDay {
		e.s.DayAnchor = tick.Time
	}
	e.s.PrevTick = &cp

	// After the windup, the rest of the session's ticks are idle until the
	// next day's first tick resets the flag.
	if e.params.MarketClosingSquareOff && !(!e.s.IsNextDay && !e.s.IsEODWindupDone) {
		return false, marketClosing
	}

	// No new positions near the close when flat.
	if e.session.AfterNoNewTrade(tick.Time) && e.s.TotalBuyTrades == e.s.TotalSellTrades {
		return false, marketClosing
	}

	e.dayTickCount++
	e.lastTickOfDay = tick.Time
	e.day.ObservePrice(ltp)
	e.period.ObservePrice(ltp)

	e.tracker.observe(tick)

	if e.params.SingleTradePerDay && e.day.NumTrades == 1 && e.s.GrossExposure() == 0 {
		return false, marketClosing
	}
	return true, marketClosing
}

// findPeaksAndOrder turns a tracker signal into an order and, on success,
// commits the peak transition.
func (e *Engine) findPeaksAndOrder(ctx context.Context, marketClosing bool) bool {
	tick := *e.s.CurrTick
	dir, ok := e.tracker.signal(tick)
	if !ok {
		return false
	}
	if !e.tryPlaceOrder(ctx, dir, tick, marketClosing) {
		return false
	}
	e.lastPeak = e.tracker.commit(dir, tick)
	e.peakCount++
	return true
}

// postProcess persists the state blob and emits the throttled exposure
// alert. Persistence failures never abort in-memory processing, but they
// are not reported as success either.
func (e *Engine) postProcess() error {
	if e.params.IsReplay() {
		return nil
	}

	var saveErr error
	if err := e.s.Save(e.params.StateFile); err != nil {
		e.log.Error("engine state save failed", zap.String("path", e.params.StateFile), zap.Error(err))
		saveErr = fmt.Errorf("persist engine state: %w", err)
	}

	if e.s.TotalBuyTrades != e.s.TotalSellTrades && e.now().Sub(e.lastStateAlertTime) > positionAlertInterval {
		e.sendPositionAlert()
	}
	return saveErr
}

func (e *Engine) sendPositionAlert() {
	if len(e.s.OpenPositions) == 0 || e.s.CurrTick == nil {
		return
	}
	profitPerc := math.Round(e.squareOffProfitPerc()*100) / 100
	profitAmt := math.Round(profitPerc*float64(e.params.Qty)*e.s.CurrTick.Price()) / 100
	e.currProfitPerc = profitPerc
	e.lastStateAlertTime = e.now()

	pnl := "Profit"
	if profitPerc <= 0 {
		pnl = "Loss"
	}
	body := fmt.Sprintf("Contract: %s, %sAmt: %.2f, %sPerc: %.2f, CurrentPos: %s at %.2f. LTP: %.2f",
		e.params.Symbol, pnl, profitAmt, pnl, profitPerc,
		e.s.OpenPositions[0].Direction, e.s.OpenPositions[0].Price, e.s.CurrTick.Price())
	e.alerter.Send(fmt.Sprintf("%s:%.2f", pnl, profitAmt), body)
}

// squareOffProfitPerc is the nett profit percent if the open exposure were
// squared off at the current quote.
func (e *Engine) squareOffProfitPerc() float64 {
	isBuy := e.s.TotalBuyTrades < e.s.TotalSellTrades
	dir := broker.Sell
	orderPrice := e.s.CurrTick.Bid
	if isBuy {
		dir = broker.Buy
		orderPrice = e.s.CurrTick.Offer
	}
	paired := e.peekOpposite(dir)
	if paired == nil || orderPrice == 0 {
		return 0
	}
	profitPoints := orderPrice - paired.Price
	if isBuy {
		profitPoints = -profitPoints
	}
	brokerage := e.params.SquareOffBrokerageFactor * e.params.PercBrokerage * orderPrice / 100
	return (100 * (profitPoints - brokerage)) / orderPrice
}

// peekOpposite returns the most recent open leg opposite to dir without
// removing it.
func (e *Engine) peekOpposite(dir broker.Direction) *state.Order {
	for i := len(e.s.OpenPositions) - 1; i >= 0; i-- {
		if e.s.OpenPositions[i].Direction != dir {
			return &e.s.OpenPositions[i]
		}
	}
	return nil
}

// Pause stops tick processing between cycles. An in-flight order placement
// always runs to a terminal outcome first because the flag is only checked
// at cycle entry.
func (e *Engine) Pause(doAlert bool) {
	e.runState = Paused
	desc := fmt.Sprintf("Pause Algo: %s at %s", e.params.Symbol, e.now().Format(time.RFC1123))
	e.log.Info("pause", zap.String("symbol", e.params.Symbol))
	if doAlert {
		e.alerter.Send("Pause", desc)
	}
}

// Resume restarts tick processing.
func (e *Engine) Resume(doAlert bool) {
	e.runState = Running
	desc := fmt.Sprintf("Resume Algo: %s at %s", e.params.Symbol, e.now().Format(time.RFC1123))
	e.log.Info("resume", zap.String("symbol", e.params.Symbol))
	if doAlert {
		e.alerter.Send("Resume", desc)
	}
}

func (e *Engine) onReset(desc string, doAlert bool) {
	e.log.Info(desc, zap.String("symbol", e.params.Symbol))
	if doAlert {
		e.alerter.Send("Reset", desc)
	}
	_ = e.postProcess()
}

// ResetFull discards all engine state, stats and accumulators.
func (e *Engine) ResetFull(doAlert bool) {
	e.runState = NotStarted
	e.avgTradePriceSum = 0
	e.day = stats.NewDayStats(0)
	e.period = &stats.PeriodStats{}
	e.s = state.New(e.params.PercMarketDirectionChange)
	e.tracker.s = e.s
	e.stopForDay = false
	e.onReset("reset full", doAlert)
}

// ResetPositions clears exposure only; the peak direction survives.
func (e *Engine) ResetPositions(doAlert bool) {
	e.s.ResetPositions(e.params.PercMarketDirectionChange)
	e.onReset("reset positions", doAlert)
}

// ResetDirection clears exposure and the peak direction.
func (e *Engine) ResetDirection(doAlert bool) {
	e.s.ResetDirection(e.params.PercMarketDirectionChange)
	e.onReset("reset positions and direction", doAlert)
}

// ResetCore clears exposure, direction and reseeds the analysis window
// from the current tick.
func (e *Engine) ResetCore(doAlert bool) {
	e.s.ResetCore(e.params.PercMarketDirectionChange)
	e.onReset("reset core state", doAlert)
}
