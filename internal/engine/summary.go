package engine

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/state"
)

// Epilog closes the run: writes the open positions back for the next
// session, finalizes the period stats, journals them and logs the run
// summary. The engine accepts no ticks afterwards.
func (e *Engine) Epilog(ctx context.Context) error {
	e.runState = Finished

	avgTradePrice := 0.0
	if e.s.TotalTickCount > 0 {
		avgTradePrice = e.avgTradePriceSum / float64(e.s.TotalTickCount)
	}

	// Reference price for the what-if square-off of whatever is still open.
	ltp := e.ltp
	if ltp == 0 {
		if avgTradePrice != 0 {
			ltp = avgTradePrice
		} else {
			ltp = 1
		}
	}

	var persistErr error
	if !e.params.IsReplay() {
		if err := state.WritePositionsFile(e.params.PositionsFile, e.s.OpenPositions); err != nil {
			e.log.Error("positions file write failed",
				zap.String("path", e.params.PositionsFile), zap.Error(err))
			persistErr = err
		}
	}

	qty := float64(e.params.Qty)

	var avgBuyPrice, avgSellPrice float64
	buyPos, sellPos := 0, 0
	for _, o := range e.s.OpenPositions {
		switch o.Direction {
		case broker.Buy:
			avgBuyPrice += o.Price
			buyPos++
		case broker.Sell:
			avgSellPrice += o.Price
			sellPos++
		}
	}
	if buyPos > 0 {
		avgBuyPrice /= float64(buyPos)
	}
	if sellPos > 0 {
		avgSellPrice /= float64(sellPos)
	}

	// Pairable open legs net against each other; the unpaired remainder is
	// marked to the reference price.
	paired := min(buyPos, sellPos)
	buyPos -= paired
	sellPos -= paired

	nettOpenPoints := (avgSellPrice - avgBuyPrice) * float64(paired)
	if buyPos > sellPos {
		nettOpenPoints += (ltp - avgBuyPrice) * float64(buyPos)
	} else {
		nettOpenPoints += (avgSellPrice - ltp) * float64(sellPos)
	}
	openPosBrokeragePoints := (e.params.PercBrokerage / 100) * ltp *
		(e.params.SquareOffBrokerageFactor*float64(paired) + math.Abs(float64(buyPos-sellPos)))
	openPosBrokerageAmt := openPosBrokeragePoints * qty
	nettOpenPoints -= openPosBrokeragePoints
	nettOpenAmt := nettOpenPoints * qty

	nettFruit := e.totalActualNett + nettOpenAmt
	expectedNettFruit := e.totalExpectedNett + nettOpenAmt
	nettFruitWithoutBrokerage := e.totalActualNett + e.s.TotalBrokerageAmount + nettOpenAmt + openPosBrokerageAmt

	marginPositions := max(e.params.MaxLongPositions, e.params.MaxShortPositions)
	moneyInvested := qty * float64(marginPositions) * ltp * e.params.MarginFraction

	numMonths := e.lastTickOfPeriod.Sub(e.firstTickOfPeriod).Hours() / (24 * 30)
	if numMonths == 0 {
		numMonths = 1
	}

	// Without market-closing square-offs there are no day windups, so the
	// tick and in-market totals are estimated from the calendar span.
	if !e.params.MarketClosingSquareOff {
		e.period.NumTicks = int(e.s.TotalTickCount)
		calendarDays := e.lastTickOfPeriod.Sub(e.firstTickOfPeriod).Hours() / 24
		e.period.NumDays = int(calendarDays * 0.7)
		e.period.InMarketMinutes = int(float64(e.period.NumDays) * 60 * 5.5)
	}

	e.period.FinalizePeriod(e.firstTickOfPeriod, e.lastTickOfPeriod, e.params.Symbol,
		e.s.TotalBuyTrades, e.s.TotalSellTrades, e.params.Qty,
		avgTradePrice, e.params.MarginFraction, e.params.PercMarketDirectionChange)

	snapshot := *e.period
	e.journal.Append(Record{
		Kind:   recordEOP,
		Symbol: e.params.Symbol,
		Period: &snapshot,
	})

	dailyNett := make([]float64, 0, len(e.dailyNett))
	for _, d := range e.dailyNett {
		dailyNett = append(dailyNett, d.Nett)
	}
	dailyExpectedNett := make([]float64, 0, len(e.dailyExpectedNett))
	for _, d := range e.dailyExpectedNett {
		dailyExpectedNett = append(dailyExpectedNett, d.Nett)
	}

	e.log.Info("run summary",
		zap.String("symbol", e.params.Symbol),
		zap.Bool("market_closing_square_off", e.params.MarketClosingSquareOff),
		zap.Float64("direction_change_threshold", e.params.PercMarketDirectionChange),
		zap.Float64("brokerage_rate", e.params.PercBrokerage),
		zap.Int("buy_trades", e.s.TotalBuyTrades),
		zap.Int("sell_trades", e.s.TotalSellTrades),
		zap.Int("profitable_trades", e.profitableTrades),
		zap.Int("nett_profitable_trades", e.nettProfitableTrades),
		zap.Int("loss_trades", e.lossTrades),
		zap.Int("failed_orders", e.failedOrders),
		zap.Int("limit_shortages", e.limitShortages),
		zap.Int("peaks", e.peakCount),
		zap.Float64("booked_nett", e.totalActualNett),
		zap.Float64("open_positions_nett", nettOpenAmt),
		zap.Float64("nett_fruit", nettFruit),
		zap.Float64("nett_fruit_without_brokerage", nettFruitWithoutBrokerage),
		zap.Float64("expected_nett_fruit", expectedNettFruit),
		zap.Float64("total_brokerage", e.s.TotalBrokerageAmount+openPosBrokerageAmt),
		zap.Float64("total_turnover", e.totalTurnover),
		zap.Float64("ltp", ltp),
		zap.Float64("average_trade_price", avgTradePrice),
		zap.Float64("money_invested", moneyInvested),
		zap.Float64("expected_roi_perc", safeDiv(100*expectedNettFruit, moneyInvested)),
		zap.Float64("actual_roi_perc", safeDiv(100*nettFruit, moneyInvested)),
		zap.Float64("actual_roi_perc_per_month", safeDiv(100*nettFruit, moneyInvested)/numMonths),
		zap.Float64s("daily_nett", dailyNett),
		zap.Float64s("daily_expected_nett", dailyExpectedNett))

	return persistErr
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
