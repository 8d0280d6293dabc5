package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/risk"
	"github.com/varun432/algotrader/internal/state"
)

const (
	// statusPollInterval is the fixed wait between order-status polls.
	// Changing it changes fill-price staleness behavior.
	statusPollInterval = 5 * time.Second

	// maxSpreadDeviationPerc rejects orders whose quote deviates adversely
	// from the last traded price by more than this percent.
	maxSpreadDeviationPerc = 0.06

	// fillPriceRetries bounds the actual-fill-price fetch after execution.
	fillPriceRetries = 3

	// maxReloginAttempts bounds the not-logged-in recovery within one tick.
	maxReloginAttempts = 3
)

// tryPlaceOrder runs the whole trade decision for one signal: risk gate,
// order placement, and post-fill bookkeeping. Returns true only when an
// order executed.
func (e *Engine) tryPlaceOrder(ctx context.Context, dir broker.Direction, tick market.Tick, marketClosing bool) bool {
	dec := e.limiter.Allow(risk.Request{
		Direction:     dir,
		BuyTrades:     e.s.TotalBuyTrades,
		SellTrades:    e.s.TotalSellTrades,
		Price:         tick.Price(),
		Qty:           e.params.Qty,
		DayTrades:     e.day.NumTrades,
		DayRealized:   e.day.ActualProfit,
		DayLossTrades: e.day.NumLossTrades,
		DayMinPrice:   e.day.MinPrice,
	})
	if dec.StopForDay && !e.stopForDay {
		e.stopForDay = true
		e.log.Warn("stopping new trades for the day",
			zap.String("symbol", e.params.Symbol),
			zap.Float64("day_loss", e.day.ActualProfit),
			zap.Int("num_trades", e.day.NumTrades),
			zap.Int("num_profit_trades", e.day.NumProfitTrades),
			zap.Int("num_loss_trades", e.day.NumLossTrades))
	}
	if e.stopForDay && dec.Verdict == risk.AllowNewPosition {
		dec = risk.Decision{Verdict: risk.Reject, Reason: "stopped for the day"}
	}
	if dec.Verdict == risk.Reject {
		if dec.Reason == "position limit reached" {
			e.limitShortages++
			e.log.Info("not sufficient limit to place order", zap.Int("occurrence", e.limitShortages))
		}
		e.journal.Append(Record{
			Kind:      recordReject,
			Symbol:    e.params.Symbol,
			Direction: string(dir),
			Price:     tick.Price(),
			Reason:    dec.Reason,
		})
		return false
	}

	order, ok := e.placeOrder(ctx, dir, tick)
	if !ok {
		return false
	}

	switch order.Direction {
	case broker.Buy:
		e.s.TotalBuyTrades++
		e.day.NumTrades++
	case broker.Sell:
		e.s.TotalSellTrades++
	}
	e.totalTurnover += order.Price * float64(e.params.Qty)

	confirmation := fmt.Sprintf("Trade Confirmed %s %s at %.2f. Order Reference Number = %s",
		e.params.Symbol, order.Direction, order.Price, order.Ref)
	e.log.Info("trade confirmed",
		zap.String("symbol", e.params.Symbol),
		zap.String("direction", string(order.Direction)),
		zap.Float64("price", order.Price),
		zap.String("order_ref", order.Ref))

	order.ExpectedPrice = e.expectedOrderPrice(order, marketClosing)

	nett := 0.0
	if paired := e.s.PairOpposite(order.Direction); paired != nil {
		nett = e.bookRoundTrip(order, paired)
		confirmation += fmt.Sprintf("\nSquareOff: Profit Amount (after brokerage) = %.2f", nett)
	} else {
		e.s.OpenPositions = append(e.s.OpenPositions, *order)
	}

	e.journal.Append(Record{
		Kind:          recordFill,
		Timestamp:     tick.Time,
		Symbol:        e.params.Symbol,
		Direction:     string(order.Direction),
		Qty:           e.params.Qty,
		Price:         order.Price,
		ExpectedPrice: order.ExpectedPrice,
		OrderRef:      order.Ref,
		NettProfit:    nett,
	})

	if !e.params.IsMock() && !e.params.IsReplay() {
		e.alerter.Send("Trade Confirmed", e.params.Symbol+"\n"+confirmation)
	}
	return true
}

// expectedOrderPrice models the fill the signal would get under ideal
// conditions: the extremum price adjusted by the exact trigger threshold.
func (e *Engine) expectedOrderPrice(order *state.Order, marketClosing bool) float64 {
	if marketClosing || e.s.MinTick == nil || e.s.MaxTick == nil {
		return order.Price
	}
	isBuy := order.Direction == broker.Buy

	expectedTradePrice := e.s.MaxTick.Price()
	exactThreshold := 1 - e.s.PercChangeThreshold/100
	if isBuy {
		expectedTradePrice = e.s.MinTick.Price()
		exactThreshold = 1 + e.s.PercChangeThreshold/100
	}

	// On a fresh day the market may open far from the previous close, so
	// the ideal price is just the opening trade price.
	if e.s.IsNextDay && !e.params.MarketClosingSquareOff {
		exactThreshold = 1
		expectedTradePrice = e.s.CurrTick.Price()
	}
	return expectedTradePrice * exactThreshold
}

// bookRoundTrip pairs the fill against the removed opposite leg and books
// realized and expected P&L into the day and period stats. Returns the
// nett realized amount after brokerage.
func (e *Engine) bookRoundTrip(order, paired *state.Order) float64 {
	qty := float64(e.params.Qty)

	profit := (order.Price - paired.Price) * qty
	if order.Direction == broker.Buy {
		profit = -profit
	}
	if profit >= 0 {
		e.profitableTrades++
	}

	brokerage := e.params.SquareOffBrokerageFactor * e.params.PercBrokerage * qty * order.Price / 100
	nett := profit - brokerage
	if nett >= 0 {
		e.nettProfitableTrades++
	} else {
		e.lossTrades++
	}

	e.totalActualNett += nett
	e.s.TotalBrokerageAmount += brokerage

	expectedProfit := (order.ExpectedPrice - paired.ExpectedPrice) * qty
	if order.Direction == broker.Buy {
		expectedProfit = -expectedProfit
	}
	expectedNett := expectedProfit - brokerage
	e.totalExpectedNett += expectedNett

	e.day.RecordRoundTrip(nett, expectedNett, brokerage)
	e.period.RecordRoundTrip(nett, expectedNett, brokerage)

	e.log.Info("square off booked",
		zap.String("symbol", e.params.Symbol),
		zap.Float64("entry_price", paired.Price),
		zap.Float64("exit_price", order.Price),
		zap.Float64("brokerage", brokerage),
		zap.Float64("nett_profit", nett))
	return nett
}

// placeOrder submits one order and waits for a terminal outcome. In mock
// and replay modes it succeeds immediately at the intended price.
func (e *Engine) placeOrder(ctx context.Context, dir broker.Direction, tick market.Tick) (*state.Order, bool) {
	var orderPrice, diff float64
	switch dir {
	case broker.Buy:
		orderPrice = tick.Offer
		diff = tick.Last - orderPrice
	case broker.Sell:
		orderPrice = tick.Bid
		diff = orderPrice - tick.Last
	default:
		e.log.Error("invalid order direction", zap.String("direction", string(dir)))
		return nil, false
	}

	e.log.Info("placing order",
		zap.Time("tick_time", tick.Time),
		zap.String("symbol", e.params.Symbol),
		zap.String("direction", string(dir)),
		zap.Float64("order_price", orderPrice),
		zap.Int("qty", e.params.Qty))

	// An adverse quote far from the last traded price means a stale or
	// crossed book; do not submit into it.
	if tick.Last > 0 {
		diffPerc := diff * 100 / tick.Last
		if diff < 0 && math.Abs(diffPerc) > maxSpreadDeviationPerc {
			e.log.Warn("not ordering, adverse spread deviation",
				zap.String("symbol", e.params.Symbol),
				zap.Float64("ltp", tick.Last),
				zap.Float64("order_price", orderPrice),
				zap.Float64("spread_diff", diff),
				zap.Float64("diff_perc", diffPerc))
			return nil, false
		}
	}

	order := &state.Order{Direction: dir}

	if e.params.IsMock() || e.params.IsReplay() {
		order.Ref = "mock order"
		order.Price = orderPrice
		return order, true
	}

	adjusted := orderPrice + priceMargin(orderPrice, dir)
	relogins := 0
	for {
		ref, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
			Symbol:         e.params.Symbol,
			Qty:            e.params.Qty,
			Price:          adjusted,
			PriceType:      broker.PriceLimit,
			Direction:      dir,
			InstrumentType: e.params.InstrumentType,
			Strike:         e.params.StrikePrice,
			Expiry:         e.params.Expiry,
			TimeInForce:    broker.IOC,
		})
		if err == nil {
			order.Ref = ref
			break
		}
		if errors.Is(err, broker.ErrNotLoggedIn) && relogins < maxReloginAttempts {
			relogins++
			e.log.Warn("broker session stale, forcing re-login", zap.Int("attempt", relogins))
			e.broker.Logout(ctx)
			if lerr := e.broker.LoginIfNeeded(ctx, true); lerr != nil {
				e.log.Error("re-login failed", zap.Error(lerr))
			}
			continue
		}
		errMsg := fmt.Sprintf("ERROR in PlaceOrder. Contract %s, %s %d qty at %.2f: %v",
			e.params.Symbol, dir, e.params.Qty, adjusted, err)
		e.log.Error("place order failed",
			zap.String("symbol", e.params.Symbol),
			zap.String("direction", string(dir)),
			zap.Float64("price", adjusted),
			zap.Error(err))
		e.alerter.Send("Order Failed", errMsg)
		return nil, false
	}

	execPrice, executed := e.awaitExecution(ctx, order.Ref)
	if !executed {
		e.failedOrders++
		e.log.Warn("order not executed", zap.String("order_ref", order.Ref))
		return nil, false
	}
	if execPrice != broker.FillPriceUnavailable {
		order.Price = execPrice
	} else {
		order.Price = orderPrice
	}
	return order, true
}

// awaitExecution polls the order status on a fixed interval until a
// terminal state or a broker-classified fatal error. The poll has no
// engine-enforced deadline; cancellation comes from ctx or the broker.
func (e *Engine) awaitExecution(ctx context.Context, ref string) (float64, bool) {
	window := broker.Window{From: e.now(), To: e.now()}

	// The first poll waits a full interval after submission.
	select {
	case <-ctx.Done():
		return broker.FillPriceUnavailable, false
	case <-time.After(e.pollInterval):
	}

	var status broker.Status
	errPending := errors.New("order still pending")
	poll := func() error {
		st, err := e.broker.OrderStatus(ctx, ref, e.params.InstrumentType, window)
		if err != nil {
			if broker.IsFatal(err) {
				e.log.Error("order status poll aborted on fatal broker error",
					zap.String("order_ref", ref), zap.Error(err))
				return backoff.Permanent(err)
			}
			e.log.Warn("order status poll error", zap.String("order_ref", ref), zap.Error(err))
			return err
		}
		status = st
		if st.Terminal() {
			return nil
		}
		return errPending
	}
	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(e.pollInterval), ctx)); err != nil {
		return broker.FillPriceUnavailable, false
	}

	if status != broker.StatusExecuted {
		e.log.Warn("order reached terminal state without execution",
			zap.String("order_ref", ref), zap.String("status", string(status)))
		return broker.FillPriceUnavailable, false
	}

	execPrice := float64(broker.FillPriceUnavailable)
	for attempt := 0; attempt <= fillPriceRetries; attempt++ {
		px, err := e.broker.FillPrice(ctx, window, e.params.InstrumentType, ref)
		if err == nil && px != broker.FillPriceUnavailable {
			execPrice = px
			break
		}
	}
	return execPrice, true
}

// priceMargin is the defensive price improvement added in the favorable
// direction: ~0.01% of price snapped down to the 5-paise grid, floored at
// 0.05, and clamped back to 0.05 when it would exceed 0.02% of price.
func priceMargin(orderPrice float64, dir broker.Direction) float64 {
	price := decimal.NewFromFloat(orderPrice)
	margin := price.Mul(decimal.NewFromFloat(0.0001)).Round(2)

	rupees := margin.Floor()
	paise := margin.Sub(rupees).Mul(decimal.NewFromInt(100)).Round(0)
	snapped := paise.Sub(paise.Mod(decimal.NewFromInt(5)))
	margin = rupees.Add(snapped.Div(decimal.NewFromInt(100)))

	floor := decimal.NewFromFloat(0.05)
	if margin.LessThan(floor) {
		margin = floor
	}

	value, _ := margin.Float64()
	if math.Abs(value) > 0.05 && (math.Abs(value)*100)/orderPrice > 0.02 {
		value = 0.05
	}
	if dir == broker.Sell {
		value = -value
	}
	return value
}
