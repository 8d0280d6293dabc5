package risk

import (
	"math"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
)

// Verdict is the outcome of evaluating a position request. Rejections are
// normal decision outcomes, not errors.
type Verdict string

const (
	Reject           Verdict = "REJECT"
	AllowSquareOff   Verdict = "ALLOW_SQUARE_OFF"
	AllowNewPosition Verdict = "ALLOW_NEW_POSITION"
)

// Limits is the static risk configuration.
type Limits struct {
	MaxLongPositions  int
	MaxShortPositions int
	MaxTotalPositions int

	// SingleTradePerDay rejects a second round trip once the day has one
	// completed trade and exposure is flat.
	SingleTradePerDay bool

	// DailyLossLimit gates new positions on the day's realized loss.
	DailyLossLimit      bool
	PercPnLStopForDay   float64
	NumTradesStopForDay int
}

// Request carries the live exposure and day context for one decision.
type Request struct {
	Direction  broker.Direction
	BuyTrades  int
	SellTrades int
	Price      float64
	Qty        int

	DayTrades     int     // round trips completed today
	DayRealized   float64 // realized nett profit for the day (after brokerage)
	DayLossTrades int
	DayMinPrice   float64
}

// Decision is the limiter's answer. StopForDay is sticky: once set the
// engine stops taking new positions until the day rolls over.
type Decision struct {
	Verdict    Verdict
	Reason     string
	StopForDay bool
}

// Limiter is a pure decision function over Limits.
type Limiter struct {
	Limits Limits
	Log    *zap.Logger
}

// IsSquareOff reports whether a request in dir closes existing exposure:
// true when dir is opposite to the side with more open trades.
func IsSquareOff(dir broker.Direction, buyTrades, sellTrades int) bool {
	if buyTrades == sellTrades {
		return false
	}
	moreBuys := buyTrades > sellTrades
	return !((moreBuys && dir == broker.Buy) || (!moreBuys && dir == broker.Sell))
}

// Allow evaluates one position request against the configured limits.
func (l Limiter) Allow(req Request) Decision {
	netBuy := req.BuyTrades - req.SellTrades
	gross := abs(netBuy)

	if IsSquareOff(req.Direction, req.BuyTrades, req.SellTrades) {
		return Decision{Verdict: AllowSquareOff, Reason: "square off"}
	}

	if l.Limits.SingleTradePerDay && req.DayTrades >= 1 && gross == 0 {
		l.reject(req, "single trade per day done")
		return Decision{Verdict: Reject, Reason: "single trade per day done"}
	}

	if l.Limits.DailyLossLimit && req.DayRealized < 0 {
		lossPerc := 0.0
		if req.DayMinPrice > 0 && req.Qty > 0 {
			lossPerc = math.Abs(req.DayRealized * 100 / (req.DayMinPrice * float64(req.Qty)))
		}
		if lossPerc >= l.Limits.PercPnLStopForDay || req.DayLossTrades >= l.Limits.NumTradesStopForDay {
			l.reject(req, "daily loss limit hit")
			return Decision{Verdict: Reject, Reason: "daily loss limit hit", StopForDay: true}
		}
	}

	allowed := false
	switch req.Direction {
	case broker.Buy:
		allowed = netBuy < l.Limits.MaxLongPositions && gross < l.Limits.MaxTotalPositions
	case broker.Sell:
		allowed = -netBuy < l.Limits.MaxShortPositions && gross < l.Limits.MaxTotalPositions
	}
	if !allowed {
		l.reject(req, "position limit reached")
		return Decision{Verdict: Reject, Reason: "position limit reached"}
	}
	return Decision{Verdict: AllowNewPosition, Reason: "limit available"}
}

func (l Limiter) reject(req Request, reason string) {
	if l.Log == nil {
		return
	}
	l.Log.Info("risk rejected",
		zap.String("direction", string(req.Direction)),
		zap.String("reason", reason),
		zap.Int("buy_trades", req.BuyTrades),
		zap.Int("sell_trades", req.SellTrades),
		zap.Float64("price", req.Price),
		zap.Float64("day_realized", req.DayRealized),
		zap.Int("day_loss_trades", req.DayLossTrades))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
