package broker

import (
	"context"
	"strings"
	"time"

	"github.com/varun432/algotrader/internal/market"
)

// Direction is the side of an order or position.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// ParseDirection maps a case-insensitive token to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Buy):
		return Buy, true
	case string(Sell):
		return Sell, true
	}
	return "", false
}

// Status is the broker-reported state of a submitted order.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusExecuted  Status = "EXECUTED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether the status ends the polling loop.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// PriceType is how the broker interprets the order price.
type PriceType string

const (
	PriceLimit  PriceType = "LIMIT"
	PriceMarket PriceType = "MARKET"
)

// TimeInForce is the order goodness type.
type TimeInForce string

const (
	IOC TimeInForce = "IOC"
	Day TimeInForce = "DAY"
)

// FillPriceUnavailable is the sentinel returned by FillPrice when the
// broker has not reported an execution price yet.
const FillPriceUnavailable = -1

// Window bounds a broker-side order/trade lookup.
type Window struct {
	From time.Time
	To   time.Time
}

// OrderRequest describes one order submission.
type OrderRequest struct {
	Symbol         string
	Qty            int
	Price          float64
	PriceType      PriceType
	Direction      Direction
	InstrumentType string
	Strike         float64
	Expiry         time.Time
	TimeInForce    TimeInForce
}

// Brokerage is the order-management collaborator. Implementations surface
// failures through the typed errors in errors.go; a nil error is success.
type Brokerage interface {
	// PlaceOrder submits an order and returns the broker reference token.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	// OrderStatus fetches the current status of a previously placed order.
	OrderStatus(ctx context.Context, ref, instrumentType string, window Window) (Status, error)
	// FillPrice fetches the actual execution price, or FillPriceUnavailable
	// when the broker has not published it yet.
	FillPrice(ctx context.Context, window Window, instrumentType, ref string) (float64, error)
	// Quote fetches the current market quote for the instrument.
	Quote(ctx context.Context, symbol, instrumentType string, expiry time.Time) (market.Tick, error)
	// LoginIfNeeded establishes a session; force discards any cached one.
	LoginIfNeeded(ctx context.Context, force bool) error
	// Logout tears down the session. Best effort.
	Logout(ctx context.Context)
}
