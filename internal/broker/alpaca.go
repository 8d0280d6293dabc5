package broker

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/market"
)

// Alpaca adapts the Alpaca trading API to the Brokerage interface. The
// session is key-based, so LoginIfNeeded only verifies the credentials are
// still accepted; there is no logout round-trip to make.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
	log     *zap.Logger
}

var _ Brokerage = (*Alpaca)(nil)

func NewAlpaca(apiKey, apiSecret, baseURL string, log *zap.Logger) *Alpaca {
	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		log: log,
	}
}

func (a *Alpaca) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	qty := decimal.NewFromInt(int64(req.Qty))
	limitPrice := decimal.NewFromFloat(req.Price)

	side := alpaca.Buy
	if req.Direction == Sell {
		side = alpaca.Sell
	}
	orderType := alpaca.Limit
	if req.PriceType == PriceMarket {
		orderType = alpaca.Market
	}
	tif := alpaca.IOC
	if req.TimeInForce == Day {
		tif = alpaca.Day
	}

	orderReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        orderType,
		TimeInForce: tif,
	}
	if orderType == alpaca.Limit {
		orderReq.LimitPrice = &limitPrice
	}

	order, err := a.trading.PlaceOrder(orderReq)
	if err != nil {
		a.log.Error("place order failed",
			zap.String("symbol", req.Symbol),
			zap.String("direction", string(req.Direction)),
			zap.Int("qty", req.Qty),
			zap.Float64("price", req.Price),
			zap.Error(err))
		return "", &TransientError{Kind: "place order", Err: err}
	}
	a.log.Info("order submitted",
		zap.String("order_id", order.ID),
		zap.String("symbol", req.Symbol),
		zap.String("direction", string(req.Direction)),
		zap.Int("qty", req.Qty),
		zap.Float64("price", req.Price),
		zap.String("status", string(order.Status)))
	return order.ID, nil
}

func (a *Alpaca) OrderStatus(_ context.Context, ref, _ string, _ Window) (Status, error) {
	order, err := a.trading.GetOrder(ref)
	if err != nil {
		return "", &TransientError{Kind: "order status", Err: err}
	}
	return mapAlpacaStatus(string(order.Status)), nil
}

func (a *Alpaca) FillPrice(_ context.Context, _ Window, _, ref string) (float64, error) {
	order, err := a.trading.GetOrder(ref)
	if err != nil {
		return FillPriceUnavailable, &TransientError{Kind: "fill price", Err: err}
	}
	if order.FilledAvgPrice == nil {
		return FillPriceUnavailable, nil
	}
	px, _ := order.FilledAvgPrice.Float64()
	return px, nil
}

func (a *Alpaca) Quote(_ context.Context, symbol, _ string, _ time.Time) (market.Tick, error) {
	quote, err := a.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return market.Tick{}, &TransientError{Kind: "quote", Err: err}
	}
	trade, err := a.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return market.Tick{}, &TransientError{Kind: "last trade", Err: err}
	}
	return market.Tick{
		Time:      quote.Timestamp,
		Bid:       quote.BidPrice,
		Offer:     quote.AskPrice,
		Last:      trade.Price,
		BidSize:   int(quote.BidSize),
		OfferSize: int(quote.AskSize),
		Volume:    int(trade.Size),
	}, nil
}

func (a *Alpaca) LoginIfNeeded(_ context.Context, _ bool) error {
	if _, err := a.trading.GetAccount(); err != nil {
		return &TransientError{Kind: "login check", Err: err}
	}
	return nil
}

func (a *Alpaca) Logout(_ context.Context) {}

func mapAlpacaStatus(s string) Status {
	switch s {
	case "filled":
		return StatusExecuted
	case "rejected":
		return StatusRejected
	case "canceled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return StatusQueued
	}
}
