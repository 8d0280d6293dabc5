// Package stats accumulates end-of-day and end-of-period trade statistics.
// DayStats resets at each day boundary; PeriodStats spans the whole run.
package stats

import "time"

// DayStats is one trading day's accumulator. AverageProfitPerTrade and
// AverageLossPerTrade hold running sums until FinalizeDay divides them.
type DayStats struct {
	TradeDate         time.Time `json:"trade_date"`
	Symbol            string    `json:"contract_name"`
	NumTrades         int       `json:"num_trades"`
	NumProfitTrades   int       `json:"num_profit_trades"`
	NumLossTrades     int       `json:"num_loss_trades"`
	AvgProfitPerTrade float64   `json:"average_profit_pertrade"`
	AvgLossPerTrade   float64   `json:"average_loss_pertrade"`
	MinPrice          float64   `json:"min_price"`
	MaxPrice          float64   `json:"max_price"`
	Brokerage         float64   `json:"brokerage"`
	ActualProfit      float64   `json:"actual_profit"`
	ExpectedProfit    float64   `json:"expected_profit"`
	NumTicks          int       `json:"number_of_ticks"`
	InMarketMinutes   int       `json:"inmarket_time_in_minutes"`
	ROIPercentage     float64   `json:"roi_percentage"`
	ActualROIPct      float64   `json:"actual_roi_percentage"`
	DirectionPct      float64   `json:"market_direction_percentage"`
	Quantity          int       `json:"quantity"`
	StatusUpdateTime  time.Time `json:"status_update_time"`
}

// PeriodStats accumulates across the whole run; never reset except by an
// explicit full reset.
type PeriodStats struct {
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	Symbol            string    `json:"contract_name"`
	NumTrades         int       `json:"num_trades"`
	NumProfitTrades   int       `json:"num_profit_trades"`
	NumLossTrades     int       `json:"num_loss_trades"`
	AvgProfitPerTrade float64   `json:"average_profit_pertrade"`
	AvgLossPerTrade   float64   `json:"average_loss_pertrade"`
	MinPrice          float64   `json:"min_price"`
	MaxPrice          float64   `json:"max_price"`
	Brokerage         float64   `json:"brokerage"`
	ActualProfit      float64   `json:"actual_profit"`
	ExpectedProfit    float64   `json:"expected_profit"`
	NumTicks          int       `json:"number_of_ticks"`
	InMarketMinutes   int       `json:"inmarket_time_in_minutes"`
	NumDays           int       `json:"num_days"`
	AvgTradePrice     float64   `json:"average_trade_price"`
	ROIPercentage     float64   `json:"roi_percentage"`
	ActualROIPct      float64   `json:"actual_roi_percentage"`
	DirectionPct      float64   `json:"market_direction_percentage"`
	Quantity          int       `json:"quantity"`
	StatusUpdateTime  time.Time `json:"status_update_time"`
}

// NewDayStats seeds a fresh day with the first analyzed price.
func NewDayStats(ltp float64) *DayStats {
	return &DayStats{MinPrice: ltp, MaxPrice: ltp}
}

// ObservePrice keeps the day's min/max price current.
func (d *DayStats) ObservePrice(ltp float64) {
	if ltp < d.MinPrice {
		d.MinPrice = ltp
	} else if ltp > d.MaxPrice {
		d.MaxPrice = ltp
	}
}

// RecordRoundTrip books one squared-off trade's nett (after brokerage) and
// expected profit into the day buckets.
func (d *DayStats) RecordRoundTrip(nett, expected, brokerage float64) {
	d.ActualProfit += nett
	d.ExpectedProfit += expected
	d.Brokerage += brokerage
	if nett < 0 {
		d.AvgLossPerTrade += nett
		d.NumLossTrades++
	} else if nett > 0 {
		d.AvgProfitPerTrade += nett
		d.NumProfitTrades++
	}
}

// FinalizeDay turns the running sums into averages and computes ROI.
// prevClose is the reference price for the day; marginFraction grosses up
// the return on the margin actually deployed.
func (d *DayStats) FinalizeDay(tradeDate time.Time, symbol string, prevClose float64, qty int, marginFraction, directionPct float64) {
	d.TradeDate = tradeDate
	d.Symbol = symbol
	d.Quantity = qty
	d.DirectionPct = directionPct
	d.StatusUpdateTime = time.Now()

	if d.NumProfitTrades > 0 {
		d.AvgProfitPerTrade /= float64(d.NumProfitTrades)
	} else {
		d.AvgProfitPerTrade = 0
	}
	if d.NumLossTrades > 0 {
		d.AvgLossPerTrade /= float64(d.NumLossTrades)
	} else {
		d.AvgLossPerTrade = 0
	}

	if prevClose > 0 && qty > 0 && marginFraction > 0 {
		base := prevClose * float64(qty)
		d.ROIPercentage = (d.ExpectedProfit / base) * 100 * (1 / marginFraction)
		d.ActualROIPct = (d.ActualProfit / base) * 100 * (1 / marginFraction)
	}
}

// ObservePrice keeps the period's min/max price current.
func (p *PeriodStats) ObservePrice(ltp float64) {
	if ltp < p.MinPrice {
		p.MinPrice = ltp
	} else if ltp > p.MaxPrice {
		p.MaxPrice = ltp
	}
}

// RecordRoundTrip mirrors the day bookkeeping at period scope.
func (p *PeriodStats) RecordRoundTrip(nett, expected, brokerage float64) {
	p.ActualProfit += nett
	p.ExpectedProfit += expected
	p.Brokerage += brokerage
	if nett < 0 {
		p.AvgLossPerTrade += nett
		p.NumLossTrades++
	} else if nett > 0 {
		p.AvgProfitPerTrade += nett
		p.NumProfitTrades++
	}
}

// FoldDay rolls a closed day's ticks and in-market time into the period.
func (p *PeriodStats) FoldDay(d *DayStats) {
	p.NumTicks += d.NumTicks
	p.InMarketMinutes += d.InMarketMinutes
	p.NumDays++
}

// FinalizePeriod computes the period averages and ROI at Epilog time.
// avgTradePrice is the mean analyzed price over the run; buyTrades and
// sellTrades bound the number of completed round trips.
func (p *PeriodStats) FinalizePeriod(start, end time.Time, symbol string, buyTrades, sellTrades, qty int, avgTradePrice, marginFraction, directionPct float64) {
	p.StartDate = start
	p.EndDate = end
	p.Symbol = symbol
	p.Quantity = qty
	p.DirectionPct = directionPct
	p.AvgTradePrice = avgTradePrice
	p.StatusUpdateTime = time.Now()

	// A trailing open leg may never square off; count full round trips only.
	p.NumTrades = min(buyTrades, sellTrades)

	if p.NumProfitTrades > 0 {
		p.AvgProfitPerTrade /= float64(p.NumProfitTrades)
	} else {
		p.AvgProfitPerTrade = 0
	}
	if p.NumLossTrades > 0 {
		p.AvgLossPerTrade /= float64(p.NumLossTrades)
	} else {
		p.AvgLossPerTrade = 0
	}

	base := avgTradePrice
	if base == 0 {
		base = 1
	}
	if qty > 0 && marginFraction > 0 {
		p.ROIPercentage = ((p.ExpectedProfit * 100) / (base * float64(qty))) * (1 / marginFraction)
		p.ActualROIPct = ((p.ActualProfit * 100) / (base * float64(qty))) * (1 / marginFraction)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
