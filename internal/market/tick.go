package market

import "time"

// Tick is one market quote snapshot. Immutable after creation; Seq is
// assigned by the feed and increases monotonically within a run.
type Tick struct {
	Time      time.Time `json:"time"`
	Bid       float64   `json:"bid"`
	Offer     float64   `json:"offer"`
	Last      float64   `json:"last"`
	BidSize   int       `json:"bid_size"`
	OfferSize int       `json:"offer_size"`
	Volume    int       `json:"volume"`
	Seq       int64     `json:"seq"`
}

// Price returns the price used for analysis: the last-traded price.
func (t Tick) Price() float64 {
	return t.Last
}

// IsZero reports whether the tick is the zero value (no quote seen yet).
func (t Tick) IsZero() bool {
	return t.Time.IsZero() && t.Last == 0
}
