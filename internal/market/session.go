package market

import "time"

// Session answers whether a timestamp has crossed the intraday cutoffs the
// engine cares about. It is a pure oracle so tests can simulate session
// boundaries without real time passing.
type Session interface {
	// AfterOpen reports whether the live quote stream has started.
	AfterOpen(t time.Time) bool
	// AfterSettle reports whether the post-open settling buffer has elapsed.
	AfterSettle(t time.Time) bool
	// AfterNoNewTrade reports whether the no-new-positions cutoff has passed.
	AfterNoNewTrade(t time.Time) bool
	// AfterClose reports whether the market-closing square-off window has begun.
	AfterClose(t time.Time) bool
}

// EquitySession is the default NSE-style intraday session:
// open 09:15, settle 09:20, no new trades 15:15, close 15:20.
// Comparisons use the wall-clock component of the tick timestamp.
type EquitySession struct {
	Open       ClockTime
	Settle     ClockTime
	NoNewTrade ClockTime
	Close      ClockTime
}

// ClockTime is a time of day, independent of date.
type ClockTime struct {
	Hour   int
	Minute int
}

// NewEquitySession returns the standard 09:15/09:20/15:15/15:20 session.
func NewEquitySession() EquitySession {
	return EquitySession{
		Open:       ClockTime{9, 15},
		Settle:     ClockTime{9, 20},
		NoNewTrade: ClockTime{15, 15},
		Close:      ClockTime{15, 20},
	}
}

func (s EquitySession) AfterOpen(t time.Time) bool       { return atOrAfter(t, s.Open) }
func (s EquitySession) AfterSettle(t time.Time) bool     { return atOrAfter(t, s.Settle) }
func (s EquitySession) AfterNoNewTrade(t time.Time) bool { return atOrAfter(t, s.NoNewTrade) }
func (s EquitySession) AfterClose(t time.Time) bool      { return atOrAfter(t, s.Close) }

func atOrAfter(t time.Time, c ClockTime) bool {
	h, m := t.Hour(), t.Minute()
	if h != c.Hour {
		return h > c.Hour
	}
	return m >= c.Minute
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
