package engine

import (
	"math"

	"go.uber.org/zap"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
	"github.com/varun432/algotrader/internal/state"
)

// peakTracker maintains the running min/max reference ticks of the active
// analysis window and the peak state machine that turns extremum crossings
// into trade signals. It mutates the EngineState it wraps; a signal becomes
// a transition only when the engine Commits it after a successful order.
type peakTracker struct {
	s   *state.EngineState
	log *zap.Logger

	discontinuousMax int
	discontinuousMin int
}

// observe updates the window extrema and the percent distances from them.
func (t *peakTracker) observe(tick market.Tick) {
	s := t.s
	if s.MaxTick == nil || s.MinTick == nil {
		cp := tick
		s.MaxTick, s.MinTick = &cp, &cp
	}
	maxPrice := s.MaxTick.Price()
	minPrice := s.MinTick.Price()
	if maxPrice <= 0 || minPrice <= 0 {
		cp := tick
		s.MaxTick, s.MinTick = &cp, &cp
		s.PercChangeFromMax, s.PercChangeFromMin = 0, 0
		return
	}

	s.PercChangeFromMax = 100 * (tick.Price() - maxPrice) / maxPrice
	s.PercChangeFromMin = 100 * (tick.Price() - minPrice) / minPrice

	if s.PercChangeFromMax >= 0 {
		cp := tick
		s.MaxTick = &cp
	} else if s.PercChangeFromMin <= 0 {
		cp := tick
		s.MinTick = &cp
	}
}

// signal evaluates the peak state machine against the observed distances
// and returns the trade direction that should fire, if any.
func (t *peakTracker) signal(tick market.Tick) (broker.Direction, bool) {
	s := t.s
	threshold := s.PercChangeThreshold

	switch s.LastPeakKind {
	case state.PeakBottom:
		// Only a top can form next.
		if s.PercChangeFromMax < 0 && math.Abs(s.PercChangeFromMax) >= threshold {
			t.noteDiscontinuityFromMax(tick, threshold)
			return broker.Sell, true
		}
	case state.PeakTop:
		if s.PercChangeFromMin > 0 && math.Abs(s.PercChangeFromMin) >= threshold {
			t.noteDiscontinuityFromMin(tick, threshold)
			return broker.Buy, true
		}
	case state.PeakNone:
		isBuy := s.PercChangeFromMin > 0 && math.Abs(s.PercChangeFromMin) >= threshold
		isSell := s.PercChangeFromMax < 0 && math.Abs(s.PercChangeFromMax) >= threshold
		if isBuy && isSell {
			// Data anomaly: both sides crossed at once. Pick the larger
			// magnitude and carry on.
			t.log.Warn("first peak fired both buy and sell, taking larger magnitude",
				zap.Float64("pct_from_min", s.PercChangeFromMin),
				zap.Float64("pct_from_max", s.PercChangeFromMax))
			isBuy = math.Abs(s.PercChangeFromMin) > math.Abs(s.PercChangeFromMax)
			isSell = !isBuy
		}
		if isBuy {
			return broker.Buy, true
		}
		if isSell {
			return broker.Sell, true
		}
	}
	return "", false
}

// commit performs the state transition for a signal whose order executed,
// returning the realized peak tick and reseeding the opposite extremum.
func (t *peakTracker) commit(dir broker.Direction, tick market.Tick) *market.Tick {
	s := t.s
	cp := tick
	var peak *market.Tick
	switch s.LastPeakKind {
	case state.PeakBottom:
		s.LastPeakKind = state.PeakTop
		peak = s.MaxTick
		s.MinTick = &cp
	case state.PeakTop:
		s.LastPeakKind = state.PeakBottom
		peak = s.MinTick
		s.MaxTick = &cp
	case state.PeakNone:
		// First peak is the reverse of the fired direction.
		if dir == broker.Buy {
			s.LastPeakKind = state.PeakBottom
			peak = s.MinTick
		} else {
			s.LastPeakKind = state.PeakTop
			peak = s.MaxTick
		}
	}
	return peak
}

func (t *peakTracker) noteDiscontinuityFromMax(tick market.Tick, threshold float64) {
	if math.Abs(t.s.PercChangeFromMax)-threshold > 1 {
		t.discontinuousMax++
		t.log.Warn("price tick non-continuous",
			zap.Time("tick_time", tick.Time),
			zap.Int("occurrence", t.discontinuousMax),
			zap.Float64("threshold", threshold),
			zap.Float64("pct_from_max", t.s.PercChangeFromMax))
	}
}

func (t *peakTracker) noteDiscontinuityFromMin(tick market.Tick, threshold float64) {
	if math.Abs(t.s.PercChangeFromMin)-threshold > 1 {
		t.discontinuousMin++
		t.log.Warn("price tick non-continuous",
			zap.Time("tick_time", tick.Time),
			zap.Int("occurrence", t.discontinuousMin),
			zap.Float64("threshold", threshold),
			zap.Float64("pct_from_min", t.s.PercChangeFromMin))
	}
}
