// Package state holds the single unit of persisted engine state and its
// durable on-disk formats. The on-disk formats are interfaces, not
// implementation details: operational recovery depends on them.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
)

// SchemaVersion is bumped on any incompatible EngineState field change.
const SchemaVersion = 1

// PeakKind is the last confirmed extremum kind.
type PeakKind string

const (
	PeakNone   PeakKind = "NONE"
	PeakTop    PeakKind = "TOP"
	PeakBottom PeakKind = "BOTTOM"
)

// Order is one executed leg. Immutable after the fill; removed from
// OpenPositions when paired against an opposite leg.
type Order struct {
	Direction     broker.Direction `json:"direction"`
	Price         float64          `json:"price"`
	ExpectedPrice float64          `json:"expected_price"`
	Ref           string           `json:"ref"`
}

// EngineState is exclusively owned by one engine instance for one
// instrument. It is the only data serialized to durable storage and the
// only data reloaded on restart.
type EngineState struct {
	SchemaVersion int `json:"schema_version"`

	TotalBuyTrades  int     `json:"total_buy_trades"`
	TotalSellTrades int     `json:"total_sell_trades"`
	OpenPositions   []Order `json:"open_positions"`

	MinTick  *market.Tick `json:"min_tick,omitempty"`
	MaxTick  *market.Tick `json:"max_tick,omitempty"`
	CurrTick *market.Tick `json:"curr_tick,omitempty"`
	PrevTick *market.Tick `json:"prev_tick,omitempty"`

	LastPeakKind PeakKind  `json:"last_peak_kind"`
	DayAnchor    time.Time `json:"day_anchor"`

	IsFirstTickSeen bool `json:"is_first_tick_seen"`
	IsNextDay       bool `json:"is_next_day"`
	IsEODWindupDone bool `json:"is_eod_windup_done"`

	PercChangeThreshold float64 `json:"percent_change_threshold"`
	PercChangeFromMax   float64 `json:"percent_change_from_max"`
	PercChangeFromMin   float64 `json:"percent_change_from_min"`

	TotalTickCount       int64   `json:"total_tick_count"`
	TotalBrokerageAmount float64 `json:"total_brokerage_amount"`
}

// New returns a fresh state with the live trigger threshold seeded from
// the configured default.
func New(percChangeThreshold float64) *EngineState {
	return &EngineState{
		SchemaVersion:       SchemaVersion,
		LastPeakKind:        PeakNone,
		PercChangeThreshold: percChangeThreshold,
	}
}

// NetExposure is buy-trade count minus sell-trade count.
func (s *EngineState) NetExposure() int { return s.TotalBuyTrades - s.TotalSellTrades }

// GrossExposure is the absolute net exposure; it always equals
// len(OpenPositions) after a completed tick cycle.
func (s *EngineState) GrossExposure() int {
	n := s.NetExposure()
	if n < 0 {
		n = -n
	}
	return n
}

// PairOpposite removes and returns the most recent open leg opposite to
// dir, or nil when there is none.
func (s *EngineState) PairOpposite(dir broker.Direction) *Order {
	for i := len(s.OpenPositions) - 1; i >= 0; i-- {
		if s.OpenPositions[i].Direction != dir {
			paired := s.OpenPositions[i]
			s.OpenPositions = append(s.OpenPositions[:i], s.OpenPositions[i+1:]...)
			return &paired
		}
	}
	return nil
}

// ResetPositions clears exposure but keeps the peak direction. Operators
// use this to flatten book-keeping after manual intervention.
func (s *EngineState) ResetPositions(percChangeThreshold float64) {
	s.TotalBuyTrades = 0
	s.TotalSellTrades = 0
	s.OpenPositions = nil
	s.PercChangeThreshold = percChangeThreshold
}

// ResetDirection clears exposure and forgets the peak direction.
func (s *EngineState) ResetDirection(percChangeThreshold float64) {
	s.ResetPositions(percChangeThreshold)
	s.LastPeakKind = PeakNone
}

// ResetCore additionally reseeds the analysis window from the current tick.
func (s *EngineState) ResetCore(percChangeThreshold float64) {
	s.ResetDirection(percChangeThreshold)
	s.MinTick = s.CurrTick
	s.MaxTick = s.CurrTick
}

// Save writes the state blob atomically so a crash mid-write never leaves
// a corrupt file.
func (s *EngineState) Save(path string) error {
	s.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal engine state: %w", err)
	}
	// best-effort .bak of the new image
	_ = os.WriteFile(path+".bak", data, 0o600)
	return writeFileAtomic(path, data, 0o600)
}

// Load reads a previously saved state blob. A missing file is an error the
// caller treats as "start fresh".
func Load(path string) (*EngineState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s EngineState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal engine state: %w", err)
	}
	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("engine state %s: unsupported schema version %d", path, s.SchemaVersion)
	}
	return &s, nil
}
