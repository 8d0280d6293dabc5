package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/varun432/algotrader/internal/broker"
	"github.com/varun432/algotrader/internal/market"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-state.json")

	s := New(1.5)
	s.TotalBuyTrades = 3
	s.TotalSellTrades = 2
	s.OpenPositions = []Order{{Direction: broker.Buy, Price: 101.25, ExpectedPrice: 101.0, Ref: "ref-1"}}
	s.LastPeakKind = PeakBottom
	s.DayAnchor = time.Date(2015, 6, 1, 9, 30, 0, 0, time.UTC)
	s.IsFirstTickSeen = true
	s.IsEODWindupDone = true
	s.TotalTickCount = 1234
	s.TotalBrokerageAmount = 42.5
	s.PercChangeFromMax = -0.7
	tick := market.Tick{Time: s.DayAnchor, Bid: 100.9, Offer: 101.1, Last: 101, Seq: 9}
	s.MaxTick = &tick
	s.CurrTick = &tick

	if err := s.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.TotalBuyTrades != 3 || got.TotalSellTrades != 2 {
		t.Fatalf("trade counts = %d/%d, want 3/2", got.TotalBuyTrades, got.TotalSellTrades)
	}
	if len(got.OpenPositions) != 1 || got.OpenPositions[0] != s.OpenPositions[0] {
		t.Fatalf("open positions = %+v", got.OpenPositions)
	}
	if got.LastPeakKind != PeakBottom {
		t.Fatalf("peak kind = %v, want BOTTOM", got.LastPeakKind)
	}
	if !got.IsFirstTickSeen || !got.IsEODWindupDone {
		t.Fatalf("flags lost: %+v", got)
	}
	if got.PercChangeThreshold != 1.5 || got.PercChangeFromMax != -0.7 {
		t.Fatalf("thresholds lost: %+v", got)
	}
	if got.TotalTickCount != 1234 || got.TotalBrokerageAmount != 42.5 {
		t.Fatalf("counters lost: %+v", got)
	}
	if got.MaxTick == nil || got.MaxTick.Last != 101 || got.MaxTick.Seq != 9 {
		t.Fatalf("max tick lost: %+v", got.MaxTick)
	}
	if got.MinTick != nil {
		t.Fatalf("nil min tick must stay nil, got %+v", got.MinTick)
	}
}

func TestLoadRejectsUnknownSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-state.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 99}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected schema version error")
	}
}

func TestLoadMissingFileIsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestPairOppositeTakesMostRecent(t *testing.T) {
	s := New(1)
	s.OpenPositions = []Order{
		{Direction: broker.Sell, Price: 100},
		{Direction: broker.Sell, Price: 101},
	}

	paired := s.PairOpposite(broker.Buy)
	if paired == nil || paired.Price != 101 {
		t.Fatalf("paired = %+v, want the most recent sell at 101", paired)
	}
	if len(s.OpenPositions) != 1 || s.OpenPositions[0].Price != 100 {
		t.Fatalf("remaining positions = %+v", s.OpenPositions)
	}

	if got := s.PairOpposite(broker.Sell); got != nil {
		t.Fatalf("same-side pairing must return nil, got %+v", got)
	}
}

func TestPositionsFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.txt")
	orders := []Order{
		{Direction: broker.Buy, Price: 100.5},
		{Direction: broker.Sell, Price: 99.25},
	}
	if err := WritePositionsFile(path, orders); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadPositionsFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Direction != broker.Buy || got[0].Price != 100.5 {
		t.Fatalf("first record = %+v", got[0])
	}
	if got[1].Direction != broker.Sell || got[1].Price != 99.25 {
		t.Fatalf("second record = %+v", got[1])
	}
	// ExpectedPrice backfills from the booked price for seeded legs.
	if got[0].ExpectedPrice != 100.5 {
		t.Fatalf("expected price = %v, want 100.5", got[0].ExpectedPrice)
	}
}

func TestPositionsFileMalformedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.txt")
	if err := os.WriteFile(path, []byte("BUY:100.5\nGARBAGE\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := ReadPositionsFile(path)
	var malformed *MalformedPositionRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedPositionRecordError", err)
	}
	if malformed.Line != 2 || malformed.Text != "GARBAGE" {
		t.Fatalf("malformed = %+v", malformed)
	}
}

func TestPositionsFileLowercaseDirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.txt")
	if err := os.WriteFile(path, []byte("sell:250\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ReadPositionsFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Direction != broker.Sell || got[0].Price != 250 {
		t.Fatalf("got %+v", got)
	}
}
