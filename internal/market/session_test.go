package market

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2015, 6, 1, hour, min, 30, 0, time.UTC)
}

func TestEquitySessionCutoffs(t *testing.T) {
	s := NewEquitySession()

	cases := []struct {
		h, m                              int
		open, settle, noNewTrade, closing bool
	}{
		{9, 14, false, false, false, false},
		{9, 15, true, false, false, false},
		{9, 19, true, false, false, false},
		{9, 20, true, true, false, false},
		{12, 0, true, true, false, false},
		{15, 14, true, true, false, false},
		{15, 15, true, true, true, false},
		{15, 19, true, true, true, false},
		{15, 20, true, true, true, true},
		{15, 45, true, true, true, true},
	}
	for _, tc := range cases {
		ts := at(tc.h, tc.m)
		if got := s.AfterOpen(ts); got != tc.open {
			t.Fatalf("%02d:%02d AfterOpen = %v, want %v", tc.h, tc.m, got, tc.open)
		}
		if got := s.AfterSettle(ts); got != tc.settle {
			t.Fatalf("%02d:%02d AfterSettle = %v, want %v", tc.h, tc.m, got, tc.settle)
		}
		if got := s.AfterNoNewTrade(ts); got != tc.noNewTrade {
			t.Fatalf("%02d:%02d AfterNoNewTrade = %v, want %v", tc.h, tc.m, got, tc.noNewTrade)
		}
		if got := s.AfterClose(ts); got != tc.closing {
			t.Fatalf("%02d:%02d AfterClose = %v, want %v", tc.h, tc.m, got, tc.closing)
		}
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2015, 6, 1, 9, 30, 0, 0, time.UTC)
	b := time.Date(2015, 6, 1, 15, 45, 0, 0, time.UTC)
	c := time.Date(2015, 6, 2, 9, 30, 0, 0, time.UTC)

	if !SameDay(a, b) {
		t.Fatalf("same calendar date must match")
	}
	if SameDay(a, c) {
		t.Fatalf("different dates must not match")
	}
}
