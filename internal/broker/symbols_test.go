package broker

import (
	"testing"
	"time"
)

func TestBuildOptionSymbol(t *testing.T) {
	s := NewNFOSymbols()
	expiry := time.Date(2026, 8, 27, 15, 30, 0, 0, time.UTC)

	got := s.BuildOptionSymbol("nifty", expiry, 25000, OptionCall)
	if got != "NIFTY27AUG2625000CE" {
		t.Fatalf("symbol = %s, want NIFTY27AUG2625000CE", got)
	}

	got = s.BuildOptionSymbol("BANKNIFTY", expiry, 52100, OptionPut)
	if got != "BANKNIFTY27AUG2652100PE" {
		t.Fatalf("symbol = %s, want BANKNIFTY27AUG2652100PE", got)
	}
}

func TestNearestWeeklyExpiry(t *testing.T) {
	s := NewNFOSymbols()

	// Tuesday rolls forward to Thursday the same week.
	tue := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	expiry := s.NearestWeeklyExpiry(tue)
	if expiry.Weekday() != time.Thursday || expiry.Day() != 27 {
		t.Fatalf("expiry = %s, want Thu Aug 27", expiry)
	}

	// Expiry day before the close keeps the same date.
	thuMorning := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	expiry = s.NearestWeeklyExpiry(thuMorning)
	if expiry.Day() != 27 {
		t.Fatalf("expiry = %s, want same-day Thursday", expiry)
	}

	// After the close the following week's contract is current.
	thuEvening := time.Date(2026, 8, 27, 16, 0, 0, 0, time.UTC)
	expiry = s.NearestWeeklyExpiry(thuEvening)
	if expiry.Day() != 3 || expiry.Month() != time.September {
		t.Fatalf("expiry = %s, want Thu Sep 3", expiry)
	}
}

func TestStrikeInterval(t *testing.T) {
	if StrikeInterval("NIFTY") != 50 {
		t.Error("NIFTY interval should be 50")
	}
	if StrikeInterval("banknifty") != 100 {
		t.Error("BANKNIFTY interval should be 100")
	}
}

func TestATMStrike(t *testing.T) {
	tests := []struct {
		spot     float64
		interval float64
		want     float64
	}{
		{25012, 50, 25000},
		{25030, 50, 25050},
		{25025, 50, 25050}, // midpoint rounds up
		{52049, 100, 52000},
		{52050, 100, 52100},
	}
	for _, tt := range tests {
		if got := ATMStrike(tt.spot, tt.interval); got != tt.want {
			t.Errorf("ATMStrike(%.0f, %.0f) = %.0f, want %.0f", tt.spot, tt.interval, got, tt.want)
		}
	}
}
