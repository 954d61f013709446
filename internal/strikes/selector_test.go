package strikes

import (
	"context"
	"testing"
	"time"

	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

var testExpiry = time.Date(2026, 8, 27, 15, 30, 0, 0, time.UTC)

func liquidSnap(ltp, delta float64) broker.GreeksSnapshot {
	return broker.GreeksSnapshot{
		LTP:    ltp,
		Bid:    ltp * 0.998,
		Ask:    ltp * 1.002,
		Volume: 5000,
		OI:     500000,
		Delta:  delta,
		Gamma:  0.004,
		Theta:  -8,
		Vega:   10,
		IV:     20,
	}
}

func newTestSelector(t *testing.T, mock *broker.MockClient) *Selector {
	t.Helper()
	cache := marketdata.NewGreeksCache(mock, time.Minute, 16, testLogger())
	return NewSelector(cache, broker.NewNFOSymbols(), DefaultConfig(50, 1), testLogger())
}

func TestLadderAroundATM(t *testing.T) {
	s := newTestSelector(t, broker.NewMockClient("NIFTY", 25000))

	ladder := s.Ladder(25012)
	want := []float64{24950, 25000, 25050}
	if len(ladder) != len(want) {
		t.Fatalf("ladder = %v", ladder)
	}
	for i := range want {
		if ladder[i] != want[i] {
			t.Fatalf("ladder = %v, want %v", ladder, want)
		}
	}
}

func TestSelectPicksPowerZoneStrike(t *testing.T) {
	mock := broker.NewMockClient("NIFTY", 25000)
	symbols := broker.NewNFOSymbols()

	// ITM and OTM strikes fall outside the delta band; ATM sits inside it.
	mock.Script(symbols.BuildOptionSymbol("NIFTY", testExpiry, 24950, broker.OptionCall), liquidSnap(140, 0.70))
	mock.Script(symbols.BuildOptionSymbol("NIFTY", testExpiry, 25000, broker.OptionCall), liquidSnap(105, 0.52))
	mock.Script(symbols.BuildOptionSymbol("NIFTY", testExpiry, 25050, broker.OptionCall), liquidSnap(78, 0.40))

	s := newTestSelector(t, mock)
	best, ladder, err := s.Select(context.Background(), "NIFTY", 25012, bias.StateBullish, testExpiry)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(ladder) != 3 {
		t.Fatalf("scored ladder = %d strikes, want 3", len(ladder))
	}
	for i, rung := range s.Ladder(25012) {
		if ladder[i].Strike != rung {
			t.Fatalf("scored ladder strike %d = %.0f, want %.0f", i, ladder[i].Strike, rung)
		}
	}
	if best.Strike != 25000 || best.Offset != 0 {
		t.Fatalf("best = %s (offset %d, score %.2f), want ATM 25000", best.Symbol, best.Offset, best.TotalScore)
	}
	if best.OptionType != broker.OptionCall {
		t.Errorf("option type = %s, want CE", best.OptionType)
	}
	for _, c := range ladder {
		if c.Strike == 25000 {
			continue
		}
		if c.TotalScore >= best.TotalScore {
			t.Errorf("strike %.0f score %.2f not below winner %.2f", c.Strike, c.TotalScore, best.TotalScore)
		}
	}
}

func TestSelectBearishUsesPuts(t *testing.T) {
	mock := broker.NewMockClient("NIFTY", 25000)
	symbols := broker.NewNFOSymbols()

	for _, strike := range []float64{24950, 25000, 25050} {
		sym := symbols.BuildOptionSymbol("NIFTY", testExpiry, strike, broker.OptionPut)
		mock.Script(sym, liquidSnap(100, -0.50))
	}

	s := newTestSelector(t, mock)
	best, _, err := s.Select(context.Background(), "NIFTY", 25000, bias.StateBearish, testExpiry)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if best.OptionType != broker.OptionPut {
		t.Fatalf("option type = %s, want PE", best.OptionType)
	}
}

func TestSelectTieBreaksTowardATM(t *testing.T) {
	mock := broker.NewMockClient("NIFTY", 25000)
	symbols := broker.NewNFOSymbols()

	// Identical snapshots on every rung force a tie.
	for _, strike := range []float64{24950, 25000, 25050} {
		sym := symbols.BuildOptionSymbol("NIFTY", testExpiry, strike, broker.OptionCall)
		mock.Script(sym, liquidSnap(100, 0.52))
	}

	s := newTestSelector(t, mock)
	best, _, err := s.Select(context.Background(), "NIFTY", 25000, bias.StateBullish, testExpiry)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if best.Offset != 0 {
		t.Fatalf("tie resolved to offset %d, want ATM", best.Offset)
	}
}

func TestSelectRejectsNoTradeBias(t *testing.T) {
	s := newTestSelector(t, broker.NewMockClient("NIFTY", 25000))

	_, _, err := s.Select(context.Background(), "NIFTY", 25000, bias.StateNoTrade, testExpiry)
	if err == nil {
		t.Fatal("expected an error for a no-trade bias")
	}
}

func TestScoreIVBand(t *testing.T) {
	s := newTestSelector(t, broker.NewMockClient("NIFTY", 25000))

	tests := []struct {
		iv   float64
		want float64
	}{
		{20, 1.5},
		{15, 1.5},
		{25, 1.5},
		{30, 1.0},
		{10, 1.0},
		{45, 0},
	}
	for _, tt := range tests {
		if got := s.scoreIV(tt.iv); got != tt.want {
			t.Errorf("scoreIV(%.0f) = %.2f, want %.2f", tt.iv, got, tt.want)
		}
	}
}

func TestScoreGreeksComponents(t *testing.T) {
	s := newTestSelector(t, broker.NewMockClient("NIFTY", 25000))

	ideal := liquidSnap(100, 0.52)
	if got := s.scoreGreeks(&ideal); got != 5.0 {
		t.Errorf("ideal greeks score = %.2f, want 5.0", got)
	}

	heavy := liquidSnap(100, 0.52)
	heavy.Theta = -45 // decay worse than the cap
	if got := s.scoreGreeks(&heavy); got != 4.0 {
		t.Errorf("heavy theta score = %.2f, want 4.0", got)
	}

	deep := liquidSnap(100, 0.85)
	deep.Gamma = 0.0005
	deep.Vega = 30
	if got := s.scoreGreeks(&deep); got != 1.0 {
		// delta dist 0.20 from the band: 2 - 2.0 = 0, plus theta 1.
		t.Errorf("deep ITM score = %.2f, want 1.0", got)
	}
}
