package exits

import (
	"testing"
	"time"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

// quietConfig keeps every trigger except the ones a test exercises out
// of the way.
func quietConfig() Config {
	return Config{
		TrailingActivation: 3.0,
		TrailingPercent:    2.0,
		DeltaWeakness:      0.15,
		GammaRollover:      0.6,
		IVCrushExit:        3.0,
		ExpiryRushMinutes:  30,
	}
}

func baseInput(now time.Time) Input {
	return Input{
		TradeID:     "t1",
		EntryPrice:  100,
		SLPrice:     90,
		TargetPrice: 115,
		Quantity:    150,
		OriginalQty: 150,
		LotSize:     75,
		EntryTime:   now.Add(-2 * time.Minute),
		Now:         now,
	}
}

func TestTrailingStopArmsAndFires(t *testing.T) {
	e := NewEngine(quietConfig(), testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	ticks := []struct {
		ltp  float64
		want Trigger // "" means hold
	}{
		{100, ""},   // flat, trailing not armed
		{103, ""},   // +3% arms the trail, peak 103
		{108, ""},   // peak advances to 108
		{106.5, ""}, // above 108 - 2.16, still holding
		{105.8, TriggerTrailingSL},
	}

	for i, tick := range ticks {
		in := baseInput(now)
		in.LTP = tick.ltp
		in.Now = now.Add(time.Duration(i) * time.Second)

		snap := e.Evaluate(in)
		if tick.want == "" {
			if snap != nil {
				t.Fatalf("tick %d (ltp %.1f): unexpected exit %s", i, tick.ltp, snap.Trigger)
			}
			continue
		}
		if snap == nil {
			t.Fatalf("tick %d (ltp %.1f): expected %s, got hold", i, tick.ltp, tick.want)
		}
		if snap.Trigger != tick.want {
			t.Fatalf("tick %d: trigger = %s, want %s", i, snap.Trigger, tick.want)
		}
		if snap.PeakPrice != 108 {
			t.Errorf("peak = %.2f, want 108", snap.PeakPrice)
		}
		if snap.TrailDistance < 2.159 || snap.TrailDistance > 2.161 {
			t.Errorf("trail distance = %.3f, want 2.16", snap.TrailDistance)
		}
	}
}

func TestHardSLBeatsTrailingStop(t *testing.T) {
	e := NewEngine(quietConfig(), testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	in := baseInput(now)
	in.SLPrice = 95

	in.LTP = 104 // arms the trail, peak 104
	if snap := e.Evaluate(in); snap != nil {
		t.Fatalf("unexpected exit %s while in profit", snap.Trigger)
	}

	in.LTP = 94 // below both the trail and the hard stop
	snap := e.Evaluate(in)
	if snap == nil || snap.Trigger != TriggerHardSL {
		t.Fatalf("got %+v, want hard SL", snap)
	}
	if snap.PnLPercent > -5.9 || snap.PnLPercent < -6.1 {
		t.Errorf("pnl%% = %.2f, want -6", snap.PnLPercent)
	}
}

func TestProfitTarget(t *testing.T) {
	e := NewEngine(quietConfig(), testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	in := baseInput(now)
	in.TargetPrice = 104
	in.LTP = 104.5

	snap := e.Evaluate(in)
	if snap == nil || snap.Trigger != TriggerProfitTarget {
		t.Fatalf("got %+v, want profit target", snap)
	}
	if snap.PartialExit {
		t.Error("profit target must be a full exit")
	}
}

func TestProfitLadder(t *testing.T) {
	cfg := quietConfig()
	cfg.TrailingActivation = 5.0 // keep the trail out of this test
	cfg.Ladder = []config.LadderRung{
		{TargetPercent: 1.0, QtyFraction: 0.5},
		{TargetPercent: 2.0, QtyFraction: 0.5},
	}
	e := NewEngine(cfg, testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// Rung 1 at +1.5%: half out, lot aligned.
	in := baseInput(now)
	in.LTP = 101.5
	snap := e.Evaluate(in)
	if snap == nil || snap.Trigger != TriggerProfitLadder {
		t.Fatalf("got %+v, want ladder exit", snap)
	}
	if !snap.PartialExit || snap.QtyExited != 75 || snap.QtyRemaining != 75 || snap.LadderRung != 1 {
		t.Fatalf("rung 1 = %+v, want partial 75/75", snap)
	}

	// Same price again: the filled rung must not re-fire.
	if snap := e.Evaluate(in); snap != nil {
		t.Fatalf("rung 1 re-fired: %+v", snap)
	}

	// Rung 2 empties what is left, so it becomes a full exit.
	in.Quantity = 75
	in.LTP = 102.5
	snap = e.Evaluate(in)
	if snap == nil || snap.Trigger != TriggerProfitLadder {
		t.Fatalf("got %+v, want ladder exit", snap)
	}
	if snap.PartialExit || snap.QtyExited != 75 || snap.LadderRung != 2 {
		t.Fatalf("rung 2 = %+v, want full exit of 75", snap)
	}
}

func TestTimeStop(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxHolding = 15 * time.Minute
	e := NewEngine(cfg, testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	in := baseInput(now)
	in.EntryTime = now.Add(-16 * time.Minute)
	in.LTP = 100.2

	snap := e.Evaluate(in)
	if snap == nil || snap.Trigger != TriggerTimeBased {
		t.Fatalf("got %+v, want time stop", snap)
	}
}

func TestGreeksTriggers(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Input)
		want Trigger
	}{
		{
			name: "delta weakness",
			mod: func(in *Input) {
				in.EntryDelta = 0.50
				in.CurrentDelta = 0.40 // 20% decay, above the 15% cap
			},
			want: TriggerDeltaWeakness,
		},
		{
			name: "gamma rollover",
			mod: func(in *Input) {
				in.EntryDelta = 0.50
				in.CurrentDelta = 0.50
				in.EntryGamma = 0.004
				in.CurrentGamma = 0.002 // ratio 0.5 under the 0.6 floor
			},
			want: TriggerGammaRollover,
		},
		{
			name: "iv crush",
			mod: func(in *Input) {
				in.EntryIV = 20
				in.CurrentIV = 15 // 5pp drop over the 3pp limit
			},
			want: TriggerIVCrush,
		},
		{
			name: "expiry rush",
			mod: func(in *Input) {
				in.Expiry = in.Now.Add(20 * time.Minute)
			},
			want: TriggerExpiryRush,
		},
	}

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(quietConfig(), testLogger())
			in := baseInput(now)
			in.LTP = 100.5
			tt.mod(&in)

			snap := e.Evaluate(in)
			if snap == nil || snap.Trigger != tt.want {
				t.Fatalf("got %+v, want %s", snap, tt.want)
			}
		})
	}
}

func TestCleanupTradeDropsTrailState(t *testing.T) {
	e := NewEngine(quietConfig(), testLogger())
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	in := baseInput(now)
	in.LTP = 108 // armed, peak 108
	if snap := e.Evaluate(in); snap != nil {
		t.Fatalf("unexpected exit %s", snap.Trigger)
	}

	e.CleanupTrade("t1")

	// After cleanup the old peak is gone: 105.8 re-arms at its own level
	// instead of firing against peak 108.
	in.LTP = 105.8
	if snap := e.Evaluate(in); snap != nil {
		t.Fatalf("stale trail state survived cleanup: %+v", snap)
	}
}
