package smartmoney

import (
	"testing"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func snap(ltp, oi, volume, delta, gamma, theta float64) *broker.GreeksSnapshot {
	return &broker.GreeksSnapshot{
		Symbol: "NIFTY25AUG25000CE",
		LTP:    ltp,
		OI:     oi,
		Volume: volume,
		Delta:  delta,
		Gamma:  gamma,
		Theta:  theta,
	}
}

func TestOIWithoutFollowThroughBlocks(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	prev := snap(100, 400000, 8000, 0.50, 0.004, -6)
	cur := snap(99.8, 460000, 7500, 0.50, 0.004, -6)

	a := d.Analyze(cur, prev, 4*time.Hour)

	if a.TrapProbability < 0.6 {
		t.Fatalf("trap probability = %.2f, want >= 0.6", a.TrapProbability)
	}
	if !a.ShouldBlock {
		t.Fatal("trap signature did not block")
	}
	if len(a.TrapReasons) == 0 {
		t.Error("no trap reasons reported")
	}
	if a.BuildUp != ShortBuildUp {
		t.Errorf("build up = %s, want SHORT_BUILD_UP", a.BuildUp)
	}
}

func TestSmartEntryVerdict(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	prev := snap(100, 400000, 8000, 0.48, 0.004, -6)
	cur := snap(102, 430000, 9500, 0.53, 0.0045, -6)

	a := d.Analyze(cur, prev, 4*time.Hour)

	if a.Verdict != VerdictSmartEntry {
		t.Fatalf("verdict = %s, want SMART_ENTRY", a.Verdict)
	}
	if a.ShouldBlock {
		t.Fatalf("smart entry blocked: %.2f %v", a.TrapProbability, a.TrapReasons)
	}
	if a.BuildUp != LongBuildUp {
		t.Errorf("build up = %s, want LONG_BUILD_UP", a.BuildUp)
	}
}

func TestDeltaUpWithoutOIIsTrapVerdict(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	// Price and delta push up on volume, but OI flat-to-down: no real
	// positioning behind the move.
	prev := snap(100, 400000, 8000, 0.48, 0.004, -6)
	cur := snap(101.5, 398000, 9500, 0.53, 0.004, -6)

	a := d.Analyze(cur, prev, 4*time.Hour)

	if a.Verdict != VerdictTrap {
		t.Fatalf("verdict = %s, want TRAP", a.Verdict)
	}
	if !a.ShouldBlock {
		t.Fatal("trap verdict did not force a block")
	}
}

func TestThetaTrapNearExpiry(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	// 40 minutes to expiry, theta eating 20% of the premium.
	prev := snap(10, 400000, 8000, 0.30, 0.004, -2)
	cur := snap(10, 400000, 8000, 0.30, 0.004, -2)

	a := d.Analyze(cur, prev, 40*time.Minute)

	if a.Verdict != VerdictThetaTrap {
		t.Fatalf("verdict = %s, want THETA_TRAP", a.Verdict)
	}
	if !a.ShouldBlock {
		t.Fatal("theta trap did not block")
	}
}

func TestFirstSampleIsNeutral(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	a := d.Analyze(snap(100, 400000, 8000, 0.50, 0.004, -6), nil, 4*time.Hour)

	if a.Verdict != VerdictNeutral || a.ShouldBlock {
		t.Fatalf("analysis without prior snapshot = %+v, want neutral", a)
	}
}

func TestVolumeGrading(t *testing.T) {
	tests := []struct {
		ratio float64
		want  VolumeState
	}{
		{1.0, VolumeNormal},
		{1.6, VolumeSpike},
		{2.7, VolumeBurst},
		{4.0, VolumeAggressive},
	}
	for _, tt := range tests {
		if got := gradeVolume(tt.ratio); got != tt.want {
			t.Errorf("gradeVolume(%.1f) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestBattlefieldControl(t *testing.T) {
	d := NewDetector(DefaultConfig(), testLogger())

	ce := []broker.GreeksSnapshot{
		{OI: 300000, Volume: 5000, Delta: 0.55},
		{OI: 200000, Volume: 4000, Delta: 0.40},
	}
	pe := []broker.GreeksSnapshot{
		{OI: 500000, Volume: 7000, Delta: -0.45},
		{OI: 250000, Volume: 5000, Delta: -0.35},
	}

	view := d.Battlefield(ce, pe)

	// PE OI 750k vs CE OI 500k: puts written below spot, bullish control,
	// and the call deltas outweigh the put deltas.
	if view.Control != BullishControl {
		t.Fatalf("control = %s (dominance %.2f, skew %.2f), want BULLISH_CONTROL",
			view.Control, view.OIDominance, view.DeltaSkew)
	}

	empty := d.Battlefield(nil, pe)
	if empty.Control != NeutralChop {
		t.Errorf("one-sided chain control = %s, want NEUTRAL_CHOP", empty.Control)
	}
}
