package adaptive

import (
	"testing"
)

func TestWeightsDefaultToOne(t *testing.T) {
	w := NewWeightAdjuster()

	if got := w.Get(RuleEntryFilter, TimeOpening); got != 1.0 {
		t.Fatalf("untouched weight = %.2f, want 1.0", got)
	}
	if got := w.SizeMultiplier(RulePositionSize, testTuple()); got != 1.0 {
		t.Fatalf("untouched multiplier = %.2f, want 1.0", got)
	}
	if _, ok := w.Lookup(RuleEntryFilter, TimeOpening); ok {
		t.Fatal("lookup reports a record that was never adjusted")
	}
}

func TestApplyClampsToRange(t *testing.T) {
	w := NewWeightAdjuster()

	if got := w.Apply(RuleEntryFilter, TimeOpening, 1.5, "test"); got != 2.0 {
		t.Fatalf("weight = %.2f, want clamp at 2.0", got)
	}
	if got := w.Apply(RuleEntryFilter, TimeOpening, -5.0, "test"); got != 0.0 {
		t.Fatalf("weight = %.2f, want clamp at 0.0", got)
	}
}

func TestSizeMultiplierClampAndHardBlock(t *testing.T) {
	tuple := testTuple()

	w := NewWeightAdjuster()
	w.Apply(RulePositionSize, tuple.Time, -0.6, "test")         // 0.4
	w.Apply(RulePositionSize, tuple.BiasStrength, -0.5, "test") // 0.5

	// 0.4 * 0.5 = 0.2, clamped up to the floor.
	if got := w.SizeMultiplier(RulePositionSize, tuple); got != 0.5 {
		t.Fatalf("multiplier = %.2f, want floor 0.5", got)
	}

	w2 := NewWeightAdjuster()
	w2.Apply(RulePositionSize, tuple.Time, 0.8, "test")         // 1.8
	w2.Apply(RulePositionSize, tuple.OIConviction, 0.5, "test") // 1.5

	// 1.8 * 1.5 = 2.7, clamped down to the ceiling.
	if got := w2.SizeMultiplier(RulePositionSize, tuple); got != 1.5 {
		t.Fatalf("multiplier = %.2f, want ceiling 1.5", got)
	}

	// A zero weight bypasses the floor entirely.
	w2.SetZero(RulePositionSize, tuple.Volatility, "blocked")
	if got := w2.SizeMultiplier(RulePositionSize, tuple); got != 0 {
		t.Fatalf("multiplier = %.2f, want hard block 0", got)
	}
}

func TestBlockedBucket(t *testing.T) {
	tuple := testTuple()
	w := NewWeightAdjuster()

	if _, blocked := w.BlockedBucket(RuleEntryFilter, tuple); blocked {
		t.Fatal("fresh adjuster reports a blocked bucket")
	}

	w.SetZero(RuleEntryFilter, tuple.GreeksRegime, "loss pattern")
	b, blocked := w.BlockedBucket(RuleEntryFilter, tuple)
	if !blocked || b != tuple.GreeksRegime {
		t.Fatalf("blocked bucket = %q (%v), want %q", b, blocked, tuple.GreeksRegime)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	w := NewWeightAdjuster()
	w.Apply(RuleEntryFilter, TimeOpening, -0.3, "restrict")
	w.SetZero(RuleEntryFilter, VolHigh, "block")

	exported := w.Export()

	restored := NewWeightAdjuster()
	if err := restored.Import(exported); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := restored.Get(RuleEntryFilter, TimeOpening); got != 0.7 {
		t.Errorf("restored weight = %.2f, want 0.7", got)
	}
	if got := restored.Get(RuleEntryFilter, VolHigh); got != 0 {
		t.Errorf("restored blocked weight = %.2f, want 0", got)
	}
}

func TestImportRejectsOutOfRangeWeights(t *testing.T) {
	w := NewWeightAdjuster()
	err := w.Import(map[string]RuleWeight{
		"ENTRY_FILTER|TIME_OPENING": {Current: 3.5, Base: 1.0, Min: 0.0, Max: 2.0},
	})
	if err == nil {
		t.Fatal("out-of-range import accepted")
	}
}

func TestResetAllRestoresBase(t *testing.T) {
	w := NewWeightAdjuster()
	w.Apply(RuleEntryFilter, TimeOpening, -0.5, "restrict")
	w.SetZero(RuleEntryFilter, VolHigh, "block")

	w.ResetAll()

	if got := w.Get(RuleEntryFilter, TimeOpening); got != 1.0 {
		t.Errorf("weight = %.2f after reset, want 1.0", got)
	}
	if got := w.Get(RuleEntryFilter, VolHigh); got != 1.0 {
		t.Errorf("blocked weight = %.2f after reset, want 1.0", got)
	}
}
