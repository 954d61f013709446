package bias

import (
	"testing"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func testConfig() Config {
	return Config{
		BullishDeltaMin:  0.45,
		BearishDeltaMax:  -0.45,
		IVSafeZoneMin:    12,
		IVSafeZoneMax:    35,
		IVCrushThreshold: -3,
		HistorySize:      100,
	}
}

type sample struct {
	price, delta, gamma, oi, volume, iv float64
}

func feed(e *Engine, samples []sample) BiasState {
	var state BiasState
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, s := range samples {
		ts := base.Add(time.Duration(i) * time.Second)
		tick := broker.Tick{Underlying: "NIFTY", LTP: 25000, Timestamp: ts}
		state = e.Update(tick, &broker.GreeksSnapshot{
			Symbol:    "NIFTY25AUG25000CE",
			LTP:       s.price,
			Delta:     s.delta,
			Gamma:     s.gamma,
			OI:        s.oi,
			Volume:    s.volume,
			IV:        s.iv,
			Timestamp: ts,
		})
	}
	return state
}

func TestBullishWhenAllFactorsAlign(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	state := feed(e, []sample{
		{100.0, 0.52, 0.004, 1000, 5000, 18},
		{100.5, 0.52, 0.004, 1100, 6000, 18},
		{101.2, 0.52, 0.004, 1200, 7000, 18},
	})

	if state.State != StateBullish {
		t.Fatalf("state = %s, want BULLISH (metrics %v)", state.State, state.Metrics)
	}
	if state.Confidence != 85 {
		t.Errorf("confidence = %.0f, want 85", state.Confidence)
	}
	if state.Structure != StructureHHHL {
		t.Errorf("structure = %s, want HH_HL", state.Structure)
	}
	if state.Metrics["alignment"] != 1 {
		t.Errorf("alignment = %.1f, want 1", state.Metrics["alignment"])
	}
}

func TestSingleTickIsNoTrade(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	state := feed(e, []sample{{100.0, 0.52, 0.004, 1000, 5000, 18}})
	if state.State != StateNoTrade {
		t.Fatalf("state after one tick = %s, want NO_TRADE", state.State)
	}
}

func TestOIWithoutFollowThroughIsTrap(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	// OI builds while price and volume fade. Alignment must flag the
	// trap even though delta and structure look bearish-tradeable.
	state := feed(e, []sample{
		{100.0, -0.50, 0.004, 1000, 7000, 18},
		{99.6, -0.50, 0.004, 1200, 6000, 18},
		{99.1, -0.50, 0.004, 1500, 5000, 18},
	})

	if state.State != StateNoTrade {
		t.Fatalf("state = %s, want NO_TRADE", state.State)
	}
	if state.Metrics["alignment"] != -1 {
		t.Errorf("alignment = %.1f, want -1", state.Metrics["alignment"])
	}
}

func TestDecayingGammaBlocksEntry(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	state := feed(e, []sample{
		{100.0, 0.52, 0.0040, 1000, 5000, 18},
		{100.5, 0.52, 0.0035, 1100, 6000, 18},
		{101.2, 0.52, 0.0030, 1200, 7000, 18},
	})

	if state.State != StateNoTrade {
		t.Fatalf("state = %s, want NO_TRADE on decaying gamma", state.State)
	}
	if _, ok := state.Metrics["gamma_rising"]; ok {
		t.Error("gamma_rising metric set while gamma decays")
	}
}

func TestWeakDeltaIsNoTrade(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	state := feed(e, []sample{
		{100.0, 0.30, 0.004, 1000, 5000, 18},
		{100.5, 0.30, 0.004, 1100, 6000, 18},
		{101.2, 0.30, 0.004, 1200, 7000, 18},
	})

	if state.State != StateNoTrade {
		t.Fatalf("state = %s, want NO_TRADE for mid-range delta", state.State)
	}
}

func TestElevatedIVLowersConfidence(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	// IV above the safe band but below the hard ceiling scores -0.5,
	// which keeps the trade allowed at reduced confidence.
	state := feed(e, []sample{
		{100.0, 0.52, 0.004, 1000, 5000, 40},
		{100.5, 0.52, 0.004, 1100, 6000, 40},
		{101.2, 0.52, 0.004, 1200, 7000, 40},
	})

	if state.State != StateBullish {
		t.Fatalf("state = %s, want BULLISH", state.State)
	}
	if state.Confidence != 60 {
		t.Errorf("confidence = %.0f, want 60", state.Confidence)
	}
}

func TestNilSnapshotForcesNoTrade(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	feed(e, []sample{
		{100.0, 0.52, 0.004, 1000, 5000, 18},
		{100.5, 0.52, 0.004, 1100, 6000, 18},
		{101.2, 0.52, 0.004, 1200, 7000, 18},
	})

	state := e.Update(broker.Tick{Underlying: "NIFTY", LTP: 25000, Timestamp: time.Now()}, nil)
	if state.State != StateNoTrade {
		t.Fatalf("state = %s, want NO_TRADE on missing snapshot", state.State)
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 5
	e := NewEngine(cfg, testLogger())

	samples := make([]sample, 12)
	for i := range samples {
		samples[i] = sample{100 + float64(i), 0.52, 0.004, 1000 + float64(i)*10, 5000, 18}
	}
	feed(e, samples)

	if n := len(e.History()); n != 5 {
		t.Fatalf("history length = %d, want 5", n)
	}
}
