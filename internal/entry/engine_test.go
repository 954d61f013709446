package entry

import (
	"strings"
	"testing"

	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/smartmoney"
	"options-scalping-bot/internal/strikes"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func testConfig() Config {
	return Config{
		MinConfidence:       60,
		MaxSpreadPercent:    1.0,
		IdealGammaMin:       0.002,
		BullishDeltaMin:     0.45,
		BearishDeltaMax:     -0.45,
		MaxTrapProbability:  0.6,
		RejectOIFlat:        0.02,
		RejectIVDrop:        3,
		RejectSpreadWiden:   0.5,
		RejectDeltaCollapse: 0.10,
		ChoppyPriceEpsilon:  0.001,
	}
}

func bullishBias() bias.BiasState {
	return bias.BiasState{State: bias.StateBullish, Confidence: 85}
}

func goodSnap(ltp float64) broker.GreeksSnapshot {
	return broker.GreeksSnapshot{
		Symbol: "NIFTY25AUG25000CE",
		LTP:    ltp,
		Bid:    ltp * 0.998,
		Ask:    ltp * 1.002,
		Volume: 9000,
		OI:     420000,
		Delta:  0.52,
		Gamma:  0.004,
		Theta:  -7,
		IV:     19,
	}
}

func candidate(snap broker.GreeksSnapshot) *strikes.Candidate {
	return &strikes.Candidate{
		Symbol:     snap.Symbol,
		Strike:     25000,
		OptionType: broker.OptionCall,
		Snapshot:   snap,
	}
}

func calmAnalysis() smartmoney.Analysis {
	return smartmoney.Analysis{
		Verdict:           smartmoney.VerdictSmartEntry,
		VerdictConfidence: 0.95,
		VolumeState:       smartmoney.VolumeSpike,
	}
}

func TestEvaluateEmitsCallBuy(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	prev := goodSnap(100)
	prev.Volume = 8000
	prev.OI = 400000
	cur := goodSnap(102)

	ctx := e.Evaluate(bullishBias(), candidate(cur), &prev, calmAnalysis(), true)

	if ctx.Signal != CallBuy {
		t.Fatalf("signal = %s (%v), want CALL_BUY", ctx.Signal, ctx.ReasonTags)
	}
	if ctx.EntryPrice != 102 || ctx.EntryDelta != 0.52 {
		t.Errorf("entry context = %+v", ctx)
	}
	if len(ctx.ReasonTags) == 0 {
		t.Error("no reason tags on an approved entry")
	}
}

func TestEvaluateEmitsPutBuy(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	prev := goodSnap(100)
	prev.Symbol = "NIFTY25AUG25000PE"
	prev.Delta = -0.50
	prev.Volume = 8000
	prev.OI = 400000

	cur := goodSnap(102)
	cur.Symbol = prev.Symbol
	cur.Delta = -0.52

	cand := candidate(cur)
	cand.OptionType = broker.OptionPut

	b := bias.BiasState{State: bias.StateBearish, Confidence: 85}
	ctx := e.Evaluate(b, cand, &prev, calmAnalysis(), true)

	if ctx.Signal != PutBuy {
		t.Fatalf("signal = %s (%v), want PUT_BUY", ctx.Signal, ctx.ReasonTags)
	}
}

func TestGateRejections(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*bias.BiasState, *broker.GreeksSnapshot, *broker.GreeksSnapshot, *smartmoney.Analysis, *bool)
		wantPart string
	}{
		{
			name: "no trade bias",
			modify: func(b *bias.BiasState, _, _ *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				b.State = bias.StateNoTrade
			},
			wantPart: "bias",
		},
		{
			name: "weak confidence",
			modify: func(b *bias.BiasState, _, _ *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				b.Confidence = 50
			},
			wantPart: "confidence",
		},
		{
			name: "stale tick",
			modify: func(_ *bias.BiasState, _, _ *broker.GreeksSnapshot, _ *smartmoney.Analysis, fresh *bool) {
				*fresh = false
			},
			wantPart: "stale",
		},
		{
			name: "wide spread",
			modify: func(_ *bias.BiasState, cur, _ *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				cur.Bid = cur.LTP * 0.98
				cur.Ask = cur.LTP * 1.02
			},
			wantPart: "spread",
		},
		{
			name: "volume fading",
			modify: func(_ *bias.BiasState, cur, prev *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				prev.Volume = cur.Volume + 1000
			},
			wantPart: "volume",
		},
		{
			name: "oi fading",
			modify: func(_ *bias.BiasState, cur, prev *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				prev.OI = cur.OI + 5000
			},
			wantPart: "oi not rising",
		},
		{
			name: "gamma below minimum",
			modify: func(_ *bias.BiasState, cur, prev *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				cur.Gamma = 0.001
				prev.Gamma = 0.001
			},
			wantPart: "gamma",
		},
		{
			name: "delta outside power zone",
			modify: func(_ *bias.BiasState, cur, _ *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				cur.Delta = 0.30
			},
			wantPart: "power zone",
		},
		{
			name: "iv crush between refreshes",
			modify: func(_ *bias.BiasState, cur, prev *broker.GreeksSnapshot, _ *smartmoney.Analysis, _ *bool) {
				prev.IV = cur.IV + 4
			},
			wantPart: "IV dropped",
		},
		{
			name: "smart money block",
			modify: func(_ *bias.BiasState, _, _ *broker.GreeksSnapshot, sm *smartmoney.Analysis, _ *bool) {
				sm.TrapProbability = 0.7
				sm.ShouldBlock = true
			},
			wantPart: "trap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testConfig(), testLogger())

			b := bullishBias()
			prev := goodSnap(100)
			prev.Volume = 8000
			prev.OI = 400000
			cur := goodSnap(102)
			sm := calmAnalysis()
			fresh := true

			tt.modify(&b, &cur, &prev, &sm, &fresh)

			ctx := e.Evaluate(b, candidate(cur), &prev, sm, fresh)
			if ctx.Signal != NoSignal {
				t.Fatalf("signal = %s, want NO_SIGNAL", ctx.Signal)
			}
			if len(ctx.ReasonTags) != 1 || !strings.Contains(ctx.ReasonTags[0], tt.wantPart) {
				t.Fatalf("reason = %v, want mention of %q", ctx.ReasonTags, tt.wantPart)
			}
		})
	}
}

func TestMissingPriorSnapshotRejects(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())

	ctx := e.Evaluate(bullishBias(), candidate(goodSnap(102)), nil, calmAnalysis(), true)
	if ctx.Signal != NoSignal {
		t.Fatalf("signal = %s without a prior snapshot", ctx.Signal)
	}
}

func TestChoppyDeltaOscillationRejects(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())
	b := bullishBias()
	sm := calmAnalysis()

	// Build an oscillating delta history on a flat premium.
	deltas := []float64{0.50, 0.55, 0.48, 0.54}
	var last broker.GreeksSnapshot
	for i, d := range deltas {
		snap := goodSnap(100)
		snap.Delta = d
		snap.Volume = 8000 + float64(i) // keep momentum checks off the fast path
		if i > 0 {
			prev := last
			e.Evaluate(b, candidate(snap), &prev, sm, true)
		} else {
			e.Evaluate(b, candidate(snap), nil, sm, true)
		}
		last = snap
	}

	final := goodSnap(100.05)
	final.Delta = 0.50
	prev := last
	ctx := e.Evaluate(b, candidate(final), &prev, sm, true)

	if ctx.Signal != NoSignal || !strings.Contains(ctx.ReasonTags[0], "choppy") {
		t.Fatalf("ctx = %v, want choppy rejection", ctx.ReasonTags)
	}
}
