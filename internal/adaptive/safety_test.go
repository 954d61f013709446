package adaptive

import (
	"strings"
	"testing"
	"time"
)

func newGuard() (*SafetyGuard, *WeightAdjuster) {
	adj := NewWeightAdjuster()
	return NewSafetyGuard(adj, 5, 24*time.Hour, 0.5, 20, testLogger()), adj
}

func amplifyInsight() LearningInsight {
	return LearningInsight{
		Type:           InsightAmplify,
		Bucket:         TimeMorning,
		Reason:         "win rate 72% over 25 trades",
		Confidence:     0.75,
		Recommendation: 0.2,
	}
}

func TestProposeHardGates(t *testing.T) {
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		insight    LearningInsight
		sample     int
		consecWins int
		wantPart   string
	}{
		{
			name:     "low confidence",
			insight:  LearningInsight{Type: InsightRestrict, Bucket: VolHigh, Confidence: 0.35, Recommendation: -0.1},
			sample:   30,
			wantPart: "confidence",
		},
		{
			name:     "thin sample",
			insight:  amplifyInsight(),
			sample:   12,
			wantPart: "sample size",
		},
		{
			name:       "amplify during win streak",
			insight:    amplifyInsight(),
			sample:     25,
			consecWins: 5,
			wantPart:   "win streak",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGuard()
			p := g.Propose(tt.insight, tt.sample, tt.consecWins, now)
			if p.Status != ProposalRejected {
				t.Fatalf("status = %s, want REJECTED", p.Status)
			}
			if !strings.Contains(p.StatusReason, tt.wantPart) {
				t.Fatalf("reason %q does not mention %q", p.StatusReason, tt.wantPart)
			}
		})
	}
}

func TestProposeRespectsAdjustmentInterval(t *testing.T) {
	g, adj := newGuard()

	// Apply stamps wall-clock time, so propose against wall-clock too.
	adj.Apply(RuleEntryFilter, TimeMorning, 0.1, "earlier change")

	p := g.Propose(amplifyInsight(), 25, 0, time.Now())
	if p.Status != ProposalRejected || !strings.Contains(p.StatusReason, "interval") {
		t.Fatalf("proposal = %+v, want interval rejection", p)
	}
}

func TestProposalDeltaCapped(t *testing.T) {
	g, _ := newGuard()
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	in := amplifyInsight()
	in.Recommendation = 1.4
	p := g.Propose(in, 25, 0, now)
	if p.Delta != 0.5 {
		t.Fatalf("delta = %.2f, want cap 0.5", p.Delta)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	g, adj := newGuard()
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	p := g.Propose(amplifyInsight(), 25, 0, now)
	if p.Status != ProposalPending {
		t.Fatalf("status = %s, want PENDING", p.Status)
	}

	// Deciding before the shadow test must fail.
	if _, err := g.Decide(p.ID, now); err == nil {
		t.Fatal("decided a proposal that was never shadow tested")
	}

	if err := g.RecordShadowResult(p.ID, 0.68, 14); err != nil {
		t.Fatalf("record shadow result: %v", err)
	}

	decided, err := g.Decide(p.ID, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != ProposalApproved {
		t.Fatalf("status = %s (%s), want APPROVED", decided.Status, decided.StatusReason)
	}
	if got := adj.Get(RuleEntryFilter, TimeMorning); got != 1.2 {
		t.Errorf("live weight = %.2f, want 1.2", got)
	}
	if g.AppliedToday(now) != 1 {
		t.Errorf("applied today = %d, want 1", g.AppliedToday(now))
	}
}

func TestRejectionOnWeakShadowResult(t *testing.T) {
	g, adj := newGuard()
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	p := g.Propose(amplifyInsight(), 25, 0, now)
	if err := g.RecordShadowResult(p.ID, 0.45, 11); err != nil {
		t.Fatalf("record shadow result: %v", err)
	}

	decided, err := g.Decide(p.ID, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != ProposalRejected || !strings.Contains(decided.StatusReason, "shadow win rate") {
		t.Fatalf("proposal = %+v, want shadow rejection", decided)
	}
	if got := adj.Get(RuleEntryFilter, TimeMorning); got != 1.0 {
		t.Errorf("weight moved to %.2f on a rejected proposal", got)
	}
}

func TestBlockInsightSkipsShadowTest(t *testing.T) {
	g, adj := newGuard()
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	p := g.Propose(LearningInsight{
		Type:       InsightBlock,
		Bucket:     TimeOpening,
		Reason:     "win rate 20% over 15 trades",
		Confidence: 0.9,
	}, 20, 0, now)

	decided, err := g.Decide(p.ID, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != ProposalApproved {
		t.Fatalf("status = %s, want APPROVED", decided.Status)
	}
	if got := adj.Get(RuleEntryFilter, TimeOpening); got != 0 {
		t.Errorf("weight = %.2f, want hard block 0", got)
	}
}

func TestDailyAdjustmentCap(t *testing.T) {
	adj := NewWeightAdjuster()
	g := NewSafetyGuard(adj, 2, 24*time.Hour, 0.5, 20, testLogger())
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	buckets := []Bucket{TimeOpening, TimeMorning, TimeLunch}
	var last LearningProposal
	for _, b := range buckets {
		p := g.Propose(LearningInsight{Type: InsightBlock, Bucket: b, Confidence: 0.9}, 20, 0, now)
		var err error
		last, err = g.Decide(p.ID, now)
		if err != nil {
			t.Fatalf("decide %s: %v", b, err)
		}
	}

	if last.Status != ProposalRejected || !strings.Contains(last.StatusReason, "daily adjustment limit") {
		t.Fatalf("third proposal = %+v, want daily cap rejection", last)
	}

	// The counter rolls over at the next day boundary.
	tomorrow := now.Add(24 * time.Hour)
	if g.AppliedToday(tomorrow) != 0 {
		t.Errorf("applied count did not roll over to the new day")
	}
}

func TestResetAllClearsProposalsAndWeights(t *testing.T) {
	g, adj := newGuard()
	now := time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC)

	p := g.Propose(LearningInsight{Type: InsightBlock, Bucket: VolHigh, Confidence: 0.9}, 20, 0, now)
	if _, err := g.Decide(p.ID, now); err != nil {
		t.Fatalf("decide: %v", err)
	}

	g.ResetAll()

	if len(g.Proposals()) != 0 {
		t.Error("proposal log not cleared")
	}
	if got := adj.Get(RuleEntryFilter, VolHigh); got != 1.0 {
		t.Errorf("weight = %.2f after reset, want base 1.0", got)
	}
}
