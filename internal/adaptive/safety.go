package adaptive

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"options-scalping-bot/internal/logging"
)

// ProposalStatus tracks a learning proposal through its lifecycle.
type ProposalStatus string

const (
	ProposalPending      ProposalStatus = "PENDING"
	ProposalShadowTested ProposalStatus = "SHADOW_TESTED"
	ProposalApproved     ProposalStatus = "APPROVED"
	ProposalRejected     ProposalStatus = "REJECTED"
)

// LearningProposal is one candidate weight change. Proposals never touch
// live weights until the guard approves them.
type LearningProposal struct {
	ID            string         `json:"id"`
	Rule          RuleType       `json:"rule"`
	Bucket        Bucket         `json:"bucket"`
	Delta         float64        `json:"delta"`
	InsightType   InsightType    `json:"insight_type"`
	Reason        string         `json:"reason"`
	Confidence    float64        `json:"confidence"`
	SampleSize    int            `json:"sample_size"`
	ShadowWinRate float64        `json:"shadow_win_rate"`
	ShadowTrades  int            `json:"shadow_trades"`
	Status        ProposalStatus `json:"status"`
	StatusReason  string         `json:"status_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	DecidedAt     time.Time      `json:"decided_at,omitempty"`
}

// SafetyGuard enforces the limits on how fast and how far the adaptive
// layer can move live weights.
type SafetyGuard struct {
	log      *logging.Logger
	adjuster *WeightAdjuster

	maxPerDay   int
	minInterval time.Duration
	maxDelta    float64
	minSample   int

	mu           sync.Mutex
	proposals    []LearningProposal
	appliedToday int
	appliedDay   string
}

// NewSafetyGuard creates a guard over the given adjuster.
func NewSafetyGuard(adjuster *WeightAdjuster, maxPerDay int, minInterval time.Duration, maxDelta float64, minSample int, log *logging.Logger) *SafetyGuard {
	if maxPerDay <= 0 {
		maxPerDay = 5
	}
	if minInterval <= 0 {
		minInterval = 24 * time.Hour
	}
	if maxDelta <= 0 {
		maxDelta = 0.5
	}
	if minSample <= 0 {
		minSample = 20
	}
	return &SafetyGuard{
		log:         log.WithComponent("safety_guard"),
		adjuster:    adjuster,
		maxPerDay:   maxPerDay,
		minInterval: minInterval,
		maxDelta:    maxDelta,
		minSample:   minSample,
	}
}

// Propose screens an insight into a pending proposal. Insights that fail
// the hard gates are recorded as rejected and never shadow-tested.
func (g *SafetyGuard) Propose(insight LearningInsight, sampleSize, consecutiveWins int, now time.Time) LearningProposal {
	p := LearningProposal{
		ID:          uuid.New().String(),
		Rule:        RuleEntryFilter,
		Bucket:      insight.Bucket,
		Delta:       capDelta(insight.Recommendation, g.maxDelta),
		InsightType: insight.Type,
		Reason:      insight.Reason,
		Confidence:  insight.Confidence,
		SampleSize:  sampleSize,
		Status:      ProposalPending,
		CreatedAt:   now,
	}

	switch {
	case insight.Confidence < 0.40:
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("confidence %.2f below 0.40", insight.Confidence)
		p.DecidedAt = now
	case sampleSize < g.minSample:
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("sample size %d below %d", sampleSize, g.minSample)
		p.DecidedAt = now
	case insight.Type == InsightAmplify && consecutiveWins >= 5:
		// A hot streak inflates recent win rates; amplifying on top of it
		// compounds the bet at exactly the wrong time.
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("amplify denied during %d-win streak", consecutiveWins)
		p.DecidedAt = now
	case g.withinInterval(p.Rule, p.Bucket, now):
		p.Status = ProposalRejected
		p.StatusReason = "weight adjusted within minimum interval"
		p.DecidedAt = now
	}

	g.mu.Lock()
	g.proposals = append(g.proposals, p)
	g.mu.Unlock()

	if p.Status == ProposalRejected {
		g.log.Info("proposal rejected", "bucket", string(p.Bucket), "type", string(p.InsightType), "reason", p.StatusReason)
	}
	return p
}

// RecordShadowResult attaches shadow-test performance to a pending
// proposal and moves it to SHADOW_TESTED.
func (g *SafetyGuard) RecordShadowResult(id string, winRate float64, trades int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.proposals {
		if g.proposals[i].ID == id {
			if g.proposals[i].Status != ProposalPending {
				return fmt.Errorf("proposal %s is %s, not pending", id, g.proposals[i].Status)
			}
			g.proposals[i].ShadowWinRate = winRate
			g.proposals[i].ShadowTrades = trades
			g.proposals[i].Status = ProposalShadowTested
			return nil
		}
	}
	return fmt.Errorf("proposal %s not found", id)
}

// Decide approves or rejects a shadow-tested proposal. Approval applies
// the capped delta through the adjuster. BLOCK insights skip the shadow
// win-rate test: a bucket that lost its way out needs no simulation.
func (g *SafetyGuard) Decide(id string, now time.Time) (LearningProposal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var p *LearningProposal
	for i := range g.proposals {
		if g.proposals[i].ID == id {
			p = &g.proposals[i]
			break
		}
	}
	if p == nil {
		return LearningProposal{}, fmt.Errorf("proposal %s not found", id)
	}
	if p.Status != ProposalShadowTested && !(p.Status == ProposalPending && p.InsightType == InsightBlock) {
		return *p, fmt.Errorf("proposal %s is %s, not decidable", id, p.Status)
	}

	g.rollDay(now)

	switch {
	case g.appliedToday >= g.maxPerDay:
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("daily adjustment limit %d reached", g.maxPerDay)
	case p.InsightType == InsightBlock:
		p.Status = ProposalApproved
		g.adjuster.SetZero(p.Rule, p.Bucket, p.Reason)
		g.appliedToday++
	case p.Confidence < 0.70:
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("confidence %.2f below 0.70", p.Confidence)
	case p.ShadowWinRate < 0.60:
		p.Status = ProposalRejected
		p.StatusReason = fmt.Sprintf("shadow win rate %.0f%% below 60%%", p.ShadowWinRate*100)
	default:
		p.Status = ProposalApproved
		g.adjuster.Apply(p.Rule, p.Bucket, p.Delta, p.Reason)
		g.appliedToday++
	}
	p.DecidedAt = now

	if p.Status == ProposalApproved {
		g.log.Info("proposal approved", "bucket", string(p.Bucket), "type", string(p.InsightType), "delta", p.Delta)
	} else {
		g.log.Info("proposal rejected", "bucket", string(p.Bucket), "type", string(p.InsightType), "reason", p.StatusReason)
	}
	return *p, nil
}

// Proposals returns a copy of the proposal log.
func (g *SafetyGuard) Proposals() []LearningProposal {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]LearningProposal, len(g.proposals))
	copy(out, g.proposals)
	return out
}

// AppliedToday reports how many adjustments have gone live today.
func (g *SafetyGuard) AppliedToday(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDay(now)
	return g.appliedToday
}

// ResetAll is the emergency primitive: every weight back to base and the
// proposal log cleared.
func (g *SafetyGuard) ResetAll() {
	g.mu.Lock()
	g.proposals = nil
	g.appliedToday = 0
	g.mu.Unlock()
	g.adjuster.ResetAll()
	g.log.Warn("all adaptive weights reset to base")
}

func (g *SafetyGuard) withinInterval(rule RuleType, bucket Bucket, now time.Time) bool {
	last := g.adjuster.LastAdjusted(rule, bucket)
	return !last.IsZero() && now.Sub(last) < g.minInterval
}

func (g *SafetyGuard) rollDay(now time.Time) {
	day := now.Format("2006-01-02")
	if day != g.appliedDay {
		g.appliedDay = day
		g.appliedToday = 0
	}
}

func capDelta(delta, max float64) float64 {
	if delta > max {
		return max
	}
	if delta < -max {
		return -max
	}
	return delta
}
