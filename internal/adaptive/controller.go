package adaptive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/logging"
)

// AdaptiveDecision is the controller's verdict on a candidate entry.
type AdaptiveDecision struct {
	ShouldTrade          bool               `json:"should_trade"`
	BlockReason          string             `json:"block_reason,omitempty"`
	RecommendedSize      float64            `json:"recommended_size"` // 0..1.5 multiplier
	RecommendedFrequency float64            `json:"recommended_frequency"`
	Confidence           ConfidenceScore    `json:"confidence"`
	Regime               RegimeResult       `json:"regime"`
	Buckets              BucketTuple        `json:"buckets"`
	ContributingFactors  map[string]float64 `json:"contributing_factors"`
	Explanation          string             `json:"explanation"`
}

// Controller is the adaptive layer's single entry point. It owns the
// learning engine, regime detector, confidence scorer, weight adjuster,
// safety guard and pattern detector, and exposes three operations:
// EvaluateEntry on every candidate, RecordTrade on every close, and
// DailyLearning at end of day.
type Controller struct {
	cfg      config.AdaptiveConfig
	log      *logging.Logger
	bus      *events.EventBus
	learning *Engine
	regime   *RegimeDetector
	scorer   *Scorer
	adjuster *WeightAdjuster
	guard    *SafetyGuard
	patterns *PatternDetector

	mu                sync.RWMutex
	lastDailyLearning time.Time
}

// NewController wires the adaptive sub-components together.
func NewController(cfg config.AdaptiveConfig, bus *events.EventBus, log *logging.Logger) *Controller {
	adjuster := NewWeightAdjuster()
	return &Controller{
		cfg:      cfg,
		log:      log.WithComponent("adaptive"),
		bus:      bus,
		learning: NewEngine(cfg.MinSampleSize, cfg.HistorySize, log),
		regime:   NewRegimeDetector(),
		scorer:   NewScorer(),
		adjuster: adjuster,
		guard:    NewSafetyGuard(adjuster, cfg.MaxAdjustmentsPerDay, cfg.MinAdjustmentInterval, cfg.MaxWeightDelta, cfg.ApplySampleSize, log),
		patterns: NewPatternDetector(log),
	}
}

// Learning exposes the learning engine for replay tooling.
func (c *Controller) Learning() *Engine { return c.learning }

// Weights exposes the weight adjuster for dashboards.
func (c *Controller) Weights() *WeightAdjuster { return c.adjuster }

// Guard exposes the safety guard for dashboards.
func (c *Controller) Guard() *SafetyGuard { return c.guard }

// EvaluateEntry runs a candidate signal through pattern blocks, weight
// blocks, regime detection and confidence scoring. A disabled adaptive
// layer passes everything through at full size.
func (c *Controller) EvaluateEntry(sig SignalFeatures, regimeIn RegimeInput) AdaptiveDecision {
	tuple := ExtractBuckets(sig)

	if !c.cfg.Enabled {
		return AdaptiveDecision{
			ShouldTrade:          true,
			RecommendedSize:      1.0,
			RecommendedFrequency: 1.0,
			Buckets:              tuple,
			Explanation:          "adaptive layer disabled",
		}
	}

	now := sig.At
	if now.IsZero() {
		now = time.Now()
	}

	for _, b := range tuple.All() {
		if blocked, reason := c.patterns.IsBlocked(b, now); blocked {
			c.bus.Publish(events.Event{
				Type:      events.EventPatternBlocked,
				Timestamp: now,
				Data:      map[string]interface{}{"bucket": string(b), "reason": reason},
			})
			return blockedDecision(tuple, fmt.Sprintf("pattern block on %s: %s", b, reason))
		}
	}

	if b, blocked := c.adjuster.BlockedBucket(RuleEntryFilter, tuple); blocked {
		rw, _ := c.adjuster.Lookup(RuleEntryFilter, b)
		return blockedDecision(tuple, fmt.Sprintf("weight block on %s: %s", b, rw.Reason))
	}

	regimeRes := c.regime.Classify(regimeIn)
	stats := c.learning.BucketStats()
	conf := c.scorer.Score(tuple, stats, regimeRes.Regime, c.learning.ConsecutiveLosses())

	if !conf.TradingAllowed {
		d := blockedDecision(tuple, fmt.Sprintf("confidence %.2f below trading floor", conf.Score))
		d.Confidence = conf
		d.Regime = regimeRes
		return d
	}

	size := conf.SizeMultiplier * regimeRes.Posture.Size * c.adjuster.SizeMultiplier(RulePositionSize, tuple)
	if size > 1.5 {
		size = 1.5
	}
	if size < 0 {
		size = 0
	}

	return AdaptiveDecision{
		ShouldTrade:          size > 0,
		RecommendedSize:      size,
		RecommendedFrequency: regimeRes.Posture.Frequency,
		Confidence:           conf,
		Regime:               regimeRes,
		Buckets:              tuple,
		ContributingFactors:  conf.Components,
		Explanation: fmt.Sprintf("%s regime (%.0f%% conf), score %.2f (%s), size %.2fx",
			regimeRes.Regime, regimeRes.Confidence*100, conf.Score, conf.Band, size),
	}
}

func blockedDecision(tuple BucketTuple, reason string) AdaptiveDecision {
	return AdaptiveDecision{
		ShouldTrade: false,
		BlockReason: reason,
		Buckets:     tuple,
		Explanation: reason,
	}
}

// RecordTrade feeds one completed trade into the learning engine.
func (c *Controller) RecordTrade(tf TradeFeatures) {
	c.learning.Record(tf)
}

// DailyLearning is the end-of-day cycle: detect loss patterns, derive
// insights, screen them into proposals, shadow-test, and let the guard
// apply whatever survives. This is the only path that changes weights.
func (c *Controller) DailyLearning(now time.Time) {
	if !c.cfg.Enabled {
		return
	}

	history := c.learning.History()
	lossPatterns := c.patterns.Analyze(history, now)
	if len(lossPatterns) > 0 {
		c.log.Info("loss patterns detected", "count", len(lossPatterns))
	}

	stats := c.learning.BucketStats()
	wins := c.learning.ConsecutiveWins()

	applied := 0
	for _, insight := range c.learning.Insights() {
		sample := stats[insight.Bucket].TotalTrades
		p := c.guard.Propose(insight, sample, wins, now)
		if p.Status != ProposalPending {
			continue
		}

		if p.InsightType != InsightBlock {
			winRate, trades := c.shadowTest(history, insight.Bucket)
			if err := c.guard.RecordShadowResult(p.ID, winRate, trades); err != nil {
				c.log.WithError(err).Warn("shadow result rejected")
				continue
			}
		}

		decided, err := c.guard.Decide(p.ID, now)
		if err != nil {
			c.log.WithError(err).Warn("proposal decision failed")
			continue
		}
		if decided.Status == ProposalApproved {
			applied++
			c.bus.Publish(events.Event{
				Type:      events.EventWeightAdjusted,
				Timestamp: now,
				Data: map[string]interface{}{
					"bucket": string(decided.Bucket),
					"type":   string(decided.InsightType),
					"delta":  decided.Delta,
					"reason": decided.Reason,
				},
			})
		}
	}

	c.mu.Lock()
	c.lastDailyLearning = now
	c.mu.Unlock()

	c.log.Info("daily learning complete", "trades", len(history), "applied", applied)
}

// shadowTest replays the tape restricted to trades carrying the bucket
// and reports what the bucket actually did recently. The replay is pure:
// same tape, same answer.
func (c *Controller) shadowTest(history []TradeFeatures, bucket Bucket) (float64, int) {
	wins, trades := 0, 0
	for _, tf := range history {
		for _, b := range tf.Buckets.All() {
			if b == bucket {
				trades++
				if tf.Won {
					wins++
				}
				break
			}
		}
	}
	if trades == 0 {
		return 0, 0
	}
	return float64(wins) / float64(trades), trades
}

// adaptiveState is the on-disk snapshot format.
type adaptiveState struct {
	LastDailyLearning time.Time              `json:"last_daily_learning"`
	Weights           map[string]RuleWeight  `json:"weights"`
	LearningSummary   map[string]interface{} `json:"learning_summary"`
	Timestamp         time.Time              `json:"timestamp"`
}

// ExportState writes the weight map and learning summary to
// <state_dir>/state_YYYYMMDD.json.
func (c *Controller) ExportState(now time.Time) (string, error) {
	c.mu.RLock()
	last := c.lastDailyLearning
	c.mu.RUnlock()

	state := adaptiveState{
		LastDailyLearning: last,
		Weights:           c.adjuster.Export(),
		LearningSummary:   c.learning.Summary(),
		Timestamp:         now,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal adaptive state: %w", err)
	}

	if err := os.MkdirAll(c.cfg.StateDir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(c.cfg.StateDir, "state_"+now.Format("20060102")+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write adaptive state: %w", err)
	}

	c.log.Info("adaptive state exported", "path", path)
	return path, nil
}

// ImportState restores weights from a prior export. Trade history does
// not survive an import; the tape rebuilds from live trades.
func (c *Controller) ImportState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read adaptive state: %w", err)
	}

	var state adaptiveState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse adaptive state: %w", err)
	}

	if err := c.adjuster.Import(state.Weights); err != nil {
		return fmt.Errorf("restore weights: %w", err)
	}
	c.learning.Reset()

	c.mu.Lock()
	c.lastDailyLearning = state.LastDailyLearning
	c.mu.Unlock()

	c.log.Info("adaptive state imported", "path", path, "weights", len(state.Weights))
	return nil
}

// LatestStatePath returns the most recent state file in the state dir.
func (c *Controller) LatestStatePath() (string, bool) {
	entries, err := os.ReadDir(c.cfg.StateDir)
	if err != nil {
		return "", false
	}
	latest := ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "state_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return "", false
	}
	return filepath.Join(c.cfg.StateDir, latest), true
}

// Status summarises the adaptive layer for dashboards.
func (c *Controller) Status(now time.Time) map[string]interface{} {
	c.mu.RLock()
	last := c.lastDailyLearning
	c.mu.RUnlock()

	return map[string]interface{}{
		"enabled":             c.cfg.Enabled,
		"last_daily_learning": last,
		"applied_today":       c.guard.AppliedToday(now),
		"active_blocks":       c.patterns.ActiveBlocks(now),
		"weights":             c.adjuster.Export(),
		"learning":            c.learning.Summary(),
	}
}
