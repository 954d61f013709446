package adaptive

import (
	"fmt"
	"sync"
	"time"

	"options-scalping-bot/internal/logging"
)

// TradeFeatures is the compact record of one completed trade. These are
// the only inputs the adaptive layer consumes.
type TradeFeatures struct {
	Buckets        BucketTuple `json:"buckets"`
	EntryDelta     float64     `json:"entry_delta"`
	EntryGamma     float64     `json:"entry_gamma"`
	EntryTheta     float64     `json:"entry_theta"`
	ExitReason     string      `json:"exit_reason"`
	HoldingMinutes float64     `json:"holding_minutes"`
	Won            bool        `json:"won"`
	PnL            float64     `json:"pnl"`
	Timestamp      time.Time   `json:"timestamp"`
}

// BucketPerformance accumulates outcomes per bucket.
type BucketPerformance struct {
	Bucket             Bucket  `json:"bucket"`
	TotalTrades        int     `json:"total_trades"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	WinRate            float64 `json:"win_rate"`
	TotalPnL           float64 `json:"total_pnl"`
	SampleSizeAdequate bool    `json:"sample_size_adequate"`
}

// InsightType classifies what the learning engine recommends.
type InsightType string

const (
	InsightAmplify  InsightType = "AMPLIFY"
	InsightRestrict InsightType = "RESTRICT"
	InsightBlock    InsightType = "BLOCK"
	InsightNeutral  InsightType = "NEUTRAL"
)

// LearningInsight is one recommendation derived from bucket statistics.
type LearningInsight struct {
	Type           InsightType `json:"type"`
	Bucket         Bucket      `json:"bucket"`
	Reason         string      `json:"reason"`
	Confidence     float64     `json:"confidence"`
	Recommendation float64     `json:"recommendation"` // proposed weight delta
}

// Engine keeps the bounded trade-feature history and derives per-bucket
// statistics and insights from it. Replaying the same tape always yields
// the same statistics.
type Engine struct {
	log         *logging.Logger
	minSample   int
	historySize int

	mu      sync.RWMutex
	history []TradeFeatures
}

// NewEngine creates a learning engine.
func NewEngine(minSample, historySize int, log *logging.Logger) *Engine {
	if minSample <= 0 {
		minSample = 15
	}
	if historySize <= 0 {
		historySize = 1000
	}
	return &Engine{
		log:         log.WithComponent("learning"),
		minSample:   minSample,
		historySize: historySize,
	}
}

// Record appends one completed trade. The record must reflect the trade's
// final outcome; it is never updated afterwards.
func (e *Engine) Record(tf TradeFeatures) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, tf)
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
}

// History returns a copy of the trade tape, oldest first.
func (e *Engine) History() []TradeFeatures {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TradeFeatures, len(e.history))
	copy(out, e.history)
	return out
}

// Reset clears the trade tape. Used on state import, where trade history
// deliberately does not survive.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// BucketStats computes performance per bucket across the whole tape.
func (e *Engine) BucketStats() map[Bucket]BucketPerformance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[Bucket]BucketPerformance)
	for _, tf := range e.history {
		for _, b := range tf.Buckets.All() {
			perf := stats[b]
			perf.Bucket = b
			perf.TotalTrades++
			if tf.Won {
				perf.Wins++
			} else {
				perf.Losses++
			}
			perf.TotalPnL += tf.PnL
			stats[b] = perf
		}
	}

	for b, perf := range stats {
		if perf.TotalTrades > 0 {
			perf.WinRate = float64(perf.Wins) / float64(perf.TotalTrades)
		}
		perf.SampleSizeAdequate = perf.TotalTrades >= e.minSample
		stats[b] = perf
	}
	return stats
}

// ConsecutiveLosses counts the losing streak at the tail of the last 5 trades.
func (e *Engine) ConsecutiveLosses() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	streak := 0
	start := len(e.history) - 5
	if start < 0 {
		start = 0
	}
	for i := len(e.history) - 1; i >= start; i-- {
		if e.history[i].Won {
			break
		}
		streak++
	}
	return streak
}

// ConsecutiveWins counts the winning streak at the tail of the tape.
func (e *Engine) ConsecutiveWins() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	streak := 0
	for i := len(e.history) - 1; i >= 0; i-- {
		if !e.history[i].Won {
			break
		}
		streak++
	}
	return streak
}

// Insights derives AMPLIFY / RESTRICT / BLOCK recommendations from buckets
// that have reached the sample minimums.
func (e *Engine) Insights() []LearningInsight {
	stats := e.BucketStats()

	var insights []LearningInsight
	for b, perf := range stats {
		if perf.TotalTrades < e.minSample {
			continue
		}

		switch {
		case perf.WinRate <= 0.25 && perf.TotalTrades >= 15:
			insights = append(insights, LearningInsight{
				Type:           InsightBlock,
				Bucket:         b,
				Reason:         fmt.Sprintf("win rate %.0f%% over %d trades", perf.WinRate*100, perf.TotalTrades),
				Confidence:     0.9,
				Recommendation: 0, // weight to zero
			})
		case perf.WinRate <= 0.40 && perf.TotalTrades >= 20:
			conf := 0.5 + (0.40 - perf.WinRate)
			insights = append(insights, LearningInsight{
				Type:           InsightRestrict,
				Bucket:         b,
				Reason:         fmt.Sprintf("win rate %.0f%% over %d trades", perf.WinRate*100, perf.TotalTrades),
				Confidence:     conf,
				Recommendation: -0.3 * conf,
			})
		case perf.WinRate >= 0.65 && perf.TotalTrades >= 20:
			conf := 0.5 + (perf.WinRate - 0.65)
			insights = append(insights, LearningInsight{
				Type:           InsightAmplify,
				Bucket:         b,
				Reason:         fmt.Sprintf("win rate %.0f%% over %d trades", perf.WinRate*100, perf.TotalTrades),
				Confidence:     conf,
				Recommendation: 0.3 * conf,
			})
		}
	}
	return insights
}

// Summary returns headline learning statistics for export and dashboards.
func (e *Engine) Summary() map[string]interface{} {
	e.mu.RLock()
	trades := len(e.history)
	wins := 0
	var pnl float64
	for _, tf := range e.history {
		if tf.Won {
			wins++
		}
		pnl += tf.PnL
	}
	e.mu.RUnlock()

	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
	}
	return map[string]interface{}{
		"trades_recorded": trades,
		"wins":            wins,
		"win_rate":        winRate,
		"total_pnl":       pnl,
	}
}
