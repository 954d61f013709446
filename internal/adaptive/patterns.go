package adaptive

import (
	"fmt"
	"sync"
	"time"

	"options-scalping-bot/internal/logging"
)

// PatternType names the grouping dimension of a loss pattern.
type PatternType string

const (
	PatternTemporal   PatternType = "TEMPORAL"
	PatternGreeks     PatternType = "GREEKS"
	PatternExitReason PatternType = "EXIT_REASON"
	PatternVolatility PatternType = "VOLATILITY"
)

// Severity grades a loss pattern by occurrence count.
type Severity string

const (
	SeverityLow      Severity = "LOW"      // 3
	SeverityMedium   Severity = "MEDIUM"   // 4–5
	SeverityHigh     Severity = "HIGH"     // 6–9
	SeverityCritical Severity = "CRITICAL" // ≥10
)

// LossPattern is a recurring losing cluster detected in the recent tape.
type LossPattern struct {
	PatternType       PatternType   `json:"pattern_type"`
	Severity          Severity      `json:"severity"`
	Characteristic    string        `json:"characteristic"`
	Occurrences       int           `json:"occurrences"`
	TotalLoss         float64       `json:"total_loss"`
	FirstOccurrence   time.Time     `json:"first_occurrence"`
	LastOccurrence    time.Time     `json:"last_occurrence"`
	RecommendedAction string        `json:"recommended_action"`
	BlockDuration     time.Duration `json:"block_duration"`
}

// PatternBlock suspends entries whose tuple includes the bucket.
type PatternBlock struct {
	Bucket Bucket    `json:"bucket"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// PatternDetector groups recent losses and raises blocks on buckets that
// keep losing. Only HIGH and CRITICAL patterns produce blocks.
type PatternDetector struct {
	log        *logging.Logger
	windowDays int

	mu     sync.RWMutex
	blocks []PatternBlock
}

// NewPatternDetector creates a detector over a 30-day window.
func NewPatternDetector(log *logging.Logger) *PatternDetector {
	return &PatternDetector{
		log:        log.WithComponent("patterns"),
		windowDays: 30,
	}
}

// Analyze groups losses in the recent window by temporal, greeks,
// exit-reason and volatility dimensions. Groups of 3 or more become
// LossPatterns; HIGH/CRITICAL ones install PatternBlocks.
func (d *PatternDetector) Analyze(history []TradeFeatures, now time.Time) []LossPattern {
	cutoff := now.AddDate(0, 0, -d.windowDays)

	type group struct {
		ptype     PatternType
		bucket    Bucket
		count     int
		totalLoss float64
		first     time.Time
		last      time.Time
	}
	groups := make(map[string]*group)

	record := func(ptype PatternType, bucket Bucket, tf TradeFeatures) {
		key := string(ptype) + "|" + string(bucket)
		g, ok := groups[key]
		if !ok {
			g = &group{ptype: ptype, bucket: bucket, first: tf.Timestamp}
			groups[key] = g
		}
		g.count++
		g.totalLoss += tf.PnL
		if tf.Timestamp.Before(g.first) {
			g.first = tf.Timestamp
		}
		if tf.Timestamp.After(g.last) {
			g.last = tf.Timestamp
		}
	}

	for _, tf := range history {
		if tf.Won || tf.Timestamp.Before(cutoff) {
			continue
		}
		record(PatternTemporal, tf.Buckets.Time, tf)
		record(PatternGreeks, tf.Buckets.GreeksRegime, tf)
		record(PatternExitReason, Bucket(tf.ExitReason), tf)
		record(PatternVolatility, tf.Buckets.Volatility, tf)
	}

	var patterns []LossPattern
	for _, g := range groups {
		if g.count < 3 {
			continue
		}

		severity := gradeSeverity(g.count)
		p := LossPattern{
			PatternType:     g.ptype,
			Severity:        severity,
			Characteristic:  string(g.bucket),
			Occurrences:     g.count,
			TotalLoss:       g.totalLoss,
			FirstOccurrence: g.first,
			LastOccurrence:  g.last,
			BlockDuration:   blockDuration(severity),
		}
		switch severity {
		case SeverityHigh, SeverityCritical:
			p.RecommendedAction = "block"
			d.installBlock(g.ptype, g.bucket, g.count, g.totalLoss, now, p.BlockDuration)
		case SeverityMedium:
			p.RecommendedAction = "reduce size"
		default:
			p.RecommendedAction = "monitor"
		}
		patterns = append(patterns, p)
	}
	return patterns
}

func (d *PatternDetector) installBlock(ptype PatternType, bucket Bucket, count int, loss float64, now time.Time, dur time.Duration) {
	// Exit-reason groups are not entry buckets; nothing to block on.
	if ptype == PatternExitReason {
		return
	}

	reason := fmt.Sprintf("%s: %s - %d losses totalling %.0f in %d days", ptype, bucket, count, loss, d.windowDays)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Extend an existing block on the same bucket rather than stacking.
	for i := range d.blocks {
		if d.blocks[i].Bucket == bucket && d.blocks[i].End.After(now) {
			if newEnd := now.Add(dur); newEnd.After(d.blocks[i].End) {
				d.blocks[i].End = newEnd
				d.blocks[i].Reason = reason
			}
			return
		}
	}

	d.blocks = append(d.blocks, PatternBlock{Bucket: bucket, Start: now, End: now.Add(dur), Reason: reason})
	d.log.Warn("pattern block installed", "bucket", string(bucket), "until", now.Add(dur).Format(time.RFC3339), "reason", reason)
}

// IsBlocked reports whether a bucket has an active block.
func (d *PatternDetector) IsBlocked(bucket Bucket, now time.Time) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, b := range d.blocks {
		if b.Bucket == bucket && !now.Before(b.Start) && now.Before(b.End) {
			return true, b.Reason
		}
	}
	return false, ""
}

// ActiveBlocks returns the blocks still in force.
func (d *PatternDetector) ActiveBlocks(now time.Time) []PatternBlock {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []PatternBlock
	for _, b := range d.blocks {
		if b.End.After(now) {
			out = append(out, b)
		}
	}
	return out
}

// ClearBlocks removes every block. Used by the emergency reset.
func (d *PatternDetector) ClearBlocks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocks = nil
}

func gradeSeverity(count int) Severity {
	switch {
	case count >= 10:
		return SeverityCritical
	case count >= 6:
		return SeverityHigh
	case count >= 4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func blockDuration(s Severity) time.Duration {
	switch s {
	case SeverityCritical:
		return 168 * time.Hour
	case SeverityHigh:
		return 72 * time.Hour
	case SeverityMedium:
		return 48 * time.Hour
	default:
		return 24 * time.Hour
	}
}
