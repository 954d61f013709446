package adaptive

import (
	"fmt"
	"sync"
	"time"
)

// RuleType names a tunable rule family.
type RuleType string

const (
	RuleEntryFilter  RuleType = "ENTRY_FILTER"
	RulePositionSize RuleType = "POSITION_SIZE"
	RuleExitTiming   RuleType = "EXIT_TIMING"
)

// RuleWeight is one adaptive multiplier in [Min, Max], seeded at Base.
// Current == 0 fully blocks the rule for that bucket.
type RuleWeight struct {
	Current        float64   `json:"current"`
	Base           float64   `json:"base"`
	Min            float64   `json:"min"`
	Max            float64   `json:"max"`
	LastAdjustedAt time.Time `json:"last_adjusted_at,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// WeightAdjuster maintains per-(rule, bucket) weights. All mutations come
// through approved proposals; callers never write weights directly.
type WeightAdjuster struct {
	mu      sync.RWMutex
	weights map[string]*RuleWeight
}

// NewWeightAdjuster creates an adjuster with every weight implicitly 1.0.
func NewWeightAdjuster() *WeightAdjuster {
	return &WeightAdjuster{weights: make(map[string]*RuleWeight)}
}

func weightKey(rule RuleType, bucket Bucket) string {
	return string(rule) + "|" + string(bucket)
}

// Get returns the current weight for a (rule, bucket), defaulting to 1.0.
func (w *WeightAdjuster) Get(rule RuleType, bucket Bucket) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if rw, ok := w.weights[weightKey(rule, bucket)]; ok {
		return rw.Current
	}
	return 1.0
}

// Lookup returns the full weight record when one has been adjusted.
func (w *WeightAdjuster) Lookup(rule RuleType, bucket Bucket) (RuleWeight, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if rw, ok := w.weights[weightKey(rule, bucket)]; ok {
		return *rw, true
	}
	return RuleWeight{}, false
}

// LastAdjusted returns when a weight last changed, zero if never.
func (w *WeightAdjuster) LastAdjusted(rule RuleType, bucket Bucket) time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if rw, ok := w.weights[weightKey(rule, bucket)]; ok {
		return rw.LastAdjustedAt
	}
	return time.Time{}
}

// SizeMultiplier is the product of a tuple's bucket weights for a rule,
// clamped to [0.5, 1.5]. A zero weight bypasses the clamp: it hard-blocks.
func (w *WeightAdjuster) SizeMultiplier(rule RuleType, tuple BucketTuple) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	product := 1.0
	for _, b := range tuple.All() {
		weight := 1.0
		if rw, ok := w.weights[weightKey(rule, b)]; ok {
			weight = rw.Current
		}
		if weight == 0 {
			return 0
		}
		product *= weight
	}

	if product < 0.5 {
		return 0.5
	}
	if product > 1.5 {
		return 1.5
	}
	return product
}

// BlockedBucket returns the first bucket in the tuple whose entry weight
// is zero, if any.
func (w *WeightAdjuster) BlockedBucket(rule RuleType, tuple BucketTuple) (Bucket, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, b := range tuple.All() {
		if rw, ok := w.weights[weightKey(rule, b)]; ok && rw.Current == 0 {
			return b, true
		}
	}
	return "", false
}

// Apply shifts a weight by delta, clamping into [Min, Max]. The caller
// (safety guard path) is responsible for capping delta per application.
func (w *WeightAdjuster) Apply(rule RuleType, bucket Bucket, delta float64, reason string) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := weightKey(rule, bucket)
	rw, ok := w.weights[key]
	if !ok {
		rw = &RuleWeight{Current: 1.0, Base: 1.0, Min: 0.0, Max: 2.0}
		w.weights[key] = rw
	}

	rw.Current += delta
	if rw.Current < rw.Min {
		rw.Current = rw.Min
	}
	if rw.Current > rw.Max {
		rw.Current = rw.Max
	}
	rw.LastAdjustedAt = time.Now()
	rw.Reason = reason
	return rw.Current
}

// SetZero hard-blocks a (rule, bucket).
func (w *WeightAdjuster) SetZero(rule RuleType, bucket Bucket, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := weightKey(rule, bucket)
	rw, ok := w.weights[key]
	if !ok {
		rw = &RuleWeight{Base: 1.0, Min: 0.0, Max: 2.0}
		w.weights[key] = rw
	}
	rw.Current = 0
	rw.LastAdjustedAt = time.Now()
	rw.Reason = reason
}

// ResetAll restores every weight to its base of 1.0.
func (w *WeightAdjuster) ResetAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rw := range w.weights {
		rw.Current = rw.Base
		rw.LastAdjustedAt = time.Now()
		rw.Reason = "emergency reset"
	}
}

// Export returns a deep copy of the weight map for state export.
func (w *WeightAdjuster) Export() map[string]RuleWeight {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]RuleWeight, len(w.weights))
	for k, rw := range w.weights {
		out[k] = *rw
	}
	return out
}

// Import replaces the weight map from an exported state.
func (w *WeightAdjuster) Import(weights map[string]RuleWeight) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	restored := make(map[string]*RuleWeight, len(weights))
	for k, rw := range weights {
		if rw.Current < rw.Min || rw.Current > rw.Max {
			return fmt.Errorf("weight %s out of range: %.2f not in [%.2f, %.2f]", k, rw.Current, rw.Min, rw.Max)
		}
		cp := rw
		restored[k] = &cp
	}
	w.weights = restored
	return nil
}
