package adaptive

// ConfidenceBand classifies a confidence score.
type ConfidenceBand string

const (
	BandVeryLow  ConfidenceBand = "VERY_LOW"
	BandLow      ConfidenceBand = "LOW"
	BandMedium   ConfidenceBand = "MEDIUM"
	BandHigh     ConfidenceBand = "HIGH"
	BandVeryHigh ConfidenceBand = "VERY_HIGH"
)

// ConfidenceScore is the scorer's output.
type ConfidenceScore struct {
	Score          float64            `json:"score"` // 0..1
	Band           ConfidenceBand     `json:"band"`
	SizeMultiplier float64            `json:"size_multiplier"`
	TradingAllowed bool               `json:"trading_allowed"`
	Components     map[string]float64 `json:"components"`
}

// Component weights.
const (
	weightHistorical = 0.40
	weightRegime     = 0.25
	weightRecent     = 0.20
	weightAdequacy   = 0.15
)

// Scorer combines historical bucket performance, the current regime,
// recent results and sample adequacy into one confidence score.
type Scorer struct{}

// NewScorer creates a confidence scorer.
func NewScorer() *Scorer { return &Scorer{} }

// Score computes confidence for a signal tuple.
func (s *Scorer) Score(tuple BucketTuple, stats map[Bucket]BucketPerformance, regime Regime, consecutiveLosses int) ConfidenceScore {
	historical := historicalComponent(tuple, stats)
	regimeScore := regimeConfidenceScore(regime)
	recent := recentComponent(consecutiveLosses)
	adequacy := adequacyComponent(tuple, stats)

	score := historical*weightHistorical +
		regimeScore*weightRegime +
		recent*weightRecent +
		adequacy*weightAdequacy

	band := classify(score)
	return ConfidenceScore{
		Score:          score,
		Band:           band,
		SizeMultiplier: sizeMultiplier(band),
		TradingAllowed: score >= 0.40,
		Components: map[string]float64{
			"historical": historical,
			"regime":     regimeScore,
			"recent":     recent,
			"adequacy":   adequacy,
		},
	}
}

// historicalComponent averages win rate across tuple buckets with
// adequate samples. With no adequate buckets it stays neutral at 0.5.
func historicalComponent(tuple BucketTuple, stats map[Bucket]BucketPerformance) float64 {
	var sum float64
	var n int
	for _, b := range tuple.All() {
		if perf, ok := stats[b]; ok && perf.SampleSizeAdequate {
			sum += perf.WinRate
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

// recentComponent starts at 0.70 and loses 0.10 per consecutive loss in
// the last 5 trades, floored at 0.30.
func recentComponent(consecutiveLosses int) float64 {
	score := 0.70 - 0.10*float64(consecutiveLosses)
	if score < 0.30 {
		score = 0.30
	}
	return score
}

func adequacyComponent(tuple BucketTuple, stats map[Bucket]BucketPerformance) float64 {
	adequate := 0
	for _, b := range tuple.All() {
		if perf, ok := stats[b]; ok && perf.SampleSizeAdequate {
			adequate++
		}
	}
	return float64(adequate) / float64(len(tuple.All()))
}

func classify(score float64) ConfidenceBand {
	switch {
	case score < 0.30:
		return BandVeryLow
	case score < 0.50:
		return BandLow
	case score < 0.70:
		return BandMedium
	case score < 0.85:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

func sizeMultiplier(band ConfidenceBand) float64 {
	switch band {
	case BandVeryLow:
		return 0
	case BandLow:
		return 0.5
	case BandMedium:
		return 0.8
	case BandHigh:
		return 1.0
	default:
		return 1.2
	}
}
