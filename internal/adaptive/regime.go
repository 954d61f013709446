package adaptive

import "math"

// Regime is a coarse characterisation of market behaviour.
type Regime string

const (
	RegimeTrendingBullish Regime = "TRENDING_BULLISH"
	RegimeTrendingBearish Regime = "TRENDING_BEARISH"
	RegimeChoppy          Regime = "CHOPPY"
	RegimeHighVolatility  Regime = "HIGH_VOLATILITY"
	RegimeLowVolatility   Regime = "LOW_VOLATILITY"
	RegimeEventDriven     Regime = "EVENT_DRIVEN"
	RegimeNormal          Regime = "NORMAL"
)

// Posture is the recommended trading stance for a regime.
type Posture struct {
	Frequency    float64 `json:"frequency"` // multiplier on signal acceptance
	Size         float64 `json:"size"`      // multiplier on position size
	HoldingStyle string  `json:"holding_style"`
}

// RegimeInput is the market snapshot the detector classifies.
type RegimeInput struct {
	PriceRangePercent float64 // session high-low as % of spot
	HigherHighs       bool
	LowerLows         bool
	CurrentIV         float64 // VIX proxy
	ATRPercent        float64
	ROCShort          float64 // % rate of change, short window
	ROCMedium         float64
	OIImbalance       float64 // CE vs PE OI skew, -1..1
	IVExpansion       float64 // pp change in IV over the session
	VolumeSurge       float64 // current / rolling mean
}

// RegimeResult is the detector's classification.
type RegimeResult struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"`
	Posture    Posture `json:"posture"`
}

// RegimeDetector classifies the current market regime from price action,
// volatility and positioning.
type RegimeDetector struct{}

// NewRegimeDetector creates a regime detector.
func NewRegimeDetector() *RegimeDetector { return &RegimeDetector{} }

// Classify applies the regime rules in priority order: event shocks first,
// volatility extremes next, then trend and chop.
func (d *RegimeDetector) Classify(in RegimeInput) RegimeResult {
	switch {
	case in.IVExpansion >= 5 && in.VolumeSurge >= 2.5:
		return result(RegimeEventDriven, 0.85)

	case in.CurrentIV > 35 || in.ATRPercent > 1.5:
		return result(RegimeHighVolatility, 0.8)

	case in.CurrentIV > 0 && in.CurrentIV < 12 && in.ATRPercent < 0.3:
		return result(RegimeLowVolatility, 0.7)

	case in.HigherHighs && !in.LowerLows && in.ROCShort > 0.1 && in.ROCMedium > 0:
		return result(RegimeTrendingBullish, trendConfidence(in))

	case in.LowerLows && !in.HigherHighs && in.ROCShort < -0.1 && in.ROCMedium < 0:
		return result(RegimeTrendingBearish, trendConfidence(in))

	case !in.HigherHighs && !in.LowerLows && in.PriceRangePercent < 0.4:
		return result(RegimeChoppy, 0.75)

	default:
		return result(RegimeNormal, 0.6)
	}
}

func trendConfidence(in RegimeInput) float64 {
	conf := 0.7 + math.Min(0.2, math.Abs(in.ROCShort)/2)
	if math.Abs(in.OIImbalance) > 0.2 {
		conf = math.Min(0.95, conf+0.05)
	}
	return conf
}

func result(r Regime, conf float64) RegimeResult {
	return RegimeResult{Regime: r, Confidence: conf, Posture: postureFor(r)}
}

func postureFor(r Regime) Posture {
	switch r {
	case RegimeTrendingBullish, RegimeTrendingBearish:
		return Posture{Frequency: 1.2, Size: 1.0, HoldingStyle: "let-winners-run"}
	case RegimeChoppy:
		return Posture{Frequency: 0.4, Size: 0.5, HoldingStyle: "quick-scalps"}
	case RegimeHighVolatility:
		return Posture{Frequency: 0.6, Size: 0.6, HoldingStyle: "tight-stops"}
	case RegimeLowVolatility:
		return Posture{Frequency: 0.8, Size: 0.8, HoldingStyle: "patient"}
	case RegimeEventDriven:
		return Posture{Frequency: 0.3, Size: 0.4, HoldingStyle: "hit-and-run"}
	default:
		return Posture{Frequency: 1.0, Size: 1.0, HoldingStyle: "standard"}
	}
}

// regimeConfidenceScore is the lookup the confidence scorer uses.
func regimeConfidenceScore(r Regime) float64 {
	switch r {
	case RegimeTrendingBullish, RegimeTrendingBearish:
		return 0.75
	case RegimeChoppy:
		return 0.30
	case RegimeEventDriven:
		return 0.20
	case RegimeHighVolatility:
		return 0.40
	case RegimeLowVolatility:
		return 0.55
	default:
		return 0.60
	}
}
