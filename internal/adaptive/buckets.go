package adaptive

import (
	"math"
	"time"
)

// Bucket is a discrete categorical feature used by the adaptive layer.
// Values carry their dimension prefix so a flat set stays unambiguous.
type Bucket string

// Time-of-day buckets (IST session).
const (
	TimeOpening   Bucket = "TIME_OPENING"   // 09:15–10:00
	TimeMorning   Bucket = "TIME_MORNING"   // 10:00–12:00
	TimeLunch     Bucket = "TIME_LUNCH"     // 12:00–13:30
	TimeAfternoon Bucket = "TIME_AFTERNOON" // 13:30–14:30
	TimeClosing   Bucket = "TIME_CLOSING"   // 14:30–15:30
)

// Bias-strength buckets.
const (
	BiasLow     Bucket = "BIAS_LOW"
	BiasMedium  Bucket = "BIAS_MEDIUM"
	BiasHigh    Bucket = "BIAS_HIGH"
	BiasExtreme Bucket = "BIAS_EXTREME"
)

// Greeks-regime buckets.
const (
	GreeksHighGamma Bucket = "GREEKS_HIGH_GAMMA"
	GreeksHighTheta Bucket = "GREEKS_HIGH_THETA"
	GreeksNeutral   Bucket = "GREEKS_NEUTRAL"
)

// OI-conviction buckets.
const (
	OIWeak   Bucket = "OI_WEAK"
	OIMedium Bucket = "OI_MEDIUM"
	OIStrong Bucket = "OI_STRONG"
)

// Volatility buckets.
const (
	VolLow    Bucket = "VOL_LOW"
	VolNormal Bucket = "VOL_NORMAL"
	VolHigh   Bucket = "VOL_HIGH"
)

// BucketTuple is the five-dimensional feature tuple attached to every
// signal and every completed trade.
type BucketTuple struct {
	Time         Bucket `json:"time"`
	BiasStrength Bucket `json:"bias_strength"`
	GreeksRegime Bucket `json:"greeks_regime"`
	OIConviction Bucket `json:"oi_conviction"`
	Volatility   Bucket `json:"volatility"`
}

// All returns the tuple as a slice for iteration.
func (t BucketTuple) All() []Bucket {
	return []Bucket{t.Time, t.BiasStrength, t.GreeksRegime, t.OIConviction, t.Volatility}
}

// SignalFeatures is the live market context a candidate entry carries
// into the adaptive pipeline.
type SignalFeatures struct {
	At              time.Time
	BiasConfidence  float64
	Delta           float64
	Gamma           float64
	Theta           float64
	OIChangePercent float64
	IV              float64
}

const (
	highGammaThreshold = 0.004
	highThetaThreshold = 12 // |theta| above this dominates the leg
)

// ExtractBuckets maps live signal features onto the finite bucket tuple.
func ExtractBuckets(sig SignalFeatures) BucketTuple {
	return BucketTuple{
		Time:         timeBucket(sig.At),
		BiasStrength: biasBucket(sig.BiasConfidence),
		GreeksRegime: greeksBucket(sig.Gamma, sig.Theta),
		OIConviction: oiBucket(sig.OIChangePercent),
		Volatility:   volBucket(sig.IV),
	}
}

func timeBucket(at time.Time) Bucket {
	minutes := at.Hour()*60 + at.Minute()
	switch {
	case minutes < 10*60:
		return TimeOpening
	case minutes < 12*60:
		return TimeMorning
	case minutes < 13*60+30:
		return TimeLunch
	case minutes < 14*60+30:
		return TimeAfternoon
	default:
		return TimeClosing
	}
}

func biasBucket(confidence float64) Bucket {
	switch {
	case confidence < 60:
		return BiasLow
	case confidence < 75:
		return BiasMedium
	case confidence < 90:
		return BiasHigh
	default:
		return BiasExtreme
	}
}

func greeksBucket(gamma, theta float64) Bucket {
	switch {
	case gamma >= highGammaThreshold:
		return GreeksHighGamma
	case math.Abs(theta) >= highThetaThreshold:
		return GreeksHighTheta
	default:
		return GreeksNeutral
	}
}

func oiBucket(oiChangePercent float64) Bucket {
	abs := math.Abs(oiChangePercent)
	switch {
	case abs >= 10:
		return OIStrong
	case abs >= 3:
		return OIMedium
	default:
		return OIWeak
	}
}

func volBucket(iv float64) Bucket {
	switch {
	case iv < 15:
		return VolLow
	case iv <= 30:
		return VolNormal
	default:
		return VolHigh
	}
}
