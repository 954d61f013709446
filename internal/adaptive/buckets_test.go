package adaptive

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 25, hour, minute, 0, 0, time.UTC)
}

func TestTimeBucketSessionPhases(t *testing.T) {
	tests := []struct {
		hour, minute int
		want         Bucket
	}{
		{9, 20, TimeOpening},
		{9, 59, TimeOpening},
		{10, 0, TimeMorning},
		{11, 45, TimeMorning},
		{12, 30, TimeLunch},
		{13, 29, TimeLunch},
		{13, 30, TimeAfternoon},
		{14, 29, TimeAfternoon},
		{14, 30, TimeClosing},
		{15, 25, TimeClosing},
	}
	for _, tt := range tests {
		if got := timeBucket(at(tt.hour, tt.minute)); got != tt.want {
			t.Errorf("timeBucket(%02d:%02d) = %s, want %s", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestExtractBucketsFullTuple(t *testing.T) {
	tuple := ExtractBuckets(SignalFeatures{
		At:              at(9, 30),
		BiasConfidence:  85,
		Delta:           0.52,
		Gamma:           0.005,
		Theta:           -8,
		OIChangePercent: 12,
		IV:              20,
	})

	want := BucketTuple{
		Time:         TimeOpening,
		BiasStrength: BiasHigh,
		GreeksRegime: GreeksHighGamma,
		OIConviction: OIStrong,
		Volatility:   VolNormal,
	}
	if tuple != want {
		t.Fatalf("tuple = %+v, want %+v", tuple, want)
	}
	if len(tuple.All()) != 5 {
		t.Errorf("All() = %v", tuple.All())
	}
}

func TestGreeksBucketThetaDominance(t *testing.T) {
	// Low gamma with heavy decay is a theta leg, not neutral.
	if got := greeksBucket(0.002, -15); got != GreeksHighTheta {
		t.Errorf("greeksBucket(0.002, -15) = %s, want GREEKS_HIGH_THETA", got)
	}
	if got := greeksBucket(0.005, -15); got != GreeksHighGamma {
		t.Errorf("gamma should outrank theta, got %s", got)
	}
	if got := greeksBucket(0.001, -5); got != GreeksNeutral {
		t.Errorf("greeksBucket(0.001, -5) = %s, want GREEKS_NEUTRAL", got)
	}
}

func TestBiasAndOIAndVolBoundaries(t *testing.T) {
	if biasBucket(59.9) != BiasLow || biasBucket(60) != BiasMedium ||
		biasBucket(75) != BiasHigh || biasBucket(90) != BiasExtreme {
		t.Error("bias confidence boundaries off")
	}
	if oiBucket(-12) != OIStrong {
		t.Error("OI conviction should use magnitude, unwinding counts too")
	}
	if oiBucket(5) != OIMedium || oiBucket(1) != OIWeak {
		t.Error("OI change boundaries off")
	}
	if volBucket(14.9) != VolLow || volBucket(30) != VolNormal || volBucket(30.1) != VolHigh {
		t.Error("IV boundaries off")
	}
}
