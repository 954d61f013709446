package adaptive

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	d := NewRegimeDetector()

	tests := []struct {
		name string
		in   RegimeInput
		want Regime
	}{
		{
			name: "event shock outranks everything",
			in:   RegimeInput{IVExpansion: 6, VolumeSurge: 3, CurrentIV: 40, HigherHighs: true, ROCShort: 0.5, ROCMedium: 0.2},
			want: RegimeEventDriven,
		},
		{
			name: "elevated iv is high volatility",
			in:   RegimeInput{CurrentIV: 38, HigherHighs: true, ROCShort: 0.5, ROCMedium: 0.2},
			want: RegimeHighVolatility,
		},
		{
			name: "atr alone triggers high volatility",
			in:   RegimeInput{CurrentIV: 20, ATRPercent: 1.8},
			want: RegimeHighVolatility,
		},
		{
			name: "dead tape is low volatility",
			in:   RegimeInput{CurrentIV: 10, ATRPercent: 0.2},
			want: RegimeLowVolatility,
		},
		{
			name: "higher highs with momentum is trending bullish",
			in:   RegimeInput{CurrentIV: 18, ATRPercent: 0.8, HigherHighs: true, ROCShort: 0.3, ROCMedium: 0.1},
			want: RegimeTrendingBullish,
		},
		{
			name: "lower lows with momentum is trending bearish",
			in:   RegimeInput{CurrentIV: 18, ATRPercent: 0.8, LowerLows: true, ROCShort: -0.3, ROCMedium: -0.1},
			want: RegimeTrendingBearish,
		},
		{
			name: "tight range without structure is choppy",
			in:   RegimeInput{CurrentIV: 18, ATRPercent: 0.5, PriceRangePercent: 0.3},
			want: RegimeChoppy,
		},
		{
			name: "everything else is normal",
			in:   RegimeInput{CurrentIV: 18, ATRPercent: 0.8, PriceRangePercent: 0.9},
			want: RegimeNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Classify(tt.in)
			if got.Regime != tt.want {
				t.Fatalf("regime = %s, want %s", got.Regime, tt.want)
			}
		})
	}
}

func TestPostureMatchesRegime(t *testing.T) {
	d := NewRegimeDetector()

	choppy := d.Classify(RegimeInput{CurrentIV: 18, ATRPercent: 0.5, PriceRangePercent: 0.3})
	if choppy.Posture.Size != 0.5 || choppy.Posture.Frequency != 0.4 {
		t.Errorf("choppy posture = %+v, want half size at 0.4 frequency", choppy.Posture)
	}

	event := d.Classify(RegimeInput{IVExpansion: 6, VolumeSurge: 3})
	if event.Posture.Size != 0.4 || event.Posture.HoldingStyle != "hit-and-run" {
		t.Errorf("event posture = %+v", event.Posture)
	}

	trend := d.Classify(RegimeInput{CurrentIV: 18, ATRPercent: 0.8, HigherHighs: true, ROCShort: 0.3, ROCMedium: 0.1})
	if trend.Posture.Size != 1.0 || trend.Posture.Frequency != 1.2 {
		t.Errorf("trend posture = %+v, want full size at 1.2 frequency", trend.Posture)
	}
}

func TestTrendConfidenceRewardsOISkew(t *testing.T) {
	d := NewRegimeDetector()

	base := RegimeInput{CurrentIV: 18, ATRPercent: 0.8, HigherHighs: true, ROCShort: 0.3, ROCMedium: 0.1}
	plain := d.Classify(base)

	base.OIImbalance = 0.5
	skewed := d.Classify(base)

	if skewed.Confidence <= plain.Confidence {
		t.Fatalf("confidence %.2f with OI skew not above %.2f without", skewed.Confidence, plain.Confidence)
	}
}
