package sizing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func baseConfig() Config {
	return Config{
		RiskPercentMin: 1.0,
		RiskPercentMax: 3.0,
		HardSLCap:      10.0,
		LotSize:        75,
	}
}

func TestCalculateRiskFirstSizing(t *testing.T) {
	s := NewSizer(baseConfig(), testLogger())

	out := s.Calculate(Input{
		EntryPrice:  101.0,
		SLPrice:     93.93,
		TargetPrice: 115.14,
		RiskPercent: 2.0,
		Capital:     100000,
	})

	require.True(t, out.SizingValid, out.RejectionReason)
	// 2% of 100000 = 2000 budget, 7.07 loss per unit, 282 raw units,
	// floored to 3 lots of 75.
	require.Equal(t, 225, out.Quantity)
	require.Equal(t, 3, out.NumLots)
	require.InDelta(t, 1590.75, out.MaxLossAmount, 0.01)
	require.InDelta(t, 7.0, out.HardSLPercent, 0.01)
	require.InDelta(t, 2.0, out.EffectiveRiskPct, 1e-9)
	require.InDelta(t, 2.0, out.RiskRewardRatio, 0.01)
}

func TestCalculateRejections(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"sl above entry", Input{EntryPrice: 100, SLPrice: 105, RiskPercent: 2, Capital: 100000}},
		{"zero entry", Input{EntryPrice: 0, SLPrice: 95, RiskPercent: 2, Capital: 100000}},
		{"no capital", Input{EntryPrice: 100, SLPrice: 95, RiskPercent: 2, Capital: 0}},
		{"sl too wide", Input{EntryPrice: 100, SLPrice: 85, RiskPercent: 2, Capital: 100000}},
		{"budget below one lot", Input{EntryPrice: 100, SLPrice: 95, RiskPercent: 1, Capital: 20000}},
	}

	s := NewSizer(baseConfig(), testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Calculate(tt.in)
			require.False(t, out.SizingValid)
			require.NotEmpty(t, out.RejectionReason)
			require.Zero(t, out.Quantity)
		})
	}
}

func TestRiskPercentClamped(t *testing.T) {
	s := NewSizer(baseConfig(), testLogger())

	out := s.Calculate(Input{
		EntryPrice:  100,
		SLPrice:     95,
		RiskPercent: 8.0, // above max
		Capital:     100000,
	})
	require.True(t, out.SizingValid)
	require.InDelta(t, 3.0, out.EffectiveRiskPct, 1e-9)
}

func TestKellyOnlyRaisesRisk(t *testing.T) {
	cfg := baseConfig()
	cfg.KellyEnabled = true
	cfg.KellyFraction = 0.25
	s := NewSizer(cfg, testLogger())

	strong := &Greeks{Delta: 0.60, Gamma: 0.005, IV: 20, BiasConfidence: 90, OIChange: 12}

	withKelly := s.Calculate(Input{
		EntryPrice:  100,
		SLPrice:     95,
		TargetPrice: 110,
		RiskPercent: 1.0,
		Capital:     100000,
		Greeks:      strong,
	})
	require.True(t, withKelly.SizingValid)
	require.Greater(t, withKelly.WinProbability, 0.60)
	require.GreaterOrEqual(t, withKelly.EffectiveRiskPct, 1.0)
	require.LessOrEqual(t, withKelly.KellyFraction, 0.20)

	// A weak setup must never shrink the configured risk budget.
	weak := s.Calculate(Input{
		EntryPrice:  100,
		SLPrice:     95,
		TargetPrice: 110,
		RiskPercent: 2.0,
		Capital:     100000,
		Greeks:      &Greeks{Delta: 0.20, Gamma: 0.0005, IV: 45, BiasConfidence: 50},
	})
	require.True(t, weak.SizingValid)
	require.InDelta(t, 2.0, weak.EffectiveRiskPct, 1e-9)
}

func TestMaxQuantityCap(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxQuantity = 150
	s := NewSizer(cfg, testLogger())

	out := s.Calculate(Input{
		EntryPrice:  101,
		SLPrice:     93.93,
		RiskPercent: 2.0,
		Capital:     100000,
	})
	require.True(t, out.SizingValid)
	require.Equal(t, 150, out.Quantity)
	require.Equal(t, 2, out.NumLots)
}

func TestWinProbabilityBounds(t *testing.T) {
	best := winProbability(&Greeks{Delta: 0.55, Gamma: 0.01, IV: 20, BiasConfidence: 100, OIChange: 20})
	require.LessOrEqual(t, best, 0.80)

	worst := winProbability(&Greeks{Delta: 0.10, Gamma: 0, IV: 60, BiasConfidence: 0, OIChange: -5})
	require.GreaterOrEqual(t, worst, 0.30)
}
