package sizing

import (
	"fmt"
	"math"

	"options-scalping-bot/internal/logging"
)

// PositionSize is the full sizing record. Quantity is always a whole
// multiple of the lot size; Quantity == 0 iff SizingValid == false.
type PositionSize struct {
	Quantity         int     `json:"quantity"`
	LotSize          int     `json:"lot_size"`
	NumLots          int     `json:"num_lots"`
	CapitalAllocated float64 `json:"capital_allocated"`
	MaxLossAmount    float64 `json:"max_loss_amount"`
	HardSLPercent    float64 `json:"hard_sl_percent"`
	HardSLPrice      float64 `json:"hard_sl_price"`
	TargetPrice      float64 `json:"target_price"`
	RiskRewardRatio  float64 `json:"risk_reward_ratio"`
	SizingValid      bool    `json:"sizing_valid"`
	RejectionReason  string  `json:"rejection_reason,omitempty"`
	KellyFraction    float64 `json:"kelly_fraction,omitempty"`
	WinProbability   float64 `json:"win_probability,omitempty"`
	EffectiveRiskPct float64 `json:"effective_risk_pct"`
}

// Greeks carries the optional inputs for probability-weighted sizing.
type Greeks struct {
	Delta          float64
	Gamma          float64
	IV             float64
	BiasConfidence float64
	OIChange       float64
}

// Input is one sizing request.
type Input struct {
	EntryPrice  float64
	SLPrice     float64
	TargetPrice float64
	RiskPercent float64
	Capital     float64
	Greeks      *Greeks // nil disables probability weighting and Kelly
}

// Config holds the sizing caps.
type Config struct {
	RiskPercentMin float64
	RiskPercentMax float64
	HardSLCap      float64 // SL% above this invalidates the trade
	LotSize        int
	MaxQuantity    int
	KellyEnabled   bool
	KellyFraction  float64 // fractional Kelly, default 0.25
}

// Sizer maps risk budgets to lot-aligned quantities.
type Sizer struct {
	cfg Config
	log *logging.Logger
}

// NewSizer creates a position sizer.
func NewSizer(cfg Config, log *logging.Logger) *Sizer {
	if cfg.KellyFraction <= 0 {
		cfg.KellyFraction = 0.25
	}
	return &Sizer{cfg: cfg, log: log.WithComponent("sizing")}
}

// Calculate runs the risk-first sizing pipeline. The caller applies any
// adaptive size multiplier on top of the returned quantity.
func (s *Sizer) Calculate(in Input) PositionSize {
	out := PositionSize{LotSize: s.cfg.LotSize, TargetPrice: in.TargetPrice}

	if in.EntryPrice <= 0 || in.SLPrice <= 0 || in.SLPrice >= in.EntryPrice {
		out.RejectionReason = "invalid entry/SL prices"
		return out
	}
	if in.Capital <= 0 {
		out.RejectionReason = "no capital"
		return out
	}

	slPercent := math.Abs(in.EntryPrice-in.SLPrice) / in.EntryPrice * 100
	out.HardSLPercent = slPercent
	out.HardSLPrice = in.SLPrice

	if slPercent > s.cfg.HardSLCap {
		out.RejectionReason = fmt.Sprintf("SL too wide: %.1f%% above cap %.1f%%", slPercent, s.cfg.HardSLCap)
		return out
	}

	riskPercent := clamp(in.RiskPercent, s.cfg.RiskPercentMin, s.cfg.RiskPercentMax)
	out.EffectiveRiskPct = riskPercent

	if in.Greeks != nil {
		out.WinProbability = winProbability(in.Greeks)

		if s.cfg.KellyEnabled && out.WinProbability > 0.60 && in.TargetPrice > in.EntryPrice {
			kelly := kellyFraction(out.WinProbability, in.TargetPrice-in.EntryPrice, in.EntryPrice-in.SLPrice)
			kelly *= s.cfg.KellyFraction
			kelly = clamp(kelly, 0, 0.20)
			out.KellyFraction = kelly

			// Kelly only ever raises the risk budget, never lowers it.
			if kelly*100 > riskPercent {
				riskPercent = kelly * 100
				out.EffectiveRiskPct = riskPercent
			}
		}
	}

	maxLoss := in.Capital * riskPercent / 100
	lossPerUnit := in.EntryPrice - in.SLPrice
	rawQty := maxLoss / lossPerUnit

	lots := int(rawQty) / s.cfg.LotSize
	if lots < 1 {
		out.RejectionReason = fmt.Sprintf("risk budget %.0f cannot fund one lot of %d", maxLoss, s.cfg.LotSize)
		return out
	}

	quantity := lots * s.cfg.LotSize
	if s.cfg.MaxQuantity > 0 && quantity > s.cfg.MaxQuantity {
		quantity = (s.cfg.MaxQuantity / s.cfg.LotSize) * s.cfg.LotSize
		lots = quantity / s.cfg.LotSize
		if lots < 1 {
			out.RejectionReason = "max position size below one lot"
			return out
		}
	}

	out.Quantity = quantity
	out.NumLots = lots
	out.CapitalAllocated = float64(quantity) * in.EntryPrice
	out.MaxLossAmount = float64(quantity) * lossPerUnit
	if in.TargetPrice > in.EntryPrice {
		out.RiskRewardRatio = (in.TargetPrice - in.EntryPrice) / lossPerUnit
	}
	out.SizingValid = true

	s.log.Debug("position sized",
		"quantity", quantity, "lots", lots,
		"risk_pct", riskPercent, "max_loss", out.MaxLossAmount)
	return out
}

// winProbability estimates P(win) in [0.30, 0.80] from bounded Greek
// contributions on a 0.50 base.
func winProbability(g *Greeks) float64 {
	p := 0.50

	// Delta strength: power zone is worth up to +0.10.
	absDelta := math.Abs(g.Delta)
	switch {
	case absDelta >= 0.45 && absDelta <= 0.65:
		p += 0.05 + (absDelta-0.45)*0.25
	case absDelta > 0.65:
		p += 0.05
	}

	// Gamma magnitude: live gamma up to +0.05.
	p += clamp(g.Gamma*10, 0, 0.05)

	// IV sweet spot 15–25%.
	if g.IV >= 15 && g.IV <= 25 {
		p += 0.05
	} else if g.IV > 40 || g.IV < 10 {
		p -= 0.05
	}

	// Bias conviction above 50 is worth up to +0.10.
	p += clamp((g.BiasConfidence-50)/100*0.2, 0, 0.10)

	// OI confirmation.
	if g.OIChange > 0 {
		p += 0.05
	}

	return clamp(p, 0.30, 0.80)
}

// kellyFraction computes (p·b − q)/b with b = winAmount/lossAmount.
func kellyFraction(p, winAmount, lossAmount float64) float64 {
	if winAmount <= 0 || lossAmount <= 0 {
		return 0
	}
	b := winAmount / lossAmount
	q := 1 - p
	kelly := (p*b - q) / b
	if kelly < 0 {
		return 0
	}
	return kelly
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
