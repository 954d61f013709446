package exits

import (
	"math"
	"sync"
	"time"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/logging"
)

// Trigger names the exit rule that fired.
type Trigger string

const (
	TriggerHardSL        Trigger = "HARD_SL"
	TriggerProfitTarget  Trigger = "PROFIT_TARGET"
	TriggerTrailingSL    Trigger = "TRAILING_SL"
	TriggerProfitLadder  Trigger = "PROFIT_LADDER"
	TriggerTimeBased     Trigger = "TIME_BASED"
	TriggerDeltaWeakness Trigger = "DELTA_WEAKNESS"
	TriggerGammaRollover Trigger = "GAMMA_ROLLOVER"
	TriggerIVCrush       Trigger = "IV_CRUSH"
	TriggerExpiryRush    Trigger = "EXPIRY_RUSH"
)

// Input is the per-tick view of one open trade the engine evaluates.
type Input struct {
	TradeID     string
	EntryPrice  float64
	SLPrice     float64
	TargetPrice float64
	Quantity    int // remaining quantity
	OriginalQty int
	LotSize     int
	EntryTime   time.Time
	EntryDelta  float64
	EntryGamma  float64
	EntryIV     float64

	LTP          float64
	CurrentDelta float64
	CurrentGamma float64
	CurrentTheta float64
	CurrentIV    float64
	Expiry       time.Time
	Now          time.Time // zero means time.Now()
}

// Snapshot describes a fired exit. PartialExit snapshots leave the trade
// active with QtyRemaining.
type Snapshot struct {
	Trigger        Trigger   `json:"trigger"`
	ExitPrice      float64   `json:"exit_price"`
	ExitTime       time.Time `json:"exit_time"`
	Delta          float64   `json:"delta"`
	Gamma          float64   `json:"gamma"`
	Theta          float64   `json:"theta"`
	IV             float64   `json:"iv"`
	HoldingSeconds float64   `json:"holding_seconds"`
	PnLPercent     float64   `json:"pnl_percent"`
	PeakPrice      float64   `json:"peak_price,omitempty"`
	TrailDistance  float64   `json:"trail_distance,omitempty"`
	PartialExit    bool      `json:"partial_exit"`
	QtyExited      int       `json:"qty_exited,omitempty"`
	QtyRemaining   int       `json:"qty_remaining,omitempty"`
	LadderRung     int       `json:"ladder_rung,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// Config holds the exit thresholds.
type Config struct {
	TrailingActivation float64 // pnl% before trailing arms
	TrailingPercent    float64
	Ladder             []config.LadderRung
	MaxHolding         time.Duration
	DeltaWeakness      float64
	GammaRollover      float64
	IVCrushExit        float64 // pp
	ExpiryRushMinutes  int
}

type tradeState struct {
	peak        float64
	trailArmed  bool
	rungsFilled []bool
}

// Engine evaluates the nine exit triggers in precedence order; the first
// match wins. Trailing peaks and ladder fills are keyed by trade id.
type Engine struct {
	cfg Config
	log *logging.Logger

	mu     sync.Mutex
	states map[string]*tradeState
}

// NewEngine creates a smart exit engine.
func NewEngine(cfg Config, log *logging.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		log:    log.WithComponent("exits"),
		states: make(map[string]*tradeState),
	}
}

// Evaluate checks the triggers in order. nil means hold.
func (e *Engine) Evaluate(in Input) *Snapshot {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if in.EntryPrice <= 0 || in.LTP <= 0 {
		return nil
	}

	pnlPercent := (in.LTP - in.EntryPrice) / in.EntryPrice * 100
	holding := now.Sub(in.EntryTime).Seconds()

	base := Snapshot{
		ExitPrice:      in.LTP,
		ExitTime:       now,
		Delta:          in.CurrentDelta,
		Gamma:          in.CurrentGamma,
		Theta:          in.CurrentTheta,
		IV:             in.CurrentIV,
		HoldingSeconds: holding,
		PnLPercent:     pnlPercent,
	}

	st := e.state(in.TradeID)

	// Track the peak while in profit, before any trigger decision.
	e.mu.Lock()
	if pnlPercent >= e.cfg.TrailingActivation {
		st.trailArmed = true
	}
	if st.trailArmed && in.LTP > st.peak {
		st.peak = in.LTP
	}
	peak := st.peak
	armed := st.trailArmed
	e.mu.Unlock()

	// 1. Hard stop loss.
	if in.SLPrice > 0 && in.LTP <= in.SLPrice {
		base.Trigger = TriggerHardSL
		return &base
	}

	// 2. Profit target.
	if in.TargetPrice > 0 && in.LTP >= in.TargetPrice {
		base.Trigger = TriggerProfitTarget
		return &base
	}

	// 3. Trailing stop.
	if armed && peak > 0 {
		trail := peak * e.cfg.TrailingPercent / 100
		if in.LTP < peak-trail {
			base.Trigger = TriggerTrailingSL
			base.PeakPrice = peak
			base.TrailDistance = trail
			return &base
		}
	}

	// 4. Profit ladder.
	if snap := e.checkLadder(in, &base, pnlPercent); snap != nil {
		return snap
	}

	// 5. Time stop.
	if e.cfg.MaxHolding > 0 && holding > e.cfg.MaxHolding.Seconds() {
		base.Trigger = TriggerTimeBased
		return &base
	}

	// 6. Delta weakness.
	if in.EntryDelta != 0 {
		decay := math.Abs(in.EntryDelta-in.CurrentDelta) / math.Abs(in.EntryDelta)
		if decay > e.cfg.DeltaWeakness {
			base.Trigger = TriggerDeltaWeakness
			return &base
		}
	}

	// 7. Gamma rollover.
	if in.EntryGamma > 0 && in.CurrentGamma/in.EntryGamma < e.cfg.GammaRollover {
		base.Trigger = TriggerGammaRollover
		return &base
	}

	// 8. IV crush.
	if in.EntryIV-in.CurrentIV > e.cfg.IVCrushExit {
		base.Trigger = TriggerIVCrush
		return &base
	}

	// 9. Expiry rush.
	if !in.Expiry.IsZero() {
		minutesLeft := in.Expiry.Sub(now).Minutes()
		if minutesLeft <= float64(e.cfg.ExpiryRushMinutes) {
			base.Trigger = TriggerExpiryRush
			return &base
		}
	}

	return nil
}

// checkLadder fires the first unfilled rung whose target is reached.
// Filled rungs are remembered per trade, so the check is idempotent.
func (e *Engine) checkLadder(in Input, base *Snapshot, pnlPercent float64) *Snapshot {
	if len(e.cfg.Ladder) == 0 || in.OriginalQty <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.states[in.TradeID]
	if len(st.rungsFilled) != len(e.cfg.Ladder) {
		st.rungsFilled = make([]bool, len(e.cfg.Ladder))
	}

	for i, rung := range e.cfg.Ladder {
		if st.rungsFilled[i] || pnlPercent < rung.TargetPercent {
			continue
		}

		qty := int(float64(in.OriginalQty) * rung.QtyFraction)
		if in.LotSize > 0 {
			qty = (qty / in.LotSize) * in.LotSize
			if qty < in.LotSize {
				qty = in.LotSize
			}
		}
		if qty >= in.Quantity {
			// Rung empties the position: a full ladder exit.
			st.rungsFilled[i] = true
			out := *base
			out.Trigger = TriggerProfitLadder
			out.LadderRung = i + 1
			out.QtyExited = in.Quantity
			return &out
		}

		st.rungsFilled[i] = true
		out := *base
		out.Trigger = TriggerProfitLadder
		out.LadderRung = i + 1
		out.PartialExit = true
		out.QtyExited = qty
		out.QtyRemaining = in.Quantity - qty
		return &out
	}
	return nil
}

func (e *Engine) state(tradeID string) *tradeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[tradeID]
	if !ok {
		st = &tradeState{}
		e.states[tradeID] = st
	}
	return st
}

// CleanupTrade drops the per-trade trailing and ladder state.
func (e *Engine) CleanupTrade(tradeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, tradeID)
}
