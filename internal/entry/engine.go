package entry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/smartmoney"
	"options-scalping-bot/internal/strikes"
)

// Signal is the entry decision.
type Signal string

const (
	NoSignal Signal = "NO_SIGNAL"
	CallBuy  Signal = "CALL_BUY"
	PutBuy   Signal = "PUT_BUY"
)

// Context is the immutable record an approved entry carries downstream.
type Context struct {
	Signal     Signal            `json:"signal"`
	OptionType broker.OptionType `json:"option_type"`
	Symbol     string            `json:"symbol"`
	Strike     float64           `json:"strike"`
	EntryPrice float64           `json:"entry_price"`
	EntryDelta float64           `json:"entry_delta"`
	EntryGamma float64           `json:"entry_gamma"`
	EntryTheta float64           `json:"entry_theta"`
	EntryIV    float64           `json:"entry_iv"`
	ReasonTags []string          `json:"reason_tags"`
	Confidence float64           `json:"confidence"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Config holds the entry thresholds.
type Config struct {
	MinConfidence       float64
	MaxSpreadPercent    float64
	IdealGammaMin       float64
	BullishDeltaMin     float64
	BearishDeltaMax     float64
	MaxTrapProbability  float64
	RejectOIFlat        float64 // price move % that demands OI participation
	RejectIVDrop        float64 // pp
	RejectSpreadWiden   float64 // pp of spread% widening between refreshes
	RejectDeltaCollapse float64 // delta give-back after a spike
	ChoppyPriceEpsilon  float64 // |ΔLTP|/LTP below this is "flat"
}

const gammaEpsilon = 1e-5

// Engine checks multi-factor alignment and rejection rules. It emits an
// entry context but never opens positions itself.
type Engine struct {
	cfg Config
	log *logging.Logger

	mu     sync.Mutex
	deltas map[string][]float64 // recent deltas per symbol for spike/chop checks
}

// NewEngine creates an entry engine.
func NewEngine(cfg Config, log *logging.Logger) *Engine {
	if cfg.ChoppyPriceEpsilon <= 0 {
		cfg.ChoppyPriceEpsilon = 0.001
	}
	return &Engine{
		cfg:    cfg,
		log:    log.WithComponent("entry"),
		deltas: make(map[string][]float64),
	}
}

// Evaluate runs the full gate over the current bias, the chosen leg's
// current and previous snapshots and the smart-money read. All factors
// must pass; the first failure returns NO_SIGNAL with the failing reason.
func (e *Engine) Evaluate(b bias.BiasState, cand *strikes.Candidate, prev *broker.GreeksSnapshot, sm smartmoney.Analysis, tickFresh bool) Context {
	if cand == nil {
		return rejected("no candidate strike")
	}
	cur := cand.Snapshot
	e.recordDelta(cand.Symbol, cur.Delta)

	// 1. Directional bias with enough conviction.
	if b.State != bias.StateBullish && b.State != bias.StateBearish {
		return rejected(fmt.Sprintf("bias %s", b.State))
	}
	if b.Confidence < e.cfg.MinConfidence {
		return rejected(fmt.Sprintf("bias confidence %.0f below %.0f", b.Confidence, e.cfg.MinConfidence))
	}

	// 2–3. Quote quality and freshness.
	if !tickFresh {
		return rejected("stale underlying tick")
	}
	if !cur.Quoted() {
		return rejected("bid/ask/ltp not all positive")
	}
	if cur.SpreadPercent() > e.cfg.MaxSpreadPercent {
		return rejected(fmt.Sprintf("spread %.2f%% above %.2f%%", cur.SpreadPercent(), e.cfg.MaxSpreadPercent))
	}

	if prev == nil {
		return rejected("no prior snapshot to confirm momentum")
	}

	// 4. Choppiness: flat price with an oscillating delta.
	if e.isChoppy(cand.Symbol, &cur, prev) {
		return rejected("choppy market: flat price with oscillating delta")
	}

	// 5. Momentum alignment: price, volume, OI and gamma all rising.
	if cur.LTP <= prev.LTP {
		return rejected("ltp not rising")
	}
	if cur.Volume <= prev.Volume {
		return rejected("volume not rising")
	}
	if cur.OI <= prev.OI {
		return rejected("oi not rising")
	}
	if cur.Gamma < prev.Gamma-gammaEpsilon {
		return rejected("gamma falling")
	}
	if cur.Gamma < e.cfg.IdealGammaMin {
		return rejected(fmt.Sprintf("gamma %.4f below minimum %.4f", cur.Gamma, e.cfg.IdealGammaMin))
	}

	// 6. Delta in the directionally correct power zone.
	switch b.State {
	case bias.StateBullish:
		if cur.Delta < e.cfg.BullishDeltaMin {
			return rejected(fmt.Sprintf("call delta %.2f below power zone %.2f", cur.Delta, e.cfg.BullishDeltaMin))
		}
	case bias.StateBearish:
		if cur.Delta > e.cfg.BearishDeltaMax {
			return rejected(fmt.Sprintf("put delta %.2f above power zone %.2f", cur.Delta, e.cfg.BearishDeltaMax))
		}
	}

	// 7. Rejection rules.
	if reason := e.rejectionRules(cand.Symbol, &cur, prev); reason != "" {
		return rejected(reason)
	}

	// 8. Smart-money trap gate.
	if sm.ShouldBlock || sm.TrapProbability >= e.cfg.MaxTrapProbability {
		return rejected(fmt.Sprintf("trap probability %.2f at/above %.2f", sm.TrapProbability, e.cfg.MaxTrapProbability))
	}

	signal := CallBuy
	if b.State == bias.StateBearish {
		signal = PutBuy
	}

	tags := []string{
		fmt.Sprintf("bias=%s conf=%.0f", b.State, b.Confidence),
		"momentum: ltp+vol+oi+gamma rising",
		fmt.Sprintf("delta=%.2f in power zone", cur.Delta),
		fmt.Sprintf("spread=%.2f%%", cur.SpreadPercent()),
	}
	if sm.Verdict == smartmoney.VerdictSmartEntry || sm.Verdict == smartmoney.VerdictExplosive {
		tags = append(tags, fmt.Sprintf("smart-money=%s(%.2f)", sm.Verdict, sm.VerdictConfidence))
	}
	if sm.VolumeState != smartmoney.VolumeNormal {
		tags = append(tags, fmt.Sprintf("volume=%s", sm.VolumeState))
	}

	ctx := Context{
		Signal:     signal,
		OptionType: cand.OptionType,
		Symbol:     cand.Symbol,
		Strike:     cand.Strike,
		EntryPrice: cur.LTP,
		EntryDelta: cur.Delta,
		EntryGamma: cur.Gamma,
		EntryTheta: cur.Theta,
		EntryIV:    cur.IV,
		ReasonTags: tags,
		Confidence: b.Confidence,
		CreatedAt:  time.Now(),
	}
	e.log.Info("entry signal", "signal", string(signal), "symbol", cand.Symbol, "price", cur.LTP)
	return ctx
}

func rejected(reason string) Context {
	return Context{Signal: NoSignal, ReasonTags: []string{reason}, CreatedAt: time.Now()}
}

func (e *Engine) recordDelta(symbol string, delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := append(e.deltas[symbol], delta)
	if len(hist) > 5 {
		hist = hist[len(hist)-5:]
	}
	e.deltas[symbol] = hist
}

// isChoppy flags a flat premium combined with a delta flipping direction.
func (e *Engine) isChoppy(symbol string, cur, prev *broker.GreeksSnapshot) bool {
	if prev.LTP <= 0 {
		return false
	}
	priceMove := math.Abs(cur.LTP-prev.LTP) / prev.LTP
	if priceMove >= e.cfg.ChoppyPriceEpsilon {
		return false
	}

	e.mu.Lock()
	hist := e.deltas[symbol]
	e.mu.Unlock()
	if len(hist) < 3 {
		return false
	}

	// Oscillating: consecutive delta changes with alternating sign.
	flips := 0
	for i := 2; i < len(hist); i++ {
		d1 := hist[i-1] - hist[i-2]
		d2 := hist[i] - hist[i-1]
		if d1*d2 < 0 {
			flips++
		}
	}
	return flips >= 2
}

// rejectionRules fires the hard vetoes: flat OI on a real move, IV crush,
// spread widening, and delta spike-then-collapse.
func (e *Engine) rejectionRules(symbol string, cur, prev *broker.GreeksSnapshot) string {
	if prev.LTP > 0 && prev.OI > 0 {
		priceMove := math.Abs(cur.LTP-prev.LTP) / prev.LTP
		oiMove := math.Abs(cur.OI-prev.OI) / prev.OI
		if priceMove >= e.cfg.RejectOIFlat && oiMove < e.cfg.RejectOIFlat/4 {
			return fmt.Sprintf("price moved %.2f%% with flat OI", priceMove*100)
		}
	}

	if prev.IV-cur.IV > e.cfg.RejectIVDrop {
		return fmt.Sprintf("IV dropped %.1fpp", prev.IV-cur.IV)
	}

	if cur.SpreadPercent()-prev.SpreadPercent() > e.cfg.RejectSpreadWiden {
		return fmt.Sprintf("spread widening %.2fpp", cur.SpreadPercent()-prev.SpreadPercent())
	}

	e.mu.Lock()
	hist := e.deltas[symbol]
	e.mu.Unlock()
	if len(hist) >= 3 {
		a, b, c := hist[len(hist)-3], hist[len(hist)-2], hist[len(hist)-1]
		spike := math.Abs(b) - math.Abs(a)
		collapse := math.Abs(b) - math.Abs(c)
		if spike > e.cfg.RejectDeltaCollapse && collapse > e.cfg.RejectDeltaCollapse {
			return "delta spike-then-collapse"
		}
	}
	return ""
}
