package bias

import (
	"math"
	"sync"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

// State is the market-permission state.
type State string

const (
	StateUnknown State = "UNKNOWN"
	StateBullish State = "BULLISH"
	StateBearish State = "BEARISH"
	StateNoTrade State = "NO_TRADE"
)

// Structure classifies recent price action.
type Structure string

const (
	StructureHHHL     Structure = "HH_HL"
	StructureLLLH     Structure = "LL_LH"
	StructureSideways Structure = "SIDEWAYS"
)

// BiasState is the engine's per-tick output.
type BiasState struct {
	State      State              `json:"state"`
	Confidence float64            `json:"confidence"` // 0..100
	Metrics    map[string]float64 `json:"metrics"`
	Structure  Structure          `json:"structure"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// HistoryPoint is one rolling sample the engine accumulates per tick.
type HistoryPoint struct {
	Price     float64   `json:"price"`
	Delta     float64   `json:"delta"`
	Gamma     float64   `json:"gamma"`
	OI        float64   `json:"oi"`
	OIChange  float64   `json:"oi_change"`
	Volume    float64   `json:"volume"`
	IV        float64   `json:"iv"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the bias thresholds.
type Config struct {
	BullishDeltaMin  float64 // +0.45
	BearishDeltaMax  float64 // -0.45
	IVSafeZoneMin    float64
	IVSafeZoneMax    float64
	IVCrushThreshold float64 // IV change below this (pp) is a crush
	HistorySize      int
}

const gammaEpsilon = 1e-5

// Engine computes directional bias from Greeks, OI, volume and structure.
// It is a strict gate: any single failing factor forces NO_TRADE.
type Engine struct {
	cfg Config
	log *logging.Logger

	mu      sync.RWMutex
	history []HistoryPoint
	state   BiasState
}

// NewEngine creates a bias engine.
func NewEngine(cfg Config, log *logging.Logger) *Engine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Engine{
		cfg:   cfg,
		log:   log.WithComponent("bias"),
		state: BiasState{State: StateUnknown},
	}
}

// Current returns the last computed bias state.
func (e *Engine) Current() BiasState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// History returns a copy of the rolling sample history, oldest first.
func (e *Engine) History() []HistoryPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HistoryPoint, len(e.history))
	copy(out, e.history)
	return out
}

// Update ingests one tick + option snapshot and recomputes the bias.
func (e *Engine) Update(tick broker.Tick, snap *broker.GreeksSnapshot) BiasState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if snap == nil {
		e.state = BiasState{State: StateNoTrade, Metrics: map[string]float64{}, UpdatedAt: time.Now()}
		return e.state
	}

	var oiChange float64
	if n := len(e.history); n > 0 {
		oiChange = snap.OI - e.history[n-1].OI
	}

	e.history = append(e.history, HistoryPoint{
		Price:     snap.LTP,
		Delta:     snap.Delta,
		Gamma:     snap.Gamma,
		OI:        snap.OI,
		OIChange:  oiChange,
		Volume:    snap.Volume,
		IV:        snap.IV,
		Timestamp: tick.Timestamp,
	})
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}

	deltaSignal := e.deltaSignal(snap.Delta)
	gammaRising := e.gammaRising()
	alignment := e.alignmentScore()
	ivHealth := e.ivHealth(snap.IV)
	structure := e.classifyStructure()

	metrics := map[string]float64{
		"delta_signal": float64(deltaSignal),
		"alignment":    alignment,
		"iv_health":    ivHealth,
		"delta":        snap.Delta,
		"gamma":        snap.Gamma,
		"iv":           snap.IV,
		"oi_change":    oiChange,
	}
	if gammaRising {
		metrics["gamma_rising"] = 1
	}

	state, confidence := decide(deltaSignal, gammaRising, alignment, ivHealth, structure)

	prev := e.state.State
	e.state = BiasState{
		State:      state,
		Confidence: confidence,
		Metrics:    metrics,
		Structure:  structure,
		UpdatedAt:  time.Now(),
	}
	if prev != state {
		e.log.Info("bias changed", "from", string(prev), "to", string(state), "confidence", confidence)
	}
	return e.state
}

// decide applies the factor decision table. Every factor must pass.
func decide(deltaSignal int, gammaRising bool, alignment, ivHealth float64, structure Structure) (State, float64) {
	if structure == StructureSideways || deltaSignal == 0 {
		return StateNoTrade, 0
	}
	if !gammaRising || alignment < 0.5 {
		return StateNoTrade, 0
	}

	confidence := 85.0
	if ivHealth < -0.3 {
		confidence = 60.0
	}

	if deltaSignal > 0 {
		return StateBullish, confidence
	}
	return StateBearish, confidence
}

func (e *Engine) deltaSignal(delta float64) int {
	switch {
	case delta >= e.cfg.BullishDeltaMin:
		return 1
	case delta <= e.cfg.BearishDeltaMax:
		return -1
	default:
		return 0
	}
}

// gammaRising holds when gamma is not decaying across the last 3 samples.
func (e *Engine) gammaRising() bool {
	n := len(e.history)
	if n < 2 {
		return false
	}
	points := e.history[max(0, n-3):]
	for i := 1; i < len(points); i++ {
		if points[i].Gamma < points[i-1].Gamma-gammaEpsilon {
			return false
		}
	}
	return true
}

// alignmentScore scores OI/price/volume agreement in [-1, +1]. OI building
// without price or volume follow-through is the classic trap.
func (e *Engine) alignmentScore() float64 {
	n := len(e.history)
	if n < 2 {
		return 0
	}
	cur, prev := e.history[n-1], e.history[n-2]

	oiUp := cur.OI > prev.OI
	priceUp := cur.Price > prev.Price
	volUp := cur.Volume > prev.Volume

	switch {
	case oiUp && priceUp && volUp:
		return 1
	case oiUp && (priceUp || volUp):
		return 0.5
	case oiUp:
		return -1 // trap
	default:
		return 0
	}
}

// ivHealth scores current IV against the safe band plus crush detection.
func (e *Engine) ivHealth(iv float64) float64 {
	score := 0.0
	switch {
	case iv >= e.cfg.IVSafeZoneMin && iv <= e.cfg.IVSafeZoneMax:
		score = 0.5
	case iv < e.cfg.IVSafeZoneMin*0.5 || iv > e.cfg.IVSafeZoneMax*1.5:
		score = -1
	default:
		score = -0.5
	}

	if n := len(e.history); n >= 2 {
		ivChange := e.history[n-1].IV - e.history[n-2].IV
		if ivChange < e.cfg.IVCrushThreshold {
			score -= 0.5
		}
	}

	if score < -1 {
		score = -1
	}
	return score
}

// classifyStructure compares the last 5 price samples to the previous 5.
// With fewer samples it degrades to a simple trend read so the engine is
// usable right after boot.
func (e *Engine) classifyStructure() Structure {
	n := len(e.history)
	if n < 2 {
		return StructureSideways
	}

	if n >= 4 {
		window := e.history
		if n > 10 {
			window = e.history[n-10:]
		}
		half := len(window) / 2
		recentHigh, recentLow := priceRange(window[half:])
		priorHigh, priorLow := priceRange(window[:half])

		switch {
		case recentHigh > priorHigh && recentLow > priorLow:
			return StructureHHHL
		case recentHigh < priorHigh && recentLow < priorLow:
			return StructureLLLH
		default:
			return StructureSideways
		}
	}

	first, last := e.history[0].Price, e.history[n-1].Price
	change := (last - first) / math.Max(first, 1e-9)
	switch {
	case change > 0.0005:
		return StructureHHHL
	case change < -0.0005:
		return StructureLLLH
	default:
		return StructureSideways
	}
}

func priceRange(points []HistoryPoint) (high, low float64) {
	high, low = points[0].Price, points[0].Price
	for _, p := range points[1:] {
		if p.Price > high {
			high = p.Price
		}
		if p.Price < low {
			low = p.Price
		}
	}
	return high, low
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
