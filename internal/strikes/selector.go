package strikes

import (
	"context"
	"fmt"
	"math"
	"time"

	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
)

// Candidate is one scored strike on the ladder.
type Candidate struct {
	Symbol         string                `json:"symbol"`
	Strike         float64               `json:"strike"`
	OptionType     broker.OptionType     `json:"option_type"`
	Offset         int                   `json:"offset"` // strikes away from ATM
	Snapshot       broker.GreeksSnapshot `json:"snapshot"`
	GreeksScore    float64               `json:"greeks_score"`
	LiquidityScore float64               `json:"liquidity_score"`
	IVScore        float64               `json:"iv_score"`
	TotalScore     float64               `json:"total_score"`
}

// Config holds scoring thresholds.
type Config struct {
	StrikeInterval   float64
	StrikeRange      int // ATM ± N
	DeltaIdealLow    float64
	DeltaIdealHigh   float64
	GammaMin         float64
	ThetaCap         float64 // theta must not be worse (more negative) than this
	VegaLow          float64
	VegaHigh         float64
	MaxSpreadPercent float64
	VolumeFloor      float64
	OIFloor          float64
	IVPreferredLow   float64
	IVPreferredHigh  float64
}

// DefaultConfig returns standard scalping thresholds for weekly index options.
func DefaultConfig(strikeInterval float64, strikeRange int) Config {
	return Config{
		StrikeInterval:   strikeInterval,
		StrikeRange:      strikeRange,
		DeltaIdealLow:    0.45,
		DeltaIdealHigh:   0.65,
		GammaMin:         0.001,
		ThetaCap:         -30,
		VegaLow:          4,
		VegaHigh:         20,
		MaxSpreadPercent: 3,
		VolumeFloor:      500,
		OIFloor:          100000,
		IVPreferredLow:   15,
		IVPreferredHigh:  25,
	}
}

// Selector builds the ATM ± N ladder and scores each strike.
type Selector struct {
	cache   *marketdata.GreeksCache
	symbols broker.SymbolBuilder
	cfg     Config
	log     *logging.Logger
}

// NewSelector creates a strike selector.
func NewSelector(cache *marketdata.GreeksCache, symbols broker.SymbolBuilder, cfg Config, log *logging.Logger) *Selector {
	return &Selector{
		cache:   cache,
		symbols: symbols,
		cfg:     cfg,
		log:     log.WithComponent("strikes"),
	}
}

// Ladder returns the ATM ± N strike ladder around spot, ascending.
func (s *Selector) Ladder(spot float64) []float64 {
	atm := broker.ATMStrike(spot, s.cfg.StrikeInterval)
	strikes := make([]float64, 0, 2*s.cfg.StrikeRange+1)
	for off := -s.cfg.StrikeRange; off <= s.cfg.StrikeRange; off++ {
		strikes = append(strikes, atm+float64(off)*s.cfg.StrikeInterval)
	}
	return strikes
}

// Select scores every strike on the ladder for the bias direction and
// returns the best candidate plus the full scored ladder. Ties break
// toward ATM.
func (s *Selector) Select(ctx context.Context, underlying string, spot float64, direction bias.State, expiry time.Time) (*Candidate, []Candidate, error) {
	var optionType broker.OptionType
	switch direction {
	case bias.StateBullish:
		optionType = broker.OptionCall
	case bias.StateBearish:
		optionType = broker.OptionPut
	default:
		return nil, nil, fmt.Errorf("no tradable direction for bias %s", direction)
	}

	ladder := s.Ladder(spot)
	candidates := make([]Candidate, 0, len(ladder))

	for i, strike := range ladder {
		off := i - s.cfg.StrikeRange
		symbol := s.symbols.BuildOptionSymbol(underlying, expiry, strike, optionType)

		snap := s.cache.Get(ctx, symbol, broker.ExchangeNFO, false)
		if snap == nil {
			continue
		}

		c := Candidate{
			Symbol:     symbol,
			Strike:     strike,
			OptionType: optionType,
			Offset:     off,
			Snapshot:   *snap,
		}
		c.GreeksScore = s.scoreGreeks(snap)
		c.LiquidityScore = s.scoreLiquidity(snap)
		c.IVScore = s.scoreIV(snap.IV)
		c.TotalScore = c.GreeksScore + c.LiquidityScore + c.IVScore
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("no quotable strikes on the %s ladder around %.0f",
			optionType, broker.ATMStrike(spot, s.cfg.StrikeInterval))
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].TotalScore > candidates[best].TotalScore {
			best = i
			continue
		}
		if candidates[i].TotalScore == candidates[best].TotalScore &&
			abs(candidates[i].Offset) < abs(candidates[best].Offset) {
			best = i
		}
	}

	chosen := candidates[best]
	s.log.Debug("strike selected", "symbol", chosen.Symbol, "score", chosen.TotalScore, "offset", chosen.Offset)
	return &chosen, candidates, nil
}

// scoreGreeks favors delta in the power zone, live gamma, bearable theta
// and mid-range vega.
func (s *Selector) scoreGreeks(snap *broker.GreeksSnapshot) float64 {
	score := 0.0
	absDelta := math.Abs(snap.Delta)

	if absDelta >= s.cfg.DeltaIdealLow && absDelta <= s.cfg.DeltaIdealHigh {
		score += 2
	} else {
		// Smooth penalty for distance from the band.
		dist := math.Min(math.Abs(absDelta-s.cfg.DeltaIdealLow), math.Abs(absDelta-s.cfg.DeltaIdealHigh))
		score += math.Max(0, 2-dist*10)
	}

	if snap.Gamma >= s.cfg.GammaMin {
		score += 1.5
	}
	if snap.Theta >= s.cfg.ThetaCap {
		score += 1
	}
	if snap.Vega >= s.cfg.VegaLow && snap.Vega <= s.cfg.VegaHigh {
		score += 0.5
	}
	return score
}

func (s *Selector) scoreLiquidity(snap *broker.GreeksSnapshot) float64 {
	if !snap.Quoted() {
		return 0
	}
	score := 1.0
	if snap.SpreadPercent() <= s.cfg.MaxSpreadPercent {
		score += 1.5
	}
	if snap.Volume >= s.cfg.VolumeFloor {
		score += 0.75
	}
	if snap.OI >= s.cfg.OIFloor {
		score += 0.75
	}
	return score
}

// scoreIV prefers the 15–25% band with a smooth penalty outside it.
func (s *Selector) scoreIV(iv float64) float64 {
	if iv >= s.cfg.IVPreferredLow && iv <= s.cfg.IVPreferredHigh {
		return 1.5
	}
	var dist float64
	if iv < s.cfg.IVPreferredLow {
		dist = s.cfg.IVPreferredLow - iv
	} else {
		dist = iv - s.cfg.IVPreferredHigh
	}
	return math.Max(0, 1.5-dist*0.1)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
