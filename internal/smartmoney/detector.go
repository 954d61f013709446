package smartmoney

import (
	"fmt"
	"math"
	"sync"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

// BuildUpType classifies the price × OI × volume interaction on a strike.
type BuildUpType string

const (
	LongBuildUp   BuildUpType = "LONG_BUILD_UP"
	ShortBuildUp  BuildUpType = "SHORT_BUILD_UP"
	ShortCovering BuildUpType = "SHORT_COVERING"
	LongUnwinding BuildUpType = "LONG_UNWINDING"
	NeutralBuild  BuildUpType = "NEUTRAL"
)

// VolumeState grades current volume against its rolling mean.
type VolumeState string

const (
	VolumeNormal     VolumeState = "NORMAL"
	VolumeSpike      VolumeState = "SPIKE"      // ≥ 1.5×
	VolumeBurst      VolumeState = "BURST"      // ≥ 2.5×
	VolumeAggressive VolumeState = "AGGRESSIVE" // ≥ 3.5×
)

// TruthVerdict cross-validates Greeks against OI and volume.
type TruthVerdict string

const (
	VerdictSmartEntry TruthVerdict = "SMART_ENTRY"
	VerdictTrap       TruthVerdict = "TRAP"
	VerdictExplosive  TruthVerdict = "EXPLOSIVE"
	VerdictThetaTrap  TruthVerdict = "THETA_TRAP"
	VerdictNeutral    TruthVerdict = "NEUTRAL"
)

// Control classifies the CE/PE battlefield in the ATM zone.
type Control string

const (
	BullishControl Control = "BULLISH_CONTROL"
	BearishControl Control = "BEARISH_CONTROL"
	Balanced       Control = "BALANCED"
	NeutralChop    Control = "NEUTRAL_CHOP"
)

// Analysis is the per-strike smart-money read for one refresh step.
type Analysis struct {
	BuildUp           BuildUpType  `json:"build_up"`
	BuildUpConfidence float64      `json:"build_up_confidence"`
	VolumeState       VolumeState  `json:"volume_state"`
	VolumeRatio       float64      `json:"volume_ratio"`
	TrapProbability   float64      `json:"trap_probability"`
	TrapReasons       []string     `json:"trap_reasons,omitempty"`
	ShouldBlock       bool         `json:"should_block"`
	FreshScore        float64      `json:"fresh_score"`
	Verdict           TruthVerdict `json:"verdict"`
	VerdictConfidence float64      `json:"verdict_confidence"`
}

// BattlefieldView summarises CE vs PE dominance around ATM.
type BattlefieldView struct {
	Control       Control `json:"control"`
	CEOITotal     float64 `json:"ce_oi_total"`
	PEOITotal     float64 `json:"pe_oi_total"`
	CEVolumeTotal float64 `json:"ce_volume_total"`
	PEVolumeTotal float64 `json:"pe_volume_total"`
	OIDominance   float64 `json:"oi_dominance"` // PE/CE ratio; >1 favors bulls
	VolDominance  float64 `json:"vol_dominance"`
	DeltaSkew     float64 `json:"delta_skew"`
}

// Config holds detector thresholds.
type Config struct {
	LowOIThreshold       float64 // OI below this is thin
	SignificantOI        float64 // first OI above this marks a fresh position
	OIJumpPercent        float64 // OI jump (%) that flags fresh positioning
	FreshHalfLife        time.Duration
	VolumeWindow         int
	TrapBlockThreshold   float64
	AggressiveThetaRatio float64 // |theta|/premium per day considered aggressive
	ExtremeOTMDelta      float64
}

// DefaultConfig returns the standard detector thresholds.
func DefaultConfig() Config {
	return Config{
		LowOIThreshold:       50000,
		SignificantOI:        200000,
		OIJumpPercent:        10,
		FreshHalfLife:        5 * time.Minute,
		VolumeWindow:         20,
		TrapBlockThreshold:   0.6,
		AggressiveThetaRatio: 0.15,
		ExtremeOTMDelta:      0.15,
	}
}

type freshEntry struct {
	score float64
	at    time.Time
}

// Detector reads smart-money footprints out of per-strike quote history.
type Detector struct {
	cfg Config
	log *logging.Logger

	mu         sync.Mutex
	volHistory map[string][]float64
	fresh      map[string]freshEntry
}

// NewDetector creates a detector.
func NewDetector(cfg Config, log *logging.Logger) *Detector {
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = 20
	}
	if cfg.TrapBlockThreshold <= 0 {
		cfg.TrapBlockThreshold = 0.6
	}
	return &Detector{
		cfg:        cfg,
		log:        log.WithComponent("smart-money"),
		volHistory: make(map[string][]float64),
		fresh:      make(map[string]freshEntry),
	}
}

// Analyze reads one refresh step (current vs previous snapshot) for a strike.
// timeToExpiry tightens the theta checks as expiry approaches.
func (d *Detector) Analyze(cur, prev *broker.GreeksSnapshot, timeToExpiry time.Duration) Analysis {
	if cur == nil {
		return Analysis{BuildUp: NeutralBuild, VolumeState: VolumeNormal, Verdict: VerdictNeutral, VerdictConfidence: 0.5}
	}

	d.mu.Lock()
	volRatio := d.recordVolumeLocked(cur.Symbol, cur.Volume)
	freshScore := d.freshScoreLocked(cur, prev)
	d.mu.Unlock()

	a := Analysis{
		VolumeRatio: volRatio,
		VolumeState: gradeVolume(volRatio),
		FreshScore:  freshScore,
	}

	if prev != nil {
		a.BuildUp, a.BuildUpConfidence = classifyBuildUp(cur, prev)
		a.TrapProbability, a.TrapReasons = d.trapScore(cur, prev, volRatio, timeToExpiry)
		a.ShouldBlock = a.TrapProbability >= d.cfg.TrapBlockThreshold
		a.Verdict, a.VerdictConfidence = d.truthTable(cur, prev, timeToExpiry)
		if a.Verdict == VerdictTrap || a.Verdict == VerdictThetaTrap {
			a.ShouldBlock = true
		}
	} else {
		a.BuildUp = NeutralBuild
		a.Verdict = VerdictNeutral
		a.VerdictConfidence = 0.5
	}
	return a
}

// Battlefield classifies control of the ATM ± N zone from the CE and PE
// side of the chain.
func (d *Detector) Battlefield(ceSide, peSide []broker.GreeksSnapshot) BattlefieldView {
	view := BattlefieldView{Control: NeutralChop}

	for _, s := range ceSide {
		view.CEOITotal += s.OI
		view.CEVolumeTotal += s.Volume
		view.DeltaSkew += s.Delta
	}
	for _, s := range peSide {
		view.PEOITotal += s.OI
		view.PEVolumeTotal += s.Volume
		view.DeltaSkew += s.Delta
	}

	if view.CEOITotal <= 0 || view.PEOITotal <= 0 {
		return view
	}

	// Heavy PE OI means puts written below spot: support, bullish control.
	view.OIDominance = view.PEOITotal / view.CEOITotal
	if view.CEVolumeTotal > 0 {
		view.VolDominance = view.PEVolumeTotal / view.CEVolumeTotal
	}

	switch {
	case view.OIDominance >= 1.3 && view.DeltaSkew > 0:
		view.Control = BullishControl
	case view.OIDominance <= 0.77 && view.DeltaSkew < 0:
		view.Control = BearishControl
	case view.OIDominance > 0.9 && view.OIDominance < 1.1 && view.VolDominance > 0.9 && view.VolDominance < 1.1:
		view.Control = NeutralChop
	default:
		view.Control = Balanced
	}
	return view
}

// recordVolumeLocked appends a volume sample and returns current / rolling mean.
func (d *Detector) recordVolumeLocked(symbol string, volume float64) float64 {
	hist := append(d.volHistory[symbol], volume)
	if len(hist) > d.cfg.VolumeWindow {
		hist = hist[len(hist)-d.cfg.VolumeWindow:]
	}
	d.volHistory[symbol] = hist

	// Mean excludes the newest sample so a burst stands out against its past.
	if len(hist) < 2 {
		return 1
	}
	var sum float64
	for _, v := range hist[:len(hist)-1] {
		sum += v
	}
	mean := sum / float64(len(hist)-1)
	if mean <= 0 {
		return 1
	}
	return volume / mean
}

// freshScoreLocked detects new positioning and decays it over the half-life.
func (d *Detector) freshScoreLocked(cur, prev *broker.GreeksSnapshot) float64 {
	now := time.Now()
	entry := d.fresh[cur.Symbol]

	// Decay whatever score is standing.
	score := entry.score
	if score > 0 && d.cfg.FreshHalfLife > 0 {
		elapsed := now.Sub(entry.at)
		score *= math.Pow(0.5, elapsed.Seconds()/d.cfg.FreshHalfLife.Seconds())
	}

	volRatio := 1.0
	if hist := d.volHistory[cur.Symbol]; len(hist) >= 2 {
		var sum float64
		for _, v := range hist[:len(hist)-1] {
			sum += v
		}
		if mean := sum / float64(len(hist)-1); mean > 0 {
			volRatio = cur.Volume / mean
		}
	}

	if prev != nil && prev.OI > 0 {
		oiJump := (cur.OI - prev.OI) / prev.OI * 100
		if oiJump >= d.cfg.OIJumpPercent && volRatio >= 2 {
			score = 1.0
		} else if prev.OI < d.cfg.SignificantOI && cur.OI >= d.cfg.SignificantOI {
			score = math.Max(score, 0.7)
		}
	}

	d.fresh[cur.Symbol] = freshEntry{score: score, at: now}
	return score
}

func gradeVolume(ratio float64) VolumeState {
	switch {
	case ratio >= 3.5:
		return VolumeAggressive
	case ratio >= 2.5:
		return VolumeBurst
	case ratio >= 1.5:
		return VolumeSpike
	default:
		return VolumeNormal
	}
}

// classifyBuildUp maps Δprice × ΔOI to the four standard build-up types.
func classifyBuildUp(cur, prev *broker.GreeksSnapshot) (BuildUpType, float64) {
	dPrice := cur.LTP - prev.LTP
	dOI := cur.OI - prev.OI
	dVol := cur.Volume - prev.Volume

	priceMove := math.Abs(dPrice) / math.Max(prev.LTP, 1e-9)
	oiMove := math.Abs(dOI) / math.Max(prev.OI, 1)

	// Confidence scales with how decisive each change is, volume confirming.
	confidence := math.Min(1, priceMove*50+oiMove*10)
	if dVol > 0 {
		confidence = math.Min(1, confidence+0.2)
	}

	switch {
	case dPrice > 0 && dOI > 0:
		return LongBuildUp, confidence
	case dPrice < 0 && dOI > 0:
		return ShortBuildUp, confidence
	case dPrice > 0 && dOI < 0:
		return ShortCovering, confidence
	case dPrice < 0 && dOI < 0:
		return LongUnwinding, confidence
	default:
		return NeutralBuild, 0.3
	}
}

// trapScore accumulates fake-move probability from independent signatures.
func (d *Detector) trapScore(cur, prev *broker.GreeksSnapshot, volRatio float64, timeToExpiry time.Duration) (float64, []string) {
	var score float64
	var reasons []string

	dPrice := cur.LTP - prev.LTP
	dVol := cur.Volume - prev.Volume
	dGamma := math.Abs(cur.Gamma - prev.Gamma)

	// OI building with neither price nor volume follow-through.
	if cur.OI > prev.OI && dPrice <= 0 && dVol <= 0 {
		score += 0.6
		reasons = append(reasons, "OI rising without price/volume follow-through")
	}

	if cur.OI < d.cfg.LowOIThreshold && volRatio >= 2 {
		score += 0.3
		reasons = append(reasons, fmt.Sprintf("volume surge on thin OI (%.0f)", cur.OI))
	}

	if dGamma < 1e-5 && volRatio >= 2 {
		score += 0.25
		reasons = append(reasons, "volume surge with flat gamma")
	}

	if cur.LTP > 0 && timeToExpiry > 0 && timeToExpiry < time.Hour {
		thetaRatio := math.Abs(cur.Theta) / cur.LTP
		if thetaRatio > d.cfg.AggressiveThetaRatio {
			score += 0.25
			reasons = append(reasons, "aggressive theta decay near expiry")
		}
	}

	// Price reversing against the prior move while volume dries up.
	if dPrice < 0 && dVol < 0 && prev.LTP > 0 && math.Abs(dPrice)/prev.LTP > 0.005 {
		score += 0.2
		reasons = append(reasons, "reversal on declining volume")
	}

	if math.Abs(cur.Delta) < d.cfg.ExtremeOTMDelta && cur.OI < d.cfg.LowOIThreshold {
		score += 0.2
		reasons = append(reasons, "extreme OTM with low OI")
	}

	if score > 1 {
		score = 1
	}
	return score, reasons
}

// truthTable cross-validates delta/gamma/theta moves against OI and volume.
func (d *Detector) truthTable(cur, prev *broker.GreeksSnapshot, timeToExpiry time.Duration) (TruthVerdict, float64) {
	deltaUp := math.Abs(cur.Delta) > math.Abs(prev.Delta)
	gammaUp := cur.Gamma > prev.Gamma
	oiUp := cur.OI > prev.OI
	volUp := cur.Volume > prev.Volume

	thetaAggressive := false
	if cur.LTP > 0 && timeToExpiry > 0 && timeToExpiry < time.Hour {
		thetaAggressive = math.Abs(cur.Theta)/cur.LTP > d.cfg.AggressiveThetaRatio
	}

	switch {
	case deltaUp && oiUp && volUp:
		return VerdictSmartEntry, 0.95
	case deltaUp && !oiUp && volUp:
		return VerdictTrap, 0.05
	case gammaUp && oiUp:
		return VerdictExplosive, 0.9
	case thetaAggressive:
		return VerdictThetaTrap, 0.1
	default:
		return VerdictNeutral, 0.5
	}
}
