package dashboard

import (
	"sync"
	"time"

	"options-scalping-bot/internal/adaptive"
	"options-scalping-bot/internal/alerts"
	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
	"options-scalping-bot/internal/risk"
	"options-scalping-bot/internal/smartmoney"
	"options-scalping-bot/internal/trade"
)

// Snapshot is one immutable dashboard frame. Handlers serve whichever
// frame is current; a slow refresh means readers see the previous frame,
// never a blocked request.
type Snapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Market      MarketPanel                `json:"market"`
	Positions   []trade.Trade              `json:"positions"`
	Portfolio   PortfolioPanel             `json:"portfolio"`
	Performance map[string]interface{}     `json:"performance"`
	Adaptive    map[string]interface{}     `json:"adaptive"`
	Heatmap     []HeatmapCell              `json:"greeks_heatmap"`
	Battlefield smartmoney.BattlefieldView `json:"battlefield"`
}

// MarketPanel is the spot and bias view.
type MarketPanel struct {
	Underlying string         `json:"underlying"`
	Spot       float64        `json:"spot"`
	TickAge    float64        `json:"tick_age_seconds"`
	TickFresh  bool           `json:"tick_fresh"`
	Bias       bias.BiasState `json:"bias"`
}

// PortfolioPanel is the risk and exposure view.
type PortfolioPanel struct {
	Greeks    risk.PortfolioGreeks `json:"greeks"`
	RiskState risk.State           `json:"risk_state"`
}

// HeatmapCell is one tracked symbol's live Greeks for the heatmap.
type HeatmapCell struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	IV     float64 `json:"iv"`
	OI     float64 `json:"oi"`
}

// Aggregator builds dashboard snapshots on a timer from the live
// managers. It only ever reads copy-on-read getters, so a refresh never
// contends with the trading loop.
type Aggregator struct {
	underlying string
	gateway    *marketdata.Gateway
	cache      *marketdata.GreeksCache
	biasEng    *bias.Engine
	trades     *trade.Manager
	riskMgr    *risk.Manager
	alertBus   *alerts.Bus
	controller *adaptive.Controller
	log        *logging.Logger

	mu      sync.RWMutex
	current Snapshot

	bfMu        sync.RWMutex
	battlefield smartmoney.BattlefieldView

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewAggregator wires a dashboard aggregator.
func NewAggregator(underlying string, gateway *marketdata.Gateway, cache *marketdata.GreeksCache,
	biasEng *bias.Engine, trades *trade.Manager, riskMgr *risk.Manager,
	alertBus *alerts.Bus, controller *adaptive.Controller, log *logging.Logger) *Aggregator {
	return &Aggregator{
		underlying: underlying,
		gateway:    gateway,
		cache:      cache,
		biasEng:    biasEng,
		trades:     trades,
		riskMgr:    riskMgr,
		alertBus:   alertBus,
		controller: controller,
		log:        log.WithComponent("dashboard"),
		stop:       make(chan struct{}),
	}
}

// Start refreshes snapshots every interval until Stop.
func (a *Aggregator) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	a.refresh()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop halts the refresh loop.
func (a *Aggregator) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}

// SetBattlefield publishes the latest CE/PE chain battlefield view. The
// orchestrator pushes it each signal cycle; the next refresh serves it.
func (a *Aggregator) SetBattlefield(view smartmoney.BattlefieldView) {
	a.bfMu.Lock()
	a.battlefield = view
	a.bfMu.Unlock()
}

// Battlefield returns the last pushed chain battlefield view.
func (a *Aggregator) Battlefield() smartmoney.BattlefieldView {
	a.bfMu.RLock()
	defer a.bfMu.RUnlock()
	return a.battlefield
}

// Current returns the latest snapshot.
func (a *Aggregator) Current() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *Aggregator) refresh() {
	snap := Snapshot{GeneratedAt: time.Now()}

	tick, fresh := a.gateway.LastTick(a.underlying)
	snap.Market = MarketPanel{
		Underlying: a.underlying,
		Bias:       a.biasEng.Current(),
	}
	if fresh {
		snap.Market.Spot = tick.LTP
		snap.Market.TickAge = tick.Age().Seconds()
		snap.Market.TickFresh = tick.Age() <= a.gateway.Tolerance()
	}

	snap.Positions = a.trades.ActiveTrades()
	snap.Portfolio = PortfolioPanel{
		Greeks:    a.riskMgr.PortfolioGreeks(),
		RiskState: a.riskMgr.State(),
	}
	snap.Performance = a.trades.Stats().Summary()
	snap.Adaptive = a.controller.Status(snap.GeneratedAt)
	snap.Heatmap = a.heatmap()
	snap.Battlefield = a.Battlefield()

	a.mu.Lock()
	a.current = snap
	a.mu.Unlock()
}

func (a *Aggregator) heatmap() []HeatmapCell {
	symbols := a.cache.Tracked()
	cells := make([]HeatmapCell, 0, len(symbols))
	for _, symbol := range symbols {
		cur, _ := a.cache.Rolling(symbol)
		if cur == nil {
			continue
		}
		cells = append(cells, HeatmapCell{
			Symbol: symbol,
			LTP:    cur.LTP,
			Delta:  cur.Delta,
			Gamma:  cur.Gamma,
			Theta:  cur.Theta,
			Vega:   cur.Vega,
			IV:     cur.IV,
			OI:     cur.OI,
		})
	}
	return cells
}
