// Package strategy runs the trading session: it owns the tick loop,
// wires signals from bias through entry to orders, and coordinates
// startup and shutdown of every worker.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/adaptive"
	"options-scalping-bot/internal/alerts"
	"options-scalping-bot/internal/bias"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/dashboard"
	"options-scalping-bot/internal/entry"
	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/exits"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
	"options-scalping-bot/internal/orders"
	"options-scalping-bot/internal/risk"
	"options-scalping-bot/internal/sizing"
	"options-scalping-bot/internal/smartmoney"
	"options-scalping-bot/internal/store"
	"options-scalping-bot/internal/strikes"
	"options-scalping-bot/internal/trade"
)

// Orchestrator composes every engine component and drives the session.
type Orchestrator struct {
	cfg *config.Config
	log *logging.Logger
	loc *time.Location

	client  broker.Client
	symbols broker.SymbolBuilder
	stream  *broker.TickStream

	bus      *events.EventBus
	alertBus *alerts.Bus

	gateway    *marketdata.Gateway
	cache      *marketdata.GreeksCache
	biasEng    *bias.Engine
	smDetector *smartmoney.Detector
	selector   *strikes.Selector
	entryEng   *entry.Engine
	sizer      *sizing.Sizer
	riskMgr    *risk.Manager
	orderMgr   *orders.Manager
	exitEng    *exits.Engine
	tradeMgr   *trade.Manager
	controller *adaptive.Controller
	aggregator *dashboard.Aggregator
	server     *dashboard.Server
	metrics    *dashboard.Metrics
	cron       *cron.Cron

	expiryMu sync.RWMutex
	expiry   time.Time

	sessionOpenIV float64
	emergencyOnce sync.Once
}

// New builds the orchestrator from configuration. stateStore and
// historyStore may be nil when persistence is disabled.
func New(cfg *config.Config, client broker.Client, symbols broker.SymbolBuilder,
	stateStore trade.StateStore, historyStore *store.HistoryStore, log *logging.Logger) (*Orchestrator, error) {

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("load IST timezone: %w", err)
	}

	bus := events.NewEventBus()
	alertBus := alerts.NewBus(cfg.AlertConfig.HistorySize, log)

	gateway := marketdata.NewGateway(client, cfg.SessionConfig.FreshnessTolerance, log)
	cache := marketdata.NewGreeksCache(client, cfg.GreeksConfig.RefreshInterval, cfg.GreeksConfig.HistorySize, log)

	biasEng := bias.NewEngine(bias.Config{
		BullishDeltaMin:  cfg.FilterConfig.BullishDeltaMin,
		BearishDeltaMax:  cfg.FilterConfig.BearishDeltaMax,
		IVSafeZoneMin:    cfg.FilterConfig.IVSafeZoneMin,
		IVSafeZoneMax:    cfg.FilterConfig.IVSafeZoneMax,
		IVCrushThreshold: cfg.FilterConfig.IVCrushThreshold,
	}, log)

	smDetector := smartmoney.NewDetector(smartmoney.DefaultConfig(), log)

	selector := strikes.NewSelector(cache, symbols,
		strikes.DefaultConfig(cfg.InstrumentConfig.StrikeInterval, cfg.InstrumentConfig.StrikeRange), log)

	entryEng := entry.NewEngine(entry.Config{
		MinConfidence:       cfg.FilterConfig.MinEntryConfidence,
		MaxSpreadPercent:    cfg.FilterConfig.MaxSpreadPercent,
		IdealGammaMin:       cfg.FilterConfig.IdealGammaMin,
		BullishDeltaMin:     cfg.FilterConfig.BullishDeltaMin,
		BearishDeltaMax:     cfg.FilterConfig.BearishDeltaMax,
		MaxTrapProbability:  cfg.FilterConfig.MaxTrapProbability,
		RejectOIFlat:        cfg.FilterConfig.RejectOIFlatThreshold,
		RejectIVDrop:        cfg.FilterConfig.RejectIVDrop,
		RejectSpreadWiden:   cfg.FilterConfig.RejectSpreadWiden,
		RejectDeltaCollapse: cfg.FilterConfig.RejectDeltaCollapse,
	}, log)

	sizer := sizing.NewSizer(sizing.Config{
		RiskPercentMin: cfg.RiskConfig.RiskPerTradeMin,
		RiskPercentMax: cfg.RiskConfig.RiskPerTradeMax,
		HardSLCap:      cfg.RiskConfig.HardSLExceedSkip,
		LotSize:        cfg.InstrumentConfig.MinimumLotSize,
		MaxQuantity:    cfg.RiskConfig.MaxPositionSize,
		KellyEnabled:   cfg.AdaptiveConfig.Kelly,
		KellyFraction:  cfg.AdaptiveConfig.KellyFraction,
	}, log)

	riskMgr := risk.NewManager(risk.Limits{
		Capital:             cfg.RiskConfig.Capital,
		MaxDailyLossAmount:  cfg.RiskConfig.MaxDailyLossAmount,
		MaxTradesPerDay:     cfg.RiskConfig.MaxTradesPerDay,
		MaxNetDelta:         cfg.RiskConfig.MaxNetDelta,
		MaxNetGamma:         cfg.RiskConfig.MaxNetGamma,
		MaxNetTheta:         cfg.RiskConfig.MaxNetTheta,
		MaxNetVega:          cfg.RiskConfig.MaxNetVega,
		MaxGrossDelta:       cfg.RiskConfig.MaxGrossDelta,
		CooldownAfterLosses: cfg.RiskConfig.CooldownAfterLosses,
		CooldownMinutes:     cfg.RiskConfig.CooldownMinutes,
	}, bus, log)

	orderMgr := orders.NewManager(client, symbols, bus, log)

	exitEng := exits.NewEngine(exits.Config{
		TrailingActivation: cfg.ExitConfig.TrailingActivation,
		TrailingPercent:    cfg.ExitConfig.TrailingPercent,
		Ladder:             cfg.ExitConfig.ProfitLadder,
		MaxHolding:         cfg.ExitConfig.MaxHolding,
		DeltaWeakness:      cfg.ExitConfig.DeltaWeakness,
		GammaRollover:      cfg.ExitConfig.GammaRollover,
		IVCrushExit:        cfg.ExitConfig.IVCrushExit,
		ExpiryRushMinutes:  cfg.ExitConfig.ExpiryRushMinutes,
	}, log)

	controller := adaptive.NewController(cfg.AdaptiveConfig, bus, log)

	journal := trade.NewJournal(cfg.StoreConfig.JournalDir, log)

	var histIface trade.HistoryStore
	if historyStore != nil {
		histIface = historyStore
	}
	tradeMgr := trade.NewManager(orderMgr, riskMgr, exitEng, cache, bus, alertBus, journal,
		controller, stateStore, histIface, log)

	metrics := dashboard.NewMetrics()
	aggregator := dashboard.NewAggregator(cfg.InstrumentConfig.PrimaryUnderlying, gateway, cache,
		biasEng, tradeMgr, riskMgr, alertBus, controller, log)
	server := dashboard.NewServer(cfg.DashboardConfig.Port, aggregator, alertBus, cache,
		client, historyStore, metrics, log)

	o := &Orchestrator{
		cfg:        cfg,
		log:        log.WithComponent("orchestrator"),
		loc:        loc,
		client:     client,
		symbols:    symbols,
		bus:        bus,
		alertBus:   alertBus,
		gateway:    gateway,
		cache:      cache,
		biasEng:    biasEng,
		smDetector: smDetector,
		selector:   selector,
		entryEng:   entryEng,
		sizer:      sizer,
		riskMgr:    riskMgr,
		orderMgr:   orderMgr,
		exitEng:    exitEng,
		tradeMgr:   tradeMgr,
		controller: controller,
		aggregator: aggregator,
		server:     server,
		metrics:    metrics,
		cron:       cron.New(cron.WithLocation(loc)),
	}

	o.registerAlertHandlers()
	o.subscribeEvents()
	return o, nil
}

// EventBus exposes the process event bus.
func (o *Orchestrator) EventBus() *events.EventBus { return o.bus }

func (o *Orchestrator) registerAlertHandlers() {
	o.alertBus.Register(alerts.NewLogHandler(o.log))

	if url := o.cfg.AlertConfig.WebhookURL; url != "" {
		o.alertBus.Register(alerts.NewWebhookHandler(url))
	}
	if o.cfg.AlertConfig.Email.Enabled {
		o.alertBus.Register(alerts.NewEmailHandler(o.cfg.AlertConfig.Email))
	}
	if o.cfg.AlertConfig.TelegramEnabled {
		h, err := alerts.NewTelegramHandler(o.cfg.AlertConfig.TelegramBotToken, o.cfg.AlertConfig.TelegramChatID)
		if err != nil {
			o.log.WithError(err).Warn("telegram handler disabled")
		} else {
			o.alertBus.Register(h)
		}
	}
}

func (o *Orchestrator) subscribeEvents() {
	o.bus.Subscribe(events.EventEmergencyExit, func(ev events.Event) {
		reason, _ := ev.Data["reason"].(string)
		o.emergencyOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			o.log.Error("emergency exit triggered", "reason", reason)
			o.tradeMgr.ExitAll(ctx, "emergency_exit")
			o.alertBus.PublishSync(alerts.New(alerts.KindKillSwitch, alerts.LevelCritical,
				"Emergency exit", fmt.Sprintf("all positions closed: %s", reason)))
		})
	})

	o.bus.Subscribe(events.EventOrderRejected, func(events.Event) {
		o.metrics.OrdersRejected.Inc()
	})
	o.bus.Subscribe(events.EventTradeOpened, func(events.Event) {
		o.metrics.TradesOpened.Inc()
	})
	o.bus.Subscribe(events.EventTradeClosed, func(ev events.Event) {
		reason, _ := ev.Data["exit_reason"].(string)
		o.metrics.TradesClosed.WithLabelValues(reason).Inc()
	})
}

// Run executes the full session and blocks until the context is
// cancelled or the session window ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("starting",
		"underlying", o.cfg.InstrumentConfig.PrimaryUnderlying,
		"demo", o.cfg.SessionConfig.DemoMode,
		"capital", o.cfg.RiskConfig.Capital)

	if err := o.client.Login(ctx); err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	o.client.StartAutoRefresh()
	defer o.client.StopAutoRefresh()

	o.alertBus.Start()
	defer o.alertBus.Stop()

	if o.cfg.GreeksConfig.BackgroundRefresh {
		o.cache.StartBackgroundRefresh()
		defer o.cache.StopBackgroundRefresh()
	}

	o.startTickStream()

	o.aggregator.Start(time.Second)
	defer o.aggregator.Stop()

	go func() {
		if err := o.server.Start(); err != nil {
			o.log.WithError(err).Error("dashboard server stopped")
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.server.Shutdown(shutCtx)
	}()

	o.setExpiry(o.symbols.NearestWeeklyExpiry(time.Now().In(o.loc)))
	o.startCron()
	defer o.cron.Stop()

	if path, ok := o.controller.LatestStatePath(); ok {
		if err := o.controller.ImportState(path); err != nil {
			o.log.WithError(err).Warn("adaptive state import failed, starting fresh")
		}
	}

	if restored := o.tradeMgr.Restore(ctx); restored > 0 {
		o.log.Info("re-adopted open positions", "count", restored)
	}

	o.bus.Publish(events.Event{Type: events.EventEngineStarted})
	o.alertBus.Publish(alerts.New(alerts.KindSystem, alerts.LevelInfo, "Engine started",
		fmt.Sprintf("%s session, capital %.0f", o.cfg.InstrumentConfig.PrimaryUnderlying, o.cfg.RiskConfig.Capital)))

	err := o.tickLoop(ctx)

	o.shutdown()
	return err
}

func (o *Orchestrator) startTickStream() {
	if o.cfg.SessionConfig.DemoMode && o.cfg.SessionConfig.DemoSkipWebsocket {
		o.log.Info("demo mode, websocket feed skipped")
		return
	}
	if o.cfg.BrokerConfig.FeedURL == "" {
		return
	}
	o.stream = broker.NewTickStream(o.cfg.BrokerConfig.FeedURL, o.cfg.BrokerConfig.APIKey,
		o.gateway.OnStreamTick, o.log)
	o.stream.Start()
}

func (o *Orchestrator) startCron() {
	// Expiry can roll over intraday on expiry day; refresh every 5 minutes.
	o.cron.AddFunc("*/5 * * * *", func() {
		o.setExpiry(o.symbols.NearestWeeklyExpiry(time.Now().In(o.loc)))
	})
	o.cron.Start()
}

func (o *Orchestrator) setExpiry(e time.Time) {
	o.expiryMu.Lock()
	o.expiry = e
	o.expiryMu.Unlock()
}

func (o *Orchestrator) currentExpiry() time.Time {
	o.expiryMu.RLock()
	defer o.expiryMu.RUnlock()
	return o.expiry
}

func (o *Orchestrator) tickLoop(ctx context.Context) error {
	interval := o.cfg.SessionConfig.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			now := time.Now().In(o.loc)
			inWindow, ended := o.sessionWindow(now)
			if ended {
				o.log.Info("session window ended")
				return nil
			}
			o.onTick(ctx, now, inWindow)
		}
	}
}

// sessionWindow reports whether now is inside the trading window and
// whether the session has ended for the day.
func (o *Orchestrator) sessionWindow(now time.Time) (inWindow, ended bool) {
	start, err1 := parseSessionTime(now, o.cfg.SessionConfig.Start, o.loc)
	end, err2 := parseSessionTime(now, o.cfg.SessionConfig.End, o.loc)
	if err1 != nil || err2 != nil {
		return true, false
	}
	if now.After(end) {
		return false, true
	}
	return !now.Before(start), false
}

func parseSessionTime(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// onTick is one cycle of the trading loop: update market state, manage
// open trades, then look for a new entry.
func (o *Orchestrator) onTick(ctx context.Context, now time.Time, inWindow bool) {
	underlying := o.cfg.InstrumentConfig.PrimaryUnderlying

	tick, err := o.gateway.PollTick(ctx, underlying)
	if err != nil {
		o.log.WithError(err).Warn("tick poll failed")
	}

	if fresh, ok := o.gateway.FreshTick(underlying); ok {
		tick = fresh
		o.metrics.TickAge.Set(tick.Age().Seconds())
	} else {
		o.bus.Publish(events.Event{Type: events.EventStaleData,
			Data: map[string]interface{}{"underlying": underlying}})
	}

	// Open positions are managed on every tick, inside the window or not.
	o.tradeMgr.UpdateAll(ctx, now)

	snap := o.aggregator.Current()
	o.metrics.Observe(snap, int64(o.cache.Stats().APIErrors))

	if !inWindow {
		return
	}
	o.tryEntry(ctx, now, tick)
}

// tryEntry runs the signal pipeline: bias, strike selection, smart-money
// read, entry gates, adaptive gate, sizing, risk gate, order.
func (o *Orchestrator) tryEntry(ctx context.Context, now time.Time, tick broker.Tick) {
	if o.riskMgr.KillSwitchActive() {
		return
	}

	_, tickFresh := o.gateway.FreshTick(tick.Underlying)
	if !tickFresh {
		return
	}

	// Bias reads the ATM call as the market's pulse.
	expiry := o.currentExpiry()
	atm := broker.ATMStrike(tick.LTP, o.cfg.InstrumentConfig.StrikeInterval)
	atmSymbol := o.symbols.BuildOptionSymbol(tick.Underlying, expiry, atm, broker.OptionCall)
	atmSnap := o.cache.Get(ctx, atmSymbol, broker.ExchangeNFO, false)
	if atmSnap == nil {
		return
	}
	if o.sessionOpenIV == 0 {
		o.sessionOpenIV = atmSnap.IV
	}

	o.aggregator.SetBattlefield(o.chainBattlefield(ctx, tick.Underlying, tick.LTP, expiry))

	prevBias := o.biasEng.Current().State
	biasState := o.biasEng.Update(tick, atmSnap)
	if biasState.State != prevBias {
		o.bus.PublishBiasChanged(string(prevBias), string(biasState.State), biasState.Confidence)
	}
	if biasState.State != bias.StateBullish && biasState.State != bias.StateBearish {
		return
	}

	cand, _, err := o.selector.Select(ctx, tick.Underlying, tick.LTP, biasState.State, expiry)
	if err != nil || cand == nil {
		return
	}
	if o.tradeMgr.HasPosition(cand.Symbol) {
		return
	}
	if !o.cfg.RiskConfig.MultilegEnabled && o.tradeMgr.ActiveCount() > 0 {
		return
	}

	_, prev := o.cache.Rolling(cand.Symbol)
	sm := o.smDetector.Analyze(&cand.Snapshot, prev, time.Until(expiry))

	entryCtx := o.entryEng.Evaluate(biasState, cand, prev, sm, tickFresh)
	if entryCtx.Signal == entry.NoSignal {
		if len(entryCtx.ReasonTags) > 0 {
			o.metrics.SignalsBlocked.WithLabelValues(entryCtx.ReasonTags[0]).Inc()
		}
		return
	}

	oiChangePct := 0.0
	if prev != nil && prev.OI > 0 {
		oiChangePct = (cand.Snapshot.OI - prev.OI) / prev.OI * 100
	}

	decision := o.controller.EvaluateEntry(adaptive.SignalFeatures{
		At:              now,
		BiasConfidence:  biasState.Confidence,
		Delta:           entryCtx.EntryDelta,
		Gamma:           entryCtx.EntryGamma,
		Theta:           entryCtx.EntryTheta,
		OIChangePercent: oiChangePct,
		IV:              entryCtx.EntryIV,
	}, o.regimeInput(atmSnap, sm))
	if !decision.ShouldTrade {
		o.metrics.SignalsBlocked.WithLabelValues("adaptive").Inc()
		o.log.Info("entry blocked by adaptive layer", "reason", decision.BlockReason)
		return
	}

	o.bus.PublishSignal(string(entryCtx.Signal), entryCtx.Symbol, "all gates passed",
		entryCtx.Strike, entryCtx.Confidence)

	o.placeTrade(ctx, now, entryCtx, cand, decision, expiry)
}

// chainBattlefield reads both sides of the ATM ± N chain and classifies
// which side controls the zone. Quotes come from the cache, so this adds
// no broker calls within a refresh interval.
func (o *Orchestrator) chainBattlefield(ctx context.Context, underlying string, spot float64, expiry time.Time) smartmoney.BattlefieldView {
	ladder := o.selector.Ladder(spot)
	ce := make([]broker.GreeksSnapshot, 0, len(ladder))
	pe := make([]broker.GreeksSnapshot, 0, len(ladder))

	for _, strike := range ladder {
		ceSym := o.symbols.BuildOptionSymbol(underlying, expiry, strike, broker.OptionCall)
		if snap := o.cache.Get(ctx, ceSym, broker.ExchangeNFO, false); snap != nil {
			ce = append(ce, *snap)
		}
		peSym := o.symbols.BuildOptionSymbol(underlying, expiry, strike, broker.OptionPut)
		if snap := o.cache.Get(ctx, peSym, broker.ExchangeNFO, false); snap != nil {
			pe = append(pe, *snap)
		}
	}

	return o.smDetector.Battlefield(ce, pe)
}

func (o *Orchestrator) regimeInput(atmSnap *broker.GreeksSnapshot, sm smartmoney.Analysis) adaptive.RegimeInput {
	structure := o.biasEng.Current().Structure
	points := o.biasEng.History()

	var rangePct, rocShort, rocMedium float64
	if n := len(points); n > 1 {
		high, low := points[0].Price, points[0].Price
		for _, p := range points {
			if p.Price > high {
				high = p.Price
			}
			if p.Price < low {
				low = p.Price
			}
		}
		last := points[n-1].Price
		if last > 0 {
			rangePct = (high - low) / last * 100
		}
		rocShort = roc(points, 5)
		rocMedium = roc(points, 20)
	}

	return adaptive.RegimeInput{
		PriceRangePercent: rangePct,
		HigherHighs:       structure == bias.StructureHHHL,
		LowerLows:         structure == bias.StructureLLLH,
		CurrentIV:         atmSnap.IV,
		ROCShort:          rocShort,
		ROCMedium:         rocMedium,
		IVExpansion:       atmSnap.IV - o.sessionOpenIV,
		VolumeSurge:       sm.VolumeRatio,
	}
}

// roc is the % change between the latest price and the one lag samples back.
func roc(points []bias.HistoryPoint, lag int) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	i := n - 1 - lag
	if i < 0 {
		i = 0
	}
	base := points[i].Price
	if base <= 0 {
		return 0
	}
	return (points[n-1].Price - base) / base * 100
}

func (o *Orchestrator) placeTrade(ctx context.Context, now time.Time, entryCtx entry.Context,
	cand *strikes.Candidate, decision adaptive.AdaptiveDecision, expiry time.Time) {

	slPrice := entryCtx.EntryPrice * (1 - o.cfg.RiskConfig.HardSLPercentMin/100)
	targetPrice := entryCtx.EntryPrice + (entryCtx.EntryPrice-slPrice)*o.cfg.RiskConfig.RewardRiskMultiplier

	size := o.sizer.Calculate(sizing.Input{
		EntryPrice:  entryCtx.EntryPrice,
		SLPrice:     slPrice,
		TargetPrice: targetPrice,
		RiskPercent: o.cfg.RiskConfig.RiskPerTradeOptimal * decision.RecommendedSize,
		Capital:     o.cfg.RiskConfig.Capital,
		Greeks: &sizing.Greeks{
			Delta:          entryCtx.EntryDelta,
			Gamma:          entryCtx.EntryGamma,
			IV:             entryCtx.EntryIV,
			BiasConfidence: entryCtx.Confidence,
			OIChange:       o.biasEng.Current().Metrics["oi_change_percent"],
		},
	})
	if !size.SizingValid {
		o.log.Info("sizing rejected entry", "reason", size.RejectionReason)
		return
	}

	proposed := o.tradeMgr.ProposedPortfolio(&cand.Snapshot, size.Quantity)
	if ok, reason := o.riskMgr.CanTakeTrade(proposed); !ok {
		o.metrics.SignalsBlocked.WithLabelValues("risk").Inc()
		o.log.Info("risk manager denied entry", "reason", reason)
		return
	}

	orderID, err := o.orderMgr.PlaceEntry(ctx, entryCtx.Symbol, size.Quantity, entryCtx.EntryPrice)
	if err != nil {
		o.log.WithError(err).Error("entry order failed", "symbol", entryCtx.Symbol)
		return
	}

	t := &trade.Trade{
		ID:            uuid.New().String(),
		Symbol:        entryCtx.Symbol,
		Underlying:    o.cfg.InstrumentConfig.PrimaryUnderlying,
		OptionType:    entryCtx.OptionType,
		Strike:        entryCtx.Strike,
		Expiry:        expiry,
		EntryOrderID:  orderID,
		EntryPrice:    entryCtx.EntryPrice,
		SLPrice:       size.HardSLPrice,
		TargetPrice:   size.TargetPrice,
		Quantity:      size.Quantity,
		LotSize:       size.LotSize,
		EntryTime:     now,
		EntryDelta:    entryCtx.EntryDelta,
		EntryGamma:    entryCtx.EntryGamma,
		EntryTheta:    entryCtx.EntryTheta,
		EntryVega:     cand.Snapshot.Vega,
		EntryIV:       entryCtx.EntryIV,
		EntryOI:       cand.Snapshot.OI,
		MaxLossAmount: size.MaxLossAmount,
		Buckets:       decision.Buckets,
		EntryReasons:  entryCtx.ReasonTags,
	}

	if slID, err := o.orderMgr.PlaceStopLoss(ctx, t.Symbol, t.Quantity, t.SLPrice); err != nil {
		o.log.WithError(err).Warn("stop-loss order failed, exits rely on the engine", "symbol", t.Symbol)
	} else {
		t.SLOrderID = slID
	}

	o.tradeMgr.Open(ctx, t)
}

// shutdown closes positions, runs end-of-day learning and exports state.
func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if o.tradeMgr.ActiveCount() > 0 {
		o.log.Info("closing open positions", "count", o.tradeMgr.ActiveCount())
		o.tradeMgr.ExitAll(ctx, "strategy_stop")
	}

	if o.stream != nil {
		o.stream.Stop()
	}

	now := time.Now().In(o.loc)
	o.controller.DailyLearning(now)
	if _, err := o.controller.ExportState(now); err != nil {
		o.log.WithError(err).Warn("adaptive state export failed")
	}

	stats := o.tradeMgr.Stats()
	o.alertBus.Publish(alerts.New(alerts.KindSystem, alerts.LevelInfo, "Engine stopped",
		fmt.Sprintf("%d trades, pnl %.0f", stats.Trades(), stats.TotalPnL())))
	o.bus.Publish(events.Event{Type: events.EventEngineStopped})

	o.log.Info("session complete", "trades", stats.Trades(), "pnl", stats.TotalPnL())
}
