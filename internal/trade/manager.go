package trade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"options-scalping-bot/internal/adaptive"
	"options-scalping-bot/internal/alerts"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/exits"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/marketdata"
	"options-scalping-bot/internal/orders"
	"options-scalping-bot/internal/risk"
)

// StateStore persists active trades for crash recovery. Nil disables it.
type StateStore interface {
	SaveTrade(ctx context.Context, t *Trade) error
	DeleteTrade(ctx context.Context, id string) error
	LoadTrades(ctx context.Context) ([]*Trade, error)
}

// HistoryStore archives closed trades. Nil disables it.
type HistoryStore interface {
	InsertClosedTrade(ctx context.Context, t *Trade) error
}

// Recorder receives the compact feature record of every closed trade.
type Recorder interface {
	RecordTrade(tf adaptive.TradeFeatures)
}

// Manager owns the active trade registry and runs the per-tick update
// cycle: refresh Greeks, evaluate exits, place exit orders, settle pnl,
// and keep the portfolio exposure current in the risk manager.
type Manager struct {
	orders   *orders.Manager
	riskMgr  *risk.Manager
	exitEng  *exits.Engine
	cache    *marketdata.GreeksCache
	bus      *events.EventBus
	alertBus *alerts.Bus
	journal  *Journal
	stats    *SessionStats
	recorder Recorder
	state    StateStore
	history  HistoryStore
	log      *logging.Logger

	mu     sync.RWMutex
	active map[string]*Trade
	closed []Trade
}

// NewManager wires the trade manager.
func NewManager(ord *orders.Manager, riskMgr *risk.Manager, exitEng *exits.Engine, cache *marketdata.GreeksCache,
	bus *events.EventBus, alertBus *alerts.Bus, journal *Journal, recorder Recorder,
	state StateStore, history HistoryStore, log *logging.Logger) *Manager {
	return &Manager{
		orders:   ord,
		riskMgr:  riskMgr,
		exitEng:  exitEng,
		cache:    cache,
		bus:      bus,
		alertBus: alertBus,
		journal:  journal,
		stats:    NewSessionStats(),
		recorder: recorder,
		state:    state,
		history:  history,
		log:      log.WithComponent("trade_manager"),
		active:   make(map[string]*Trade),
	}
}

// Stats exposes the session accumulator.
func (m *Manager) Stats() *SessionStats { return m.stats }

// Open registers a filled entry as an active trade.
func (m *Manager) Open(ctx context.Context, t *Trade) {
	t.Status = StatusOpen
	t.OriginalQty = t.Quantity

	m.mu.Lock()
	m.active[t.ID] = t
	m.mu.Unlock()

	m.cache.Track(t.Symbol, broker.ExchangeNFO)
	m.riskMgr.RecordTradeOpened(t.MaxLossAmount)
	m.journal.Append(JournalEntry{Event: "open", Trade: *t, Timestamp: t.EntryTime})
	m.bus.PublishTradeOpened(t.ID, t.Symbol, string(t.OptionType), t.EntryPrice, t.Quantity)

	m.alertBus.Publish(alertFor(alerts.KindTradeOpen, alerts.LevelInfo,
		fmt.Sprintf("Opened %s", t.Symbol),
		fmt.Sprintf("%s x%d @ %.2f, SL %.2f, target %.2f", t.Symbol, t.Quantity, t.EntryPrice, t.SLPrice, t.TargetPrice),
		t.Symbol, 0))

	if m.state != nil {
		if err := m.state.SaveTrade(ctx, t); err != nil {
			m.log.WithError(err).Warn("failed to persist trade state", "trade_id", t.ID)
		}
	}

	m.log.Info("trade opened", "trade_id", t.ID, "symbol", t.Symbol, "qty", t.Quantity, "entry", t.EntryPrice)
}

// UpdateAll runs one exit-evaluation cycle over every active trade and
// refreshes the portfolio Greeks in the risk manager.
func (m *Manager) UpdateAll(ctx context.Context, now time.Time) {
	m.mu.RLock()
	trades := make([]*Trade, 0, len(m.active))
	for _, t := range m.active {
		trades = append(trades, t)
	}
	m.mu.RUnlock()

	var pg risk.PortfolioGreeks
	for _, t := range trades {
		snap := m.cache.Get(ctx, t.Symbol, broker.ExchangeNFO, false)
		if snap == nil {
			// No fresh quote this cycle. Existing stops still protect the
			// position; skip evaluation rather than act on stale Greeks.
			m.log.Warn("no fresh quote, skipping exit check", "trade_id", t.ID, "symbol", t.Symbol)
			continue
		}

		result := m.exitEng.Evaluate(exits.Input{
			TradeID:      t.ID,
			EntryPrice:   t.EntryPrice,
			SLPrice:      t.SLPrice,
			TargetPrice:  t.TargetPrice,
			Quantity:     t.Quantity,
			OriginalQty:  t.OriginalQty,
			LotSize:      t.LotSize,
			EntryTime:    t.EntryTime,
			EntryDelta:   t.EntryDelta,
			EntryGamma:   t.EntryGamma,
			EntryIV:      t.EntryIV,
			LTP:          snap.LTP,
			CurrentDelta: snap.Delta,
			CurrentGamma: snap.Gamma,
			CurrentTheta: snap.Theta,
			CurrentIV:    snap.IV,
			Expiry:       t.Expiry,
			Now:          now,
		})

		if result != nil {
			if result.PartialExit {
				m.partialExit(ctx, t, result)
			} else {
				m.fullExit(ctx, t, result)
				continue
			}
		}

		q := float64(t.Quantity)
		pg.NetDelta += snap.Delta * q
		pg.NetGamma += snap.Gamma * q
		pg.NetTheta += snap.Theta * q
		pg.NetVega += snap.Vega * q
		pg.GrossDelta += abs(snap.Delta) * q
	}

	m.riskMgr.SetPortfolioGreeks(pg)
}

// ProposedPortfolio returns the portfolio Greeks as they would stand
// after adding a candidate position. Used for the pre-trade risk gate.
func (m *Manager) ProposedPortfolio(snap *broker.GreeksSnapshot, quantity int) risk.PortfolioGreeks {
	pg := m.riskMgr.PortfolioGreeks()
	q := float64(quantity)
	pg.NetDelta += snap.Delta * q
	pg.NetGamma += snap.Gamma * q
	pg.NetTheta += snap.Theta * q
	pg.NetVega += snap.Vega * q
	pg.GrossDelta += abs(snap.Delta) * q
	return pg
}

func (m *Manager) partialExit(ctx context.Context, t *Trade, result *exits.Snapshot) {
	if _, err := m.orders.PlaceExit(ctx, t.Symbol, result.QtyExited, result.ExitPrice); err != nil {
		m.log.WithError(err).Error("partial exit order failed", "trade_id", t.ID, "symbol", t.Symbol)
		m.alertBus.Publish(alertFor(alerts.KindError, alerts.LevelCritical,
			"Partial exit order failed",
			fmt.Sprintf("%s: %v", t.Symbol, err), t.Symbol, 0))
		return
	}

	pnl := (result.ExitPrice - t.EntryPrice) * float64(result.QtyExited)

	m.mu.Lock()
	t.Quantity = result.QtyRemaining
	t.RealizedPnL += pnl
	t.PartialExits = append(t.PartialExits, PartialExit{
		Time:  result.ExitTime,
		Qty:   result.QtyExited,
		Price: result.ExitPrice,
		PnL:   pnl,
		Rung:  result.LadderRung,
	})
	m.mu.Unlock()

	m.journal.Append(JournalEntry{Event: "partial_exit", Trade: *t, ExitQty: result.QtyExited, ExitPrice: result.ExitPrice, PnL: pnl, Timestamp: result.ExitTime})
	m.bus.PublishPartialExit(t.ID, t.Symbol, result.QtyExited, result.QtyRemaining, result.ExitPrice)
	m.alertBus.Publish(alertFor(alerts.KindPartialExit, alerts.LevelInfo,
		fmt.Sprintf("Partial exit %s", t.Symbol),
		fmt.Sprintf("rung %d: %d @ %.2f, pnl %.0f, %d remaining", result.LadderRung, result.QtyExited, result.ExitPrice, pnl, result.QtyRemaining),
		t.Symbol, pnl))

	if m.state != nil {
		if err := m.state.SaveTrade(ctx, t); err != nil {
			m.log.WithError(err).Warn("failed to persist trade state", "trade_id", t.ID)
		}
	}

	m.log.Info("partial exit", "trade_id", t.ID, "qty", result.QtyExited, "price", result.ExitPrice, "pnl", pnl, "remaining", result.QtyRemaining)
}

func (m *Manager) fullExit(ctx context.Context, t *Trade, result *exits.Snapshot) {
	if t.Quantity > 0 {
		if _, err := m.orders.PlaceExit(ctx, t.Symbol, t.Quantity, result.ExitPrice); err != nil {
			m.log.WithError(err).Error("exit order failed", "trade_id", t.ID, "symbol", t.Symbol, "trigger", string(result.Trigger))
			m.alertBus.Publish(alertFor(alerts.KindError, alerts.LevelCritical,
				"Exit order failed",
				fmt.Sprintf("%s (%s): %v", t.Symbol, result.Trigger, err), t.Symbol, 0))
			return
		}
	}

	m.settle(ctx, t, result.ExitPrice, string(result.Trigger), result.ExitTime)
}

func (m *Manager) settle(ctx context.Context, t *Trade, exitPrice float64, reason string, exitTime time.Time) {
	if exitTime.IsZero() {
		exitTime = time.Now()
	}
	pnl := (exitPrice - t.EntryPrice) * float64(t.Quantity)

	m.mu.Lock()
	t.RealizedPnL += pnl
	t.Status = StatusClosed
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.ExitReason = reason
	t.Quantity = 0
	closed := *t
	delete(m.active, t.ID)
	m.closed = append(m.closed, closed)
	m.mu.Unlock()

	m.exitEng.CleanupTrade(t.ID)
	m.cache.Untrack(t.Symbol)
	m.riskMgr.RecordTradeClosed(closed.RealizedPnL)
	m.stats.RecordClose(closed.RealizedPnL, reason)

	m.journal.Append(JournalEntry{Event: "close", Trade: closed, ExitPrice: exitPrice, PnL: closed.RealizedPnL, Timestamp: exitTime})
	m.bus.PublishTradeClosed(closed.ID, closed.Symbol, reason, closed.EntryPrice, exitPrice, closed.RealizedPnL)

	level := alerts.LevelInfo
	if closed.RealizedPnL < 0 {
		level = alerts.LevelWarning
	}
	m.alertBus.Publish(alertFor(alerts.KindTradeClose, level,
		fmt.Sprintf("Closed %s", closed.Symbol),
		fmt.Sprintf("%.2f -> %.2f (%s), pnl %.0f", closed.EntryPrice, exitPrice, reason, closed.RealizedPnL),
		closed.Symbol, closed.RealizedPnL))

	if m.recorder != nil {
		m.recorder.RecordTrade(adaptive.TradeFeatures{
			Buckets:        closed.Buckets,
			EntryDelta:     closed.EntryDelta,
			EntryGamma:     closed.EntryGamma,
			EntryTheta:     closed.EntryTheta,
			ExitReason:     reason,
			HoldingMinutes: exitTime.Sub(closed.EntryTime).Minutes(),
			Won:            closed.RealizedPnL > 0,
			PnL:            closed.RealizedPnL,
			Timestamp:      exitTime,
		})
	}

	if m.state != nil {
		if err := m.state.DeleteTrade(ctx, closed.ID); err != nil {
			m.log.WithError(err).Warn("failed to clear trade state", "trade_id", closed.ID)
		}
	}
	if m.history != nil {
		if err := m.history.InsertClosedTrade(ctx, &closed); err != nil {
			m.log.WithError(err).Warn("failed to archive trade", "trade_id", closed.ID)
		}
	}

	m.log.Info("trade closed", "trade_id", closed.ID, "symbol", closed.Symbol, "reason", reason, "pnl", closed.RealizedPnL)
}

// ExitAll closes every active trade at the freshest available price.
// Used on emergency exit and session shutdown.
func (m *Manager) ExitAll(ctx context.Context, reason string) {
	m.mu.RLock()
	trades := make([]*Trade, 0, len(m.active))
	for _, t := range m.active {
		trades = append(trades, t)
	}
	m.mu.RUnlock()

	for _, t := range trades {
		price := t.EntryPrice
		if snap := m.cache.Get(ctx, t.Symbol, broker.ExchangeNFO, true); snap != nil {
			price = snap.LTP
		}
		if t.Quantity > 0 {
			if _, err := m.orders.PlaceExit(ctx, t.Symbol, t.Quantity, price); err != nil {
				m.log.WithError(err).Error("forced exit order failed", "trade_id", t.ID, "symbol", t.Symbol)
				m.alertBus.Publish(alertFor(alerts.KindError, alerts.LevelCritical,
					"Forced exit order failed",
					fmt.Sprintf("%s: %v", t.Symbol, err), t.Symbol, 0))
				continue
			}
		}
		m.settle(ctx, t, price, reason, time.Now())
	}

	m.riskMgr.SetPortfolioGreeks(risk.PortfolioGreeks{})
}

// Restore reloads active trades from the state store after a restart.
func (m *Manager) Restore(ctx context.Context) int {
	if m.state == nil {
		return 0
	}
	trades, err := m.state.LoadTrades(ctx)
	if err != nil {
		m.log.WithError(err).Warn("trade state restore failed")
		return 0
	}

	m.mu.Lock()
	for _, t := range trades {
		m.active[t.ID] = t
	}
	m.mu.Unlock()

	for _, t := range trades {
		m.cache.Track(t.Symbol, broker.ExchangeNFO)
		m.log.Info("trade restored", "trade_id", t.ID, "symbol", t.Symbol, "qty", t.Quantity)
	}
	return len(trades)
}

// ActiveTrades returns copies of the open trades.
func (m *Manager) ActiveTrades() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trade, 0, len(m.active))
	for _, t := range m.active {
		out = append(out, *t)
	}
	return out
}

// ClosedTrades returns copies of the session's closed trades.
func (m *Manager) ClosedTrades() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trade, len(m.closed))
	copy(out, m.closed)
	return out
}

// ActiveCount returns the number of open trades.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// HasPosition reports whether a symbol already has an open trade.
func (m *Manager) HasPosition(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.active {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

func alertFor(kind alerts.Kind, level alerts.Level, title, message, symbol string, pnl float64) alerts.Alert {
	a := alerts.New(kind, level, title, message)
	a.Symbol = symbol
	a.PnL = pnl
	return a
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
