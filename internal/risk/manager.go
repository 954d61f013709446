package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/logging"
)

// PortfolioGreeks aggregates the Greeks exposure of all active trades.
type PortfolioGreeks struct {
	NetDelta   float64 `json:"net_delta"`
	NetGamma   float64 `json:"net_gamma"`
	NetTheta   float64 `json:"net_theta"`
	NetVega    float64 `json:"net_vega"`
	GrossDelta float64 `json:"gross_delta"`
}

// State is the intraday risk ledger. Counters are monotonic within a
// trading day and reset at session start.
type State struct {
	TradesToday       int       `json:"trades_today"`
	DailyPnL          float64   `json:"daily_pnl"`
	DailyRiskUsedPct  float64   `json:"daily_risk_used_pct"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	CooldownUntil     time.Time `json:"cooldown_until,omitempty"`
	KillSwitchActive  bool      `json:"kill_switch_active"`
	KillSwitchReason  string    `json:"kill_switch_reason,omitempty"`
}

// Limits holds the hard budgets the manager enforces.
type Limits struct {
	Capital             float64
	MaxDailyLossAmount  float64
	MaxTradesPerDay     int
	MaxNetDelta         float64
	MaxNetGamma         float64
	MaxNetTheta         float64
	MaxNetVega          float64
	MaxGrossDelta       float64
	CooldownAfterLosses int
	CooldownMinutes     int
}

// Manager gates every order against the daily budgets and portfolio
// Greeks caps. It never cancels in-flight orders itself; the kill switch
// broadcasts an emergency-exit that the trade manager acts on.
type Manager struct {
	limits Limits
	bus    *events.EventBus
	log    *logging.Logger

	mu         sync.RWMutex
	state      State
	portfolio  PortfolioGreeks
	sessionDay time.Time
}

// NewManager creates a risk manager.
func NewManager(limits Limits, bus *events.EventBus, log *logging.Logger) *Manager {
	return &Manager{
		limits:     limits,
		bus:        bus,
		log:        log.WithComponent("risk"),
		sessionDay: time.Now().Truncate(24 * time.Hour),
	}
}

// CanTakeTrade evaluates every gate for a proposed trade. proposed is the
// portfolio Greeks as they would stand after the trade. On denial the
// caller must abandon the entry.
func (m *Manager) CanTakeTrade(proposed PortfolioGreeks) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.KillSwitchActive {
		return false, fmt.Sprintf("kill switch active: %s", m.state.KillSwitchReason)
	}
	if m.state.DailyPnL <= -m.limits.MaxDailyLossAmount {
		return false, "Daily loss limit reached"
	}
	if m.state.TradesToday >= m.limits.MaxTradesPerDay {
		return false, fmt.Sprintf("max trades per day reached (%d)", m.limits.MaxTradesPerDay)
	}
	if !m.state.CooldownUntil.IsZero() && time.Now().Before(m.state.CooldownUntil) {
		return false, fmt.Sprintf("cooldown until %s", m.state.CooldownUntil.Format("15:04:05"))
	}

	if m.limits.MaxNetDelta > 0 && math.Abs(proposed.NetDelta) > m.limits.MaxNetDelta {
		return false, fmt.Sprintf("net delta %.1f would exceed cap %.1f", proposed.NetDelta, m.limits.MaxNetDelta)
	}
	if m.limits.MaxNetGamma > 0 && math.Abs(proposed.NetGamma) > m.limits.MaxNetGamma {
		return false, fmt.Sprintf("net gamma %.2f would exceed cap %.2f", proposed.NetGamma, m.limits.MaxNetGamma)
	}
	if m.limits.MaxNetTheta > 0 && math.Abs(proposed.NetTheta) > m.limits.MaxNetTheta {
		return false, fmt.Sprintf("net theta %.1f would exceed cap %.1f", proposed.NetTheta, m.limits.MaxNetTheta)
	}
	if m.limits.MaxNetVega > 0 && math.Abs(proposed.NetVega) > m.limits.MaxNetVega {
		return false, fmt.Sprintf("net vega %.1f would exceed cap %.1f", proposed.NetVega, m.limits.MaxNetVega)
	}
	if m.limits.MaxGrossDelta > 0 && proposed.GrossDelta > m.limits.MaxGrossDelta {
		return false, fmt.Sprintf("gross delta %.1f would exceed cap %.1f", proposed.GrossDelta, m.limits.MaxGrossDelta)
	}

	return true, ""
}

// RecordTradeOpened bumps the daily trade counter and risk usage.
func (m *Manager) RecordTradeOpened(maxLossAmount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TradesToday++
	if m.limits.Capital > 0 {
		m.state.DailyRiskUsedPct += maxLossAmount / m.limits.Capital * 100
	}
}

// RecordTradeClosed folds a realised P&L into the daily ledger, manages
// the loss streak cooldown and flips the kill switch on the daily loss cap.
func (m *Manager) RecordTradeClosed(pnl float64) {
	m.mu.Lock()

	m.state.DailyPnL += pnl
	if pnl < 0 {
		m.state.ConsecutiveLosses++
		if m.limits.CooldownAfterLosses > 0 && m.state.ConsecutiveLosses >= m.limits.CooldownAfterLosses {
			m.state.CooldownUntil = time.Now().Add(time.Duration(m.limits.CooldownMinutes) * time.Minute)
			m.log.Warn("loss streak cooldown engaged",
				"losses", m.state.ConsecutiveLosses, "until", m.state.CooldownUntil.Format("15:04:05"))
		}
	} else {
		m.state.ConsecutiveLosses = 0
	}

	breach := m.state.DailyPnL <= -m.limits.MaxDailyLossAmount && !m.state.KillSwitchActive
	dailyPnL := m.state.DailyPnL
	m.mu.Unlock()

	if breach {
		m.ActivateKillSwitch(fmt.Sprintf("daily loss %.0f breached cap %.0f", dailyPnL, m.limits.MaxDailyLossAmount))
	}
}

// SetPortfolioGreeks replaces the current aggregate exposure. Called by the
// trade manager whenever the active set changes.
func (m *Manager) SetPortfolioGreeks(pg PortfolioGreeks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio = pg
}

// PortfolioGreeks returns the current aggregate exposure.
func (m *Manager) PortfolioGreeks() PortfolioGreeks {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolio
}

// ActivateKillSwitch stops all new trading and broadcasts an emergency
// exit for the tick loop to act on.
func (m *Manager) ActivateKillSwitch(reason string) {
	m.mu.Lock()
	if m.state.KillSwitchActive {
		m.mu.Unlock()
		return
	}
	m.state.KillSwitchActive = true
	m.state.KillSwitchReason = reason
	dailyPnL := m.state.DailyPnL
	m.mu.Unlock()

	m.log.Error("kill switch activated", "reason", reason, "daily_pnl", dailyPnL)
	if m.bus != nil {
		m.bus.PublishKillSwitch(reason, dailyPnL)
		m.bus.Publish(events.Event{
			Type: events.EventEmergencyExit,
			Data: map[string]interface{}{"reason": reason},
		})
	}
}

// KillSwitchActive reports whether the switch is flipped.
func (m *Manager) KillSwitchActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.KillSwitchActive
}

// State returns a copy of the risk ledger.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ResetDay clears the daily counters at session start.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{}
	m.sessionDay = time.Now().Truncate(24 * time.Hour)
	m.log.Info("daily risk state reset")
}
