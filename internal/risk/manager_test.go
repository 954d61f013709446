package risk

import (
	"strings"
	"sync"
	"testing"
	"time"

	"options-scalping-bot/internal/events"
	"options-scalping-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR", Output: "stderr"})
}

func testLimits() Limits {
	return Limits{
		Capital:             100000,
		MaxDailyLossAmount:  3000,
		MaxTradesPerDay:     10,
		MaxNetDelta:         200,
		MaxNetVega:          500,
		MaxGrossDelta:       400,
		CooldownAfterLosses: 3,
		CooldownMinutes:     30,
	}
}

func TestDailyLossLimitBlocksEntries(t *testing.T) {
	m := NewManager(testLimits(), nil, testLogger())

	m.RecordTradeClosed(-1500)
	if ok, _ := m.CanTakeTrade(PortfolioGreeks{}); !ok {
		t.Fatal("trading blocked before the loss cap")
	}

	m.RecordTradeClosed(-1600) // total -3100, past the 3000 cap
	ok, reason := m.CanTakeTrade(PortfolioGreeks{})
	if ok {
		t.Fatal("trading allowed past the daily loss cap")
	}
	// The breach also flips the kill switch, which reports first.
	if !strings.Contains(reason, "kill switch") && reason != "Daily loss limit reached" {
		t.Fatalf("unexpected denial reason: %q", reason)
	}
	if !m.KillSwitchActive() {
		t.Fatal("kill switch not active after loss cap breach")
	}
}

func TestKillSwitchPublishesEmergencyExit(t *testing.T) {
	bus := events.NewEventBus()
	var mu sync.Mutex
	got := map[events.EventType]bool{}
	var wg sync.WaitGroup
	wg.Add(2)
	record := func(e events.Event) {
		mu.Lock()
		if !got[e.Type] {
			got[e.Type] = true
			wg.Done()
		}
		mu.Unlock()
	}
	bus.Subscribe(events.EventKillSwitch, record)
	bus.Subscribe(events.EventEmergencyExit, record)

	m := NewManager(testLimits(), bus, testLogger())
	m.RecordTradeClosed(-3500)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("missing events, got %v", got)
	}
}

func TestMaxTradesPerDay(t *testing.T) {
	limits := testLimits()
	limits.MaxTradesPerDay = 2
	m := NewManager(limits, nil, testLogger())

	m.RecordTradeOpened(500)
	m.RecordTradeOpened(500)

	ok, reason := m.CanTakeTrade(PortfolioGreeks{})
	if ok {
		t.Fatal("third trade allowed over the daily cap")
	}
	if !strings.Contains(reason, "max trades per day") {
		t.Fatalf("unexpected reason: %q", reason)
	}

	st := m.State()
	if st.TradesToday != 2 {
		t.Errorf("trades today = %d, want 2", st.TradesToday)
	}
	if st.DailyRiskUsedPct != 1.0 {
		t.Errorf("daily risk used = %.2f%%, want 1.00%%", st.DailyRiskUsedPct)
	}
}

func TestPortfolioGreeksCaps(t *testing.T) {
	tests := []struct {
		name     string
		proposed PortfolioGreeks
		wantPart string
	}{
		{"net delta", PortfolioGreeks{NetDelta: 250}, "net delta"},
		{"net delta short side", PortfolioGreeks{NetDelta: -250}, "net delta"},
		{"net vega", PortfolioGreeks{NetVega: 600}, "net vega"},
		{"gross delta", PortfolioGreeks{GrossDelta: 450}, "gross delta"},
	}

	m := NewManager(testLimits(), nil, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := m.CanTakeTrade(tt.proposed)
			if ok {
				t.Fatal("trade allowed over the greeks cap")
			}
			if !strings.Contains(reason, tt.wantPart) {
				t.Fatalf("reason %q does not mention %q", reason, tt.wantPart)
			}
		})
	}

	if ok, reason := m.CanTakeTrade(PortfolioGreeks{NetDelta: 150, NetVega: 400, GrossDelta: 300}); !ok {
		t.Fatalf("in-budget trade denied: %s", reason)
	}
}

func TestLossStreakCooldown(t *testing.T) {
	m := NewManager(testLimits(), nil, testLogger())

	m.RecordTradeClosed(-300)
	m.RecordTradeClosed(-300)
	if ok, _ := m.CanTakeTrade(PortfolioGreeks{}); !ok {
		t.Fatal("cooldown engaged before the streak threshold")
	}

	m.RecordTradeClosed(-300)
	ok, reason := m.CanTakeTrade(PortfolioGreeks{})
	if ok {
		t.Fatal("trading allowed during loss streak cooldown")
	}
	if !strings.Contains(reason, "cooldown") {
		t.Fatalf("unexpected reason: %q", reason)
	}

	// A winner resets the streak counter (the cooldown window still runs).
	m.RecordTradeClosed(400)
	if st := m.State(); st.ConsecutiveLosses != 0 {
		t.Errorf("consecutive losses = %d after a win, want 0", st.ConsecutiveLosses)
	}
}

func TestResetDayClearsLedger(t *testing.T) {
	m := NewManager(testLimits(), nil, testLogger())

	m.RecordTradeOpened(500)
	m.RecordTradeClosed(-3500)
	if !m.KillSwitchActive() {
		t.Fatal("kill switch expected before reset")
	}

	m.ResetDay()

	st := m.State()
	if st.TradesToday != 0 || st.DailyPnL != 0 || st.KillSwitchActive || st.ConsecutiveLosses != 0 {
		t.Fatalf("ledger not cleared: %+v", st)
	}
	if ok, reason := m.CanTakeTrade(PortfolioGreeks{}); !ok {
		t.Fatalf("trading still blocked after reset: %s", reason)
	}
}
