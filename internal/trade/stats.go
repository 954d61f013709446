package trade

import (
	"math"
	"sync"
)

// SessionStats accumulates the day's closed-trade statistics.
type SessionStats struct {
	mu           sync.RWMutex
	trades       int
	wins         int
	losses       int
	grossProfit  float64
	grossLoss    float64
	totalPnL     float64
	largestWin   float64
	largestLoss  float64
	byExitReason map[string]int
}

// NewSessionStats creates an empty stats accumulator.
func NewSessionStats() *SessionStats {
	return &SessionStats{byExitReason: make(map[string]int)}
}

// RecordClose tallies one closed trade.
func (s *SessionStats) RecordClose(pnl float64, exitReason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades++
	s.totalPnL += pnl
	s.byExitReason[exitReason]++

	if pnl > 0 {
		s.wins++
		s.grossProfit += pnl
		if pnl > s.largestWin {
			s.largestWin = pnl
		}
	} else {
		s.losses++
		s.grossLoss += math.Abs(pnl)
		if pnl < s.largestLoss {
			s.largestLoss = pnl
		}
	}
}

// Summary returns the session statistics as a map for the dashboard.
func (s *SessionStats) Summary() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	winRate := 0.0
	if s.trades > 0 {
		winRate = float64(s.wins) / float64(s.trades)
	}

	profitFactor := 0.0
	if s.grossLoss > 0 {
		profitFactor = s.grossProfit / s.grossLoss
	} else if s.grossProfit > 0 {
		profitFactor = math.Inf(1)
	}

	reasons := make(map[string]int, len(s.byExitReason))
	for k, v := range s.byExitReason {
		reasons[k] = v
	}

	return map[string]interface{}{
		"trades":         s.trades,
		"wins":           s.wins,
		"losses":         s.losses,
		"win_rate":       winRate,
		"total_pnl":      s.totalPnL,
		"gross_profit":   s.grossProfit,
		"gross_loss":     s.grossLoss,
		"profit_factor":  profitFactor,
		"largest_win":    s.largestWin,
		"largest_loss":   s.largestLoss,
		"by_exit_reason": reasons,
	}
}

// TotalPnL returns the session's realized pnl.
func (s *SessionStats) TotalPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalPnL
}

// Trades returns the number of closed trades.
func (s *SessionStats) Trades() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades
}

// Reset clears the accumulator for a new session.
func (s *SessionStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades, s.wins, s.losses = 0, 0, 0
	s.grossProfit, s.grossLoss, s.totalPnL = 0, 0, 0
	s.largestWin, s.largestLoss = 0, 0
	s.byExitReason = make(map[string]int)
}
