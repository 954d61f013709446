package alerts

import (
	"time"

	"github.com/google/uuid"
)

// Level grades alert urgency.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Kind names the alert category.
type Kind string

const (
	KindSignal      Kind = "signal"
	KindTradeOpen   Kind = "trade_open"
	KindTradeClose  Kind = "trade_close"
	KindPartialExit Kind = "partial_exit"
	KindRisk        Kind = "risk"
	KindKillSwitch  Kind = "kill_switch"
	KindStaleData   Kind = "stale_data"
	KindError       Kind = "error"
	KindSystem      Kind = "system"
)

// Alert is one message for the alert sinks.
type Alert struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Level     Level                  `json:"level"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Symbol    string                 `json:"symbol,omitempty"`
	PnL       float64                `json:"pnl,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// New builds an alert with id and timestamp filled in.
func New(kind Kind, level Level, title, message string) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}
