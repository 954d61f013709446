package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened     EventType = "TRADE_OPENED"
	EventTradeClosed     EventType = "TRADE_CLOSED"
	EventPartialExit     EventType = "PARTIAL_EXIT"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventOrderRejected   EventType = "ORDER_REJECTED"
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventBiasChanged     EventType = "BIAS_CHANGED"
	EventKillSwitch      EventType = "KILL_SWITCH"
	EventEmergencyExit   EventType = "EMERGENCY_EXIT"
	EventStaleData       EventType = "STALE_DATA"
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventWeightAdjusted  EventType = "WEIGHT_ADJUSTED"
	EventPatternBlocked  EventType = "PATTERN_BLOCKED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer never blocks the tick loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(tradeID, symbol, optionType string, entryPrice float64, quantity int) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"trade_id":    tradeID,
			"symbol":      symbol,
			"option_type": optionType,
			"entry_price": entryPrice,
			"quantity":    quantity,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(tradeID, symbol, exitReason string, entryPrice, exitPrice, pnl float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"trade_id":    tradeID,
			"symbol":      symbol,
			"exit_reason": exitReason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"pnl":         pnl,
		},
	})
}

// PublishPartialExit publishes a partial exit event
func (eb *EventBus) PublishPartialExit(tradeID, symbol string, qtyExited, qtyRemaining int, price float64) {
	eb.Publish(Event{
		Type: EventPartialExit,
		Data: map[string]interface{}{
			"trade_id":      tradeID,
			"symbol":        symbol,
			"qty_exited":    qtyExited,
			"qty_remaining": qtyRemaining,
			"price":         price,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(signal, symbol, reason string, strike, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"signal":     signal,
			"symbol":     symbol,
			"reason":     reason,
			"strike":     strike,
			"confidence": confidence,
		},
	})
}

// PublishBiasChanged publishes a bias transition event
func (eb *EventBus) PublishBiasChanged(from, to string, confidence float64) {
	eb.Publish(Event{
		Type: EventBiasChanged,
		Data: map[string]interface{}{
			"from":       from,
			"to":         to,
			"confidence": confidence,
		},
	})
}

// PublishKillSwitch publishes a kill switch activation
func (eb *EventBus) PublishKillSwitch(reason string, dailyPnL float64) {
	eb.Publish(Event{
		Type: EventKillSwitch,
		Data: map[string]interface{}{
			"reason":    reason,
			"daily_pnl": dailyPnL,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
