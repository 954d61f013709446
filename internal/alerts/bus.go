package alerts

import (
	"context"
	"sync"
	"time"

	"options-scalping-bot/internal/logging"
)

// Handler delivers an alert to one sink.
type Handler interface {
	Name() string
	Handle(ctx context.Context, alert Alert) error
}

// Stats counts dispatcher activity per handler.
type Stats struct {
	AlertsSent   int64            `json:"alerts_sent"`
	AlertsFailed int64            `json:"alerts_failed"`
	QueueSize    int              `json:"queue_size"`
	PerHandler   map[string]int64 `json:"per_handler_failures"`
}

// Bus queues alerts and fans them out to the registered handlers from a
// single dispatcher goroutine. The queue is unbounded: Publish never
// blocks the producer, operators watch queue_size for a stuck sink. The
// history ring keeps every alert regardless of handler outcomes.
type Bus struct {
	log            *logging.Logger
	handlers       []Handler
	handlerTimeout time.Duration

	qmu     sync.Mutex
	cond    *sync.Cond
	pending []Alert
	stopped bool

	mu      sync.RWMutex
	history []Alert
	histCap int
	stats   Stats

	wg   sync.WaitGroup
	once sync.Once
}

// NewBus creates an alert bus with a history ring of the given size.
func NewBus(historySize int, log *logging.Logger) *Bus {
	if historySize <= 0 {
		historySize = 1000
	}
	b := &Bus{
		log:            log.WithComponent("alerts"),
		handlerTimeout: 10 * time.Second,
		histCap:        historySize,
		stats:          Stats{PerHandler: make(map[string]int64)},
	}
	b.cond = sync.NewCond(&b.qmu)
	return b
}

// Register adds a handler. Call before Start.
func (b *Bus) Register(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Start launches the dispatcher goroutine.
func (b *Bus) Start() {
	b.wg.Add(1)
	go b.dispatch()
}

// Stop drains the queue and stops the dispatcher.
func (b *Bus) Stop() {
	b.once.Do(func() {
		b.qmu.Lock()
		b.stopped = true
		b.qmu.Unlock()
		b.cond.Broadcast()
	})
	b.wg.Wait()
}

// Publish enqueues an alert for the dispatcher and returns its id. Never
// blocks: the queue grows as needed.
func (b *Bus) Publish(alert Alert) string {
	alert = b.stamp(alert)
	b.record(alert)

	b.qmu.Lock()
	b.pending = append(b.pending, alert)
	b.qmu.Unlock()
	b.cond.Signal()
	return alert.ID
}

// PublishSync records and delivers the alert on the caller's goroutine,
// bypassing the queue. For alerts that must reach the sinks before the
// caller proceeds, like an emergency exit.
func (b *Bus) PublishSync(alert Alert) string {
	alert = b.stamp(alert)
	b.record(alert)
	b.deliver(alert)
	return alert.ID
}

func (b *Bus) stamp(alert Alert) Alert {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	return alert
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		b.qmu.Lock()
		for len(b.pending) == 0 && !b.stopped {
			b.cond.Wait()
		}
		if len(b.pending) == 0 {
			// Stopped and drained.
			b.qmu.Unlock()
			return
		}
		alert := b.pending[0]
		b.pending = b.pending[1:]
		b.qmu.Unlock()

		b.deliver(alert)
	}
}

func (b *Bus) deliver(alert Alert) {
	failed := false
	for _, h := range b.handlers {
		ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
		err := h.Handle(ctx, alert)
		cancel()
		if err != nil {
			failed = true
			b.mu.Lock()
			b.stats.PerHandler[h.Name()]++
			b.mu.Unlock()
			b.log.WithError(err).Warn("alert handler failed", "handler", h.Name(), "kind", string(alert.Kind))
		}
	}

	b.mu.Lock()
	if failed {
		b.stats.AlertsFailed++
	} else {
		b.stats.AlertsSent++
	}
	b.mu.Unlock()
}

func (b *Bus) record(alert Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, alert)
	if len(b.history) > b.histCap {
		b.history = b.history[len(b.history)-b.histCap:]
	}
}

// History returns a copy of the alert ring, oldest first.
func (b *Bus) History() []Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Alert, len(b.history))
	copy(out, b.history)
	return out
}

// Recent returns the last n alerts, newest first.
func (b *Bus) Recent(n int) []Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Alert, 0, n)
	for i := len(b.history) - 1; i >= len(b.history)-n; i-- {
		out = append(out, b.history[i])
	}
	return out
}

// Statistics returns a copy of the dispatch counters plus the current
// queue depth.
func (b *Bus) Statistics() Stats {
	b.qmu.Lock()
	depth := len(b.pending)
	b.qmu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	per := make(map[string]int64, len(b.stats.PerHandler))
	for k, v := range b.stats.PerHandler {
		per[k] = v
	}
	return Stats{
		AlertsSent:   b.stats.AlertsSent,
		AlertsFailed: b.stats.AlertsFailed,
		QueueSize:    depth,
		PerHandler:   per,
	}
}
