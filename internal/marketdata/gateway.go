package marketdata

import (
	"context"
	"sync"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

// Gateway fronts the broker seam with a freshness policy: any tick older
// than the tolerance blocks trading decisions until a fresh one arrives.
type Gateway struct {
	client    broker.Client
	tolerance time.Duration
	log       *logging.Logger

	mu       sync.RWMutex
	lastTick map[string]broker.Tick
	errors   int64
}

// NewGateway creates a gateway around a broker client.
func NewGateway(client broker.Client, tolerance time.Duration, log *logging.Logger) *Gateway {
	if tolerance <= 0 {
		tolerance = 5 * time.Second
	}
	return &Gateway{
		client:    client,
		tolerance: tolerance,
		log:       log.WithComponent("gateway"),
		lastTick:  make(map[string]broker.Tick),
	}
}

// PollTick fetches a fresh underlying tick from the broker and stores it.
func (g *Gateway) PollTick(ctx context.Context, underlying string) (broker.Tick, error) {
	tick, err := g.client.GetLTPWithTimestamp(ctx, underlying)
	if err != nil {
		g.mu.Lock()
		g.errors++
		g.mu.Unlock()
		return broker.Tick{}, err
	}

	g.mu.Lock()
	// Timestamps are monotonic per underlying; drop out-of-order ticks.
	if prev, ok := g.lastTick[underlying]; !ok || !tick.Timestamp.Before(prev.Timestamp) {
		g.lastTick[underlying] = tick
	}
	g.mu.Unlock()
	return tick, nil
}

// OnStreamTick ingests a tick pushed by the websocket feed.
func (g *Gateway) OnStreamTick(tick broker.Tick) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.lastTick[tick.Underlying]; !ok || !tick.Timestamp.Before(prev.Timestamp) {
		g.lastTick[tick.Underlying] = tick
	}
}

// FreshTick returns the last tick for an underlying and whether it is
// within the freshness tolerance. A false return must halt trading.
func (g *Gateway) FreshTick(underlying string) (broker.Tick, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tick, ok := g.lastTick[underlying]
	if !ok {
		return broker.Tick{}, false
	}
	return tick, tick.Age() <= g.tolerance
}

// LastTick returns the last tick regardless of age.
func (g *Gateway) LastTick(underlying string) (broker.Tick, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tick, ok := g.lastTick[underlying]
	return tick, ok
}

// Tolerance returns the configured freshness tolerance.
func (g *Gateway) Tolerance() time.Duration { return g.tolerance }

// ErrorCount returns how many broker calls have failed.
func (g *Gateway) ErrorCount() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.errors
}
