package marketdata

import (
	"context"
	"sync"
	"time"

	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
)

// CacheStats counts cache activity for the monitor endpoints.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Refreshes int64 `json:"refreshes"`
	APIErrors int64 `json:"api_errors"`
}

type cacheEntry struct {
	exchange  string
	current   *broker.GreeksSnapshot
	previous  *broker.GreeksSnapshot
	fetchedAt time.Time
	history   []broker.GreeksSnapshot
}

// GreeksCache holds the current and previous Greeks snapshot per symbol
// plus a bounded rolling history. One background worker refreshes tracked
// symbols so the tick loop never waits on a quote fetch.
type GreeksCache struct {
	client      broker.Client
	interval    time.Duration
	historySize int
	log         *logging.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	tracked map[string]string // symbol → exchange
	stats   CacheStats

	stop    chan struct{}
	running bool
}

// NewGreeksCache creates a cache refreshing at the given interval.
func NewGreeksCache(client broker.Client, interval time.Duration, historySize int, log *logging.Logger) *GreeksCache {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if historySize <= 0 {
		historySize = 100
	}
	return &GreeksCache{
		client:      client,
		interval:    interval,
		historySize: historySize,
		log:         log.WithComponent("greeks-cache"),
		entries:     make(map[string]*cacheEntry),
		tracked:     make(map[string]string),
	}
}

// Get returns the snapshot for a symbol, refreshing when the cached one is
// older than the refresh interval or force is set. A nil return means the
// refresh failed and the caller must treat the trade as skippable this tick.
func (gc *GreeksCache) Get(ctx context.Context, symbol, exchange string, force bool) *broker.GreeksSnapshot {
	gc.mu.Lock()
	entry, ok := gc.entries[symbol]
	if ok && !force && entry.current != nil && time.Since(entry.fetchedAt) < gc.interval {
		gc.stats.Hits++
		snap := *entry.current
		gc.mu.Unlock()
		return &snap
	}
	gc.stats.Misses++
	gc.mu.Unlock()

	if gc.refresh(ctx, symbol, exchange) {
		gc.mu.Lock()
		defer gc.mu.Unlock()
		if entry, ok := gc.entries[symbol]; ok && entry.current != nil {
			snap := *entry.current
			return &snap
		}
	}

	// Refresh failed; the previous snapshot stays cached for Rolling but
	// Get reports the failure.
	return nil
}

// Rolling returns copies of the (current, previous) snapshots for a symbol.
// The two differ by exactly one refresh step, never aliases of each other.
func (gc *GreeksCache) Rolling(symbol string) (*broker.GreeksSnapshot, *broker.GreeksSnapshot) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	entry, ok := gc.entries[symbol]
	if !ok {
		return nil, nil
	}
	var cur, prev *broker.GreeksSnapshot
	if entry.current != nil {
		c := *entry.current
		cur = &c
	}
	if entry.previous != nil {
		p := *entry.previous
		prev = &p
	}
	return cur, prev
}

// History returns a copy of the rolling snapshot history for a symbol,
// oldest first.
func (gc *GreeksCache) History(symbol string) []broker.GreeksSnapshot {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	entry, ok := gc.entries[symbol]
	if !ok {
		return nil
	}
	out := make([]broker.GreeksSnapshot, len(entry.history))
	copy(out, entry.history)
	return out
}

// Track adds a symbol to the background refresh set.
func (gc *GreeksCache) Track(symbol, exchange string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.tracked[symbol] = exchange
}

// Untrack removes a symbol from the background refresh set.
func (gc *GreeksCache) Untrack(symbol string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	delete(gc.tracked, symbol)
}

// Tracked returns the currently tracked symbols.
func (gc *GreeksCache) Tracked() []string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	out := make([]string, 0, len(gc.tracked))
	for sym := range gc.tracked {
		out = append(out, sym)
	}
	return out
}

// Stats returns a copy of the cache counters.
func (gc *GreeksCache) Stats() CacheStats {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.stats
}

// StartBackgroundRefresh launches the refresh worker. Safe to call once.
func (gc *GreeksCache) StartBackgroundRefresh() {
	gc.mu.Lock()
	if gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = true
	gc.stop = make(chan struct{})
	stop := gc.stop
	gc.mu.Unlock()

	go gc.refreshLoop(stop)
	gc.log.Info("background greeks refresh started", "interval", gc.interval.String())
}

// StopBackgroundRefresh stops the refresh worker.
func (gc *GreeksCache) StopBackgroundRefresh() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if !gc.running {
		return
	}
	gc.running = false
	close(gc.stop)
}

func (gc *GreeksCache) refreshLoop(stop chan struct{}) {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			gc.mu.Lock()
			symbols := make(map[string]string, len(gc.tracked))
			for sym, exch := range gc.tracked {
				symbols[sym] = exch
			}
			gc.mu.Unlock()

			for sym, exch := range symbols {
				select {
				case <-stop:
					return
				default:
				}
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				gc.refresh(ctx, sym, exch)
				cancel()
			}
		}
	}
}

// refresh fetches one snapshot and rotates (current → previous).
func (gc *GreeksCache) refresh(ctx context.Context, symbol, exchange string) bool {
	snap, err := gc.client.GetOptionQuote(ctx, symbol, exchange)
	if err != nil {
		gc.mu.Lock()
		gc.stats.APIErrors++
		gc.mu.Unlock()
		gc.log.Warn("quote refresh failed", "symbol", symbol, "error", err)
		return false
	}

	gc.mu.Lock()
	defer gc.mu.Unlock()

	entry, ok := gc.entries[symbol]
	if !ok {
		entry = &cacheEntry{exchange: exchange}
		gc.entries[symbol] = entry
	}

	entry.previous = entry.current
	copied := snap
	entry.current = &copied
	entry.fetchedAt = time.Now()

	entry.history = append(entry.history, snap)
	if len(entry.history) > gc.historySize {
		entry.history = entry.history[len(entry.history)-gc.historySize:]
	}

	gc.stats.Refreshes++
	return true
}
