// Package store holds the optional persistence backends: Redis for
// active-trade crash recovery and Postgres for the closed-trade archive.
// The engine runs fine with both disabled; persistence failures are
// logged and never stop the trading loop.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/trade"
)

// Redis key layout for active trade state.
const (
	// tradeKeyPrefix keys one active trade: scalper:trade:{id}
	tradeKeyPrefix = "scalper:trade"

	// tradeSetKey holds the set of active trade ids.
	tradeSetKey = "scalper:trades:active"

	// tradeStateTTL keeps orphaned keys from living forever. Intraday
	// trades close within hours; 24h covers any overnight debugging.
	tradeStateTTL = 24 * time.Hour
)

// RedisStateStore persists active trades in Redis so a restarted engine
// can re-adopt its open positions. When Redis is unavailable it falls
// back to an in-memory map, which survives nothing but keeps the
// manager's persistence calls from failing.
type RedisStateStore struct {
	client    *redis.Client
	log       *logging.Logger
	available atomic.Bool

	mu       sync.RWMutex
	fallback map[string]*trade.Trade
}

// NewRedisStateStore creates a state store. A nil client means
// memory-only mode.
func NewRedisStateStore(client *redis.Client, log *logging.Logger) *RedisStateStore {
	s := &RedisStateStore{
		client:   client,
		log:      log.WithComponent("redis_state"),
		fallback: make(map[string]*trade.Trade),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.log.WithError(err).Warn("redis unavailable at startup, using in-memory fallback")
		} else {
			s.available.Store(true)
			s.log.Info("redis connected")
		}
	} else {
		s.log.Info("no redis client, state store is memory-only")
	}
	return s
}

func tradeKey(id string) string {
	return fmt.Sprintf("%s:%s", tradeKeyPrefix, id)
}

// SaveTrade upserts one active trade.
func (s *RedisStateStore) SaveTrade(ctx context.Context, t *trade.Trade) error {
	s.mu.Lock()
	cp := *t
	s.fallback[t.ID] = &cp
	s.mu.Unlock()

	if !s.available.Load() {
		return nil
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade %s: %w", t.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tradeKey(t.ID), data, tradeStateTTL)
	pipe.SAdd(ctx, tradeSetKey, t.ID)
	pipe.Expire(ctx, tradeSetKey, tradeStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.available.Store(false)
		return fmt.Errorf("redis save trade %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTrade removes a closed trade's state.
func (s *RedisStateStore) DeleteTrade(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.fallback, id)
	s.mu.Unlock()

	if !s.available.Load() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tradeKey(id))
	pipe.SRem(ctx, tradeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.available.Store(false)
		return fmt.Errorf("redis delete trade %s: %w", id, err)
	}
	return nil
}

// LoadTrades returns every persisted active trade. Unreadable entries
// are skipped with a warning; a half-recovered book beats none.
func (s *RedisStateStore) LoadTrades(ctx context.Context) ([]*trade.Trade, error) {
	if !s.available.Load() {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]*trade.Trade, 0, len(s.fallback))
		for _, t := range s.fallback {
			cp := *t
			out = append(out, &cp)
		}
		return out, nil
	}

	ids, err := s.client.SMembers(ctx, tradeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load trade ids: %w", err)
	}

	var out []*trade.Trade
	for _, id := range ids {
		data, err := s.client.Get(ctx, tradeKey(id)).Bytes()
		if err == redis.Nil {
			s.client.SRem(ctx, tradeSetKey, id)
			continue
		}
		if err != nil {
			s.log.WithError(err).Warn("failed to load trade state", "trade_id", id)
			continue
		}
		var t trade.Trade
		if err := json.Unmarshal(data, &t); err != nil {
			s.log.WithError(err).Warn("corrupt trade state, skipping", "trade_id", id)
			continue
		}
		out = append(out, &t)
	}
	return out, nil
}

// Available reports whether Redis is reachable.
func (s *RedisStateStore) Available() bool {
	return s.available.Load()
}
