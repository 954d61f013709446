package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"options-scalping-bot/config"
	"options-scalping-bot/internal/broker"
	"options-scalping-bot/internal/logging"
	"options-scalping-bot/internal/store"
	"options-scalping-bot/internal/strategy"
	"options-scalping-bot/internal/trade"

	"github.com/redis/go-redis/v9"
)

// Exit codes: 0 clean session, 1 configuration or startup failure,
// 2 runtime failure after startup.
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return exitStartup
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	client, symbols := buildBroker(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stateStore trade.StateStore
	if cfg.StoreConfig.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.StoreConfig.RedisAddr,
			Password: cfg.StoreConfig.RedisPassword,
			DB:       cfg.StoreConfig.RedisDB,
		})
		stateStore = store.NewRedisStateStore(rdb, logger)
	}

	var historyStore *store.HistoryStore
	if cfg.StoreConfig.DatabaseURL != "" {
		historyStore, err = store.NewHistoryStore(ctx, cfg.StoreConfig.DatabaseURL, logger)
		if err != nil {
			logger.WithError(err).Warn("trade archive disabled")
			historyStore = nil
		} else {
			defer historyStore.Close()
		}
	}

	orch, err := strategy.New(cfg, client, symbols, stateStore, historyStore, logger)
	if err != nil {
		logger.WithError(err).Error("failed to build engine")
		return exitStartup
	}

	if err := orch.Run(ctx); err != nil {
		logger.WithError(err).Error("engine stopped with error")
		return exitRuntime
	}
	return exitOK
}

// buildBroker picks the live HTTP client or the scripted mock for demo mode.
func buildBroker(cfg *config.Config, logger *logging.Logger) (broker.Client, broker.SymbolBuilder) {
	symbols := broker.NewNFOSymbols()
	if cfg.SessionConfig.DemoMode {
		logger.Info("demo mode: simulated broker")
		spot := 25000.0
		if cfg.InstrumentConfig.PrimaryUnderlying == "BANKNIFTY" {
			spot = 52000.0
		}
		return broker.NewMockClient(cfg.InstrumentConfig.PrimaryUnderlying, spot), symbols
	}
	return broker.NewHTTPClient(broker.HTTPClientConfig{
		BaseURL:    cfg.BrokerConfig.BaseURL,
		APIKey:     cfg.BrokerConfig.APIKey,
		ClientCode: cfg.BrokerConfig.ClientCode,
		Password:   cfg.BrokerConfig.Password,
		TOTPSecret: cfg.BrokerConfig.TOTPSecret,
		Timeout:    cfg.BrokerConfig.Timeout,
	}, logger), symbols
}
