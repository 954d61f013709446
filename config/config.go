package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the single typed configuration record for the whole process.
// Values load from config.json (path in CONFIG_FILE, default "config.json"),
// then environment variables override individual fields.
type Config struct {
	BrokerConfig     BrokerConfig     `json:"broker"`
	InstrumentConfig InstrumentConfig `json:"instrument"`
	SessionConfig    SessionConfig    `json:"session"`
	RiskConfig       RiskConfig       `json:"risk"`
	FilterConfig     FilterConfig     `json:"filters"`
	GreeksConfig     GreeksConfig     `json:"greeks"`
	ExitConfig       ExitConfig       `json:"exits"`
	AdaptiveConfig   AdaptiveConfig   `json:"adaptive"`
	AlertConfig      AlertConfig      `json:"alerts"`
	DashboardConfig  DashboardConfig  `json:"dashboard"`
	StoreConfig      StoreConfig      `json:"store"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// BrokerConfig holds brokerage session credentials and endpoints.
type BrokerConfig struct {
	APIKey     string        `json:"api_key"`
	ClientCode string        `json:"client_code"`
	Password   string        `json:"password"`
	TOTPSecret string        `json:"totp_secret"`
	BaseURL    string        `json:"base_url"`
	FeedURL    string        `json:"feed_url"`
	Timeout    time.Duration `json:"timeout"`
}

// InstrumentConfig selects the traded underlying and its contract geometry.
type InstrumentConfig struct {
	PrimaryUnderlying  string  `json:"primary_underlying"`  // "NIFTY", "BANKNIFTY"
	UnderlyingExchange string  `json:"underlying_exchange"` // "NSE"
	MinimumLotSize     int     `json:"minimum_lot_size"`
	StrikeInterval     float64 `json:"strike_interval"` // 50 NIFTY, 100 BANKNIFTY
	StrikeRange        int     `json:"strike_range"`    // ATM ± N strikes in the ladder
}

// SessionConfig bounds the trading window and tick cadence.
type SessionConfig struct {
	Start              string        `json:"start"` // "09:20" IST
	End                string        `json:"end"`   // "15:00" IST
	TickInterval       time.Duration `json:"tick_interval"`
	FreshnessTolerance time.Duration `json:"freshness_tolerance"` // stale ticks block trading
	DemoMode           bool          `json:"demo_mode"`
	DemoSkipWebsocket  bool          `json:"demo_skip_websocket"`
}

// RiskConfig holds the capital and loss budgets the risk manager enforces.
type RiskConfig struct {
	Capital              float64 `json:"capital"`
	RiskPerTradeMin      float64 `json:"risk_per_trade_min"`     // %
	RiskPerTradeOptimal  float64 `json:"risk_per_trade_optimal"` // %
	RiskPerTradeMax      float64 `json:"risk_per_trade_max"`     // %
	HardSLPercentMin     float64 `json:"hard_sl_percent_min"`
	HardSLExceedSkip     float64 `json:"hard_sl_exceed_skip"` // SL wider than this % skips the trade
	MaxDailyLossAmount   float64 `json:"max_daily_loss_amount"`
	MaxTradesPerDay      int     `json:"max_trades_per_day"`
	MaxPositionSize      int     `json:"max_position_size"` // quantity cap
	MaxNetDelta          float64 `json:"max_net_delta"`
	MaxNetGamma          float64 `json:"max_net_gamma"`
	MaxNetTheta          float64 `json:"max_net_theta"`
	MaxNetVega           float64 `json:"max_net_vega"`
	MaxGrossDelta        float64 `json:"max_gross_delta"`
	CooldownAfterLosses  int     `json:"cooldown_after_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MultilegEnabled      bool    `json:"multileg_enabled"`
	RewardRiskMultiplier float64 `json:"reward_risk_multiplier"` // target distance = SL distance × this
}

// FilterConfig holds the bias and entry thresholds.
type FilterConfig struct {
	BullishDeltaMin       float64 `json:"bullish_delta_min"` // +0.45
	BearishDeltaMax       float64 `json:"bearish_delta_max"` // -0.45
	IdealDeltaCall        float64 `json:"ideal_delta_call"`
	IdealDeltaPut         float64 `json:"ideal_delta_put"`
	IdealGammaMin         float64 `json:"ideal_gamma_min"`
	MaxSpreadPercent      float64 `json:"max_spread_percent"`
	MinEntryConfidence    float64 `json:"min_entry_confidence"`
	MaxTrapProbability    float64 `json:"max_trap_probability"`
	IVSafeZoneMin         float64 `json:"iv_safe_zone_min"`
	IVSafeZoneMax         float64 `json:"iv_safe_zone_max"`
	IVCrushThreshold      float64 `json:"iv_crush_threshold"` // IV change below this is a crush (pp)
	RejectOIFlatThreshold float64 `json:"reject_oi_flat_threshold"`
	RejectIVDrop          float64 `json:"reject_iv_drop"`
	RejectSpreadWiden     float64 `json:"reject_spread_widen"`
	RejectDeltaCollapse   float64 `json:"reject_delta_collapse"`
	NoTradeGammaFlat      float64 `json:"no_trade_gamma_flat"`
}

// GreeksConfig controls the greeks cache and its background refresh worker.
type GreeksConfig struct {
	BackgroundRefresh bool          `json:"background_refresh"`
	RefreshInterval   time.Duration `json:"refresh_interval"`
	UseRealGreeksData bool          `json:"use_real_greeks_data"`
	HistorySize       int           `json:"history_size"`
}

// LadderRung is one profit-ladder step: at TargetPercent gain, exit
// QtyFraction of the original quantity.
type LadderRung struct {
	TargetPercent float64 `json:"target_percent"`
	QtyFraction   float64 `json:"qty_fraction"`
}

// ExitConfig holds the smart-exit thresholds.
type ExitConfig struct {
	TrailingActivation float64       `json:"trailing_activation"` // pnl% before trailing arms
	TrailingPercent    float64       `json:"trailing_percent"`
	ProfitLadder       []LadderRung  `json:"profit_ladder"`
	MaxHolding         time.Duration `json:"max_holding"`
	DeltaWeakness      float64       `json:"delta_weakness"` // fractional decay of entry delta
	GammaRollover      float64       `json:"gamma_rollover"` // current/entry gamma floor
	IVCrushExit        float64       `json:"iv_crush_exit"`  // pp drop from entry IV
	ExpiryRushMinutes  int           `json:"expiry_rush_minutes"`
}

// AdaptiveConfig tunes the learning layer and its safety guard.
type AdaptiveConfig struct {
	Enabled                 bool          `json:"enabled"`
	Kelly                   bool          `json:"kelly"`
	KellyFraction           float64       `json:"kelly_fraction"`
	UseProbabilityWeighting bool          `json:"use_probability_weighting"`
	MinSampleSize           int           `json:"min_sample_size"`
	ApplySampleSize         int           `json:"apply_sample_size"` // samples required to apply a weight change
	MaxAdjustmentsPerDay    int           `json:"max_adjustments_per_day"`
	MinAdjustmentInterval   time.Duration `json:"min_adjustment_interval"`
	MaxWeightDelta          float64       `json:"max_weight_delta"`
	HistorySize             int           `json:"history_size"`
	StateDir                string        `json:"state_dir"`
}

// EmailConfig holds SMTP settings for the email alert sink.
type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// AlertConfig selects the alert sinks and bounds the alert history.
type AlertConfig struct {
	WebhookURL       string      `json:"webhook_url"`
	Email            EmailConfig `json:"email"`
	TelegramBotToken string      `json:"telegram_bot_token"`
	TelegramChatID   string      `json:"telegram_chat_id"`
	TelegramEnabled  bool        `json:"telegram_enabled"`
	HistorySize      int         `json:"history_size"`
}

// DashboardConfig controls the HTTP dashboard server.
type DashboardConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// StoreConfig holds the optional persistence backends.
type StoreConfig struct {
	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	DatabaseURL   string `json:"database_url"`
	JournalDir    string `json:"journal_dir"`
}

// LoggingConfig mirrors internal/logging.Config.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// .env is optional; ignore absence.
	_ = godotenv.Load()

	cfg := Defaults()

	filename := getEnvOrDefault("CONFIG_FILE", "config.json")
	if _, err := os.Stat(filename); err == nil {
		if err := loadFromFile(filename, cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", filename, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a config populated with every default value.
func Defaults() *Config {
	return &Config{
		BrokerConfig: BrokerConfig{
			BaseURL: "https://apiconnect.angelone.in",
			FeedURL: "wss://smartapisocket.angelone.in/smart-stream",
			Timeout: 5 * time.Second,
		},
		InstrumentConfig: InstrumentConfig{
			PrimaryUnderlying:  "NIFTY",
			UnderlyingExchange: "NSE",
			MinimumLotSize:     75,
			StrikeInterval:     50,
			StrikeRange:        3,
		},
		SessionConfig: SessionConfig{
			Start:              "09:20",
			End:                "15:00",
			TickInterval:       time.Second,
			FreshnessTolerance: 5 * time.Second,
		},
		RiskConfig: RiskConfig{
			Capital:              100000,
			RiskPerTradeMin:      0.5,
			RiskPerTradeOptimal:  2.0,
			RiskPerTradeMax:      3.0,
			HardSLPercentMin:     3.0,
			HardSLExceedSkip:     10.0,
			MaxDailyLossAmount:   10000,
			MaxTradesPerDay:      10,
			MaxPositionSize:      1800,
			MaxNetDelta:          500,
			MaxNetGamma:          10,
			MaxNetTheta:          5000,
			MaxNetVega:           8000,
			MaxGrossDelta:        900,
			CooldownAfterLosses:  3,
			CooldownMinutes:      30,
			RewardRiskMultiplier: 1.0,
		},
		FilterConfig: FilterConfig{
			BullishDeltaMin:       0.45,
			BearishDeltaMax:       -0.45,
			IdealDeltaCall:        0.55,
			IdealDeltaPut:         -0.55,
			IdealGammaMin:         0.002,
			MaxSpreadPercent:      3.0,
			MinEntryConfidence:    60,
			MaxTrapProbability:    0.6,
			IVSafeZoneMin:         15,
			IVSafeZoneMax:         40,
			IVCrushThreshold:      -5,
			RejectOIFlatThreshold: 0.002,
			RejectIVDrop:          5,
			RejectSpreadWiden:     1.5,
			RejectDeltaCollapse:   0.10,
			NoTradeGammaFlat:      0.0001,
		},
		GreeksConfig: GreeksConfig{
			BackgroundRefresh: true,
			RefreshInterval:   2 * time.Second,
			UseRealGreeksData: true,
			HistorySize:       100,
		},
		ExitConfig: ExitConfig{
			TrailingActivation: 0.5,
			TrailingPercent:    2.0,
			ProfitLadder: []LadderRung{
				{TargetPercent: 1.0, QtyFraction: 0.25},
				{TargetPercent: 2.0, QtyFraction: 0.50},
				{TargetPercent: 3.0, QtyFraction: 0.25},
			},
			MaxHolding:        15 * time.Minute,
			DeltaWeakness:     0.15,
			GammaRollover:     0.8,
			IVCrushExit:       5,
			ExpiryRushMinutes: 5,
		},
		AdaptiveConfig: AdaptiveConfig{
			Enabled:                 true,
			Kelly:                   true,
			KellyFraction:           0.25,
			UseProbabilityWeighting: true,
			MinSampleSize:           15,
			ApplySampleSize:         20,
			MaxAdjustmentsPerDay:    5,
			MinAdjustmentInterval:   24 * time.Hour,
			MaxWeightDelta:          0.5,
			HistorySize:             1000,
			StateDir:                "logs/adaptive",
		},
		AlertConfig: AlertConfig{
			HistorySize: 1000,
		},
		DashboardConfig: DashboardConfig{
			Enabled: true,
			Port:    8080,
		},
		StoreConfig: StoreConfig{
			RedisAddr:  "localhost:6379",
			JournalDir: "logs/journal",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

// Validate checks cross-field constraints at load time, not at each lookup.
func (c *Config) Validate() error {
	if c.RiskConfig.Capital <= 0 {
		return fmt.Errorf("config: capital must be positive")
	}
	if c.RiskConfig.RiskPerTradeMin > c.RiskConfig.RiskPerTradeMax {
		return fmt.Errorf("config: risk_per_trade_min > risk_per_trade_max")
	}
	if c.InstrumentConfig.MinimumLotSize <= 0 {
		return fmt.Errorf("config: minimum_lot_size must be positive")
	}
	if c.InstrumentConfig.StrikeInterval <= 0 {
		return fmt.Errorf("config: strike_interval must be positive")
	}
	if !c.SessionConfig.DemoMode && c.BrokerConfig.APIKey == "" {
		return fmt.Errorf("config: API_KEY required outside demo mode")
	}
	var frac float64
	for _, rung := range c.ExitConfig.ProfitLadder {
		if rung.QtyFraction <= 0 || rung.TargetPercent <= 0 {
			return fmt.Errorf("config: profit ladder rungs must be positive")
		}
		frac += rung.QtyFraction
	}
	if len(c.ExitConfig.ProfitLadder) > 0 && frac > 1.0001 {
		return fmt.Errorf("config: profit ladder fractions sum to %.2f (> 1)", frac)
	}
	return nil
}

func loadFromFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	// Broker credentials
	cfg.BrokerConfig.APIKey = getEnvOrDefault("API_KEY", cfg.BrokerConfig.APIKey)
	cfg.BrokerConfig.ClientCode = getEnvOrDefault("CLIENT_CODE", cfg.BrokerConfig.ClientCode)
	cfg.BrokerConfig.Password = getEnvOrDefault("PASSWORD", cfg.BrokerConfig.Password)
	cfg.BrokerConfig.TOTPSecret = getEnvOrDefault("TOTP_SECRET", cfg.BrokerConfig.TOTPSecret)
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.FeedURL = getEnvOrDefault("BROKER_FEED_URL", cfg.BrokerConfig.FeedURL)
	cfg.BrokerConfig.Timeout = getEnvDurationOrDefault("BROKER_TIMEOUT", cfg.BrokerConfig.Timeout)

	// Instruments
	cfg.InstrumentConfig.PrimaryUnderlying = getEnvOrDefault("PRIMARY_UNDERLYING", cfg.InstrumentConfig.PrimaryUnderlying)
	cfg.InstrumentConfig.UnderlyingExchange = getEnvOrDefault("UNDERLYING_EXCHANGE", cfg.InstrumentConfig.UnderlyingExchange)
	cfg.InstrumentConfig.MinimumLotSize = getEnvIntOrDefault("MINIMUM_LOT_SIZE", cfg.InstrumentConfig.MinimumLotSize)
	cfg.InstrumentConfig.StrikeInterval = getEnvFloatOrDefault("STRIKE_INTERVAL", cfg.InstrumentConfig.StrikeInterval)
	cfg.InstrumentConfig.StrikeRange = getEnvIntOrDefault("STRIKE_RANGE", cfg.InstrumentConfig.StrikeRange)

	// Session
	cfg.SessionConfig.Start = getEnvOrDefault("TRADING_SESSION_START", cfg.SessionConfig.Start)
	cfg.SessionConfig.End = getEnvOrDefault("TRADING_SESSION_END", cfg.SessionConfig.End)
	cfg.SessionConfig.DemoMode = getEnvBoolOrDefault("DEMO_MODE", cfg.SessionConfig.DemoMode)
	cfg.SessionConfig.DemoSkipWebsocket = getEnvBoolOrDefault("DEMO_SKIP_WEBSOCKET", cfg.SessionConfig.DemoSkipWebsocket)
	cfg.SessionConfig.FreshnessTolerance = getEnvDurationOrDefault("FRESHNESS_TOLERANCE", cfg.SessionConfig.FreshnessTolerance)
	cfg.SessionConfig.TickInterval = getEnvDurationOrDefault("TICK_INTERVAL", cfg.SessionConfig.TickInterval)

	// Risk
	cfg.RiskConfig.Capital = getEnvFloatOrDefault("CAPITAL", cfg.RiskConfig.Capital)
	cfg.RiskConfig.RiskPerTradeMin = getEnvFloatOrDefault("RISK_PER_TRADE_MIN", cfg.RiskConfig.RiskPerTradeMin)
	cfg.RiskConfig.RiskPerTradeOptimal = getEnvFloatOrDefault("RISK_PER_TRADE_OPTIMAL", cfg.RiskConfig.RiskPerTradeOptimal)
	cfg.RiskConfig.RiskPerTradeMax = getEnvFloatOrDefault("RISK_PER_TRADE_MAX", cfg.RiskConfig.RiskPerTradeMax)
	cfg.RiskConfig.HardSLPercentMin = getEnvFloatOrDefault("HARD_SL_PERCENT_MIN", cfg.RiskConfig.HardSLPercentMin)
	cfg.RiskConfig.HardSLExceedSkip = getEnvFloatOrDefault("HARD_SL_PERCENT_EXCEED_SKIP", cfg.RiskConfig.HardSLExceedSkip)
	cfg.RiskConfig.MaxDailyLossAmount = getEnvFloatOrDefault("MAX_DAILY_LOSS_AMOUNT", cfg.RiskConfig.MaxDailyLossAmount)
	cfg.RiskConfig.MaxTradesPerDay = getEnvIntOrDefault("MAX_TRADES_PER_DAY", cfg.RiskConfig.MaxTradesPerDay)
	cfg.RiskConfig.MaxPositionSize = getEnvIntOrDefault("MAX_POSITION_SIZE", cfg.RiskConfig.MaxPositionSize)
	cfg.RiskConfig.MaxNetDelta = getEnvFloatOrDefault("MAX_NET_DELTA", cfg.RiskConfig.MaxNetDelta)
	cfg.RiskConfig.MaxNetGamma = getEnvFloatOrDefault("MAX_NET_GAMMA", cfg.RiskConfig.MaxNetGamma)
	cfg.RiskConfig.MaxNetTheta = getEnvFloatOrDefault("MAX_NET_THETA", cfg.RiskConfig.MaxNetTheta)
	cfg.RiskConfig.MaxNetVega = getEnvFloatOrDefault("MAX_NET_VEGA", cfg.RiskConfig.MaxNetVega)
	cfg.RiskConfig.MaxGrossDelta = getEnvFloatOrDefault("MAX_GROSS_DELTA", cfg.RiskConfig.MaxGrossDelta)
	cfg.RiskConfig.MultilegEnabled = getEnvBoolOrDefault("MULTILEG_ENABLED", cfg.RiskConfig.MultilegEnabled)

	// Biases / filters
	cfg.FilterConfig.BullishDeltaMin = getEnvFloatOrDefault("BULLISH_DELTA_MIN", cfg.FilterConfig.BullishDeltaMin)
	cfg.FilterConfig.BearishDeltaMax = getEnvFloatOrDefault("BEARISH_DELTA_MAX", cfg.FilterConfig.BearishDeltaMax)
	cfg.FilterConfig.IdealDeltaCall = getEnvFloatOrDefault("IDEAL_DELTA_CALL", cfg.FilterConfig.IdealDeltaCall)
	cfg.FilterConfig.IdealDeltaPut = getEnvFloatOrDefault("IDEAL_DELTA_PUT", cfg.FilterConfig.IdealDeltaPut)
	cfg.FilterConfig.IdealGammaMin = getEnvFloatOrDefault("IDEAL_GAMMA_MIN", cfg.FilterConfig.IdealGammaMin)
	cfg.FilterConfig.MaxSpreadPercent = getEnvFloatOrDefault("MAX_SPREAD_PERCENT", cfg.FilterConfig.MaxSpreadPercent)
	cfg.FilterConfig.RejectOIFlatThreshold = getEnvFloatOrDefault("REJECT_OI_FLAT_THRESHOLD", cfg.FilterConfig.RejectOIFlatThreshold)
	cfg.FilterConfig.RejectIVDrop = getEnvFloatOrDefault("REJECT_IV_DROP", cfg.FilterConfig.RejectIVDrop)
	cfg.FilterConfig.RejectSpreadWiden = getEnvFloatOrDefault("REJECT_SPREAD_WIDEN", cfg.FilterConfig.RejectSpreadWiden)
	cfg.FilterConfig.RejectDeltaCollapse = getEnvFloatOrDefault("REJECT_DELTA_COLLAPSE", cfg.FilterConfig.RejectDeltaCollapse)
	cfg.FilterConfig.NoTradeGammaFlat = getEnvFloatOrDefault("NO_TRADE_GAMMA_FLAT", cfg.FilterConfig.NoTradeGammaFlat)
	if zone := os.Getenv("IV_SAFE_ZONE"); zone != "" {
		// "15-40" → min 15, max 40
		parts := strings.SplitN(zone, "-", 2)
		if len(parts) == 2 {
			if lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err == nil {
				cfg.FilterConfig.IVSafeZoneMin = lo
			}
			if hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
				cfg.FilterConfig.IVSafeZoneMax = hi
			}
		}
	}

	// Greeks cache
	cfg.GreeksConfig.BackgroundRefresh = getEnvBoolOrDefault("GREEKS_BACKGROUND_REFRESH", cfg.GreeksConfig.BackgroundRefresh)
	cfg.GreeksConfig.RefreshInterval = getEnvDurationOrDefault("GREEKS_REFRESH_INTERVAL", cfg.GreeksConfig.RefreshInterval)
	cfg.GreeksConfig.UseRealGreeksData = getEnvBoolOrDefault("USE_REAL_GREEKS_DATA", cfg.GreeksConfig.UseRealGreeksData)

	// Adaptive
	cfg.AdaptiveConfig.Enabled = getEnvBoolOrDefault("ADAPTIVE_ENABLED", cfg.AdaptiveConfig.Enabled)
	cfg.AdaptiveConfig.Kelly = getEnvBoolOrDefault("KELLY", cfg.AdaptiveConfig.Kelly)
	cfg.AdaptiveConfig.KellyFraction = getEnvFloatOrDefault("KELLY_FRACTION", cfg.AdaptiveConfig.KellyFraction)
	cfg.AdaptiveConfig.UseProbabilityWeighting = getEnvBoolOrDefault("USE_PROBABILITY_WEIGHTING", cfg.AdaptiveConfig.UseProbabilityWeighting)

	// Alerts
	cfg.AlertConfig.WebhookURL = getEnvOrDefault("ALERT_WEBHOOK_URL", cfg.AlertConfig.WebhookURL)
	cfg.AlertConfig.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.AlertConfig.TelegramBotToken)
	cfg.AlertConfig.TelegramChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.AlertConfig.TelegramChatID)
	cfg.AlertConfig.TelegramEnabled = getEnvBoolOrDefault("TELEGRAM_ALERTS_ENABLED", cfg.AlertConfig.TelegramEnabled)
	if ec := os.Getenv("ALERT_EMAIL_CONFIG"); ec != "" {
		// host:port:username:password:from:to
		parts := strings.Split(ec, ":")
		if len(parts) >= 6 {
			cfg.AlertConfig.Email = EmailConfig{
				Enabled: true, Host: parts[0], Port: parts[1],
				Username: parts[2], Password: parts[3], From: parts[4], To: parts[5],
			}
		}
	}

	// Dashboard
	cfg.DashboardConfig.Enabled = getEnvBoolOrDefault("DASHBOARD_ENABLED", cfg.DashboardConfig.Enabled)
	cfg.DashboardConfig.Port = getEnvIntOrDefault("DASHBOARD_PORT", cfg.DashboardConfig.Port)

	// Store
	cfg.StoreConfig.RedisEnabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.StoreConfig.RedisEnabled)
	cfg.StoreConfig.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.StoreConfig.RedisAddr)
	cfg.StoreConfig.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.StoreConfig.RedisPassword)
	cfg.StoreConfig.RedisDB = getEnvIntOrDefault("REDIS_DB", cfg.StoreConfig.RedisDB)
	cfg.StoreConfig.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.StoreConfig.DatabaseURL)
	cfg.StoreConfig.JournalDir = getEnvOrDefault("JOURNAL_DIR", cfg.StoreConfig.JournalDir)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
