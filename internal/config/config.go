package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Fees       FeeConfig        `mapstructure:"fees"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings for the trade store
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the shared market-data cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains settings for the optional trade event publisher
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// ExchangeConfig contains exchange client settings.
// API credentials are per bot and live on BotConfig, never here.
type ExchangeConfig struct {
	Name        string `mapstructure:"name"` // "binance"
	Testnet     bool   `mapstructure:"testnet"`
	RecvWindow  int64  `mapstructure:"recv_window"`  // milliseconds
	RequestsSec int    `mapstructure:"requests_sec"` // rate limiter budget
}

// TradingConfig contains trading loop settings
type TradingConfig struct {
	Mode              string  `mapstructure:"mode"`                // "paper" or "live"
	TickInterval      int     `mapstructure:"tick_interval"`       // seconds
	Timeframe         string  `mapstructure:"timeframe"`           // candle timeframe for the loop
	CandleLimit       int     `mapstructure:"candle_limit"`        // bars per analysis window
	InitialCapital    float64 `mapstructure:"initial_capital"`
	PositionSizeRatio float64 `mapstructure:"position_size_ratio"` // fraction of budget per entry
	EnableMTF         bool    `mapstructure:"enable_mtf"`
	EnableOnChain     bool    `mapstructure:"enable_onchain"`
}

// RiskConfig contains risk management settings
type RiskConfig struct {
	MaxRiskPerTrade    float64 `mapstructure:"max_risk_per_trade"`   // 0.02 (2% of balance)
	ATRMultiplier      float64 `mapstructure:"atr_multiplier"`       // dynamic SL distance
	TrailATRMultiplier float64 `mapstructure:"trail_atr_multiplier"` // adaptive stop trail
	MinConfidence      float64 `mapstructure:"min_confidence"`       // entry threshold
	MaxDailyLossPct    float64 `mapstructure:"max_daily_loss_pct"`
}

// FeeConfig contains exchange fee structure and the fee-protection gate settings
type FeeConfig struct {
	Maker             float64 `mapstructure:"maker"`               // e.g. 0.001 = 0.1%
	Taker             float64 `mapstructure:"taker"`               // e.g. 0.001 = 0.1%
	BaseSlippage      float64 `mapstructure:"base_slippage"`       // e.g. 0.0005 = 0.05%
	MarketImpact      float64 `mapstructure:"market_impact"`       // per million USD of order size
	MaxSlippage       float64 `mapstructure:"max_slippage"`        // e.g. 0.003 = 0.3%
	MinProfitMultiple float64 `mapstructure:"min_profit_multiple"` // net profit >= multiple * fees
	MaxTradesPerHour  int     `mapstructure:"max_trades_per_hour"`
	MaxTradesPerDay   int     `mapstructure:"max_trades_per_day"`
	MinHoldMinutes    int     `mapstructure:"min_hold_minutes"`
}

// TelegramConfig contains notification settings
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("TRADEPILOT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "tradepilot")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tradepilot")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.prefix", "trading.")

	// Exchange defaults
	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.recv_window", 5000)
	v.SetDefault("exchange.requests_sec", 10)

	// Trading defaults
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.tick_interval", 300)
	v.SetDefault("trading.timeframe", "5m")
	v.SetDefault("trading.candle_limit", 100)
	v.SetDefault("trading.initial_capital", 10000.0)
	v.SetDefault("trading.position_size_ratio", 0.95)
	v.SetDefault("trading.enable_mtf", true)
	v.SetDefault("trading.enable_onchain", false)

	// Risk defaults
	v.SetDefault("risk.max_risk_per_trade", 0.02)
	v.SetDefault("risk.atr_multiplier", 1.5)
	v.SetDefault("risk.trail_atr_multiplier", 2.5)
	v.SetDefault("risk.min_confidence", 0.7)
	v.SetDefault("risk.max_daily_loss_pct", 5.0)

	// Fee defaults (Binance-like structure)
	v.SetDefault("fees.maker", 0.001)
	v.SetDefault("fees.taker", 0.001)
	v.SetDefault("fees.base_slippage", 0.0005)
	v.SetDefault("fees.market_impact", 0.0001)
	v.SetDefault("fees.max_slippage", 0.003)
	v.SetDefault("fees.min_profit_multiple", 3.0)
	v.SetDefault("fees.max_trades_per_hour", 2)
	v.SetDefault("fees.max_trades_per_day", 10)
	v.SetDefault("fees.min_hold_minutes", 30)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Trading.Mode != "paper" && c.Trading.Mode != "live" {
		return fmt.Errorf("invalid trading mode: %q (must be paper or live)", c.Trading.Mode)
	}
	if c.Trading.TickInterval <= 0 {
		return fmt.Errorf("trading.tick_interval must be positive, got %d", c.Trading.TickInterval)
	}
	if c.Trading.CandleLimit < 50 {
		return fmt.Errorf("trading.candle_limit must be >= 50, got %d", c.Trading.CandleLimit)
	}
	if c.Trading.PositionSizeRatio <= 0 || c.Trading.PositionSizeRatio > 1 {
		return fmt.Errorf("trading.position_size_ratio must be in (0,1], got %f", c.Trading.PositionSizeRatio)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in [0,1], got %f", c.Risk.MinConfidence)
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 0.25 {
		return fmt.Errorf("risk.max_risk_per_trade must be in (0,0.25], got %f", c.Risk.MaxRiskPerTrade)
	}
	if c.Fees.Maker < 0 || c.Fees.Taker < 0 {
		return fmt.Errorf("fee rates must be non-negative")
	}
	if c.Fees.MinProfitMultiple < 1 {
		return fmt.Errorf("fees.min_profit_multiple must be >= 1, got %f", c.Fees.MinProfitMultiple)
	}
	if c.Fees.MaxTradesPerHour <= 0 || c.Fees.MaxTradesPerDay <= 0 {
		return fmt.Errorf("fee gate trade caps must be positive")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TickDuration returns the control loop interval as a time.Duration
func (c *TradingConfig) TickDuration() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}

// MinHold returns the minimum hold time as a time.Duration
func (c *FeeConfig) MinHold() time.Duration {
	return time.Duration(c.MinHoldMinutes) * time.Minute
}
