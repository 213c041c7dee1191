// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"options-autotrader/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig               `mapstructure:"trading"`
	Strategy      StrategyConfig              `mapstructure:"strategy"`
	Risk          RiskConfig                  `mapstructure:"risk"`
	Instruments   map[string]InstrumentConfig `mapstructure:"instruments"`
	Logging       LoggingConfig               `mapstructure:"logging"`
	Notifications NotificationConfig          `mapstructure:"notifications"`
	Server        ServerConfig                `mapstructure:"server"`
	Storage       StorageConfig               `mapstructure:"storage"`
	Credentials   Credentials                 `mapstructure:"-" json:"-"` // Loaded separately
}

// TradingConfig holds engine-level settings.
type TradingConfig struct {
	Mode             string        `mapstructure:"mode"`       // "live", "paper"
	Underlying       string        `mapstructure:"underlying"` // BANKNIFTY, NIFTY, CRUDEOIL
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	StatusCheckDelay time.Duration `mapstructure:"status_check_delay"`
	AutoStart        bool          `mapstructure:"auto_start"`
}

// StrategyConfig holds entry sizing, exit levels and the signal data window.
type StrategyConfig struct {
	OTMDistance      int           `mapstructure:"otm_distance"`
	Lots             int           `mapstructure:"lots"`
	OverrideQuantity bool          `mapstructure:"override_quantity"`
	Quantity         int           `mapstructure:"quantity"`
	StopLossPoints   float64       `mapstructure:"stop_loss_points"`
	TakeProfitPoints float64       `mapstructure:"take_profit_points"`
	TrailingStop     TrailingStop  `mapstructure:"trailing_stop"`
	BarInterval      string        `mapstructure:"bar_interval"`
	Lookback         time.Duration `mapstructure:"lookback"`
}

// TrailingStop configures the trailing stop-loss ratchet.
type TrailingStop struct {
	Enabled bool    `mapstructure:"enabled"`
	Trigger float64 `mapstructure:"trigger"`
	Step    float64 `mapstructure:"step"`
}

// RiskConfig holds daily caps and cooldowns.
type RiskConfig struct {
	MaxTradesPerDay int           `mapstructure:"max_trades_per_day"`
	MaxLossPerDay   float64       `mapstructure:"max_loss_per_day"`
	OrderCooldown   time.Duration `mapstructure:"order_cooldown"`
	SignalCooldown  time.Duration `mapstructure:"signal_cooldown"`
}

// InstrumentConfig is the on-disk form of an underlying's contract parameters.
// Times are "HH:MM" in the exchange timezone.
type InstrumentConfig struct {
	Exchange    string  `mapstructure:"exchange"`
	QuoteSymbol string  `mapstructure:"quote_symbol"`
	SpotToken   uint32  `mapstructure:"spot_token"`
	StrikeStep  float64 `mapstructure:"strike_step"`
	TickSize    float64 `mapstructure:"tick_size"`
	LotSize     int     `mapstructure:"lot_size"`
	Commodity   bool    `mapstructure:"commodity"`
	EntryStart  string  `mapstructure:"entry_start"`
	LastEntry   string  `mapstructure:"last_entry"`
	SquareOff   string  `mapstructure:"square_off"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" json:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// ServerConfig holds the status/control HTTP server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DBPath   string `mapstructure:"db_path"`
	CacheDir string `mapstructure:"cache_dir"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Kite Connect credentials. The access token is
// issued by the login flow outside this program.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-autotrader"
	}
	return filepath.Join(home, ".config", "options-autotrader")
}

// DefaultInstruments returns the built-in underlyings.
func DefaultInstruments() map[string]InstrumentConfig {
	return map[string]InstrumentConfig{
		"BANKNIFTY": {
			Exchange:    "NFO",
			QuoteSymbol: "NSE:NIFTY BANK",
			SpotToken:   260105,
			StrikeStep:  100,
			TickSize:    0.05,
			LotSize:     30,
			EntryStart:  "09:20",
			LastEntry:   "14:45",
			SquareOff:   "15:10",
		},
		"NIFTY": {
			Exchange:    "NFO",
			QuoteSymbol: "NSE:NIFTY 50",
			SpotToken:   256265,
			StrikeStep:  50,
			TickSize:    0.05,
			LotSize:     75,
			EntryStart:  "09:20",
			LastEntry:   "14:45",
			SquareOff:   "15:10",
		},
		"CRUDEOIL": {
			Exchange:    "MCX",
			QuoteSymbol: "MCX:CRUDEOIL",
			StrikeStep:  100,
			TickSize:    0.1,
			LotSize:     1,
			Commodity:   true,
			EntryStart:  "09:30",
			LastEntry:   "22:00",
			SquareOff:   "23:00",
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	cfg.mergeInstruments()
	cfg.fillPaths(configDir)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.mergeInstruments()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.underlying", "BANKNIFTY")
	v.SetDefault("trading.tick_interval", "10s")
	v.SetDefault("trading.status_check_delay", "2s")
	v.SetDefault("trading.auto_start", false)

	v.SetDefault("strategy.otm_distance", 1)
	v.SetDefault("strategy.lots", 1)
	v.SetDefault("strategy.override_quantity", false)
	v.SetDefault("strategy.quantity", 30)
	v.SetDefault("strategy.stop_loss_points", 25.0)
	v.SetDefault("strategy.take_profit_points", 100.0)
	v.SetDefault("strategy.trailing_stop.enabled", true)
	v.SetDefault("strategy.trailing_stop.trigger", 25.0)
	v.SetDefault("strategy.trailing_stop.step", 10.0)
	v.SetDefault("strategy.bar_interval", "5minute")
	v.SetDefault("strategy.lookback", "120h")

	v.SetDefault("risk.max_trades_per_day", 5)
	v.SetDefault("risk.max_loss_per_day", 3000.0)
	v.SetDefault("risk.order_cooldown", "30s")
	v.SetDefault("risk.signal_cooldown", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)

	v.SetDefault("notifications.level", "all")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", "127.0.0.1:8085")
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

// mergeInstruments upper-cases the names viper lower-cased and fills
// unset fields of known underlyings from the built-in table.
func (c *Config) mergeInstruments() {
	merged := DefaultInstruments()
	for name, ic := range c.Instruments {
		key := strings.ToUpper(name)
		base, ok := merged[key]
		if !ok {
			merged[key] = ic
			continue
		}
		merged[key] = overlay(base, ic)
	}
	c.Instruments = merged
}

func overlay(base, ic InstrumentConfig) InstrumentConfig {
	if ic.Exchange != "" {
		base.Exchange = ic.Exchange
	}
	if ic.QuoteSymbol != "" {
		base.QuoteSymbol = ic.QuoteSymbol
	}
	if ic.SpotToken != 0 {
		base.SpotToken = ic.SpotToken
	}
	if ic.StrikeStep != 0 {
		base.StrikeStep = ic.StrikeStep
	}
	if ic.TickSize != 0 {
		base.TickSize = ic.TickSize
	}
	if ic.LotSize != 0 {
		base.LotSize = ic.LotSize
	}
	if ic.Commodity {
		base.Commodity = true
	}
	if ic.EntryStart != "" {
		base.EntryStart = ic.EntryStart
	}
	if ic.LastEntry != "" {
		base.LastEntry = ic.LastEntry
	}
	if ic.SquareOff != "" {
		base.SquareOff = ic.SquareOff
	}
	return base
}

func (c *Config) fillPaths(configDir string) {
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(configDir, "engine.db")
	}
	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = filepath.Join(configDir, "instruments")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(configDir, "logs", "engine.log")
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Notifications.Telegram.ChatID = id
		}
	}

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TRADING_UNDERLYING"); v != "" {
		cfg.Trading.Underlying = strings.ToUpper(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return errors.NewValidationError("trading.mode", c.Trading.Mode, "must be 'live' or 'paper'")
	}
	if _, ok := c.Instruments[strings.ToUpper(c.Trading.Underlying)]; !ok {
		return errors.NewValidationError("trading.underlying", c.Trading.Underlying, "no instrument definition")
	}
	if c.Trading.TickInterval <= 0 {
		return errors.NewValidationError("trading.tick_interval", c.Trading.TickInterval, "must be positive")
	}
	if c.Trading.StatusCheckDelay < 0 {
		return errors.NewValidationError("trading.status_check_delay", c.Trading.StatusCheckDelay, "must be non-negative")
	}

	s := c.Strategy
	if s.OTMDistance < 0 {
		return errors.NewValidationError("strategy.otm_distance", s.OTMDistance, "must be non-negative")
	}
	if s.OverrideQuantity && s.Quantity <= 0 {
		return errors.NewValidationError("strategy.quantity", s.Quantity, "must be positive when override_quantity is set")
	}
	if !s.OverrideQuantity && s.Lots <= 0 {
		return errors.NewValidationError("strategy.lots", s.Lots, "must be positive")
	}
	if s.StopLossPoints <= 0 {
		return errors.NewValidationError("strategy.stop_loss_points", s.StopLossPoints, "must be positive")
	}
	if s.TakeProfitPoints <= 0 {
		return errors.NewValidationError("strategy.take_profit_points", s.TakeProfitPoints, "must be positive")
	}
	if s.TrailingStop.Enabled {
		if s.TrailingStop.Trigger <= 0 || s.TrailingStop.Step <= 0 {
			return errors.NewValidationError("strategy.trailing_stop", s.TrailingStop, "trigger and step must be positive")
		}
		if s.TrailingStop.Step >= s.TrailingStop.Trigger {
			return errors.NewValidationError("strategy.trailing_stop.step", s.TrailingStop.Step, "must be less than trigger")
		}
	}

	if c.Risk.MaxTradesPerDay <= 0 {
		return errors.NewValidationError("risk.max_trades_per_day", c.Risk.MaxTradesPerDay, "must be positive")
	}
	if c.Risk.MaxLossPerDay <= 0 {
		return errors.NewValidationError("risk.max_loss_per_day", c.Risk.MaxLossPerDay, "must be positive")
	}
	if c.Risk.OrderCooldown < 0 || c.Risk.SignalCooldown < 0 {
		return errors.NewValidationError("risk.cooldown", c.Risk.OrderCooldown, "must be non-negative")
	}
	if c.Risk.SignalCooldown > c.Trading.TickInterval {
		return errors.NewValidationError("risk.signal_cooldown", c.Risk.SignalCooldown, "must not exceed trading.tick_interval")
	}

	if c.Notifications.Telegram.Enabled && (c.Notifications.Telegram.BotToken == "" || c.Notifications.Telegram.ChatID == 0) {
		return errors.NewValidationError("notifications.telegram", "", "bot_token and chat_id are required when enabled")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// ActiveInstrument returns the configuration of the traded underlying.
func (c *Config) ActiveInstrument() (string, InstrumentConfig) {
	name := strings.ToUpper(c.Trading.Underlying)
	return name, c.Instruments[name]
}
