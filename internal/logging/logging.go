// Package logging builds the engine logger and the structured event helpers
// every package logs through. Events carry an "event" field so a day's log
// can be filtered down to orders, signals, gate refusals, entries and exits.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "options-autotrader", "logs", "engine.log"),
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a logger writing to the console, a rotating
// file, or both. It also sets the global level.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	return zerolog.New(output(cfg)).
		With().
		Timestamp().
		Logger()
}

func output(cfg LogConfig) io.Writer {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	if cfg.File {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout
	case 1:
		return writers[0]
	default:
		return zerolog.MultiLevelWriter(writers...)
	}
}

// parseLevel maps a config level to zerolog, defaulting to info.
func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithLogger attaches logger to ctx for collaborators that only see a context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or a disabled logger.
func FromContext(ctx context.Context) zerolog.Logger {
	return *zerolog.Ctx(ctx)
}

// WithSymbol adds a trading symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithUnderlying adds the traded underlying to the logger context.
func WithUnderlying(logger zerolog.Logger, underlying string) zerolog.Logger {
	return logger.With().Str("underlying", underlying).Logger()
}

// LogOrder logs an order update. Rejections are warnings.
func LogOrder(logger zerolog.Logger, orderID, symbol, side, status, reason string) {
	ev := logger.Info()
	if status == "REJECTED" {
		ev = logger.Warn()
	}
	ev.Str("event", "order").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Str("status", status).
		Str("reason", reason).
		Msg("Order update")
}

// LogSignal logs a classifier result at debug level; one is produced per cycle.
func LogSignal(logger zerolog.Logger, direction, qualifier, reason string, close float64) {
	logger.Debug().
		Str("event", "signal").
		Str("direction", direction).
		Str("qualifier", qualifier).
		Str("reason", reason).
		Float64("close", close).
		Msg("Signal evaluated")
}

// LogGate logs a refused entry.
func LogGate(logger zerolog.Logger, check, reason string) {
	logger.Info().
		Str("event", "gate").
		Str("check", check).
		Str("reason", reason).
		Msg("Entry blocked")
}

// LogEntry logs a newly opened position.
func LogEntry(logger zerolog.Logger, symbol string, qty int, price, stopLoss, takeProfit float64) {
	logger.Info().
		Str("event", "entry").
		Str("symbol", symbol).
		Int("quantity", qty).
		Float64("price", price).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Msg("Position opened")
}

// LogExit logs a closed position.
func LogExit(logger zerolog.Logger, symbol, reason string, qty int, price, pnl float64) {
	logger.Info().
		Str("event", "exit").
		Str("symbol", symbol).
		Str("reason", reason).
		Int("quantity", qty).
		Float64("price", price).
		Float64("pnl", pnl).
		Msg("Position closed")
}

// LogAPICall logs a broker round trip with its latency.
func LogAPICall(logger zerolog.Logger, method, endpoint string, took time.Duration, err error) {
	ev := logger.Debug()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("took", took).
		Msg("Kite API call")
}
