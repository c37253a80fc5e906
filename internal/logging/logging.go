// Package logging provides structured logging functionality.
package logging

import (
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
		FilePath:   filepath.Join(home, ".config", "backoffice", "logs", "backoffice.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// WithWallet adds a wallet ID to the logger context.
func WithWallet(logger zerolog.Logger, walletID string) zerolog.Logger {
	return logger.With().Str("wallet_id", walletID).Logger()
}

// WithTicker adds a ticker symbol to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// LogFill logs an order fill.
func LogFill(logger zerolog.Logger, orderID, ticker, side, quantity, price string) {
	logger.Info().
		Str("event", "fill").
		Str("order_id", orderID).
		Str("ticker", ticker).
		Str("side", side).
		Str("quantity", quantity).
		Str("price", price).
		Msg("Order filled")
}

// LogOrderStatus logs an order status transition.
func LogOrderStatus(logger zerolog.Logger, orderID, ticker, status, reason string) {
	logger.Info().
		Str("event", "order_status").
		Str("order_id", orderID).
		Str("ticker", ticker).
		Str("status", status).
		Str("reason", reason).
		Msg("Order status changed")
}

// LogWalletMutation logs a wallet ledger mutation.
func LogWalletMutation(logger zerolog.Logger, walletID, op, amount, balance string) {
	logger.Info().
		Str("event", "wallet").
		Str("wallet_id", walletID).
		Str("op", op).
		Str("amount", amount).
		Str("balance", balance).
		Msg("Wallet mutated")
}
