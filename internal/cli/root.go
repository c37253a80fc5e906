// Package cli provides the command-line interface for the back office.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"brokerage-backoffice/internal/config"
	"brokerage-backoffice/internal/logging"
	"brokerage-backoffice/internal/market"
	"brokerage-backoffice/internal/settlement"
	"brokerage-backoffice/internal/store"
	"brokerage-backoffice/internal/wallet"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   store.DataStore
	Hours   *market.Hours
	Prices  market.PriceSource
	Ledger  *wallet.Ledger
	Tracker *settlement.Tracker
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) (*cobra.Command, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dataStore, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	app.Store = dataStore

	hours, err := market.NewHours(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("building market calendar: %w", err)
	}
	app.Hours = hours

	quoter := market.NewBreakerQuoter(newFileQuoter(config.DefaultConfigDir()),
		market.DefaultBreakerConfig())
	app.Prices = market.NewCachedSource(quoter,
		cfg.Scheduler.PriceCacheTTL, cfg.Scheduler.PriceTimeout)

	app.Ledger = wallet.NewLedger(dataStore, logger)
	app.Tracker = settlement.NewTracker(dataStore, hours, logger, cfg.Market.SettlementLagDays)

	rootCmd := &cobra.Command{
		Use:   "backoffice",
		Short: "Brokerage back office - order execution and ledger settlement",
		Long: `Backoffice runs the brokerage back-office engine: the periodic order
matcher, the end-of-day sweep, and operational tooling for wallets,
orders, and portfolios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")

	rootCmd.AddCommand(
		newRunCmd(app),
		newEndOfDayCmd(app),
		newWalletCmd(app),
		newOrdersCmd(app),
		newPortfolioCmd(app),
		newCustomerCmd(app),
	)

	return rootCmd, nil
}

// Execute loads configuration, wires the application, and runs the CLI.
func Execute() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	rootCmd, err := NewRootCmd(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Startup failed")
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// newFileQuoter reads last-traded prices from prices.toml in the config
// directory. The file stands in for the externally refreshed market-data
// feed: another process rewrites it, and the cached source in front of this
// quoter handles TTL and request collapsing.
func newFileQuoter(dir string) market.Quoter {
	return market.QuoterFunc(func(_ context.Context, ticker string) (decimal.Decimal, bool, error) {
		v := viper.New()
		v.SetConfigName("prices")
		v.SetConfigType("toml")
		v.AddConfigPath(dir)

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				return decimal.Zero, false, nil
			}
			return decimal.Zero, false, err
		}

		raw := v.GetString(ticker)
		if raw == "" {
			return decimal.Zero, false, nil
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("bad price for %s in %s: %w",
				ticker, filepath.Join(dir, "prices.toml"), err)
		}
		return price, true, nil
	})
}
