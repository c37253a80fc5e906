package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio and position reporting",
		Long:  "Inspect positions, settlement history, and portfolio valuations.",
	}

	cmd.AddCommand(newPortfolioPositionsCmd(app))
	cmd.AddCommand(newPortfolioHistoryCmd(app))
	cmd.AddCommand(newPortfolioRecomputeCmd(app))
	cmd.AddCommand(newPortfolioDividendCmd(app))

	return cmd
}

func newPortfolioPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions <customer-id>",
		Short: "Show net and available position per ticker",
		Long: `Net quantity counts every settled lot the customer owns. Available
quantity excludes fresh buys still inside the settlement window, so it is
what a sell order can draw on right now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			records, err := app.Store.ListStockTransactionsByCustomer(ctx, args[0], "")
			if err != nil {
				return err
			}

			tickers := make(map[string]bool)
			for _, r := range records {
				tickers[r.Ticker] = true
			}
			if len(tickers) == 0 {
				output.Info("No positions.")
				return nil
			}

			names := make([]string, 0, len(tickers))
			for t := range tickers {
				names = append(names, t)
			}
			sort.Strings(names)

			type position struct {
				Ticker    string `json:"ticker"`
				Net       string `json:"net"`
				Available string `json:"available"`
			}
			var positions []position

			for _, ticker := range names {
				net, err := app.Tracker.NetQuantity(ctx, args[0], ticker)
				if err != nil {
					return err
				}
				if net.IsZero() {
					continue
				}
				available, err := app.Tracker.AvailableQuantity(ctx, args[0], ticker)
				if err != nil {
					return err
				}
				positions = append(positions, position{
					Ticker:    ticker,
					Net:       FormatQty(net),
					Available: FormatQty(available),
				})
			}

			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Info("No open positions.")
				return nil
			}

			table := NewTable(output, "Ticker", "Net", "Available")
			for _, p := range positions {
				table.AddRow(p.Ticker, p.Net, p.Available)
			}
			table.Render()
			return nil
		},
	}
}

func newPortfolioHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <portfolio-id>",
		Short: "Show the settlement record of a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			records, err := app.Store.ListStockTransactionsByPortfolio(ctx, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No settlement records.")
				return nil
			}

			table := NewTable(output, "Date", "Ticker", "Type", "Qty", "Price",
				"Commission", "Status", "Settles")
			for _, r := range records {
				table.AddRow(
					FormatDate(r.TransactionDate),
					r.Ticker,
					string(r.Type),
					FormatQty(r.Quantity),
					FormatMoney(r.Price),
					FormatMoney(r.Commission),
					string(r.Status),
					FormatDate(r.SettlementDate),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newPortfolioRecomputeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <portfolio-id>",
		Short: "Recalculate portfolio value against current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			p, err := app.Tracker.RecomputePortfolio(ctx, args[0], app.Prices)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("Portfolio %s recomputed", p.Name)
			output.Printf("  Value: %s\n", FormatMoney(p.TotalValue))
			output.Printf("  Cost:  %s\n", FormatMoney(p.TotalCost))
			output.Printf("  P/L:   %s\n", FormatMoney(p.TotalProfitLoss))
			return nil
		},
		Args: cobra.ExactArgs(1),
	}
}

func newPortfolioDividendCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dividend <customer-id> <ticker> <quantity> <amount-per-share>",
		Short: "Record a dividend payment",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			quantity, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}
			perShare, err := decimal.NewFromString(args[3])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[3], err)
			}

			record, err := app.Tracker.RecordDividend(ctx, args[0],
				strings.ToUpper(args[1]), quantity, perShare)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(record)
			}
			output.Success("Dividend recorded: %s x %s on %s",
				FormatQty(record.Quantity), FormatMoney(record.Price), record.Ticker)
			return nil
		},
	}
}
