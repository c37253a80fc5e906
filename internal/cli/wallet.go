package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"brokerage-backoffice/internal/models"
)

func newWalletCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet operations",
		Long:  "Inspect and mutate customer wallets through the ledger.",
	}

	cmd.AddCommand(newWalletShowCmd(app))
	cmd.AddCommand(newWalletMutateCmd(app, "deposit", "Deposit cash into a wallet",
		app.Ledger.Deposit))
	cmd.AddCommand(newWalletMutateCmd(app, "withdraw", "Withdraw available cash",
		app.Ledger.Withdraw))
	cmd.AddCommand(newWalletMutateCmd(app, "block", "Reserve available cash",
		app.Ledger.Block))
	cmd.AddCommand(newWalletMutateCmd(app, "unblock", "Release reserved cash",
		app.Ledger.Unblock))
	cmd.AddCommand(newWalletLockCmd(app, true))
	cmd.AddCommand(newWalletLockCmd(app, false))

	return cmd
}

func newWalletShowCmd(app *App) *cobra.Command {
	var historyLimit int

	cmd := &cobra.Command{
		Use:   "show <wallet-id>",
		Short: "Show wallet balances and recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			w, err := app.Store.GetWallet(ctx, args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(w)
			}

			output.Bold("Wallet %s", w.ID)
			output.Printf("  Customer:   %s\n", w.CustomerID)
			output.Printf("  Balance:    %s\n", FormatMoney(w.Balance))
			output.Printf("  Available:  %s\n", FormatMoney(w.AvailableBalance))
			output.Printf("  Blocked:    %s\n", FormatMoney(w.BlockedBalance))
			output.Printf("  Status:     %s\n", w.Status)
			if w.Locked {
				output.Warning("  Wallet is LOCKED")
			}
			if !w.DailyLimit.IsZero() {
				output.Printf("  Daily:      %s spent of %s\n",
					FormatMoney(w.DailySpent), FormatMoney(w.DailyLimit))
			}
			if !w.MonthlyLimit.IsZero() {
				output.Printf("  Monthly:    %s spent of %s\n",
					FormatMoney(w.MonthlySpent), FormatMoney(w.MonthlyLimit))
			}

			entries, err := app.Store.ListWalletTransactions(ctx, w.ID, historyLimit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}

			output.Println()
			output.Bold("Recent entries")
			table := NewTable(output, "Time", "Type", "Amount", "Fee", "After", "Reference")
			for _, e := range entries {
				table.AddRow(
					FormatDateTime(e.CreatedAt),
					string(e.Type),
					FormatMoney(e.Amount),
					FormatMoney(e.Fee),
					FormatMoney(e.BalanceAfter),
					TruncateString(e.Reference, 30),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "number of ledger entries to show")
	return cmd
}

// newWalletMutateCmd builds deposit, withdraw, block, and unblock. They share
// a shape: one wallet, one amount, one ledger call.
func newWalletMutateCmd(app *App, use, short string,
	mutate func(context.Context, string, decimal.Decimal, string) (*models.Wallet, error)) *cobra.Command {

	var reference string

	cmd := &cobra.Command{
		Use:   use + " <wallet-id> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			if reference == "" {
				reference = "cli:" + use
			}

			w, err := mutate(ctx, args[0], amount, reference)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(w)
			}
			output.Success("%s of %s applied", use, FormatMoney(amount))
			output.Printf("  Balance:   %s\n", FormatMoney(w.Balance))
			output.Printf("  Available: %s\n", FormatMoney(w.AvailableBalance))
			output.Printf("  Blocked:   %s\n", FormatMoney(w.BlockedBalance))
			return nil
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "ledger reference for the entry")
	return cmd
}

func newWalletLockCmd(app *App, lock bool) *cobra.Command {
	use, short := "lock", "Lock a wallet against mutations"
	if !lock {
		use, short = "unlock", "Unlock a wallet"
	}

	return &cobra.Command{
		Use:   use + " <wallet-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var err error
			if lock {
				err = app.Ledger.LockWallet(ctx, args[0])
			} else {
				err = app.Ledger.UnlockWallet(ctx, args[0])
			}
			if err != nil {
				return err
			}
			output.Success("Wallet %s %sed", args[0], use)
			return nil
		},
	}
}
