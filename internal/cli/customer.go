package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"brokerage-backoffice/internal/models"
)

func newCustomerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Customer management",
		Long:  "Create customers and inspect their accounts.",
	}

	cmd.AddCommand(newCustomerCreateCmd(app))
	cmd.AddCommand(newCustomerShowCmd(app))

	return cmd
}

func newCustomerCreateCmd(app *App) *cobra.Command {
	var (
		email          string
		commissionRate string
		firstName      string
		lastName       string
		nationalID     string
		legalName      string
		taxNumber      string
		dailyLimit     string
		monthlyLimit   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a customer with a wallet and a default portfolio",
		Long: `Create an individual (--first-name, --last-name) or corporate
(--legal-name) customer. The customer gets an empty active wallet and a
default portfolio in the same step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			var kind models.CustomerKind
			switch {
			case legalName != "" && firstName == "" && lastName == "":
				kind = models.Corporate{LegalName: legalName, TaxNumber: taxNumber}
			case legalName == "" && firstName != "" && lastName != "":
				kind = models.Individual{
					FirstName:  firstName,
					LastName:   lastName,
					NationalID: nationalID,
				}
			default:
				return fmt.Errorf("set either --first-name and --last-name, or --legal-name")
			}

			rate := decimal.Zero
			if commissionRate != "" {
				var err error
				rate, err = decimal.NewFromString(commissionRate)
				if err != nil {
					return fmt.Errorf("invalid --commission-rate %q: %w", commissionRate, err)
				}
				if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
					return fmt.Errorf("commission rate must be in [0, 1), got %s", rate)
				}
			}

			parseLimit := func(flag, raw string) (decimal.Decimal, error) {
				if raw == "" {
					return decimal.Zero, nil
				}
				d, err := decimal.NewFromString(raw)
				if err != nil {
					return decimal.Zero, fmt.Errorf("invalid %s %q: %w", flag, raw, err)
				}
				if d.IsNegative() {
					return decimal.Zero, fmt.Errorf("%s must not be negative", flag)
				}
				return d, nil
			}
			daily, err := parseLimit("--daily-limit", dailyLimit)
			if err != nil {
				return err
			}
			monthly, err := parseLimit("--monthly-limit", monthlyLimit)
			if err != nil {
				return err
			}

			now := time.Now().In(app.Hours.Location())
			customer := &models.Customer{
				ID:             uuid.NewString(),
				Kind:           kind,
				Email:          email,
				CommissionRate: rate,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := app.Store.SaveCustomer(ctx, customer); err != nil {
				return err
			}

			w := &models.Wallet{
				ID:           uuid.NewString(),
				CustomerID:   customer.ID,
				Status:       models.WalletActive,
				DailyLimit:   daily,
				MonthlyLimit: monthly,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := app.Store.CreateWallet(ctx, w); err != nil {
				return err
			}

			portfolio := &models.Portfolio{
				ID:         uuid.NewString(),
				CustomerID: customer.ID,
				Name:       "default",
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := app.Store.SavePortfolio(ctx, portfolio); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{
					"customer_id":  customer.ID,
					"wallet_id":    w.ID,
					"portfolio_id": portfolio.ID,
				})
			}
			output.Success("Customer %s created", kind.DisplayName())
			output.Printf("  Customer:  %s\n", customer.ID)
			output.Printf("  Wallet:    %s\n", w.ID)
			output.Printf("  Portfolio: %s\n", portfolio.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&commissionRate, "commission-rate", "", "negotiated commission rate, e.g. 0.001")
	cmd.Flags().StringVar(&firstName, "first-name", "", "individual first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "individual last name")
	cmd.Flags().StringVar(&nationalID, "national-id", "", "individual national id")
	cmd.Flags().StringVar(&legalName, "legal-name", "", "corporate legal name")
	cmd.Flags().StringVar(&taxNumber, "tax-number", "", "corporate tax number")
	cmd.Flags().StringVar(&dailyLimit, "daily-limit", "", "daily spend limit, zero for unlimited")
	cmd.Flags().StringVar(&monthlyLimit, "monthly-limit", "", "monthly spend limit, zero for unlimited")
	return cmd
}

func newCustomerShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <customer-id>",
		Short: "Show a customer and their accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			customer, err := app.Store.GetCustomer(ctx, args[0])
			if err != nil {
				return err
			}

			w, walletErr := app.Store.GetWalletByCustomer(ctx, customer.ID)
			portfolios, portfolioErr := app.Store.ListPortfolios(ctx, customer.ID)

			if output.IsJSON() {
				payload := map[string]interface{}{"customer": customer}
				if walletErr == nil {
					payload["wallet"] = w
				}
				if portfolioErr == nil {
					payload["portfolios"] = portfolios
				}
				return output.JSON(payload)
			}

			output.Bold("%s", customer.Kind.DisplayName())
			output.Printf("  ID:         %s\n", customer.ID)
			if customer.Email != "" {
				output.Printf("  Email:      %s\n", customer.Email)
			}
			output.Printf("  Commission: %s\n", customer.EffectiveCommissionRate().String())

			if walletErr == nil {
				output.Println()
				output.Bold("Wallet %s", w.ID)
				output.Printf("  Balance:   %s (available %s, blocked %s)\n",
					FormatMoney(w.Balance), FormatMoney(w.AvailableBalance),
					FormatMoney(w.BlockedBalance))
			}

			if portfolioErr == nil && len(portfolios) > 0 {
				output.Println()
				output.Bold("Portfolios")
				table := NewTable(output, "ID", "Name", "Value", "Cost", "P/L")
				for _, p := range portfolios {
					table.AddRow(
						TruncateString(p.ID, 8),
						p.Name,
						FormatMoney(p.TotalValue),
						FormatMoney(p.TotalCost),
						FormatMoney(p.TotalProfitLoss),
					)
				}
				table.Render()
			}
			return nil
		},
	}
}
