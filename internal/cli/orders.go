package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "brokerage-backoffice/internal/errors"
	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/store"
)

func newOrdersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order management",
		Long:  "Place new orders and inspect the order book.",
	}

	cmd.AddCommand(newOrdersListCmd(app))
	cmd.AddCommand(newOrdersPlaceCmd(app))
	cmd.AddCommand(newOrdersShowCmd(app))

	return cmd
}

func newOrdersListCmd(app *App) *cobra.Command {
	var (
		customerID string
		ticker     string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			orders, err := app.Store.ListOrders(ctx, store.OrderFilter{
				CustomerID: customerID,
				Ticker:     strings.ToUpper(ticker),
				Status:     models.OrderStatus(strings.ToUpper(status)),
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Info("No orders found.")
				return nil
			}

			table := NewTable(output, "ID", "Customer", "Ticker", "Side", "Type",
				"Qty", "Limit", "Status", "Created")
			for _, o := range orders {
				table.AddRow(
					TruncateString(o.ID, 8),
					TruncateString(o.CustomerID, 8),
					o.Ticker,
					string(o.Side),
					string(o.Category),
					FormatQty(o.Quantity),
					FormatMoney(o.LimitPrice),
					string(o.Status),
					FormatDateTime(o.CreatedAt),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&customerID, "customer", "", "filter by customer id")
	cmd.Flags().StringVar(&ticker, "ticker", "", "filter by ticker")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (OPEN, FILLED, ...)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func newOrdersShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show a single order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			o, err := app.Store.GetOrder(ctx, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(o)
			}

			output.Bold("Order %s", o.ID)
			output.Printf("  Customer:  %s\n", o.CustomerID)
			output.Printf("  %s %s %s @ %s (%s)\n", o.Side, FormatQty(o.Quantity),
				o.Ticker, FormatMoney(o.LimitPrice), o.Category)
			output.Printf("  Status:    %s\n", o.Status)
			if !o.TotalAmount.IsZero() {
				output.Printf("  Total:     %s\n", FormatMoney(o.TotalAmount))
			}
			if o.FailReason != "" {
				output.Warning("  Reason:    %s", o.FailReason)
			}
			output.Printf("  Created:   %s by %s\n", FormatDateTime(o.CreatedAt), o.CreatedBy)
			output.Printf("  Updated:   %s by %s\n", FormatDateTime(o.UpdatedAt), o.UpdatedBy)
			return nil
		},
	}
}

func newOrdersPlaceCmd(app *App) *cobra.Command {
	var (
		side     string
		category string
		limitStr string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "place <customer-id> <ticker> <quantity>",
		Short: "Place a new order",
		Long: `Place a LIMIT or MARKET order for a customer. Orders are only
accepted during the collection window; --force overrides the window for
operational corrections.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if !force && !app.Hours.CanPlaceOrder() {
				return apperrors.ErrMarketClosed
			}

			customer, err := app.Store.GetCustomer(ctx, args[0])
			if err != nil {
				return err
			}

			quantity, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
			}
			if !quantity.IsPositive() {
				return fmt.Errorf("quantity must be positive, got %s", quantity)
			}

			orderSide := models.OrderSide(strings.ToUpper(side))
			if orderSide != models.OrderSideBuy && orderSide != models.OrderSideSell {
				return fmt.Errorf("invalid --side %q, want buy or sell", side)
			}

			orderCategory := models.OrderCategory(strings.ToUpper(category))
			limitPrice := decimal.Zero
			switch orderCategory {
			case models.OrderCategoryLimit:
				if limitStr == "" {
					return fmt.Errorf("--limit is required for limit orders")
				}
				limitPrice, err = decimal.NewFromString(limitStr)
				if err != nil {
					return fmt.Errorf("invalid --limit %q: %w", limitStr, err)
				}
				if !limitPrice.IsPositive() {
					return fmt.Errorf("limit price must be positive, got %s", limitPrice)
				}
			case models.OrderCategoryMarket:
				if limitStr != "" {
					return fmt.Errorf("--limit is not allowed for market orders")
				}
			default:
				return fmt.Errorf("invalid --type %q, want limit or market", category)
			}

			now := time.Now().In(app.Hours.Location())
			order := &models.Order{
				ID:         uuid.NewString(),
				CustomerID: customer.ID,
				Ticker:     strings.ToUpper(args[1]),
				Side:       orderSide,
				Category:   orderCategory,
				Quantity:   quantity,
				LimitPrice: limitPrice,
				Status:     models.OrderOpen,
				CreatedBy:  "cli",
				UpdatedBy:  "cli",
				CreatedAt:  now,
				UpdatedAt:  now,
			}

			if err := app.Store.InsertOrder(ctx, order); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("Order %s placed", order.ID)
			output.Printf("  %s %s %s", order.Side, FormatQty(order.Quantity), order.Ticker)
			if orderCategory == models.OrderCategoryLimit {
				output.Printf(" @ %s", FormatMoney(order.LimitPrice))
			}
			output.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&side, "side", "buy", "order side: buy or sell")
	cmd.Flags().StringVar(&category, "type", "limit", "order type: limit or market")
	cmd.Flags().StringVar(&limitStr, "limit", "", "limit price")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the collection window check")
	return cmd
}
