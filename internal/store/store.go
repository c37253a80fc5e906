// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"brokerage-backoffice/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Customers
	SaveCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)

	// Wallets
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	GetWallet(ctx context.Context, id string) (*models.Wallet, error)
	GetWalletByCustomer(ctx context.Context, customerID string) (*models.Wallet, error)
	ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error)

	// Orders
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOpenOrders(ctx context.Context) ([]models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	CancelOpenOrdersWithin(ctx context.Context, from, to time.Time, now time.Time) (int64, error)

	// Portfolios & stock transactions
	SavePortfolio(ctx context.Context, portfolio *models.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, customerID string) ([]models.Portfolio, error)
	UpdatePortfolioAggregates(ctx context.Context, portfolio *models.Portfolio) error
	ListStockTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]models.StockTransaction, error)
	ListStockTransactionsByCustomer(ctx context.Context, customerID, ticker string) ([]models.StockTransaction, error)

	// InTx runs fn inside a single database transaction. Everything done
	// through the Tx commits or rolls back as one unit of work.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// GetWalletForUpdate loads a wallet for mutation within this transaction.
	GetWalletForUpdate(walletID string) (*models.Wallet, error)
	// UpdateWallet persists a mutated wallet. It fails with
	// errors.ErrVersionConflict when the row changed underneath us.
	UpdateWallet(wallet *models.Wallet) error
	// InsertWalletTransaction appends a ledger entry.
	InsertWalletTransaction(entry *models.WalletTransaction) error
	// TransitionOrder moves an order from one status to another. It returns
	// false when the order was not in the expected source status, which is
	// how double fills are excluded.
	TransitionOrder(orderID string, from, to models.OrderStatus, totalAmount decimal.Decimal, reason string, now time.Time) (bool, error)
	// InsertStockTransaction appends a settlement record.
	InsertStockTransaction(record *models.StockTransaction) error
	// ListStockTransactionsByCustomer reads the customer's settlement
	// records within this transaction, so position checks see every
	// record committed before the transaction's own writes began.
	ListStockTransactionsByCustomer(customerID, ticker string) ([]models.StockTransaction, error)
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	CustomerID string
	Ticker     string
	Status     models.OrderStatus
	From       time.Time
	To         time.Time
	Limit      int
}
