package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "brokerage-backoffice/internal/errors"
	"brokerage-backoffice/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Customers: one wallet and one or more portfolios each
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		national_id TEXT,
		legal_name TEXT,
		tax_number TEXT,
		email TEXT,
		commission_rate TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Wallets: the cash ledger, versioned for optimistic concurrency
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL,
		blocked_balance TEXT NOT NULL,
		available_balance TEXT NOT NULL,
		daily_limit TEXT NOT NULL DEFAULT '0',
		monthly_limit TEXT NOT NULL DEFAULT '0',
		daily_spent TEXT NOT NULL DEFAULT '0',
		monthly_spent TEXT NOT NULL DEFAULT '0',
		daily_tx_limit INTEGER NOT NULL DEFAULT 0,
		daily_tx_count INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		last_transaction_at DATETIME,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);

	-- Wallet transactions: append-only audit ledger
	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (wallet_id) REFERENCES wallets(id)
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_tx_wallet ON wallet_transactions(wallet_id, created_at);

	-- Orders: soft-deleted, never removed
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		category TEXT NOT NULL,
		quantity TEXT NOT NULL,
		limit_price TEXT NOT NULL,
		status TEXT NOT NULL,
		total_amount TEXT NOT NULL DEFAULT '0',
		fail_reason TEXT,
		created_by TEXT,
		updated_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);

	-- Portfolios
	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		name TEXT NOT NULL,
		total_value TEXT NOT NULL DEFAULT '0',
		total_cost TEXT NOT NULL DEFAULT '0',
		total_profit_loss TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_portfolios_customer ON portfolios(customer_id);

	-- Stock transactions: settlement records, never deleted
	CREATE TABLE IF NOT EXISTS stock_transactions (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		order_id TEXT,
		ticker TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		commission TEXT NOT NULL DEFAULT '0',
		tax TEXT NOT NULL DEFAULT '0',
		other_fees TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		note TEXT,
		transaction_at DATETIME NOT NULL,
		settlement_at DATETIME NOT NULL,
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id)
	);
	CREATE INDEX IF NOT EXISTS idx_stock_tx_portfolio ON stock_transactions(portfolio_id, ticker);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- customers ---------------------------------------------------------------

// SaveCustomer inserts or replaces a customer.
func (s *SQLiteStore) SaveCustomer(ctx context.Context, c *models.Customer) error {
	var kind, firstName, lastName, nationalID, legalName, taxNumber string
	switch k := c.Kind.(type) {
	case models.Individual:
		kind = "INDIVIDUAL"
		firstName, lastName, nationalID = k.FirstName, k.LastName, k.NationalID
	case models.Corporate:
		kind = "CORPORATE"
		legalName, taxNumber = k.LegalName, k.TaxNumber
	default:
		return fmt.Errorf("unknown customer kind %T", c.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO customers
		(id, kind, first_name, last_name, national_id, legal_name, tax_number, email, commission_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, kind, firstName, lastName, nationalID, legalName, taxNumber,
		c.Email, c.CommissionRate.String(), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return apperrors.NewStoreError("save", "customers", err)
	}
	return nil
}

// GetCustomer loads a customer by id.
func (s *SQLiteStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, first_name, last_name, national_id, legal_name, tax_number, email, commission_rate, created_at, updated_at
		FROM customers WHERE id = ?`, id)

	var c models.Customer
	var kind, firstName, lastName, nationalID, legalName, taxNumber, rate string
	err := row.Scan(&c.ID, &kind, &firstName, &lastName, &nationalID, &legalName,
		&taxNumber, &c.Email, &rate, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrCustomerNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get", "customers", err)
	}

	switch kind {
	case "INDIVIDUAL":
		c.Kind = models.Individual{FirstName: firstName, LastName: lastName, NationalID: nationalID}
	case "CORPORATE":
		c.Kind = models.Corporate{LegalName: legalName, TaxNumber: taxNumber}
	default:
		return nil, fmt.Errorf("unknown customer kind %q", kind)
	}
	if c.CommissionRate, err = decimal.NewFromString(rate); err != nil {
		return nil, apperrors.NewStoreError("get", "customers", err)
	}
	return &c, nil
}

// -- wallets -----------------------------------------------------------------

const walletColumns = `id, customer_id, balance, blocked_balance, available_balance,
	daily_limit, monthly_limit, daily_spent, monthly_spent,
	daily_tx_limit, daily_tx_count, locked, status, last_transaction_at,
	version, created_at, updated_at`

// CreateWallet inserts a new wallet.
func (s *SQLiteStore) CreateWallet(ctx context.Context, w *models.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.CustomerID, w.Balance.String(), w.BlockedBalance.String(), w.AvailableBalance.String(),
		w.DailyLimit.String(), w.MonthlyLimit.String(), w.DailySpent.String(), w.MonthlySpent.String(),
		w.DailyTransactionLimit, w.DailyTransactionCount, boolToInt(w.Locked), string(w.Status),
		nullableTime(w.LastTransactionDate), w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return apperrors.NewStoreError("insert", "wallets", err)
	}
	return nil
}

// GetWallet loads a wallet by id.
func (s *SQLiteStore) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE id = ?`, id))
}

// GetWalletByCustomer loads the customer's wallet.
func (s *SQLiteStore) GetWalletByCustomer(ctx context.Context, customerID string) (*models.Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE customer_id = ?`, customerID))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	var balance, blocked, available, dailyLimit, monthlyLimit, dailySpent, monthlySpent string
	var locked int
	var status string
	var lastTx sql.NullTime

	err := row.Scan(&w.ID, &w.CustomerID, &balance, &blocked, &available,
		&dailyLimit, &monthlyLimit, &dailySpent, &monthlySpent,
		&w.DailyTransactionLimit, &w.DailyTransactionCount, &locked, &status, &lastTx,
		&w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrWalletNotFound
	}
	if err != nil {
		return nil, apperrors.NewStoreError("get", "wallets", err)
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&w.Balance, balance}, {&w.BlockedBalance, blocked}, {&w.AvailableBalance, available},
		{&w.DailyLimit, dailyLimit}, {&w.MonthlyLimit, monthlyLimit},
		{&w.DailySpent, dailySpent}, {&w.MonthlySpent, monthlySpent},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, apperrors.NewStoreError("get", "wallets", err)
		}
	}

	w.Locked = locked != 0
	w.Status = models.WalletStatus(status)
	if lastTx.Valid {
		w.LastTransactionDate = lastTx.Time
	}
	return &w, nil
}

// ListWalletTransactions returns the most recent ledger entries for a wallet.
func (s *SQLiteStore) ListWalletTransactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wallet_id, type, amount, fee, balance_before, balance_after, status, reference, created_at
		FROM wallet_transactions WHERE wallet_id = ?
		ORDER BY created_at DESC LIMIT ?`, walletID, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "wallet_transactions", err)
	}
	defer rows.Close()

	var entries []models.WalletTransaction
	for rows.Next() {
		var e models.WalletTransaction
		var amount, fee, before, after, typ, status string
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.WalletID, &typ, &amount, &fee, &before, &after, &status, &ref, &e.CreatedAt); err != nil {
			return nil, apperrors.NewStoreError("list", "wallet_transactions", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}
		if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, err
		}
		if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, err
		}
		e.Type = models.WalletTransactionType(typ)
		e.Status = models.WalletTransactionStatus(status)
		e.Reference = ref.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// -- orders ------------------------------------------------------------------

const orderColumns = `id, customer_id, ticker, side, category, quantity, limit_price,
	status, total_amount, fail_reason, created_by, updated_by, created_at, updated_at, deleted`

// InsertOrder persists a freshly placed order.
func (s *SQLiteStore) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerID, o.Ticker, string(o.Side), string(o.Category),
		o.Quantity.String(), o.LimitPrice.String(), string(o.Status), o.TotalAmount.String(),
		o.FailReason, o.CreatedBy, o.UpdatedBy, o.CreatedAt, o.UpdatedAt, boolToInt(o.Deleted))
	if err != nil {
		return apperrors.NewStoreError("insert", "orders", err)
	}
	return nil
}

// GetOrder loads an order by id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrOrderNotFound
	}
	return o, err
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var side, category, status, quantity, limitPrice, totalAmount string
	var failReason, createdBy, updatedBy sql.NullString
	var deleted int

	err := row.Scan(&o.ID, &o.CustomerID, &o.Ticker, &side, &category, &quantity, &limitPrice,
		&status, &totalAmount, &failReason, &createdBy, &updatedBy, &o.CreatedAt, &o.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}

	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, err
	}
	if o.LimitPrice, err = decimal.NewFromString(limitPrice); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, err
	}
	o.Side = models.OrderSide(side)
	o.Category = models.OrderCategory(category)
	o.Status = models.OrderStatus(status)
	o.FailReason = failReason.String
	o.CreatedBy = createdBy.String
	o.UpdatedBy = updatedBy.String
	o.Deleted = deleted != 0
	return &o, nil
}

// ListOpenOrders returns the current snapshot of OPEN, non-deleted orders.
func (s *SQLiteStore) ListOpenOrders(ctx context.Context) ([]models.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? AND deleted = 0 ORDER BY created_at`,
		string(models.OrderOpen))
}

// ListOrders returns orders matching the filter.
func (s *SQLiteStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE deleted = 0`
	var args []interface{}
	var conds []string

	if filter.CustomerID != "" {
		conds = append(conds, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.Ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, filter.Ticker)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.To)
	}
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryOrders(ctx, query, args...)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "orders", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("list", "orders", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// CancelOpenOrdersWithin transitions every OPEN order created inside
// [from, to] to CANCELED in one bulk update and returns the count.
func (s *SQLiteStore) CancelOpenOrdersWithin(ctx context.Context, from, to, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?, updated_by = 'end-of-day'
		WHERE status = ? AND deleted = 0 AND created_at >= ? AND created_at <= ?`,
		string(models.OrderCanceled), now, string(models.OrderOpen), from, to)
	if err != nil {
		return 0, apperrors.NewStoreError("bulk-cancel", "orders", err)
	}
	return res.RowsAffected()
}

// -- portfolios & stock transactions -----------------------------------------

// SavePortfolio inserts or replaces a portfolio.
func (s *SQLiteStore) SavePortfolio(ctx context.Context, p *models.Portfolio) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO portfolios
		(id, customer_id, name, total_value, total_cost, total_profit_loss, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CustomerID, p.Name, p.TotalValue.String(), p.TotalCost.String(),
		p.TotalProfitLoss.String(), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperrors.NewStoreError("save", "portfolios", err)
	}
	return nil
}

// GetPortfolio loads a portfolio by id.
func (s *SQLiteStore) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	p, err := scanPortfolio(s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, name, total_value, total_cost, total_profit_loss, created_at, updated_at
		FROM portfolios WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewStoreError("get", "portfolios", err)
	}
	return p, err
}

// ListPortfolios returns a customer's portfolios.
func (s *SQLiteStore) ListPortfolios(ctx context.Context, customerID string) ([]models.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, name, total_value, total_cost, total_profit_loss, created_at, updated_at
		FROM portfolios WHERE customer_id = ? ORDER BY created_at`, customerID)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "portfolios", err)
	}
	defer rows.Close()

	var portfolios []models.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("list", "portfolios", err)
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var p models.Portfolio
	var value, cost, pnl string
	err := row.Scan(&p.ID, &p.CustomerID, &p.Name, &value, &cost, &pnl, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.TotalValue, err = decimal.NewFromString(value); err != nil {
		return nil, err
	}
	if p.TotalCost, err = decimal.NewFromString(cost); err != nil {
		return nil, err
	}
	if p.TotalProfitLoss, err = decimal.NewFromString(pnl); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePortfolioAggregates persists recomputed portfolio aggregates.
func (s *SQLiteStore) UpdatePortfolioAggregates(ctx context.Context, p *models.Portfolio) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE portfolios SET total_value = ?, total_cost = ?, total_profit_loss = ?, updated_at = ?
		WHERE id = ?`,
		p.TotalValue.String(), p.TotalCost.String(), p.TotalProfitLoss.String(), p.UpdatedAt, p.ID)
	if err != nil {
		return apperrors.NewStoreError("update", "portfolios", err)
	}
	return nil
}

const stockTxColumns = `id, portfolio_id, order_id, ticker, type, quantity, price,
	commission, tax, other_fees, status, note, transaction_at, settlement_at`

// ListStockTransactionsByPortfolio returns all settlement records of a portfolio.
func (s *SQLiteStore) ListStockTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]models.StockTransaction, error) {
	return s.queryStockTransactions(ctx,
		`SELECT `+stockTxColumns+` FROM stock_transactions WHERE portfolio_id = ? ORDER BY transaction_at`,
		portfolioID)
}

// ListStockTransactionsByCustomer streams a customer's settlement records
// across all portfolios, optionally narrowed to one ticker.
func (s *SQLiteStore) ListStockTransactionsByCustomer(ctx context.Context, customerID, ticker string) ([]models.StockTransaction, error) {
	query, args := stockTxByCustomerQuery(customerID, ticker)
	return s.queryStockTransactions(ctx, query, args...)
}

func stockTxByCustomerQuery(customerID, ticker string) (string, []interface{}) {
	query := `SELECT st.id, st.portfolio_id, st.order_id, st.ticker, st.type, st.quantity, st.price,
			st.commission, st.tax, st.other_fees, st.status, st.note, st.transaction_at, st.settlement_at
		FROM stock_transactions st
		JOIN portfolios p ON p.id = st.portfolio_id
		WHERE p.customer_id = ?`
	args := []interface{}{customerID}
	if ticker != "" {
		query += " AND st.ticker = ?"
		args = append(args, ticker)
	}
	query += " ORDER BY st.transaction_at"
	return query, args
}

func (s *SQLiteStore) queryStockTransactions(ctx context.Context, query string, args ...interface{}) ([]models.StockTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "stock_transactions", err)
	}
	return readStockTransactions(rows)
}

func readStockTransactions(rows *sql.Rows) ([]models.StockTransaction, error) {
	defer rows.Close()

	var records []models.StockTransaction
	for rows.Next() {
		rec, err := scanStockTransaction(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("list", "stock_transactions", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanStockTransaction(row rowScanner) (*models.StockTransaction, error) {
	var t models.StockTransaction
	var typ, status, quantity, price, commission, tax, otherFees string
	var orderID, note sql.NullString

	err := row.Scan(&t.ID, &t.PortfolioID, &orderID, &t.Ticker, &typ, &quantity, &price,
		&commission, &tax, &otherFees, &status, &note, &t.TransactionDate, &t.SettlementDate)
	if err != nil {
		return nil, err
	}

	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, err
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if t.Commission, err = decimal.NewFromString(commission); err != nil {
		return nil, err
	}
	if t.Tax, err = decimal.NewFromString(tax); err != nil {
		return nil, err
	}
	if t.OtherFees, err = decimal.NewFromString(otherFees); err != nil {
		return nil, err
	}
	t.OrderID = orderID.String
	t.Note = note.String
	t.Type = models.StockTransactionType(typ)
	t.Status = models.StockTransactionStatus(status)
	return &t, nil
}

// -- unit of work ------------------------------------------------------------

type sqliteTx struct {
	tx *sql.Tx
}

// InTx runs fn inside a single SQLite transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreError("begin", "tx", err)
	}

	if err := fn(&sqliteTx{tx: dbTx}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			return apperrors.Wrapf(err, "rollback also failed: %v", rbErr)
		}
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return apperrors.NewStoreError("commit", "tx", err)
	}
	return nil
}

func (t *sqliteTx) GetWalletForUpdate(walletID string) (*models.Wallet, error) {
	return scanWallet(t.tx.QueryRow(
		`SELECT `+walletColumns+` FROM wallets WHERE id = ?`, walletID))
}

func (t *sqliteTx) UpdateWallet(w *models.Wallet) error {
	res, err := t.tx.Exec(`
		UPDATE wallets SET
			balance = ?, blocked_balance = ?, available_balance = ?,
			daily_spent = ?, monthly_spent = ?, daily_tx_count = ?,
			locked = ?, status = ?, last_transaction_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		w.Balance.String(), w.BlockedBalance.String(), w.AvailableBalance.String(),
		w.DailySpent.String(), w.MonthlySpent.String(), w.DailyTransactionCount,
		boolToInt(w.Locked), string(w.Status), nullableTime(w.LastTransactionDate), w.UpdatedAt,
		w.ID, w.Version)
	if err != nil {
		return apperrors.NewStoreError("update", "wallets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStoreError("update", "wallets", err)
	}
	if n == 0 {
		return apperrors.ErrVersionConflict
	}
	w.Version++
	return nil
}

func (t *sqliteTx) InsertWalletTransaction(e *models.WalletTransaction) error {
	_, err := t.tx.Exec(`
		INSERT INTO wallet_transactions
		(id, wallet_id, type, amount, fee, balance_before, balance_after, status, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WalletID, string(e.Type), e.Amount.String(), e.Fee.String(),
		e.BalanceBefore.String(), e.BalanceAfter.String(), string(e.Status), e.Reference, e.CreatedAt)
	if err != nil {
		return apperrors.NewStoreError("insert", "wallet_transactions", err)
	}
	return nil
}

func (t *sqliteTx) TransitionOrder(orderID string, from, to models.OrderStatus, totalAmount decimal.Decimal, reason string, now time.Time) (bool, error) {
	res, err := t.tx.Exec(`
		UPDATE orders SET status = ?, total_amount = ?, fail_reason = ?, updated_at = ?, updated_by = 'scheduler'
		WHERE id = ? AND status = ?`,
		string(to), totalAmount.String(), reason, now, orderID, string(from))
	if err != nil {
		return false, apperrors.NewStoreError("transition", "orders", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStoreError("transition", "orders", err)
	}
	return n == 1, nil
}

func (t *sqliteTx) ListStockTransactionsByCustomer(customerID, ticker string) ([]models.StockTransaction, error) {
	query, args := stockTxByCustomerQuery(customerID, ticker)
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("list", "stock_transactions", err)
	}
	return readStockTransactions(rows)
}

func (t *sqliteTx) InsertStockTransaction(rec *models.StockTransaction) error {
	_, err := t.tx.Exec(`
		INSERT INTO stock_transactions (`+stockTxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PortfolioID, rec.OrderID, rec.Ticker, string(rec.Type),
		rec.Quantity.String(), rec.Price.String(), rec.Commission.String(),
		rec.Tax.String(), rec.OtherFees.String(), string(rec.Status), rec.Note,
		rec.TransactionDate, rec.SettlementDate)
	if err != nil {
		return apperrors.NewStoreError("insert", "stock_transactions", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
