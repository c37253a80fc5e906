// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Standard sentinel errors
var (
	ErrMarketClosed     = errors.New("market is closed")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderTerminal    = errors.New("order is in a terminal state")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrVersionConflict  = errors.New("concurrent modification detected")
	ErrDatabaseError    = errors.New("database error")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrTimeout          = errors.New("operation timed out")
)

// WalletErrorKind identifies the domain rule a wallet operation violated.
type WalletErrorKind string

const (
	KindInsufficientBalance      WalletErrorKind = "INSUFFICIENT_BALANCE"
	KindInsufficientAvailable    WalletErrorKind = "INSUFFICIENT_AVAILABLE_BALANCE"
	KindInsufficientBlocked      WalletErrorKind = "INSUFFICIENT_BLOCKED_BALANCE"
	KindWalletLocked             WalletErrorKind = "WALLET_LOCKED"
	KindDailyLimitExceeded       WalletErrorKind = "DAILY_LIMIT_EXCEEDED"
	KindMonthlyLimitExceeded     WalletErrorKind = "MONTHLY_LIMIT_EXCEEDED"
	KindTransactionCountExceeded WalletErrorKind = "TRANSACTION_COUNT_EXCEEDED"
	KindInvalidAmount            WalletErrorKind = "INVALID_AMOUNT"
)

// WalletError represents a wallet domain-rule violation. Callers branch on
// Kind rather than matching on message text, so the scheduler can decide how
// to disposition an order without knowing the ledger's internals.
type WalletError struct {
	Kind      WalletErrorKind
	Op        string
	Requested decimal.Decimal
	Held      decimal.Decimal
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("wallet %s: %s (requested %s, held %s)",
		e.Op, e.Kind, e.Requested.String(), e.Held.String())
}

// NewWalletError creates a new WalletError.
func NewWalletError(kind WalletErrorKind, op string, requested, held decimal.Decimal) *WalletError {
	return &WalletError{Kind: kind, Op: op, Requested: requested, Held: held}
}

// IsWalletError reports whether err is a WalletError and, if so, returns it.
func IsWalletError(err error) (*WalletError, bool) {
	var we *WalletError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// OrderError represents an error related to order processing.
type OrderError struct {
	OrderID string
	Ticker  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Ticker, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, ticker, action, reason string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Ticker:  ticker,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// StoreError represents a persistence failure. Store errors are fatal for the
// affected unit of work and are retried by the scheduler's next tick.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s %s]: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, table string, err error) *StoreError {
	return &StoreError{Op: op, Table: table, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
