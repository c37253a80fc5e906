package models

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "brokerage-backoffice/internal/errors"
)

// WalletStatus represents the administrative state of a wallet.
type WalletStatus string

const (
	WalletActive    WalletStatus = "ACTIVE"
	WalletSuspended WalletStatus = "SUSPENDED"
	WalletClosed    WalletStatus = "CLOSED"
)

// Wallet is a customer's cash ledger. The invariant
//
//	Balance == AvailableBalance + BlockedBalance
//
// with all three non-negative holds across every mutation. Balances change
// only through the methods below; the persistence layer reads the fields but
// never assigns them directly.
type Wallet struct {
	ID         string
	CustomerID string

	Balance          decimal.Decimal // total owned cash
	BlockedBalance   decimal.Decimal // reserved against pending obligations
	AvailableBalance decimal.Decimal // spendable now

	DailyLimit   decimal.Decimal // zero means unlimited
	MonthlyLimit decimal.Decimal
	DailySpent   decimal.Decimal
	MonthlySpent decimal.Decimal

	DailyTransactionLimit int // zero means unlimited
	DailyTransactionCount int

	Locked              bool
	Status              WalletStatus
	LastTransactionDate time.Time
	Version             int64 // optimistic concurrency token
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ConservationHolds reports whether the balance invariant currently holds.
func (w *Wallet) ConservationHolds() bool {
	if w.Balance.IsNegative() || w.AvailableBalance.IsNegative() || w.BlockedBalance.IsNegative() {
		return false
	}
	return w.Balance.Equal(w.AvailableBalance.Add(w.BlockedBalance))
}

// Deposit increases both total and available balance.
func (w *Wallet) Deposit(amount decimal.Decimal, now time.Time) *apperrors.WalletError {
	if !amount.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "deposit", amount, w.Balance)
	}
	w.Balance = w.Balance.Add(amount)
	w.AvailableBalance = w.AvailableBalance.Add(amount)
	w.touch(decimal.Zero, now)
	return nil
}

// Withdraw decreases both total and available balance. The amount must not
// exceed the total balance and must be covered by available cash; blocked
// cash cannot be withdrawn.
func (w *Wallet) Withdraw(amount decimal.Decimal, now time.Time) *apperrors.WalletError {
	if !amount.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "withdraw", amount, w.Balance)
	}
	if amount.GreaterThan(w.Balance) {
		return apperrors.NewWalletError(apperrors.KindInsufficientBalance, "withdraw", amount, w.Balance)
	}
	if amount.GreaterThan(w.AvailableBalance) {
		return apperrors.NewWalletError(apperrors.KindInsufficientAvailable, "withdraw", amount, w.AvailableBalance)
	}
	w.Balance = w.Balance.Sub(amount)
	w.AvailableBalance = w.AvailableBalance.Sub(amount)
	w.touch(amount, now)
	return nil
}

// Block moves cash from available to blocked.
func (w *Wallet) Block(amount decimal.Decimal, now time.Time) *apperrors.WalletError {
	if !amount.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "block", amount, w.AvailableBalance)
	}
	if amount.GreaterThan(w.AvailableBalance) {
		return apperrors.NewWalletError(apperrors.KindInsufficientAvailable, "block", amount, w.AvailableBalance)
	}
	w.AvailableBalance = w.AvailableBalance.Sub(amount)
	w.BlockedBalance = w.BlockedBalance.Add(amount)
	w.touch(decimal.Zero, now)
	return nil
}

// Unblock reverses a block, moving cash back to available.
func (w *Wallet) Unblock(amount decimal.Decimal, now time.Time) *apperrors.WalletError {
	if !amount.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "unblock", amount, w.BlockedBalance)
	}
	if amount.GreaterThan(w.BlockedBalance) {
		return apperrors.NewWalletError(apperrors.KindInsufficientBlocked, "unblock", amount, w.BlockedBalance)
	}
	w.BlockedBalance = w.BlockedBalance.Sub(amount)
	w.AvailableBalance = w.AvailableBalance.Add(amount)
	w.touch(decimal.Zero, now)
	return nil
}

// SettleBlocked realizes a previously blocked reservation as a permanent
// spend, decrementing blocked and total balance together.
func (w *Wallet) SettleBlocked(amount decimal.Decimal, now time.Time) *apperrors.WalletError {
	if !amount.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "settle", amount, w.BlockedBalance)
	}
	if amount.GreaterThan(w.BlockedBalance) {
		return apperrors.NewWalletError(apperrors.KindInsufficientBlocked, "settle", amount, w.BlockedBalance)
	}
	w.BlockedBalance = w.BlockedBalance.Sub(amount)
	w.Balance = w.Balance.Sub(amount)
	w.touch(amount, now)
	return nil
}

// DailyLimitExceeded reports whether spending amount would break the daily
// limit. Advisory: callers consult it before mutating.
func (w *Wallet) DailyLimitExceeded(amount decimal.Decimal, now time.Time) bool {
	if w.DailyLimit.IsZero() {
		return false
	}
	spent := w.DailySpent
	if !sameDay(w.LastTransactionDate, now) {
		spent = decimal.Zero
	}
	return spent.Add(amount).GreaterThan(w.DailyLimit)
}

// MonthlyLimitExceeded reports whether spending amount would break the
// monthly limit.
func (w *Wallet) MonthlyLimitExceeded(amount decimal.Decimal, now time.Time) bool {
	if w.MonthlyLimit.IsZero() {
		return false
	}
	spent := w.MonthlySpent
	if !sameMonth(w.LastTransactionDate, now) {
		spent = decimal.Zero
	}
	return spent.Add(amount).GreaterThan(w.MonthlyLimit)
}

// TransactionCountExceeded reports whether one more transaction would break
// the daily transaction-count limit.
func (w *Wallet) TransactionCountExceeded(now time.Time) bool {
	if w.DailyTransactionLimit <= 0 {
		return false
	}
	count := w.DailyTransactionCount
	if !sameDay(w.LastTransactionDate, now) {
		count = 0
	}
	return count+1 > w.DailyTransactionLimit
}

// Lock marks the wallet as locked. Callers must check IsLocked before any
// balance-mutating operation.
func (w *Wallet) Lock()   { w.Locked = true }
func (w *Wallet) Unlock() { w.Locked = false }

// IsLocked reports whether the wallet rejects balance mutations.
func (w *Wallet) IsLocked() bool { return w.Locked }

// touch rolls the daily/monthly counters over and stamps the mutation.
// Only spend accrues against the spending limits: deposits and the
// block/unblock shuffle hand cash around without spending it, so they pass
// decimal.Zero. Cash leaves the wallet through Withdraw and SettleBlocked
// alone, and those pass their amount.
func (w *Wallet) touch(spend decimal.Decimal, now time.Time) {
	if !sameDay(w.LastTransactionDate, now) {
		w.DailySpent = decimal.Zero
		w.DailyTransactionCount = 0
	}
	if !sameMonth(w.LastTransactionDate, now) {
		w.MonthlySpent = decimal.Zero
	}
	w.DailySpent = w.DailySpent.Add(spend)
	w.MonthlySpent = w.MonthlySpent.Add(spend)
	w.DailyTransactionCount++
	w.LastTransactionDate = now
	w.UpdatedAt = now
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// WalletTransactionType classifies a ledger entry.
type WalletTransactionType string

const (
	TxDeposit    WalletTransactionType = "DEPOSIT"
	TxWithdrawal WalletTransactionType = "WITHDRAWAL"
	TxBlock      WalletTransactionType = "BLOCK"
	TxUnblock    WalletTransactionType = "UNBLOCK"
	TxSettlement WalletTransactionType = "SETTLEMENT"
	TxFee        WalletTransactionType = "FEE"
)

// WalletTransactionStatus is the state of a ledger entry.
type WalletTransactionStatus string

const (
	TxPending   WalletTransactionStatus = "PENDING"
	TxCompleted WalletTransactionStatus = "COMPLETED"
	TxCancelled WalletTransactionStatus = "CANCELLED"
)

// WalletTransaction is an append-only ledger entry recorded alongside every
// wallet mutation. Only its status may change after creation.
type WalletTransaction struct {
	ID            string
	WalletID      string
	Type          WalletTransactionType
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        WalletTransactionStatus
	Reference     string // order or operation that caused the mutation
	CreatedAt     time.Time
}
