// Package wallet provides the wallet ledger service: every cash mutation in
// the system goes through here, paired with an append-only audit entry.
package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "brokerage-backoffice/internal/errors"
	"brokerage-backoffice/internal/logging"
	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/store"
)

// Ledger mutates wallets transactionally. Each operation loads the wallet,
// applies the domain rule, persists under an optimistic version check, and
// appends a WalletTransaction recording the before/after state.
type Ledger struct {
	store  store.DataStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewLedger creates a wallet ledger service.
func NewLedger(dataStore store.DataStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  dataStore,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

type mutation func(w *models.Wallet, now time.Time) *apperrors.WalletError

// Deposit credits the wallet with fresh cash.
func (l *Ledger) Deposit(ctx context.Context, walletID string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	return l.mutate(ctx, walletID, models.TxDeposit, amount, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Deposit(amount, now)
		})
}

// Withdraw debits available cash from the wallet.
func (l *Ledger) Withdraw(ctx context.Context, walletID string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	return l.mutate(ctx, walletID, models.TxWithdrawal, amount, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Withdraw(amount, now)
		})
}

// Block reserves available cash against a pending obligation.
func (l *Ledger) Block(ctx context.Context, walletID string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	return l.mutate(ctx, walletID, models.TxBlock, amount, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Block(amount, now)
		})
}

// Unblock releases a reservation back to available cash.
func (l *Ledger) Unblock(ctx context.Context, walletID string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	return l.mutate(ctx, walletID, models.TxUnblock, amount, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Unblock(amount, now)
		})
}

// SettleBlocked realizes a blocked reservation as a permanent spend.
func (l *Ledger) SettleBlocked(ctx context.Context, walletID string, amount decimal.Decimal, reference string) (*models.Wallet, error) {
	return l.mutate(ctx, walletID, models.TxSettlement, amount, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.SettleBlocked(amount, now)
		})
}

func (l *Ledger) mutate(ctx context.Context, walletID string, txType models.WalletTransactionType,
	amount, fee decimal.Decimal, reference string, fn mutation) (*models.Wallet, error) {

	var result *models.Wallet
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(walletID)
		if err != nil {
			return err
		}
		if w.IsLocked() {
			return apperrors.NewWalletError(apperrors.KindWalletLocked, string(txType), amount, w.Balance)
		}
		if err := ApplyInTx(tx, w, txType, amount, fee, reference, fn, l.now()); err != nil {
			return err
		}
		result = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.LogWalletMutation(l.logger, walletID, string(txType), amount.String(), result.Balance.String())
	return result, nil
}

// ApplyInTx applies a single wallet mutation inside an existing unit of
// work: domain rule, versioned update, and audit entry. Callers that combine
// a wallet mutation with other writes (the order scheduler) use this so the
// whole fill commits or rolls back together.
func ApplyInTx(tx store.Tx, w *models.Wallet, txType models.WalletTransactionType,
	amount, fee decimal.Decimal, reference string, fn mutation, now time.Time) error {

	before := w.Balance
	if werr := fn(w, now); werr != nil {
		return werr
	}
	if err := tx.UpdateWallet(w); err != nil {
		return err
	}
	return tx.InsertWalletTransaction(&models.WalletTransaction{
		ID:            uuid.NewString(),
		WalletID:      w.ID,
		Type:          txType,
		Amount:        amount,
		Fee:           fee,
		BalanceBefore: before,
		BalanceAfter:  w.Balance,
		Status:        models.TxCompleted,
		Reference:     reference,
		CreatedAt:     now,
	})
}

// PurchaseDebit pays for a BUY fill inside an existing unit of work: the
// settlement amount plus commission is blocked and immediately realized as a
// permanent debit. Limit predicates are consulted first; any violation is
// returned as a WalletError and nothing is written.
func PurchaseDebit(tx store.Tx, walletID string, amount, commission decimal.Decimal, reference string, now time.Time) error {
	w, err := tx.GetWalletForUpdate(walletID)
	if err != nil {
		return err
	}
	total := amount.Add(commission)

	if w.IsLocked() {
		return apperrors.NewWalletError(apperrors.KindWalletLocked, "purchase", total, w.Balance)
	}
	if w.DailyLimitExceeded(total, now) {
		return apperrors.NewWalletError(apperrors.KindDailyLimitExceeded, "purchase", total, w.DailySpent)
	}
	if w.MonthlyLimitExceeded(total, now) {
		return apperrors.NewWalletError(apperrors.KindMonthlyLimitExceeded, "purchase", total, w.MonthlySpent)
	}
	if w.TransactionCountExceeded(now) {
		return apperrors.NewWalletError(apperrors.KindTransactionCountExceeded, "purchase", total, w.Balance)
	}

	if err := ApplyInTx(tx, w, models.TxBlock, total, decimal.Zero, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Block(total, now)
		}, now); err != nil {
		return err
	}
	return ApplyInTx(tx, w, models.TxSettlement, total, commission, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.SettleBlocked(total, now)
		}, now)
}

// SaleCredit credits the proceeds of a SELL fill, net of commission, inside
// an existing unit of work.
func SaleCredit(tx store.Tx, walletID string, amount, commission decimal.Decimal, reference string, now time.Time) error {
	w, err := tx.GetWalletForUpdate(walletID)
	if err != nil {
		return err
	}
	net := amount.Sub(commission)

	if w.IsLocked() {
		return apperrors.NewWalletError(apperrors.KindWalletLocked, "sale", net, w.Balance)
	}
	if !net.IsPositive() {
		return apperrors.NewWalletError(apperrors.KindInvalidAmount, "sale", net, w.Balance)
	}

	return ApplyInTx(tx, w, models.TxSettlement, net, commission, reference,
		func(w *models.Wallet, now time.Time) *apperrors.WalletError {
			return w.Deposit(net, now)
		}, now)
}

// LockWallet sets the wallet's lock flag. A locked wallet rejects all
// balance-mutating operations.
func (l *Ledger) LockWallet(ctx context.Context, walletID string) error {
	return l.setLock(ctx, walletID, true)
}

// UnlockWallet clears the wallet's lock flag.
func (l *Ledger) UnlockWallet(ctx context.Context, walletID string) error {
	return l.setLock(ctx, walletID, false)
}

func (l *Ledger) setLock(ctx context.Context, walletID string, locked bool) error {
	return l.store.InTx(ctx, func(tx store.Tx) error {
		w, err := tx.GetWalletForUpdate(walletID)
		if err != nil {
			return err
		}
		if locked {
			w.Lock()
		} else {
			w.Unlock()
		}
		w.UpdatedAt = l.now()
		return tx.UpdateWallet(w)
	})
}
