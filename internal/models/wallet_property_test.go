package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// Property: Balance == AvailableBalance + BlockedBalance, with all three
// non-negative, after any sequence of wallet operations. Operations that
// return an error must leave the wallet exactly as it was.
func TestProperty_WalletConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	opGen := gen.IntRange(0, 4)          // deposit, withdraw, block, unblock, settle
	amountGen := gen.Int64Range(-50, 500) // includes invalid non-positive amounts
	seqGen := gen.SliceOf(gopter.CombineGens(opGen, amountGen, gen.Int64Range(0, 30)).Map(
		func(vals []interface{}) walletOp {
			return walletOp{
				kind:   vals[0].(int),
				amount: decimal.New(vals[1].(int64), -2),
				dayOff: vals[2].(int64),
			}
		}))

	properties.Property("conservation holds across any operation sequence", prop.ForAll(
		func(ops []walletOp) bool {
			base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
			w := &Wallet{
				ID:               "w1",
				CustomerID:       "c1",
				Balance:          decimal.NewFromInt(1000),
				AvailableBalance: decimal.NewFromInt(1000),
				Status:           WalletActive,
			}

			for _, op := range ops {
				now := base.AddDate(0, 0, int(op.dayOff))
				snapshot := *w

				var failed bool
				switch op.kind {
				case 0:
					failed = w.Deposit(op.amount, now) != nil
				case 1:
					failed = w.Withdraw(op.amount, now) != nil
				case 2:
					failed = w.Block(op.amount, now) != nil
				case 3:
					failed = w.Unblock(op.amount, now) != nil
				case 4:
					failed = w.SettleBlocked(op.amount, now) != nil
				}

				if !w.ConservationHolds() {
					t.Logf("invariant broken after op %+v: balance=%s available=%s blocked=%s",
						op, w.Balance, w.AvailableBalance, w.BlockedBalance)
					return false
				}
				if failed && !walletBalancesEqual(&snapshot, w) {
					t.Logf("failed op %+v mutated balances: before=%+v after=%+v", op, snapshot, *w)
					return false
				}
			}
			return true
		},
		seqGen,
	))

	properties.TestingRun(t)
}

type walletOp struct {
	kind   int
	amount decimal.Decimal
	dayOff int64
}

func walletBalancesEqual(a, b *Wallet) bool {
	return a.Balance.Equal(b.Balance) &&
		a.AvailableBalance.Equal(b.AvailableBalance) &&
		a.BlockedBalance.Equal(b.BlockedBalance)
}
