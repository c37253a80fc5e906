package wallet

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"brokerage-backoffice/internal/models"
	"brokerage-backoffice/internal/store"
)

// Property: for any sequence of ledger operations, the persisted wallet
// always satisfies the conservation invariant and the audit trail grows by
// exactly one entry per successful operation.
func TestProperty_LedgerConservation(t *testing.T) {
	dataStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger_property.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer dataStore.Close()

	ledger := NewLedger(dataStore, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	opGen := gopter.CombineGens(gen.IntRange(0, 4), gen.Int64Range(1, 400)).Map(
		func(vals []interface{}) [2]int64 {
			return [2]int64{int64(vals[0].(int)), vals[1].(int64)}
		})
	seqGen := gen.SliceOfN(12, opGen)

	var runID int

	properties.Property("persisted wallet conserves balance across op sequences", prop.ForAll(
		func(ops [][2]int64) bool {
			runID++
			walletID := fmt.Sprintf("wallet-prop-%d", runID)

			// Each run gets its own customer and wallet; wallets carry a
			// unique constraint on customer_id.
			runCustomer := &models.Customer{
				ID:        fmt.Sprintf("cust-prop-%d", runID),
				Kind:      models.Corporate{LegalName: "Prop Holding AS"},
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := dataStore.SaveCustomer(ctx, runCustomer); err != nil {
				t.Logf("SaveCustomer: %v", err)
				return false
			}
			w := &models.Wallet{
				ID:               walletID,
				CustomerID:       runCustomer.ID,
				Balance:          decimal.NewFromInt(500),
				AvailableBalance: decimal.NewFromInt(500),
				Status:           models.WalletActive,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := dataStore.CreateWallet(ctx, w); err != nil {
				t.Logf("CreateWallet: %v", err)
				return false
			}

			succeeded := 0
			for _, op := range ops {
				amount := decimal.NewFromInt(op[1])
				var err error
				switch op[0] {
				case 0:
					_, err = ledger.Deposit(ctx, walletID, amount, "prop")
				case 1:
					_, err = ledger.Withdraw(ctx, walletID, amount, "prop")
				case 2:
					_, err = ledger.Block(ctx, walletID, amount, "prop")
				case 3:
					_, err = ledger.Unblock(ctx, walletID, amount, "prop")
				case 4:
					_, err = ledger.SettleBlocked(ctx, walletID, amount, "prop")
				}
				if err == nil {
					succeeded++
				}

				persisted, err := dataStore.GetWallet(ctx, walletID)
				if err != nil {
					t.Logf("GetWallet: %v", err)
					return false
				}
				if !persisted.ConservationHolds() {
					t.Logf("invariant broken: balance=%s available=%s blocked=%s",
						persisted.Balance, persisted.AvailableBalance, persisted.BlockedBalance)
					return false
				}
			}

			entries, err := dataStore.ListWalletTransactions(ctx, walletID, 100)
			if err != nil {
				t.Logf("ListWalletTransactions: %v", err)
				return false
			}
			if len(entries) != succeeded {
				t.Logf("audit entries = %d, successful ops = %d", len(entries), succeeded)
				return false
			}
			return true
		},
		seqGen,
	))

	properties.TestingRun(t)
}
