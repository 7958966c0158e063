package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
)

// Query patterns shared across the service tests. sqlmock normalizes
// whitespace before matching, so these stay on one line.
const (
	selectAccountQuery = `SELECT account_id, balance, version, status, created_at, updated_at FROM accounts WHERE account_id = \$1`
	applyDeltaQuery    = `UPDATE accounts SET balance = balance \+ \$1, version = version \+ 1, updated_at = NOW\(\) WHERE account_id = \$2 AND version = \$3 AND balance \+ \$1 >= 0 AND status = 'ACTIVE' RETURNING balance, version, status, created_at, updated_at`
	selectByRefQuery   = `SELECT (.+) FROM ledger_entries WHERE reference = \$1 ORDER BY amount ASC`
	insertEntryQuery   = `INSERT INTO ledger_entries`
	hasReversalQuery   = `SELECT EXISTS`
	historyQuery       = `SELECT (.+) FROM ledger_entries WHERE account_id = \$1 ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`
)

var entryColumns = []string{
	"id", "reference", "kind", "account_id", "counterparty_account_id",
	"amount", "fee_amount", "balance_after", "status", "reversal_of",
	"metadata", "created_at",
}

func testFeeConfig() *config.FeeConfig {
	return &config.FeeConfig{
		TransferBps:        200,
		WithdrawalBps:      250,
		PurchaseDefaultBps: 200,
		PurchaseMinBps:     200,
		PurchaseMaxBps:     2000,
		PurchaseCategoryBps: map[string]int64{
			"books":       500,
			"electronics": 1000,
			"promo":       50,
			"luxury":      5000,
		},
	}
}

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		SystemFeeAccount: "platform-fees",
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
		HistoryMaxLimit:  100,
	}
}

func newTestEngine(t *testing.T) (*TransferEngine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	engine := NewTransferEngine(db, NewAccountStore(db), NewLedgerLog(db),
		NewFeePolicy(testFeeConfig()), NewEventPublisher(nil), testLedgerConfig())
	return engine, mock, func() { db.Close() }
}

func accountRows(id string, balance, version int64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"account_id", "balance", "version", "status", "created_at", "updated_at"}).
		AddRow(id, balance, version, status, now, now)
}

// updatedRows is the RETURNING set of a successful conditional update.
func updatedRows(balance, version int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"balance", "version", "status", "created_at", "updated_at"}).
		AddRow(balance, version, models.AccountStatusActive, now, now)
}

func emptyEntryRows() *sqlmock.Rows {
	return sqlmock.NewRows(entryColumns)
}

func entryRows(entries ...models.LedgerEntry) *sqlmock.Rows {
	rows := sqlmock.NewRows(entryColumns)
	for _, e := range entries {
		rows.AddRow(e.ID, e.Reference, e.Kind, e.AccountID, nullString(e.CounterpartyAccountID),
			e.Amount, e.FeeAmount, e.BalanceAfter, e.Status, nullString(e.ReversalOf),
			nil, e.CreatedAt)
	}
	return rows
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
