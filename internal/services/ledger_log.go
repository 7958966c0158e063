package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/earnhub/backend/internal/models"
)

// LedgerLog is the append-only transaction log. Rows are inserted in the same
// database transaction as the balance updates they describe and are never
// updated or deleted afterwards.
type LedgerLog struct {
	db *sql.DB
}

func NewLedgerLog(db *sql.DB) *LedgerLog {
	return &LedgerLog{db: db}
}

const ledgerEntryColumns = `id, reference, kind, account_id, counterparty_account_id,
	       amount, fee_amount, balance_after, status, reversal_of, metadata, created_at`

// AppendTx writes one row per entry inside the engine's transaction. The
// unique index on (reference, account_id) turns a racing duplicate into a
// constraint violation the engine absorbs as an idempotent replay.
func (l *LedgerLog) AppendTx(tx *sql.Tx, entries []*models.LedgerEntry) error {
	for _, entry := range entries {
		var metadata []byte
		if len(entry.Metadata) > 0 {
			metadata, _ = json.Marshal(entry.Metadata)
		}
		_, err := tx.Exec(`
			INSERT INTO ledger_entries
			(id, reference, kind, account_id, counterparty_account_id, amount, fee_amount, balance_after, status, reversal_of, metadata, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`,
			entry.ID, entry.Reference, entry.Kind, entry.AccountID, entry.CounterpartyAccountID,
			entry.Amount, entry.FeeAmount, entry.BalanceAfter, entry.Status, entry.ReversalOf,
			metadata, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("append ledger entry %s/%s: %w", entry.Reference, entry.AccountID, err)
		}
	}
	return nil
}

// GetByReference returns every entry recorded under a reference, debit side
// first, for reconciliation and idempotent replay.
func (l *LedgerLog) GetByReference(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+ledgerEntryColumns+`
		FROM ledger_entries
		WHERE reference = $1
		ORDER BY amount ASC`, reference)
	if err != nil {
		return nil, fmt.Errorf("fetch entries for reference %s: %w", reference, err)
	}
	return scanEntries(rows)
}

// GetByReferenceTx is GetByReference inside an open transaction, used by the
// engine to re-check for a concurrent duplicate before applying deltas.
func (l *LedgerLog) GetByReferenceTx(tx *sql.Tx, reference string) ([]models.LedgerEntry, error) {
	rows, err := tx.Query(`
		SELECT `+ledgerEntryColumns+`
		FROM ledger_entries
		WHERE reference = $1
		ORDER BY amount ASC`, reference)
	if err != nil {
		return nil, fmt.Errorf("fetch entries for reference %s: %w", reference, err)
	}
	return scanEntries(rows)
}

// History returns an account's entries in reverse-chronological order.
func (l *LedgerLog) History(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+ledgerEntryColumns+`
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch history for account %s: %w", accountID, err)
	}
	return scanEntries(rows)
}

// HasReversalTx reports whether compensating entries already exist for a
// reference.
func (l *LedgerLog) HasReversalTx(tx *sql.Tx, reference string) (bool, error) {
	var exists bool
	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM ledger_entries WHERE reversal_of = $1
		)`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reversal for reference %s: %w", reference, err)
	}
	return exists, nil
}

// IsDuplicateEntry reports whether an insert failed on the
// (reference, account_id) unique index.
func IsDuplicateEntry(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		var counterparty, reversalOf sql.NullString
		var metadata []byte
		err := rows.Scan(&entry.ID, &entry.Reference, &entry.Kind, &entry.AccountID,
			&counterparty, &entry.Amount, &entry.FeeAmount, &entry.BalanceAfter,
			&entry.Status, &reversalOf, &metadata, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entry.CounterpartyAccountID = counterparty.String
		entry.ReversalOf = reversalOf.String
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
