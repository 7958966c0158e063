package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/earnhub/backend/internal/models"
)

// AccountStore is the only writer of account balances. All mutation goes
// through ApplyDeltaTx's version check; no other component touches the
// balance column.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT account_id, balance, version, status, created_at, updated_at
		FROM accounts
		WHERE account_id = $1`, accountID))
}

// Create provisions an account with zero balance. It is idempotent: creating
// an account that already exists returns the existing row untouched.
func (s *AccountStore) Create(ctx context.Context, accountID string) (*models.Account, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, balance, version, status, created_at, updated_at)
		VALUES ($1, 0, 0, 'ACTIVE', NOW(), NOW())
		ON CONFLICT (account_id) DO NOTHING`, accountID)
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", accountID, err)
	}
	return s.Get(ctx, accountID)
}

// Close soft-closes an account. The row is kept forever because ledger
// entries reference it.
func (s *AccountStore) Close(ctx context.Context, accountID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = 'CLOSED', updated_at = NOW()
		WHERE account_id = $1 AND status = 'ACTIVE'`, accountID)
	if err != nil {
		return fmt.Errorf("close account %s: %w", accountID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		account, err := s.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == models.AccountStatusClosed {
			return nil
		}
		return ErrAccountNotFound
	}
	return nil
}

// GetTx reads an account inside the engine's transaction, capturing the
// version used for the later conditional update.
func (s *AccountStore) GetTx(tx *sql.Tx, accountID string) (*models.Account, error) {
	return scanAccount(tx.QueryRow(`
		SELECT account_id, balance, version, status, created_at, updated_at
		FROM accounts
		WHERE account_id = $1`, accountID))
}

// ApplyDeltaTx conditionally applies a balance delta: the update only lands
// if the stored version still equals expectedVersion and the resulting
// balance stays non-negative. A miss is diagnosed by re-reading the row so
// the caller can tell a stale version from insufficient funds.
func (s *AccountStore) ApplyDeltaTx(tx *sql.Tx, accountID string, delta, expectedVersion int64) (*models.Account, error) {
	account := &models.Account{AccountID: accountID}
	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE account_id = $2 AND version = $3 AND balance + $1 >= 0 AND status = 'ACTIVE'
		RETURNING balance, version, status, created_at, updated_at`,
		delta, accountID, expectedVersion).Scan(
		&account.Balance, &account.Version, &account.Status, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		current, readErr := s.GetTx(tx, accountID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status != models.AccountStatusActive {
			return nil, ErrAccountClosed
		}
		if current.Version != expectedVersion {
			return nil, ErrVersionConflict
		}
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("apply delta to account %s: %w", accountID, err)
	}
	return account, nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(&account.AccountID, &account.Balance, &account.Version,
		&account.Status, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}
	return &account, nil
}
