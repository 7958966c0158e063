package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/audit"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/models"
)

// TransferEngine executes one logical value movement as a single atomic
// unit: all balance deltas for a reference land together with their ledger
// entries, or none of them do. Concurrent writers race on account versions;
// the loser retries from a fresh read.
type TransferEngine struct {
	db       *sql.DB
	accounts *AccountStore
	ledger   *LedgerLog
	fees     *FeePolicy
	audit    *audit.AuditLogger
	events   *EventPublisher
	cfg      *config.LedgerConfig
}

func NewTransferEngine(db *sql.DB, accounts *AccountStore, ledger *LedgerLog, fees *FeePolicy, events *EventPublisher, cfg *config.LedgerConfig) *TransferEngine {
	return &TransferEngine{
		db:       db,
		accounts: accounts,
		ledger:   ledger,
		fees:     fees,
		audit:    audit.NewAuditLogger(),
		events:   events,
		cfg:      cfg,
	}
}

// ExecuteRequest describes one value movement. Reference is the caller's
// idempotency key; submitting the same reference twice returns the recorded
// outcome without re-applying.
type ExecuteRequest struct {
	Reference     string
	Op            string
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Category      string
	Metadata      map[string]string
}

// reversalSuffix marks the reference a reversal records its compensating
// entries under. Caller references must not end in it, otherwise a submitted
// "x:rev" would collide with a later reversal of "x" on the unique index.
const reversalSuffix = ":rev"

// leg is one account delta of a planned operation.
type leg struct {
	accountID    string
	delta        int64
	kind         string
	counterparty string
	fee          int64
}

// Execute applies one value movement identified by its reference. The
// returned replayed flag reports that the reference had already been
// processed and the recorded outcome was returned unchanged.
func (e *TransferEngine) Execute(ctx context.Context, req *ExecuteRequest) ([]models.LedgerEntry, bool, error) {
	if err := e.validate(req); err != nil {
		return nil, false, err
	}

	// Fast path: the reference was already processed.
	existing, err := e.ledger.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(existing) > 0 {
		e.audit.LogReplay(req.Reference, req.FromAccountID)
		return existing, true, nil
	}

	legs, fee, err := e.plan(req)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		entries, replayed, err := e.apply(ctx, req.Reference, legs, req.Metadata, models.EntryStatusCompleted, "")
		if errors.Is(err, ErrVersionConflict) {
			log.Printf("[LEDGER] version conflict on %s, attempt %d", req.Reference, attempt+1)
			if err := sleepBackoff(ctx, e.cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
				return nil, false, err
			}
			continue
		}
		if IsDuplicateEntry(err) {
			// A concurrent caller committed the same reference first.
			e.audit.LogReplay(req.Reference, req.FromAccountID)
			replay, replayErr := e.ledger.GetByReference(ctx, req.Reference)
			if replayErr != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, replayErr)
			}
			return replay, true, nil
		}
		if err != nil {
			e.audit.LogError(req.Reference, req.FromAccountID, err)
			return nil, false, err
		}
		if replayed {
			e.audit.LogReplay(req.Reference, req.FromAccountID)
			return entries, true, nil
		}

		e.audit.LogOperation(req.Reference, req.Op, req.FromAccountID, req.ToAccountID, req.Amount, fee)
		e.events.PublishCompleted(ctx, req.Reference, req.Op, entries)
		return entries, false, nil
	}

	e.audit.LogError(req.Reference, req.FromAccountID, ErrConflict)
	return nil, false, ErrConflict
}

// Reverse appends compensating entries for a completed reference. History is
// never edited: the original rows stay as written and the reversal is a new
// set of rows under "<reference>:rev".
func (e *TransferEngine) Reverse(ctx context.Context, reference string) ([]models.LedgerEntry, error) {
	originals, err := e.ledger.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(originals) == 0 {
		return nil, ErrReferenceNotFound
	}
	for _, entry := range originals {
		if entry.ReversalOf != "" || entry.Status != models.EntryStatusCompleted {
			return nil, ErrNotReversible
		}
	}

	legs := make([]leg, 0, len(originals))
	for _, entry := range originals {
		legs = append(legs, leg{
			accountID:    entry.AccountID,
			delta:        -entry.Amount,
			kind:         entry.Kind,
			counterparty: entry.CounterpartyAccountID,
			fee:          entry.FeeAmount,
		})
	}

	reversalRef := reference + reversalSuffix
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		reversed, err := e.checkAndReverse(ctx, reference, reversalRef, legs)
		if errors.Is(err, ErrVersionConflict) {
			log.Printf("[LEDGER] version conflict reversing %s, attempt %d", reference, attempt+1)
			if err := sleepBackoff(ctx, e.cfg.RetryBackoff*time.Duration(attempt+1)); err != nil {
				return nil, err
			}
			continue
		}
		if IsDuplicateEntry(err) {
			return nil, ErrAlreadyReversed
		}
		if err != nil {
			e.audit.LogError(reference, "", err)
			return nil, err
		}

		e.audit.LogReversal(reference, reversalRef)
		e.events.PublishCompleted(ctx, reversalRef, "reversal", reversed)
		return reversed, nil
	}

	return nil, ErrConflict
}

func (e *TransferEngine) checkAndReverse(ctx context.Context, reference, reversalRef string, legs []leg) ([]models.LedgerEntry, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	reversed, err := e.ledger.HasReversalTx(tx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if reversed {
		return nil, ErrAlreadyReversed
	}

	entries, err := e.applyTx(tx, reversalRef, legs, nil, models.EntryStatusReversed, reference)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// apply runs one attempt: a fresh read of every touched account, a
// sufficiency check before any delta, version-guarded updates, and the
// entry append, all inside one database transaction.
func (e *TransferEngine) apply(ctx context.Context, reference string, legs []leg, metadata map[string]string, status, reversalOf string) ([]models.LedgerEntry, bool, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	// A duplicate that committed between the fast path and here is a replay,
	// not a failure.
	existing, err := e.ledger.GetByReferenceTx(tx, reference)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(existing) > 0 {
		return existing, true, nil
	}

	entries, err := e.applyTx(tx, reference, legs, metadata, status, reversalOf)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, false, nil
}

func (e *TransferEngine) applyTx(tx *sql.Tx, reference string, legs []leg, metadata map[string]string, status, reversalOf string) ([]models.LedgerEntry, error) {
	// Read every account once, in a consistent order to keep row lock
	// acquisition deadlock-free.
	accountIDs := make([]string, 0, len(legs))
	seen := map[string]bool{}
	for _, l := range legs {
		if !seen[l.accountID] {
			seen[l.accountID] = true
			accountIDs = append(accountIDs, l.accountID)
		}
	}
	sort.Strings(accountIDs)

	accounts := map[string]*models.Account{}
	for _, id := range accountIDs {
		account, err := e.accounts.GetTx(tx, id)
		if err != nil {
			return nil, err
		}
		if account.Status != models.AccountStatusActive {
			return nil, ErrAccountClosed
		}
		accounts[id] = account
	}

	// Validate sufficiency on every account before applying anything, so a
	// failing leg never leaves a partial application behind.
	projected := map[string]int64{}
	for id, account := range accounts {
		projected[id] = account.Balance
	}
	for _, l := range legs {
		projected[l.accountID] += l.delta
		if projected[l.accountID] < 0 {
			return nil, ErrInsufficientFunds
		}
	}

	now := time.Now()
	entries := make([]*models.LedgerEntry, 0, len(legs))
	for _, id := range accountIDs {
		for _, l := range legs {
			if l.accountID != id {
				continue
			}
			account := accounts[id]
			updated, err := e.accounts.ApplyDeltaTx(tx, id, l.delta, account.Version)
			if err != nil {
				return nil, err
			}
			accounts[id] = updated

			entries = append(entries, &models.LedgerEntry{
				ID:                    uuid.New().String(),
				Reference:             reference,
				Kind:                  l.kind,
				AccountID:             id,
				CounterpartyAccountID: l.counterparty,
				Amount:                l.delta,
				FeeAmount:             l.fee,
				BalanceAfter:          updated.Balance,
				Status:                status,
				ReversalOf:            reversalOf,
				Metadata:              metadata,
				CreatedAt:             now,
			})
		}
	}

	if err := e.ledger.AppendTx(tx, entries); err != nil {
		return nil, err
	}

	result := make([]models.LedgerEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, *entry)
	}
	return result, nil
}

// plan expands an operation into its account legs and prices the fee.
func (e *TransferEngine) plan(req *ExecuteRequest) ([]leg, int64, error) {
	switch req.Op {
	case models.OpEarn, models.OpDeposit, models.OpAdminCredit:
		return []leg{{accountID: req.ToAccountID, delta: req.Amount, kind: req.Op}}, 0, nil

	case models.OpSpend, models.OpAdminDebit:
		return []leg{{accountID: req.FromAccountID, delta: -req.Amount, kind: req.Op}}, 0, nil

	case models.OpWithdrawal:
		fee := e.fees.Fee(models.EntryWithdrawal, req.Amount)
		legs := []leg{{accountID: req.FromAccountID, delta: -req.Amount, kind: models.EntryWithdrawal, fee: fee}}
		if fee > 0 {
			legs = append(legs, leg{
				accountID:    e.cfg.SystemFeeAccount,
				delta:        fee,
				kind:         models.EntryFee,
				counterparty: req.FromAccountID,
			})
		}
		return legs, fee, nil

	case models.OpTransfer:
		fee := e.fees.Fee(models.EntryTransferOut, req.Amount)
		return e.twoSidedLegs(req, models.EntryTransferOut, models.EntryTransferIn, fee), fee, nil

	case models.OpPurchase:
		fee := e.fees.PurchaseFee(req.Category, req.Amount)
		return e.twoSidedLegs(req, models.EntryPurchase, models.EntrySale, fee), fee, nil

	default:
		return nil, 0, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Op)
	}
}

// twoSidedLegs debits the full amount, credits the net, and books the fee to
// the platform fee account. The three deltas sum to zero.
func (e *TransferEngine) twoSidedLegs(req *ExecuteRequest, debitKind, creditKind string, fee int64) []leg {
	net := req.Amount - fee
	legs := []leg{
		{accountID: req.FromAccountID, delta: -req.Amount, kind: debitKind, counterparty: req.ToAccountID, fee: fee},
		{accountID: req.ToAccountID, delta: net, kind: creditKind, counterparty: req.FromAccountID, fee: fee},
	}
	if fee > 0 {
		legs = append(legs, leg{
			accountID:    e.cfg.SystemFeeAccount,
			delta:        fee,
			kind:         models.EntryFee,
			counterparty: req.FromAccountID,
		})
	}
	return legs
}

// sleepBackoff waits out one retry delay, returning early if the caller is
// gone.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *TransferEngine) validate(req *ExecuteRequest) error {
	if req.Reference == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	if strings.HasSuffix(req.Reference, reversalSuffix) {
		return fmt.Errorf("%w: reference suffix %q is reserved for reversals", ErrInvalidRequest, reversalSuffix)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	switch req.Op {
	case models.OpEarn, models.OpDeposit, models.OpAdminCredit:
		if req.ToAccountID == "" {
			return fmt.Errorf("%w: destination account is required", ErrInvalidRequest)
		}
	case models.OpSpend, models.OpAdminDebit, models.OpWithdrawal:
		if req.FromAccountID == "" {
			return fmt.Errorf("%w: source account is required", ErrInvalidRequest)
		}
	case models.OpTransfer, models.OpPurchase:
		if req.FromAccountID == "" || req.ToAccountID == "" {
			return fmt.Errorf("%w: both accounts are required", ErrInvalidRequest)
		}
		if req.FromAccountID == req.ToAccountID {
			return fmt.Errorf("%w: cannot move value to the same account", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Op)
	}
	return nil
}
