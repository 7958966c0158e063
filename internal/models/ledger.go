package models

import (
	"time"
)

// Entry kinds. Each recorded row carries exactly one of these; a two-sided
// operation (transfer, purchase) produces one row per affected account plus
// an optional fee row, all sharing the same reference.
const (
	EntryEarn        = "earn"
	EntrySpend       = "spend"
	EntryTransferOut = "transfer_out"
	EntryTransferIn  = "transfer_in"
	EntryPurchase    = "purchase"
	EntrySale        = "sale"
	EntryWithdrawal  = "withdrawal"
	EntryDeposit     = "deposit"
	EntryAdminCredit = "admin_credit"
	EntryAdminDebit  = "admin_debit"
	EntryFee         = "fee"
)

const (
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
	EntryStatusReversed  = "reversed"
)

// Operation kinds accepted by the transfer engine. Single-sided operations
// record one entry of the same name; transfer and purchase fan out into
// their per-account entry kinds.
const (
	OpEarn        = "earn"
	OpSpend       = "spend"
	OpTransfer    = "transfer"
	OpPurchase    = "purchase"
	OpWithdrawal  = "withdrawal"
	OpDeposit     = "deposit"
	OpAdminCredit = "admin_credit"
	OpAdminDebit  = "admin_debit"
)

// LedgerEntry is one immutable row of the append-only ledger. Amount is
// signed relative to AccountID: positive credits, negative debits.
// BalanceAfter snapshots the account balance immediately after this entry
// applied so statements can be served without replay.
type LedgerEntry struct {
	ID                    string            `json:"id" db:"id"`
	Reference             string            `json:"reference" db:"reference"`
	Kind                  string            `json:"kind" db:"kind"`
	AccountID             string            `json:"account_id" db:"account_id"`
	CounterpartyAccountID string            `json:"counterparty_account_id,omitempty" db:"counterparty_account_id"`
	Amount                int64             `json:"amount" db:"amount"`
	FeeAmount             int64             `json:"fee_amount" db:"fee_amount"`
	BalanceAfter          int64             `json:"balance_after" db:"balance_after"`
	Status                string            `json:"status" db:"status"`
	ReversalOf            string            `json:"reversal_of,omitempty" db:"reversal_of"`
	Metadata              map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
}
