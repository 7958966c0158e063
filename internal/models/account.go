package models

import (
	"time"
)

const (
	AccountStatusActive = "ACTIVE"
	AccountStatusClosed = "CLOSED"
)

// Account holds a user balance in the smallest currency unit. Balances are
// only ever mutated through the transfer engine; Version is the optimistic
// concurrency token incremented on every successful mutation.
type Account struct {
	AccountID string    `json:"account_id" db:"account_id"`
	Balance   int64     `json:"balance" db:"balance"` // minor units, never negative
	Version   int64     `json:"version" db:"version"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
