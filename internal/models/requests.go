package models

// CreditRequest credits a single account (ad views, reading rewards,
// refunds, admin top-ups). Reference is the caller's idempotency key and is
// required on every mutating call.
type CreditRequest struct {
	AccountID string            `json:"accountId" validate:"required,max=64"`
	Amount    int64             `json:"amount" validate:"required,gt=0"`
	Kind      string            `json:"kind" validate:"required,oneof=earn deposit admin_credit"`
	Reference string            `json:"reference" validate:"required,max=128"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DebitRequest debits a single account, subject to insufficient funds.
type DebitRequest struct {
	AccountID string            `json:"accountId" validate:"required,max=64"`
	Amount    int64             `json:"amount" validate:"required,gt=0"`
	Kind      string            `json:"kind" validate:"required,oneof=spend admin_debit"`
	Reference string            `json:"reference" validate:"required,max=128"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TransferRequest moves value between two user accounts with the configured
// transfer fee taken from the credited side.
type TransferRequest struct {
	FromAccountID string            `json:"fromAccountId" validate:"required,max=64"`
	ToAccountID   string            `json:"toAccountId" validate:"required,max=64"`
	Amount        int64             `json:"amount" validate:"required,gt=0"`
	Reference     string            `json:"reference" validate:"required,max=128"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PurchaseRequest settles a marketplace purchase; the category selects the
// configured marketplace commission rate.
type PurchaseRequest struct {
	BuyerAccountID  string            `json:"buyerAccountId" validate:"required,max=64"`
	SellerAccountID string            `json:"sellerAccountId" validate:"required,max=64"`
	Amount          int64             `json:"amount" validate:"required,gt=0"`
	Category        string            `json:"category,omitempty" validate:"max=64"`
	Reference       string            `json:"reference" validate:"required,max=128"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// WithdrawRequest debits an account for a cash-out. The withdrawal fee is
// taken out of the requested amount; the payout net is amount minus fee.
type WithdrawRequest struct {
	AccountID string            `json:"accountId" validate:"required,max=64"`
	Amount    int64             `json:"amount" validate:"required,gt=0"`
	Reference string            `json:"reference" validate:"required,max=128"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ReverseRequest compensates a previously completed operation by reference.
type ReverseRequest struct {
	Reference string `json:"reference" validate:"required,max=128"`
}
