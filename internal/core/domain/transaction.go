package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance-affecting event.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// TransactionDirection tells which way a transaction moves the balance.
// It is stored explicitly: most types imply it, but an adjustment requires
// the caller to state it.
type TransactionDirection string

const (
	DirectionCredit TransactionDirection = "credit"
	DirectionDebit  TransactionDirection = "debit"
)

// Direction returns the balance effect implied by the type. ok is false
// for adjustments, whose direction must be supplied by the caller.
func (t TransactionType) Direction() (TransactionDirection, bool) {
	switch t {
	case TransactionTypeDeposit, TransactionTypeRefund, TransactionTypeBonus:
		return DirectionCredit, true
	case TransactionTypeWithdrawal, TransactionTypePayment:
		return DirectionDebit, true
	default:
		return "", false
	}
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is an append-only ledger entry. Once it reaches a terminal
// status it is never mutated again; the only permitted update is the
// pending -> terminal transition performed by a confirmation step.
type Transaction struct {
	ID           uuid.UUID             `json:"id"`
	WalletID     uuid.UUID             `json:"wallet_id"`
	Type         TransactionType       `json:"type"`
	Direction    TransactionDirection  `json:"direction"`
	Amount       decimal.Decimal       `json:"amount"` // Always positive; direction carries the sign
	Description  string                `json:"description"`
	Reference    string                `json:"reference,omitempty"` // Gateway payment id / admin ref
	BookingID    *string               `json:"booking_id,omitempty"`
	Status       TransactionStatus     `json:"status"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	ProcessedAt  *time.Time            `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled
}

// IsPendingDebit reports whether the transaction reserves spendable
// balance: a debit awaiting settlement reduces availableBalance while
// leaving the authoritative balance untouched.
func (t *Transaction) IsPendingDebit() bool {
	return t.Status == TransactionStatusPending && t.Direction == DirectionDebit
}
