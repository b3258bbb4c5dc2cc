package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletStatus represents the administrative state of a wallet.
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusFrozen    WalletStatus = "frozen"
	WalletStatusSuspended WalletStatus = "suspended"
)

// WalletSettings is the user-configurable auto-top-up and notification
// policy. It is stored as opaque data; no enforcement happens in this
// service.
type WalletSettings struct {
	AutoTopupEnabled   bool            `json:"auto_topup_enabled"`
	AutoTopupThreshold decimal.Decimal `json:"auto_topup_threshold"`
	AutoTopupAmount    decimal.Decimal `json:"auto_topup_amount"`
	NotifyOnDeposit    bool            `json:"notify_on_deposit"`
	NotifyOnLowBalance bool            `json:"notify_on_low_balance"`
}

// DefaultWalletSettings returns the policy applied to newly created
// wallets: no auto-top-up, notifications on.
func DefaultWalletSettings() WalletSettings {
	return WalletSettings{
		AutoTopupEnabled:   false,
		AutoTopupThreshold: decimal.Zero,
		AutoTopupAmount:    decimal.Zero,
		NotifyOnDeposit:    true,
		NotifyOnLowBalance: true,
	}
}

// WalletStats holds denormalized running aggregates over the transaction
// log. Derivable by replaying completed transactions; kept on the wallet
// row for fast reads and updated in the same database transaction as the
// log entry.
type WalletStats struct {
	TotalDeposited    decimal.Decimal `json:"total_deposited"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	TotalRefunded     decimal.Decimal `json:"total_refunded"`
	TotalTransactions int64           `json:"total_transactions"`
}

// Wallet is the per-user ledger aggregate: authoritative balance, status,
// settings and stats. The wallet row is the unit of mutual exclusion —
// every balance mutation locks it before touching the transaction log.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Status    WalletStatus    `json:"status"`
	Settings  WalletSettings  `json:"settings"`
	Stats     WalletStats     `json:"stats"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewWallet creates a zero-balance active wallet for a user.
func NewWallet(userID uuid.UUID, currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		Status:    WalletStatusActive,
		Settings:  DefaultWalletSettings(),
		Stats: WalletStats{
			TotalDeposited: decimal.Zero,
			TotalSpent:     decimal.Zero,
			TotalRefunded:  decimal.Zero,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the wallet accepts all transaction kinds.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// AcceptsCredits reports whether credit transactions may still be applied.
// A frozen wallet keeps accepting credits (refunds, deposit confirmations
// for charges already in flight); a suspended wallet accepts nothing.
func (w *Wallet) AcceptsCredits() bool {
	return w.Status == WalletStatusActive || w.Status == WalletStatusFrozen
}
