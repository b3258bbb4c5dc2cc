package dto

import (
	"time"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"

	"github.com/shopspring/decimal"
)

// DepositRequest is the request body for starting a wallet deposit.
type DepositRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"payment_method_id" binding:"required,max=100,safe_id"`
	Description     string          `json:"description,omitempty" binding:"max=255"`
}

// ConfirmDepositRequest is the gateway webhook body settling a deposit.
type ConfirmDepositRequest struct {
	PaymentID string `json:"payment_id" binding:"required,max=100,safe_id"`
	Status    string `json:"status" binding:"required,max=30"`
}

// WithdrawRequest is the request body for requesting a withdrawal.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty" binding:"max=255"`
}

// ConfirmWithdrawalRequest is the payout callback body settling a withdrawal.
type ConfirmWithdrawalRequest struct {
	Reference string `json:"reference" binding:"required,max=100,safe_id"`
	Status    string `json:"status" binding:"required,max=30"`
}

// PayRequest is the request body for paying a booking from the wallet.
type PayRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	BookingID   string          `json:"booking_id" binding:"required,max=100,safe_id"`
	Description string          `json:"description,omitempty" binding:"max=255"`
}

// RefundRequest is the request body for crediting a booking refund.
type RefundRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	BookingID   string          `json:"booking_id" binding:"required,max=100,safe_id"`
	Description string          `json:"description,omitempty" binding:"max=255"`
}

// BonusRequest is the admin request body for granting a bonus credit.
type BonusRequest struct {
	UserID      string          `json:"user_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty" binding:"max=255"`
}

// AdjustRequest is the admin request body for a manual balance correction.
type AdjustRequest struct {
	UserID      string          `json:"user_id" binding:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction" binding:"required,oneof=credit debit"`
	Description string          `json:"description" binding:"required,max=255"`
}

// SettingsRequest is the request body for updating wallet preferences.
type SettingsRequest struct {
	AutoTopupEnabled   bool            `json:"auto_topup_enabled"`
	AutoTopupThreshold decimal.Decimal `json:"auto_topup_threshold"`
	AutoTopupAmount    decimal.Decimal `json:"auto_topup_amount"`
	NotifyOnDeposit    bool            `json:"notify_on_deposit"`
	NotifyOnLowBalance bool            `json:"notify_on_low_balance"`
}

// TransactionResponse is a ledger entry as serialized to clients.
type TransactionResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Direction    string          `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference,omitempty"`
	BookingID    *string         `json:"booking_id,omitempty"`
	Status       string          `json:"status"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    string          `json:"created_at"`
	ProcessedAt  *string         `json:"processed_at,omitempty"`
}

// WalletResponse is the wallet aggregate as serialized to clients.
type WalletResponse struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Currency  string                `json:"currency"`
	Balance   decimal.Decimal       `json:"balance"`
	Status    string                `json:"status"`
	Settings  domain.WalletSettings `json:"settings"`
	Stats     domain.WalletStats    `json:"stats"`
	CreatedAt string                `json:"created_at"`
}

// WalletViewResponse is the GET /wallet payload.
type WalletViewResponse struct {
	Wallet              WalletResponse        `json:"wallet"`
	RecentTransactions  []TransactionResponse `json:"recent_transactions"`
	HasMoreTransactions bool                  `json:"has_more_transactions"`
}

// DepositResponse is the POST /wallet/deposit payload.
type DepositResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	PaymentID   string              `json:"payment_id"`
	RedirectURL string              `json:"redirect_url,omitempty"`
}

// MutationResponse is the payload for operations that settle immediately.
type MutationResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// TransactionListResponse wraps the paginated transaction history.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

// StatsResponse is the GET /wallet/stats payload.
type StatsResponse struct {
	Overall          domain.WalletStats   `json:"overall_stats"`
	Monthly          []ports.MonthlyStats `json:"monthly_stats"`
	CurrentBalance   decimal.Decimal      `json:"current_balance"`
	AvailableBalance decimal.Decimal      `json:"available_balance"`
	Status           string               `json:"status"`
}

// FromTransaction converts a domain transaction to its response form.
func FromTransaction(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:           t.ID.String(),
		Type:         string(t.Type),
		Direction:    string(t.Direction),
		Amount:       t.Amount,
		Description:  t.Description,
		Reference:    t.Reference,
		BookingID:    t.BookingID,
		Status:       string(t.Status),
		BalanceAfter: t.BalanceAfter,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
	}
	if t.ProcessedAt != nil {
		s := t.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

// FromWallet converts a domain wallet to its response form.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID.String(),
		Currency:  w.Currency,
		Balance:   w.Balance,
		Status:    string(w.Status),
		Settings:  w.Settings,
		Stats:     w.Stats,
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
	}
}

// FromTransactions converts a slice of domain transactions.
func FromTransactions(txns []domain.Transaction) []TransactionResponse {
	items := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, FromTransaction(&txns[i]))
	}
	return items
}
