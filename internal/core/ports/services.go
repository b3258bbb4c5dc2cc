package ports

import (
	"context"
	"time"

	"ludus-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletLocker is the advisory, TTL-bounded wallet lock. It is a
// cooperative hint used to fast-fail concurrent mutations of the same
// wallet; real exclusivity comes from the storage engine's row lock.
// An expired lock is indistinguishable from no lock.
type WalletLocker interface {
	// Acquire takes the lock if free. Returns false if currently held.
	Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID uuid.UUID) error
	IsLocked(ctx context.Context, userID uuid.UUID) (bool, error)
}

// TokenService validates session tokens issued by the identity layer.
type TokenService interface {
	Generate(userID uuid.UUID, expiry time.Duration) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed session claims. The userId is trusted as-is.
type TokenClaims struct {
	UserID uuid.UUID
}

// AuditService records wallet mutations for traceability.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// LedgerService owns all balance mutation. Every operation that moves
// money funnels through a single internal entrypoint that runs inside a
// storage-level transaction with the wallet row locked.
type LedgerService interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Deposit(ctx context.Context, req DepositRequest) (*domain.Transaction, *Charge, error)
	ConfirmDeposit(ctx context.Context, paymentID string, status string) (*domain.Transaction, *domain.Wallet, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*domain.Transaction, *domain.Wallet, error)
	ConfirmWithdrawal(ctx context.Context, reference string, status string) (*domain.Transaction, *domain.Wallet, error)
	Pay(ctx context.Context, req PaymentRequest) (*domain.Transaction, *domain.Wallet, error)
	Refund(ctx context.Context, req RefundRequest) (*domain.Transaction, *domain.Wallet, error)
	GrantBonus(ctx context.Context, req BonusRequest) (*domain.Transaction, *domain.Wallet, error)
	Adjust(ctx context.Context, req AdjustmentRequest) (*domain.Transaction, *domain.Wallet, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.WalletSettings) error
}

// DepositRequest holds validated input for starting a deposit.
type DepositRequest struct {
	UserID          uuid.UUID
	Amount          decimal.Decimal
	PaymentMethodID string
	Description     string
}

// WithdrawRequest holds validated input for requesting a withdrawal.
type WithdrawRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
}

// PaymentRequest holds validated input for paying a booking from the wallet.
type PaymentRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	BookingID   string
	Description string
}

// RefundRequest holds validated input for crediting a booking refund.
type RefundRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	BookingID   string
	Description string
}

// BonusRequest holds validated input for an admin-granted bonus credit.
type BonusRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	Reference   string // Admin actor id
}

// AdjustmentRequest holds validated input for a manual balance adjustment.
// Direction must be supplied explicitly; it is never inferred.
type AdjustmentRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Direction   domain.TransactionDirection
	Description string
	Reference   string // Admin actor id
}

// ReportingService defines the read-only query surface. Safe for
// unlimited concurrent callers; never mutates.
type ReportingService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*WalletView, error)
	GetTransactionHistory(ctx context.Context, userID uuid.UUID, params HistoryParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*WalletStatsReport, error)
}

// WalletView is the wallet as serialized to clients: the aggregate plus
// its most recent entries. Full history requires the history query.
type WalletView struct {
	Wallet              *domain.Wallet       `json:"wallet"`
	RecentTransactions  []domain.Transaction `json:"recent_transactions"`
	HasMoreTransactions bool                 `json:"has_more_transactions"`
}

// History paging bounds shared by the HTTP layer and the reporting
// service so the envelope always echoes the window actually queried.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// HistoryParams are the caller-facing history filters.
type HistoryParams struct {
	Type   *domain.TransactionType
	Status *domain.TransactionStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// Normalized returns the params with paging defaults applied: page
// starts at 1 and the window falls back to DefaultHistoryLimit, capped
// at MaxHistoryLimit.
func (p HistoryParams) Normalized() HistoryParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultHistoryLimit
	}
	if p.Limit > MaxHistoryLimit {
		p.Limit = MaxHistoryLimit
	}
	return p
}

// WalletStatsReport is the stats endpoint payload.
type WalletStatsReport struct {
	Overall          domain.WalletStats  `json:"overall_stats"`
	Monthly          []MonthlyStats      `json:"monthly_stats"`
	CurrentBalance   decimal.Decimal     `json:"current_balance"`
	AvailableBalance decimal.Decimal     `json:"available_balance"`
	Status           domain.WalletStatus `json:"status"`
}
