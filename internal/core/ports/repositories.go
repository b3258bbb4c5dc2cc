package ports

import (
	"context"
	"time"

	"ludus-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking: the wallet row is the consistency boundary for a
// user's whole ledger.
type WalletRepository interface {
	// Create inserts a wallet; it is a no-op if the user already has one
	// (lazy idempotent create).
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// UpdateBalance writes the new authoritative balance and the
	// denormalized stats in one statement, within a transaction.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error
	UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.WalletSettings) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	// UpdateStatus performs the only mutation an entry ever sees: the
	// pending -> terminal transition, stamping processed_at and the
	// post-settlement balance snapshot.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, balanceAfter decimal.Decimal) error
	// SumPendingDebits returns the total amount reserved by debits
	// awaiting settlement (available balance = balance - this sum).
	SumPendingDebits(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetMonthlyStats(ctx context.Context, walletID uuid.UUID, months int) ([]MonthlyStats, error)
}

// TransactionListParams holds filter + pagination for listing ledger entries.
type TransactionListParams struct {
	WalletID uuid.UUID
	Type     *domain.TransactionType
	Status   *domain.TransactionStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// MonthlyStats aggregates completed transactions for one calendar month.
type MonthlyStats struct {
	Month        string          `json:"month"` // YYYY-MM
	Deposited    decimal.Decimal `json:"deposited"`
	Spent        decimal.Decimal `json:"spent"`
	Refunded     decimal.Decimal `json:"refunded"`
	Transactions int64           `json:"transactions"`
}

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
