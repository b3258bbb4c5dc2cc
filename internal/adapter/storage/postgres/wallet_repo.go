package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ludus-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, currency, balance, status, settings, total_deposited, total_spent, total_refunded, total_transactions, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. The user_id uniqueness constraint makes
// this idempotent: a concurrent or repeated create for the same user is
// a no-op.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	settings, err := json.Marshal(w.Settings)
	if err != nil {
		return fmt.Errorf("marshal wallet settings: %w", err)
	}

	query := `INSERT INTO wallets (id, user_id, currency, balance, status, settings,
		total_deposited, total_spent, total_refunded, total_transactions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO NOTHING`

	_, err = r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.Currency, w.Balance, w.Status, settings,
		w.Stats.TotalDeposited, w.Stats.TotalSpent, w.Stats.TotalRefunded,
		w.Stats.TotalTransactions, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by its owner (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE user_id = $1`, walletColumns)
	return scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// GetByUserIDForUpdate fetches a wallet by owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE user_id = $1 FOR UPDATE`, walletColumns)
	return scanWallet(tx.QueryRow(ctx, query, userID))
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallets WHERE id = $1 FOR UPDATE`, walletColumns)
	return scanWallet(tx.QueryRow(ctx, query, id))
}

// UpdateBalance writes the authoritative balance and the denormalized
// stats in a single statement within a transaction, so the balance, the
// log entry, and the stats commit or roll back together.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
	query := `UPDATE wallets SET balance = $1, total_deposited = $2, total_spent = $3,
		total_refunded = $4, total_transactions = $5, updated_at = $6 WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		balance, stats.TotalDeposited, stats.TotalSpent, stats.TotalRefunded,
		stats.TotalTransactions, time.Now().UTC(), walletID,
	)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// UpdateSettings stores the opaque settings blob for a user's wallet.
func (r *WalletRepo) UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.WalletSettings) error {
	blob, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal wallet settings: %w", err)
	}

	query := `UPDATE wallets SET settings = $1, updated_at = $2 WHERE user_id = $3`
	tag, err := r.pool.Exec(ctx, query, blob, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("update wallet settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found for user: %s", userID)
	}
	return nil
}

// scanWallet scans a single row into a Wallet.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var settings []byte
	err := row.Scan(
		&w.ID, &w.UserID, &w.Currency, &w.Balance, &w.Status, &settings,
		&w.Stats.TotalDeposited, &w.Stats.TotalSpent, &w.Stats.TotalRefunded,
		&w.Stats.TotalTransactions, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &w.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal wallet settings: %w", err)
		}
	}
	return w, nil
}
