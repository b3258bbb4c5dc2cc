package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, wallet_id, type, direction, amount, description, reference, booking_id, status, balance_after, metadata, created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new ledger entry within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO wallet_transactions (id, wallet_id, type, direction, amount, description,
		reference, booking_id, status, balance_after, metadata, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Direction, t.Amount, t.Description,
		t.Reference, t.BookingID, t.Status, t.BalanceAfter, metadata,
		t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference fetches a ledger entry by its external reference
// (gateway payment id, withdrawal reference).
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE reference = $1`, transactionColumns)
	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByReferenceForUpdate fetches a ledger entry by reference with
// pessimistic locking. This MUST be called within a transaction; it
// serializes duplicate confirmation callbacks for the same reference.
func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE reference = $1 FOR UPDATE`, transactionColumns)
	return scanTransaction(tx.QueryRow(ctx, query, reference))
}

// UpdateStatus moves a pending entry to a terminal status within a
// database transaction, recording when it settled and the balance
// snapshot after settlement.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, balanceAfter decimal.Decimal) error {
	query := `UPDATE wallet_transactions SET status = $1, balance_after = $2, processed_at = $3
		WHERE id = $4 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query, status, balanceAfter, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending transaction not found: %s", id)
	}
	return nil
}

// SumPendingDebits totals the reserved amount of debits awaiting
// settlement for a wallet.
func (r *TransactionRepo) SumPendingDebits(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'pending' AND direction = 'debit'`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum pending debits: %w", err)
	}
	return sum, nil
}

// List fetches ledger entries with filtering and pagination,
// most-recent-first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("wallet_id = $%d", argIdx))
	args = append(args, params.WalletID)
	argIdx++

	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *params.Type)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM wallet_transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM wallet_transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetMonthlyStats aggregates completed transactions per calendar month
// for the trailing window.
func (r *TransactionRepo) GetMonthlyStats(ctx context.Context, walletID uuid.UUID, months int) ([]ports.MonthlyStats, error) {
	query := `SELECT
		to_char(date_trunc('month', processed_at), 'YYYY-MM') AS month,
		COALESCE(SUM(amount) FILTER (WHERE type = 'deposit'), 0) AS deposited,
		COALESCE(SUM(amount) FILTER (WHERE type = 'payment'), 0) AS spent,
		COALESCE(SUM(amount) FILTER (WHERE type = 'refund'), 0) AS refunded,
		COUNT(*) AS transactions
		FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'completed'
		AND processed_at >= date_trunc('month', now()) - make_interval(months => $2)
		GROUP BY 1 ORDER BY 1 DESC`

	rows, err := r.pool.Query(ctx, query, walletID, months)
	if err != nil {
		return nil, fmt.Errorf("monthly stats: %w", err)
	}
	defer rows.Close()

	var stats []ports.MonthlyStats
	for rows.Next() {
		var m ports.MonthlyStats
		if err := rows.Scan(&m.Month, &m.Deposited, &m.Spent, &m.Refunded, &m.Transactions); err != nil {
			return nil, fmt.Errorf("scan monthly stats row: %w", err)
		}
		stats = append(stats, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monthly stats rows: %w", err)
	}
	return stats, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction metadata: %w", err)
	}
	return blob, nil
}

// scanTransaction scans a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t, err := scanTransactionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var metadata []byte
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &t.Direction, &t.Amount, &t.Description,
		&t.Reference, &t.BookingID, &t.Status, &t.BalanceAfter, &metadata,
		&t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal transaction metadata: %w", err)
		}
	}
	return t, nil
}
