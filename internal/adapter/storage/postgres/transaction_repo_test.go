package postgres

import (
	"context"
	"testing"
	"time"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(walletID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:           uuid.New(),
		WalletID:     walletID,
		Type:         domain.TransactionTypeDeposit,
		Direction:    domain.DirectionCredit,
		Amount:       decimal.NewFromInt(100),
		Description:  "Wallet top-up",
		Reference:    "pay_" + uuid.NewString(),
		Status:       domain.TransactionStatusPending,
		BalanceAfter: decimal.NewFromInt(150),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func transactionCols() []string {
	return []string{"id", "wallet_id", "type", "direction", "amount", "description",
		"reference", "booking_id", "status", "balance_after", "metadata",
		"created_at", "processed_at"}
}

func transactionRow(txn *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(transactionCols()).AddRow(
		txn.ID, txn.WalletID, txn.Type, txn.Direction, txn.Amount, txn.Description,
		txn.Reference, txn.BookingID, txn.Status, txn.BalanceAfter, []byte(nil),
		txn.CreatedAt, txn.ProcessedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(txn.ID, txn.WalletID, txn.Type, txn.Direction, txn.Amount, txn.Description,
			txn.Reference, txn.BookingID, txn.Status, txn.BalanceAfter, []byte(nil),
			txn.CreatedAt, txn.ProcessedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE reference").
		WithArgs(txn.Reference).
		WillReturnRows(transactionRow(txn))

	result, err := repo.GetByReference(context.Background(), txn.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, domain.TransactionStatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE reference").
		WithArgs("pay_missing").
		WillReturnRows(pgxmock.NewRows(transactionCols()))

	result, err := repo.GetByReference(context.Background(), "pay_missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReferenceForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE reference .+ FOR UPDATE").
		WithArgs(txn.Reference).
		WillReturnRows(transactionRow(txn))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByReferenceForUpdate(context.Background(), tx, txn.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txnID := uuid.New()
	balanceAfter := decimal.NewFromInt(250)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_transactions SET status").
		WithArgs(domain.TransactionStatusCompleted, balanceAfter, pgxmock.AnyArg(), txnID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, txnID, domain.TransactionStatusCompleted, balanceAfter)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txnID := uuid.New()

	// The WHERE status = 'pending' guard matches no rows once the entry
	// has settled.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_transactions SET status").
		WithArgs(domain.TransactionStatusCompleted, decimal.NewFromInt(250), pgxmock.AnyArg(), txnID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, txnID, domain.TransactionStatusCompleted, decimal.NewFromInt(250))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pending transaction not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SumPendingDebits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery("SELECT COALESCE.+ FROM wallet_transactions").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(decimal.NewFromInt(75)))

	sum, err := repo.SumPendingDebits(context.Background(), walletID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(75)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	txn := newTestTransaction(walletID)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM wallet_transactions .+ ORDER BY created_at DESC").
		WithArgs(walletID, 20, 0).
		WillReturnRows(transactionRow(txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	txnType := domain.TransactionTypeDeposit
	status := domain.TransactionStatusCompleted

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(walletID, txnType, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ FROM wallet_transactions .+ ORDER BY created_at DESC").
		WithArgs(walletID, txnType, status, 10, 10).
		WillReturnRows(pgxmock.NewRows(transactionCols()))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		Type:     &txnType,
		Status:   &status,
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, txns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetMonthlyStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	rows := pgxmock.NewRows([]string{"month", "deposited", "spent", "refunded", "transactions"}).
		AddRow("2026-08", decimal.NewFromInt(500), decimal.NewFromInt(120), decimal.Zero, int64(7)).
		AddRow("2026-07", decimal.NewFromInt(300), decimal.NewFromInt(80), decimal.NewFromInt(40), int64(5))

	mock.ExpectQuery(`to_char\(date_trunc`).
		WithArgs(walletID, 6).
		WillReturnRows(rows)

	stats, err := repo.GetMonthlyStats(context.Background(), walletID, 6)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "2026-08", stats[0].Month)
	assert.True(t, stats[0].Deposited.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, int64(7), stats[0].Transactions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
