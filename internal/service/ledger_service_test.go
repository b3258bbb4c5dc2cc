package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ludus-wallet/config"
	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"
	"ludus-wallet/internal/core/ports/mocks"
	"ludus-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	locker     *mocks.MockWalletLocker
	gateway    *mocks.MockPaymentGateway
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func testRules() config.WalletConfig {
	return config.WalletConfig{
		Currency:    "SAR",
		LockTTL:     30 * time.Second,
		DepositMin:  10,
		DepositMax:  10000,
		WithdrawMin: 20,
	}
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		locker:     mocks.NewMockWalletLocker(ctrl),
		gateway:    mocks.NewMockPaymentGateway(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(
		d.walletRepo, d.txRepo, d.locker, d.gateway,
		d.transactor, testRules(), zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func activeWallet(userID uuid.UUID, balance int64) *domain.Wallet {
	w := domain.NewWallet(userID, "SAR")
	w.Balance = decimal.NewFromInt(balance)
	return w
}

func expectLock(d *ledgerTestDeps, userID uuid.UUID) {
	d.locker.EXPECT().Acquire(gomock.Any(), userID, 30*time.Second).Return(true, nil)
	d.locker.EXPECT().Release(gomock.Any(), userID).Return(nil)
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

// ==================== Pay ====================

func TestLedgerService_Pay_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 200)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.Zero, nil)

	var created *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			created = txn
			return nil
		})
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
			assert.True(t, balance.Equal(decimal.NewFromInt(150)))
			assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(50)))
			assert.Equal(t, int64(1), stats.TotalTransactions)
			return nil
		})

	txn, w, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_123",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.TransactionTypePayment, txn.Type)
	assert.Equal(t, domain.DirectionDebit, txn.Direction)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, txn.ProcessedAt)
	require.NotNil(t, txn.BookingID)
	assert.Equal(t, "bkg_123", *txn.BookingID)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(150)))
}

func TestLedgerService_Pay_InsufficientFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 30)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.Zero, nil)

	_, _, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_123",
	})
	assertAppError(t, err, "WAL_001")
}

func TestLedgerService_Pay_PendingWithdrawalReservesFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	// Balance 100, but 80 reserved by a pending withdrawal: only 20 spendable.
	wallet := activeWallet(userID, 100)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.NewFromInt(80), nil)

	_, _, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_456",
	})
	assertAppError(t, err, "WAL_001")
}

func TestLedgerService_Pay_WalletLocked(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.locker.EXPECT().Acquire(gomock.Any(), userID, 30*time.Second).Return(false, nil)

	_, _, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_123",
	})
	assertAppError(t, err, "WAL_004")
}

func TestLedgerService_Pay_LockerDown_FallsThroughToRowLock(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 200)
	tx := &mockTx{}

	// Redis down: advisory lock errors, mutation proceeds on the row lock.
	d.locker.EXPECT().Acquire(gomock.Any(), userID, 30*time.Second).Return(false, errors.New("redis down"))
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.Zero, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).Return(nil)

	_, _, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_123",
	})
	assert.NoError(t, err)
}

func TestLedgerService_Pay_FrozenWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 200)
	wallet.Status = domain.WalletStatusFrozen
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	_, _, err := d.svc.Pay(ctx, ports.PaymentRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(50),
		BookingID: "bkg_123",
	})
	assertAppError(t, err, "WAL_005")
}

func TestLedgerService_Pay_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Pay(context.Background(), ports.PaymentRequest{
		UserID:    uuid.New(),
		Amount:    decimal.Zero,
		BookingID: "bkg_123",
	})
	assertAppError(t, err, "VAL_001")
}

// ==================== Refund ====================

func TestLedgerService_Refund_FrozenWalletAcceptsCredit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	wallet.Status = domain.WalletStatusFrozen
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
			assert.True(t, balance.Equal(decimal.NewFromInt(160)))
			assert.True(t, stats.TotalRefunded.Equal(decimal.NewFromInt(60)))
			return nil
		})

	txn, _, err := d.svc.Refund(ctx, ports.RefundRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(60),
		BookingID: "bkg_789",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, txn.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
}

func TestLedgerService_Refund_SuspendedWalletRejected(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	wallet.Status = domain.WalletStatusSuspended
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	_, _, err := d.svc.Refund(ctx, ports.RefundRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(60),
		BookingID: "bkg_789",
	})
	assertAppError(t, err, "WAL_005")
}

// ==================== Deposit ====================

func TestLedgerService_Deposit_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	tx := &mockTx{}

	expectLock(d, userID)
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)
	d.gateway.EXPECT().CreateCharge(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(200)))
			assert.Equal(t, "SAR", req.Currency)
			assert.Equal(t, "tok_visa", req.PaymentMethodID)
			return &ports.Charge{
				ID:          "pay_abc",
				Status:      "initiated",
				Amount:      decimal.NewFromInt(200),
				Currency:    "SAR",
				RedirectURL: "https://gw.example/3ds",
			}, nil
		})
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)

	var created *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			created = txn
			return nil
		})
	// No UpdateBalance: a pending deposit does not move the balance.

	txn, charge, err := d.svc.Deposit(ctx, ports.DepositRequest{
		UserID:          userID,
		Amount:          decimal.NewFromInt(200),
		PaymentMethodID: "tok_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_abc", charge.ID)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, "pay_abc", txn.Reference)
	assert.Nil(t, txn.ProcessedAt)
	// balance_after snapshots the pre-credit balance until confirmation
	assert.True(t, created.BalanceAfter.Equal(decimal.NewFromInt(100)))
}

func TestLedgerService_Deposit_AmountOutOfBounds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	for _, amount := range []decimal.Decimal{
		decimal.NewFromInt(5),     // below minimum
		decimal.NewFromInt(20000), // above maximum
	} {
		_, _, err := d.svc.Deposit(context.Background(), ports.DepositRequest{
			UserID:          uuid.New(),
			Amount:          amount,
			PaymentMethodID: "tok_visa",
		})
		assertAppError(t, err, "VAL_001")
	}
}

func TestLedgerService_Deposit_GatewayFailure(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	expectLock(d, userID)
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(activeWallet(userID, 0), nil)
	d.gateway.EXPECT().CreateCharge(ctx, gomock.Any()).Return(nil, errors.New("gateway timeout"))

	_, _, err := d.svc.Deposit(ctx, ports.DepositRequest{
		UserID:          userID,
		Amount:          decimal.NewFromInt(100),
		PaymentMethodID: "tok_visa",
	})
	assertAppError(t, err, "GW_001")
}

// The wallet is checked before the gateway is asked for money: a charge
// raised for a wallet that cannot take the credit would be orphaned
// with no ledger entry for the webhook to reconcile.
func TestLedgerService_Deposit_FrozenWalletNeverCharged(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	wallet.Status = domain.WalletStatusFrozen

	expectLock(d, userID)
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)
	// No CreateCharge expectation: touching the gateway fails the test.

	_, _, err := d.svc.Deposit(ctx, ports.DepositRequest{
		UserID:          userID,
		Amount:          decimal.NewFromInt(100),
		PaymentMethodID: "tok_visa",
	})
	assertAppError(t, err, "WAL_005")
}

func TestLedgerService_Deposit_LockedWalletNeverCharged(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.locker.EXPECT().Acquire(gomock.Any(), userID, 30*time.Second).Return(false, nil)

	_, _, err := d.svc.Deposit(ctx, ports.DepositRequest{
		UserID:          userID,
		Amount:          decimal.NewFromInt(100),
		PaymentMethodID: "tok_visa",
	})
	assertAppError(t, err, "WAL_004")
}

// ==================== ConfirmDeposit ====================

func TestLedgerService_ConfirmDeposit_Paid(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Type:         domain.TransactionTypeDeposit,
		Direction:    domain.DirectionCredit,
		Amount:       decimal.NewFromInt(200),
		Reference:    "pay_abc",
		Status:       domain.TransactionStatusPending,
		BalanceAfter: decimal.NewFromInt(100),
	}

	d.txRepo.EXPECT().GetByReference(ctx, "pay_abc").Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "pay_abc").Return(pending, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusCompleted, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, _ domain.TransactionStatus, balanceAfter decimal.Decimal) error {
			assert.True(t, balanceAfter.Equal(decimal.NewFromInt(300)))
			return nil
		})
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
			assert.True(t, balance.Equal(decimal.NewFromInt(300)))
			assert.True(t, stats.TotalDeposited.Equal(decimal.NewFromInt(200)))
			assert.Equal(t, int64(1), stats.TotalTransactions)
			return nil
		})

	txn, w, err := d.svc.ConfirmDeposit(ctx, "pay_abc", "paid")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(300)))
	require.NotNil(t, txn.ProcessedAt)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(300)))
}

func TestLedgerService_ConfirmDeposit_Failed(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeDeposit,
		Direction: domain.DirectionCredit,
		Amount:    decimal.NewFromInt(200),
		Reference: "pay_abc",
		Status:    domain.TransactionStatusPending,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "pay_abc").Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "pay_abc").Return(pending, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusFailed, gomock.Any()).Return(nil)
	// No UpdateBalance: a failed deposit never credited anything.

	txn, w, err := d.svc.ConfirmDeposit(ctx, "pay_abc", "failed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)), "failed deposit must not move the balance")
}

func TestLedgerService_ConfirmDeposit_AlreadyProcessed(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	completed := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  uuid.New(),
		Type:      domain.TransactionTypeDeposit,
		Direction: domain.DirectionCredit,
		Amount:    decimal.NewFromInt(200),
		Reference: "pay_abc",
		Status:    domain.TransactionStatusCompleted,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "pay_abc").Return(completed, nil)

	_, _, err := d.svc.ConfirmDeposit(ctx, "pay_abc", "paid")
	assertAppError(t, err, "WAL_003")
}

func TestLedgerService_ConfirmDeposit_RaceSecondConfirmationLoses(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 300)
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeDeposit,
		Direction: domain.DirectionCredit,
		Amount:    decimal.NewFromInt(200),
		Reference: "pay_abc",
		Status:    domain.TransactionStatusPending,
	}
	settled := *pending
	settled.Status = domain.TransactionStatusCompleted

	// The fast check still sees pending, but under the row lock the
	// entry has been settled by a concurrent confirmation.
	d.txRepo.EXPECT().GetByReference(ctx, "pay_abc").Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "pay_abc").Return(&settled, nil)

	_, _, err := d.svc.ConfirmDeposit(ctx, "pay_abc", "paid")
	assertAppError(t, err, "WAL_003")
}

func TestLedgerService_ConfirmDeposit_UnknownReference(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "pay_missing").Return(nil, nil)

	_, _, err := d.svc.ConfirmDeposit(ctx, "pay_missing", "paid")
	assertAppError(t, err, "WAL_002")
}

// ==================== Withdraw ====================

func TestLedgerService_Withdraw_CreatesPendingDebit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 500)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.Zero, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	// No UpdateBalance: the debit is applied at settlement.

	txn, w, err := d.svc.Withdraw(ctx, ports.WithdrawRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeWithdrawal, txn.Type)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.NotEmpty(t, txn.Reference)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)), "withdrawal request must not move the balance")
}

func TestLedgerService_Withdraw_BelowMinimum(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Withdraw(context.Background(), ports.WithdrawRequest{
		UserID: uuid.New(),
		Amount: decimal.NewFromInt(10),
	})
	assertAppError(t, err, "VAL_001")
}

func TestLedgerService_Withdraw_ExceedsAvailable(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.NewFromInt(50), nil)

	_, _, err := d.svc.Withdraw(ctx, ports.WithdrawRequest{
		UserID: userID,
		Amount: decimal.NewFromInt(60),
	})
	assertAppError(t, err, "WAL_001")
}

// ==================== ConfirmWithdrawal ====================

func TestLedgerService_ConfirmWithdrawal_Paid(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 500)
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeWithdrawal,
		Direction: domain.DirectionDebit,
		Amount:    decimal.NewFromInt(100),
		Reference: "wd_abc",
		Status:    domain.TransactionStatusPending,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "wd_abc").Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "wd_abc").Return(pending, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusCompleted, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
			assert.True(t, balance.Equal(decimal.NewFromInt(400)))
			assert.Equal(t, int64(1), stats.TotalTransactions)
			return nil
		})

	txn, w, err := d.svc.ConfirmWithdrawal(ctx, "wd_abc", "paid")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(400)))
}

func TestLedgerService_ConfirmWithdrawal_FailedReleasesReservation(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 500)
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Type:      domain.TransactionTypeWithdrawal,
		Direction: domain.DirectionDebit,
		Amount:    decimal.NewFromInt(100),
		Reference: "wd_abc",
		Status:    domain.TransactionStatusPending,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "wd_abc").Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, "wd_abc").Return(pending, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusFailed, gomock.Any()).Return(nil)

	txn, w, err := d.svc.ConfirmWithdrawal(ctx, "wd_abc", "failed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)), "failed payout releases the reservation without debiting")
}

// ==================== GrantBonus / Adjust ====================

func TestLedgerService_GrantBonus_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 0)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, wallet.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, _ uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
			assert.True(t, balance.Equal(decimal.NewFromInt(25)))
			// Bonuses are not deposits: lifetime deposit total is untouched.
			assert.True(t, stats.TotalDeposited.IsZero())
			return nil
		})

	txn, _, err := d.svc.GrantBonus(ctx, ports.BonusRequest{
		UserID:    userID,
		Amount:    decimal.NewFromInt(25),
		Reference: "admin_1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeBonus, txn.Type)
}

func TestLedgerService_Adjust_RequiresExplicitDirection(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Adjust(context.Background(), ports.AdjustmentRequest{
		UserID:      uuid.New(),
		Amount:      decimal.NewFromInt(10),
		Description: "correction",
	})
	assertAppError(t, err, "VAL_001")
}

func TestLedgerService_Adjust_DebitChecksFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 5)
	tx := &mockTx{}

	expectLock(d, userID)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, userID).Return(wallet, nil)
	d.txRepo.EXPECT().SumPendingDebits(ctx, wallet.ID).Return(decimal.Zero, nil)

	_, _, err := d.svc.Adjust(ctx, ports.AdjustmentRequest{
		UserID:      userID,
		Amount:      decimal.NewFromInt(10),
		Direction:   domain.DirectionDebit,
		Description: "correction",
	})
	assertAppError(t, err, "WAL_001")
}

// ==================== GetOrCreateWallet / UpdateSettings ====================

func TestLedgerService_GetOrCreateWallet_Existing(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)

	w, err := d.svc.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, w.ID)
}

func TestLedgerService_GetOrCreateWallet_CreatesOnFirstTouch(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	created := activeWallet(userID, 0)

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, w *domain.Wallet) error {
			assert.Equal(t, userID, w.UserID)
			assert.Equal(t, "SAR", w.Currency)
			assert.True(t, w.Balance.IsZero())
			assert.Equal(t, domain.WalletStatusActive, w.Status)
			return nil
		})
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(created, nil)

	w, err := d.svc.GetOrCreateWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, w.ID)
}

func TestLedgerService_UpdateSettings_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	wallet := activeWallet(userID, 100)
	settings := domain.WalletSettings{
		AutoTopupEnabled:   true,
		AutoTopupThreshold: decimal.NewFromInt(50),
		AutoTopupAmount:    decimal.NewFromInt(100),
		NotifyOnDeposit:    true,
	}

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(wallet, nil)
	d.walletRepo.EXPECT().UpdateSettings(ctx, userID, settings).Return(nil)

	assert.NoError(t, d.svc.UpdateSettings(ctx, userID, settings))
}

func TestLedgerService_UpdateSettings_Invalid(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	err := d.svc.UpdateSettings(context.Background(), uuid.New(), domain.WalletSettings{
		AutoTopupEnabled: true, // enabled but zero top-up amount
	})
	assertAppError(t, err, "VAL_001")
}

func TestLedgerService_UpdateSettings_WalletNotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(nil, nil)

	err := d.svc.UpdateSettings(ctx, userID, domain.WalletSettings{})
	assertAppError(t, err, "WAL_002")
}
