package service

import (
	"context"
	"fmt"
	"time"

	"ludus-wallet/config"
	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"
	"ludus-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxDescriptionLen = 255

// LedgerServiceImpl implements ports.LedgerService. All balance mutation
// funnels through applyEntry, which runs inside a database transaction
// holding the wallet row lock; the Redis lock in front of it only
// fast-fails concurrent callers before they queue on the row.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	locker     ports.WalletLocker
	gateway    ports.PaymentGateway
	transactor ports.DBTransactor
	rules      config.WalletConfig
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	locker ports.WalletLocker,
	gateway ports.PaymentGateway,
	transactor ports.DBTransactor,
	rules config.WalletConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		locker:     locker,
		gateway:    gateway,
		transactor: transactor,
		rules:      rules,
		log:        log,
	}
}

// GetOrCreateWallet returns the user's wallet, creating an empty active
// one on first touch. Concurrent first touches collapse onto one row via
// the unique user constraint.
func (s *LedgerServiceImpl) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}

	fresh := domain.NewWallet(userID, s.rules.Currency)
	if err := s.walletRepo.Create(ctx, fresh); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	// Re-read: a concurrent create may have won the insert.
	wallet, err = s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet after create: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet missing after create: %s", userID))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("wallet_id", wallet.ID.String()).
		Msg("wallet created")
	return wallet, nil
}

// ledgerEntry is the internal input to applyEntry: one validated,
// direction-resolved balance event.
type ledgerEntry struct {
	userID        uuid.UUID
	txnType       domain.TransactionType
	direction     domain.TransactionDirection
	amount        decimal.Decimal
	description   string
	reference     string
	bookingID     *string
	status        domain.TransactionStatus // pending or completed
	metadata      map[string]string
	createWallet  bool // lazily create the wallet if the user has none
	allowOnFrozen bool // credits that must land even on a frozen wallet
}

// acquireSlot takes the user's advisory lock and returns its release
// func. A second concurrent caller fast-fails instead of queueing on
// the row lock; a Redis error degrades to the row lock alone. The TTL
// recovers the slot if this process dies.
func (s *LedgerServiceImpl) acquireSlot(ctx context.Context, userID uuid.UUID) (func(), error) {
	acquired, err := s.locker.Acquire(ctx, userID, s.rules.LockTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("advisory lock unavailable, relying on row lock")
		return func() {}, nil
	}
	if !acquired {
		return nil, apperror.ErrWalletLocked()
	}
	return func() {
		if rerr := s.locker.Release(context.WithoutCancel(ctx), userID); rerr != nil {
			s.log.Warn().Err(rerr).Str("user_id", userID.String()).Msg("failed to release wallet lock")
		}
	}, nil
}

func (e ledgerEntry) validate() error {
	if !e.amount.IsPositive() {
		return apperror.Validation("amount must be positive")
	}
	if len(e.description) > maxDescriptionLen {
		return apperror.Validation("description too long")
	}
	return nil
}

// applyEntry is the single mutation path: validation, the advisory
// lock, then applyEntryLocked.
func (s *LedgerServiceImpl) applyEntry(ctx context.Context, e ledgerEntry) (*domain.Transaction, *domain.Wallet, error) {
	if err := e.validate(); err != nil {
		return nil, nil, err
	}
	release, err := s.acquireSlot(ctx, e.userID)
	if err != nil {
		return nil, nil, err
	}
	defer release()
	return s.applyEntryLocked(ctx, e)
}

// applyEntryLocked is entered with the advisory lock held (or degraded
// to the row lock alone). It locks the wallet row, gates on wallet
// status, enforces the spendable-balance rule for debits, appends the
// ledger entry and writes the new balance and stats in one database
// transaction.
func (s *LedgerServiceImpl) applyEntryLocked(ctx context.Context, e ledgerEntry) (*domain.Transaction, *domain.Wallet, error) {
	if err := e.validate(); err != nil {
		return nil, nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, e.userID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		if !e.createWallet {
			return nil, nil, apperror.ErrNotFound("wallet")
		}
		fresh := domain.NewWallet(e.userID, s.rules.Currency)
		if err := s.walletRepo.Create(ctx, fresh); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
		wallet, err = s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, e.userID)
		if err != nil || wallet == nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet after create: %w", err))
		}
	}

	if err := gateStatus(wallet, e.direction, e.allowOnFrozen); err != nil {
		return nil, nil, err
	}

	if e.direction == domain.DirectionDebit {
		pending, err := s.txRepo.SumPendingDebits(ctx, wallet.ID)
		if err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("sum pending debits: %w", err))
		}
		available := wallet.Balance.Sub(pending)
		if e.amount.GreaterThan(available) {
			return nil, nil, apperror.ErrInsufficientFunds()
		}
	}

	// A pending entry reserves or anticipates funds without moving them;
	// its balance_after snapshots the balance at creation and is restated
	// on settlement.
	newBalance := wallet.Balance
	if e.status == domain.TransactionStatusCompleted {
		if e.direction == domain.DirectionCredit {
			newBalance = wallet.Balance.Add(e.amount)
		} else {
			newBalance = wallet.Balance.Sub(e.amount)
		}
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Type:         e.txnType,
		Direction:    e.direction,
		Amount:       e.amount,
		Description:  e.description,
		Reference:    e.reference,
		BookingID:    e.bookingID,
		Status:       e.status,
		BalanceAfter: newBalance,
		Metadata:     e.metadata,
		CreatedAt:    now,
	}
	if e.status == domain.TransactionStatusCompleted {
		txn.ProcessedAt = &now
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	if e.status == domain.TransactionStatusCompleted {
		stats := settleStats(wallet.Stats, e.txnType, e.amount)
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance, stats); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
		wallet.Balance = newBalance
		wallet.Stats = stats
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("wallet_id", wallet.ID.String()).
		Str("type", string(e.txnType)).
		Str("direction", string(e.direction)).
		Str("status", string(e.status)).
		Str("amount", e.amount.String()).
		Msg("ledger entry applied")

	return txn, wallet, nil
}

// gateStatus enforces the wallet status rules: debits need an active
// wallet; credits land on an active wallet, or a frozen one when the
// entry settles money already in flight; a suspended wallet takes nothing.
func gateStatus(w *domain.Wallet, dir domain.TransactionDirection, allowOnFrozen bool) error {
	if w.IsActive() {
		return nil
	}
	if dir == domain.DirectionCredit && allowOnFrozen && w.AcceptsCredits() {
		return nil
	}
	return apperror.ErrWalletNotActive(string(w.Status))
}

// settleStats folds one completed transaction into the running aggregates.
func settleStats(stats domain.WalletStats, txnType domain.TransactionType, amount decimal.Decimal) domain.WalletStats {
	switch txnType {
	case domain.TransactionTypeDeposit:
		stats.TotalDeposited = stats.TotalDeposited.Add(amount)
	case domain.TransactionTypePayment:
		stats.TotalSpent = stats.TotalSpent.Add(amount)
	case domain.TransactionTypeRefund:
		stats.TotalRefunded = stats.TotalRefunded.Add(amount)
	}
	stats.TotalTransactions++
	return stats
}

// Deposit initiates a gateway charge and records it as a pending credit.
// The balance does not move until the gateway confirms payment.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.Transaction, *ports.Charge, error) {
	if req.Amount.LessThan(s.rules.DepositMinAmount()) || req.Amount.GreaterThan(s.rules.DepositMaxAmount()) {
		return nil, nil, apperror.Validation(fmt.Sprintf(
			"deposit amount must be between %s and %s",
			s.rules.DepositMinAmount().String(), s.rules.DepositMaxAmount().String()))
	}
	if req.PaymentMethodID == "" {
		return nil, nil, apperror.Validation("payment method is required")
	}

	description := req.Description
	if description == "" {
		description = "Wallet deposit"
	}
	if len(description) > maxDescriptionLen {
		return nil, nil, apperror.Validation("description too long")
	}

	// Hold the mutation slot and check the wallet before asking the
	// gateway for money: a charge raised for a wallet that cannot take
	// the credit would be orphaned with no ledger entry to reconcile.
	release, err := s.acquireSlot(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	wallet, err := s.GetOrCreateWallet(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if err := gateStatus(wallet, domain.DirectionCredit, false); err != nil {
		return nil, nil, err
	}

	// The gateway id becomes the reference the webhook later reconciles.
	charge, err := s.gateway.CreateCharge(ctx, ports.ChargeRequest{
		Amount:          req.Amount,
		Currency:        s.rules.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     description,
		Metadata:        map[string]string{"user_id": req.UserID.String()},
	})
	if err != nil {
		return nil, nil, apperror.ErrGateway(err)
	}

	txn, _, err := s.applyEntryLocked(ctx, ledgerEntry{
		userID:       req.UserID,
		txnType:      domain.TransactionTypeDeposit,
		direction:    domain.DirectionCredit,
		amount:       req.Amount,
		description:  description,
		reference:    charge.ID,
		status:       domain.TransactionStatusPending,
		metadata:     map[string]string{"payment_method_id": req.PaymentMethodID},
		createWallet: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return txn, charge, nil
}

// ConfirmDeposit settles a pending deposit from the gateway webhook.
// "paid" credits the wallet; anything else marks the entry failed. A
// reference that already settled returns ErrAlreadyProcessed, making
// duplicate webhook deliveries harmless.
func (s *LedgerServiceImpl) ConfirmDeposit(ctx context.Context, paymentID string, status string) (*domain.Transaction, *domain.Wallet, error) {
	return s.settle(ctx, paymentID, status, domain.TransactionTypeDeposit)
}

// Withdraw records a pending debit reserving spendable balance. The
// balance itself moves when the payout settles.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*domain.Transaction, *domain.Wallet, error) {
	if req.Amount.LessThan(s.rules.WithdrawMinAmount()) {
		return nil, nil, apperror.Validation(fmt.Sprintf(
			"withdrawal amount must be at least %s", s.rules.WithdrawMinAmount().String()))
	}

	description := req.Description
	if description == "" {
		description = "Wallet withdrawal"
	}

	return s.applyEntry(ctx, ledgerEntry{
		userID:      req.UserID,
		txnType:     domain.TransactionTypeWithdrawal,
		direction:   domain.DirectionDebit,
		amount:      req.Amount,
		description: description,
		reference:   "wd_" + uuid.NewString(),
		status:      domain.TransactionStatusPending,
	})
}

// ConfirmWithdrawal settles a pending withdrawal once the payout
// completes or fails. Failure releases the reservation without touching
// the balance.
func (s *LedgerServiceImpl) ConfirmWithdrawal(ctx context.Context, reference string, status string) (*domain.Transaction, *domain.Wallet, error) {
	return s.settle(ctx, reference, status, domain.TransactionTypeWithdrawal)
}

// settle performs the pending -> terminal transition for deposits and
// withdrawals, holding the wallet row lock so duplicate confirmations
// serialize and the second one sees a terminal entry.
func (s *LedgerServiceImpl) settle(ctx context.Context, reference string, gatewayStatus string, want domain.TransactionType) (*domain.Transaction, *domain.Wallet, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("find transaction: %w", err))
	}
	if txn == nil || txn.Type != want {
		return nil, nil, apperror.ErrNotFound("transaction")
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, nil, apperror.ErrAlreadyProcessed()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, txn.WalletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, nil, apperror.ErrNotFound("wallet")
	}

	// Re-check under the lock: a concurrent confirmation may have
	// settled the entry while we waited for the row.
	txn, err = s.txRepo.GetByReferenceForUpdate(ctx, dbTx, reference)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return nil, nil, apperror.ErrNotFound("transaction")
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, nil, apperror.ErrAlreadyProcessed()
	}

	now := time.Now().UTC()
	if gatewayStatus == "paid" {
		if txn.Direction == domain.DirectionCredit && !wallet.AcceptsCredits() {
			return nil, nil, apperror.ErrWalletNotActive(string(wallet.Status))
		}

		newBalance := wallet.Balance
		if txn.Direction == domain.DirectionCredit {
			newBalance = newBalance.Add(txn.Amount)
		} else {
			newBalance = newBalance.Sub(txn.Amount)
			if newBalance.IsNegative() {
				return nil, nil, apperror.ErrInsufficientFunds()
			}
		}

		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusCompleted, newBalance); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("complete transaction: %w", err))
		}
		stats := settleStats(wallet.Stats, txn.Type, txn.Amount)
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance, stats); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}

		txn.Status = domain.TransactionStatusCompleted
		txn.BalanceAfter = newBalance
		txn.ProcessedAt = &now
		wallet.Balance = newBalance
		wallet.Stats = stats
	} else {
		if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusFailed, wallet.Balance); err != nil {
			return nil, nil, apperror.InternalError(fmt.Errorf("fail transaction: %w", err))
		}
		txn.Status = domain.TransactionStatusFailed
		txn.BalanceAfter = wallet.Balance
		txn.ProcessedAt = &now
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference", reference).
		Str("gateway_status", gatewayStatus).
		Str("status", string(txn.Status)).
		Msg("transaction settled")

	return txn, wallet, nil
}

// Pay debits the wallet for a booking. It is a synchronous, completed
// debit: money leaves the wallet at booking time.
func (s *LedgerServiceImpl) Pay(ctx context.Context, req ports.PaymentRequest) (*domain.Transaction, *domain.Wallet, error) {
	if req.BookingID == "" {
		return nil, nil, apperror.Validation("booking id is required")
	}

	description := req.Description
	if description == "" {
		description = "Booking payment"
	}

	return s.applyEntry(ctx, ledgerEntry{
		userID:      req.UserID,
		txnType:     domain.TransactionTypePayment,
		direction:   domain.DirectionDebit,
		amount:      req.Amount,
		description: description,
		bookingID:   &req.BookingID,
		status:      domain.TransactionStatusCompleted,
	})
}

// Refund credits a booking refund back to the wallet. Frozen wallets
// still accept refunds: the money belongs to the user regardless.
func (s *LedgerServiceImpl) Refund(ctx context.Context, req ports.RefundRequest) (*domain.Transaction, *domain.Wallet, error) {
	if req.BookingID == "" {
		return nil, nil, apperror.Validation("booking id is required")
	}

	description := req.Description
	if description == "" {
		description = "Booking refund"
	}

	return s.applyEntry(ctx, ledgerEntry{
		userID:        req.UserID,
		txnType:       domain.TransactionTypeRefund,
		direction:     domain.DirectionCredit,
		amount:        req.Amount,
		description:   description,
		bookingID:     &req.BookingID,
		status:        domain.TransactionStatusCompleted,
		createWallet:  true,
		allowOnFrozen: true,
	})
}

// GrantBonus credits a promotional bonus.
func (s *LedgerServiceImpl) GrantBonus(ctx context.Context, req ports.BonusRequest) (*domain.Transaction, *domain.Wallet, error) {
	description := req.Description
	if description == "" {
		description = "Promotional bonus"
	}

	return s.applyEntry(ctx, ledgerEntry{
		userID:       req.UserID,
		txnType:      domain.TransactionTypeBonus,
		direction:    domain.DirectionCredit,
		amount:       req.Amount,
		description:  description,
		reference:    req.Reference,
		status:       domain.TransactionStatusCompleted,
		createWallet: true,
	})
}

// Adjust applies a manual balance correction. The direction is taken
// from the request verbatim and never inferred.
func (s *LedgerServiceImpl) Adjust(ctx context.Context, req ports.AdjustmentRequest) (*domain.Transaction, *domain.Wallet, error) {
	if req.Direction != domain.DirectionCredit && req.Direction != domain.DirectionDebit {
		return nil, nil, apperror.Validation("direction must be credit or debit")
	}
	if req.Description == "" {
		return nil, nil, apperror.Validation("adjustment requires a description")
	}

	return s.applyEntry(ctx, ledgerEntry{
		userID:      req.UserID,
		txnType:     domain.TransactionTypeAdjustment,
		direction:   req.Direction,
		amount:      req.Amount,
		description: req.Description,
		reference:   req.Reference,
		status:      domain.TransactionStatusCompleted,
	})
}

// UpdateSettings stores the user's wallet preferences. Settings are
// opaque to the ledger; only basic shape validation happens here.
func (s *LedgerServiceImpl) UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.WalletSettings) error {
	if settings.AutoTopupThreshold.IsNegative() || settings.AutoTopupAmount.IsNegative() {
		return apperror.Validation("auto-topup values must not be negative")
	}
	if settings.AutoTopupEnabled && !settings.AutoTopupAmount.IsPositive() {
		return apperror.Validation("auto-topup requires a positive top-up amount")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}

	if err := s.walletRepo.UpdateSettings(ctx, userID, settings); err != nil {
		return apperror.InternalError(fmt.Errorf("update settings: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Msg("wallet settings updated")
	return nil
}
