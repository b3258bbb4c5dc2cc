package service

import (
	"context"
	"fmt"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"
	"ludus-wallet/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	recentTransactionCount = 10
	monthlyStatsWindow     = 6
)

// ReportingServiceImpl implements ports.ReportingService. Read-only:
// it takes no locks and tolerates any number of concurrent callers.
type ReportingServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	log        zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	log zerolog.Logger,
) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		log:        log,
	}
}

// GetWallet returns the wallet with its most recent entries.
func (s *ReportingServiceImpl) GetWallet(ctx context.Context, userID uuid.UUID) (*ports.WalletView, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	recent, total, err := s.txRepo.List(ctx, ports.TransactionListParams{
		WalletID: wallet.ID,
		Page:     1,
		PageSize: recentTransactionCount,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list recent transactions: %w", err))
	}

	return &ports.WalletView{
		Wallet:              wallet,
		RecentTransactions:  recent,
		HasMoreTransactions: total > int64(len(recent)),
	}, nil
}

// GetTransactionHistory returns a filtered, paginated slice of the
// ledger, most-recent-first.
func (s *ReportingServiceImpl) GetTransactionHistory(ctx context.Context, userID uuid.UUID, params ports.HistoryParams) ([]domain.Transaction, int64, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, 0, apperror.ErrNotFound("wallet")
	}

	params = params.Normalized()

	return s.txRepo.List(ctx, ports.TransactionListParams{
		WalletID: wallet.ID,
		Type:     params.Type,
		Status:   params.Status,
		From:     params.From,
		To:       params.To,
		Page:     params.Page,
		PageSize: params.Limit,
	})
}

// GetStats returns lifetime and monthly aggregates plus the current and
// spendable balances.
func (s *ReportingServiceImpl) GetStats(ctx context.Context, userID uuid.UUID) (*ports.WalletStatsReport, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	monthly, err := s.txRepo.GetMonthlyStats(ctx, wallet.ID, monthlyStatsWindow)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("monthly stats: %w", err))
	}

	pending, err := s.txRepo.SumPendingDebits(ctx, wallet.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum pending debits: %w", err))
	}

	return &ports.WalletStatsReport{
		Overall:          wallet.Stats,
		Monthly:          monthly,
		CurrentBalance:   wallet.Balance,
		AvailableBalance: wallet.Balance.Sub(pending),
		Status:           wallet.Status,
	}, nil
}
