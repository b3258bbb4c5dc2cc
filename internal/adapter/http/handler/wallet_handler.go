package handler

import (
	"strconv"
	"time"

	"ludus-wallet/internal/adapter/http/dto"
	"ludus-wallet/internal/adapter/http/middleware"
	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"
	"ludus-wallet/pkg/apperror"
	"ludus-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles all wallet endpoints.
type WalletHandler struct {
	ledgerSvc    ports.LedgerService
	reportingSvc ports.ReportingService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService, reportingSvc ports.ReportingService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc, reportingSvc: reportingSvc}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetWallet handles GET /api/v1/wallet. The wallet is created lazily on
// first touch, so this never 404s for an authenticated user.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	if _, err := h.ledgerSvc.GetOrCreateWallet(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.reportingSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletViewResponse{
		Wallet:              dto.FromWallet(view.Wallet),
		RecentTransactions:  dto.FromTransactions(view.RecentTransactions),
		HasMoreTransactions: view.HasMoreTransactions,
	})
}

// GetTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params, err := parseHistoryParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Normalize here so the envelope reports the window that was
	// actually queried, not the raw (possibly absent) query params.
	params = params.Normalized()

	txns, total, err := h.reportingSvc.GetTransactionHistory(c.Request.Context(), userID, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TransactionListResponse{
		Items: dto.FromTransactions(txns),
		Pagination: dto.Pagination{
			Page:    params.Page,
			Limit:   params.Limit,
			Total:   total,
			HasMore: int64(params.Page*params.Limit) < total,
		},
	})
}

// GetStats handles GET /api/v1/wallet/stats.
func (h *WalletHandler) GetStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	report, err := h.reportingSvc.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.StatsResponse{
		Overall:          report.Overall,
		Monthly:          report.Monthly,
		CurrentBalance:   report.CurrentBalance,
		AvailableBalance: report.AvailableBalance,
		Status:           string(report.Status),
	})
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, charge, err := h.ledgerSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		UserID:          userID,
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
		Description:     req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		Transaction: dto.FromTransaction(txn),
		PaymentID:   charge.ID,
		RedirectURL: charge.RedirectURL,
	})
}

// ConfirmDeposit handles POST /api/v1/wallet/deposit/confirm (gateway webhook).
func (h *WalletHandler) ConfirmDeposit(c *gin.Context) {
	var req dto.ConfirmDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, wallet, err := h.ledgerSvc.ConfirmDeposit(c.Request.Context(), req.PaymentID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, wallet, err := h.ledgerSvc.Withdraw(c.Request.Context(), ports.WithdrawRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// ConfirmWithdrawal handles POST /api/v1/wallet/withdraw/confirm (payout callback).
func (h *WalletHandler) ConfirmWithdrawal(c *gin.Context) {
	var req dto.ConfirmWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, wallet, err := h.ledgerSvc.ConfirmWithdrawal(c.Request.Context(), req.Reference, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// Pay handles POST /api/v1/wallet/pay.
func (h *WalletHandler) Pay(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, wallet, err := h.ledgerSvc.Pay(c.Request.Context(), ports.PaymentRequest{
		UserID:      userID,
		Amount:      req.Amount,
		BookingID:   req.BookingID,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// Refund handles POST /api/v1/wallet/refund.
func (h *WalletHandler) Refund(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	txn, wallet, err := h.ledgerSvc.Refund(c.Request.Context(), ports.RefundRequest{
		UserID:      userID,
		Amount:      req.Amount,
		BookingID:   req.BookingID,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// GrantBonus handles POST /api/v1/wallet/bonus (admin).
func (h *WalletHandler) GrantBonus(c *gin.Context) {
	adminID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	txn, wallet, err := h.ledgerSvc.GrantBonus(c.Request.Context(), ports.BonusRequest{
		UserID:      targetID,
		Amount:      req.Amount,
		Description: req.Description,
		Reference:   adminID.String(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// Adjust handles POST /api/v1/wallet/adjust (admin).
func (h *WalletHandler) Adjust(c *gin.Context) {
	adminID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	txn, wallet, err := h.ledgerSvc.Adjust(c.Request.Context(), ports.AdjustmentRequest{
		UserID:      targetID,
		Amount:      req.Amount,
		Direction:   domain.TransactionDirection(req.Direction),
		Description: req.Description,
		Reference:   adminID.String(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.MutationResponse{
		Transaction: dto.FromTransaction(txn),
		Balance:     wallet.Balance,
	})
}

// UpdateSettings handles PUT /api/v1/wallet/settings.
func (h *WalletHandler) UpdateSettings(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	settings := domain.WalletSettings{
		AutoTopupEnabled:   req.AutoTopupEnabled,
		AutoTopupThreshold: req.AutoTopupThreshold,
		AutoTopupAmount:    req.AutoTopupAmount,
		NotifyOnDeposit:    req.NotifyOnDeposit,
		NotifyOnLowBalance: req.NotifyOnLowBalance,
	}
	if err := h.ledgerSvc.UpdateSettings(c.Request.Context(), userID, settings); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, settings)
}

// parseHistoryParams extracts the optional history filters from the query
// string. Unknown enum values and malformed dates are rejected outright
// rather than silently ignored.
func parseHistoryParams(c *gin.Context) (ports.HistoryParams, error) {
	var params ports.HistoryParams

	if v := c.Query("type"); v != "" {
		t := domain.TransactionType(v)
		switch t {
		case domain.TransactionTypeDeposit, domain.TransactionTypeWithdrawal,
			domain.TransactionTypeRefund, domain.TransactionTypePayment,
			domain.TransactionTypeBonus, domain.TransactionTypeAdjustment:
			params.Type = &t
		default:
			return params, apperror.Validation("invalid transaction type filter")
		}
	}

	if v := c.Query("status"); v != "" {
		s := domain.TransactionStatus(v)
		switch s {
		case domain.TransactionStatusPending, domain.TransactionStatusCompleted,
			domain.TransactionStatusFailed, domain.TransactionStatusCancelled:
			params.Status = &s
		default:
			return params, apperror.Validation("invalid transaction status filter")
		}
	}

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, apperror.Validation("invalid from date, expected RFC3339")
		}
		params.From = &t
	}

	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return params, apperror.Validation("invalid to date, expected RFC3339")
		}
		params.To = &t
	}

	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, apperror.Validation("invalid page")
		}
		params.Page = n
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return params, apperror.Validation("invalid limit")
		}
		params.Limit = n
	}

	return params, nil
}
