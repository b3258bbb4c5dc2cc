package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID {
			return nil // idempotent create, mirrors ON CONFLICT DO NOTHING
		}
	}
	r.wallets[w.ID] = cloneWallet(w)
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			return cloneWallet(w), nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	return cloneWallet(w), nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal, stats domain.WalletStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	w.Balance = balance
	w.Stats = stats
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *inMemoryWalletRepo) UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.WalletSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			w.Settings = settings
			w.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("wallet not found for user: %s", userID)
}

// SetStatus is a test hook for freezing or suspending a wallet.
func (r *inMemoryWalletRepo) SetStatus(userID uuid.UUID, status domain.WalletStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			w.Status = status
			return
		}
	}
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	return &c
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Reference == reference {
			return cloneTransaction(t), nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	return r.GetByReference(ctx, reference)
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, balanceAfter decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok || t.Status != domain.TransactionStatusPending {
		return fmt.Errorf("pending transaction not found: %s", id)
	}
	now := time.Now().UTC()
	t.Status = status
	t.BalanceAfter = balanceAfter
	t.ProcessedAt = &now
	return nil
}

func (r *inMemoryTransactionRepo) SumPendingDebits(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.transactions {
		if t.WalletID == walletID && t.IsPendingDebit() {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID != params.WalletID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetMonthlyStats(ctx context.Context, walletID uuid.UUID, months int) ([]ports.MonthlyStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byMonth := make(map[string]*ports.MonthlyStats)
	for _, t := range r.transactions {
		if t.WalletID != walletID || t.Status != domain.TransactionStatusCompleted || t.ProcessedAt == nil {
			continue
		}
		month := t.ProcessedAt.Format("2006-01")
		m, ok := byMonth[month]
		if !ok {
			m = &ports.MonthlyStats{
				Month:     month,
				Deposited: decimal.Zero,
				Spent:     decimal.Zero,
				Refunded:  decimal.Zero,
			}
			byMonth[month] = m
		}
		m.Transactions++
		switch t.Type {
		case domain.TransactionTypeDeposit:
			m.Deposited = m.Deposited.Add(t.Amount)
		case domain.TransactionTypePayment:
			m.Spent = m.Spent.Add(t.Amount)
		case domain.TransactionTypeRefund:
			m.Refunded = m.Refunded.Add(t.Amount)
		}
	}
	var stats []ports.MonthlyStats
	for _, m := range byMonth {
		stats = append(stats, *m)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Month > stats[j].Month })
	return stats, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// --- Fake Payment Gateway ---

// fakeGateway approves every charge and verifies webhook signatures with
// the same HMAC scheme the real gateway client uses.
type fakeGateway struct {
	webhookSecret string

	mu      sync.Mutex
	charges []ports.ChargeRequest
}

func newFakeGateway(webhookSecret string) *fakeGateway {
	return &fakeGateway{webhookSecret: webhookSecret}
}

func (g *fakeGateway) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	g.mu.Lock()
	g.charges = append(g.charges, req)
	g.mu.Unlock()
	return &ports.Charge{
		ID:          "pay_" + uuid.NewString(),
		Status:      "initiated",
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: "https://gateway.test/3ds/redirect",
	}, nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signWebhook(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// --- In-Memory Transactor ---

// inMemoryTransactor hands out transactions that hold one global mutex
// from Begin to Commit/Rollback. This stands in for the row locks the
// real storage takes: concurrent mutation paths serialize the same way
// they would against the database.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &noopTx{release: &t.mu}, nil
}

// noopTx is a pgx.Tx stand-in that releases the transactor's mutex on
// the first Commit or Rollback.
type noopTx struct {
	release *sync.Mutex
	done    sync.Once
}

func (t *noopTx) finish() {
	if t.release != nil {
		t.done.Do(t.release.Unlock)
	}
}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { t.finish(); return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { t.finish(); return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
