package handler

import (
	"ludus-wallet/internal/adapter/http/middleware"
	redisStore "ludus-wallet/internal/adapter/storage/redis"
	"ludus-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	Gateway        ports.PaymentGateway
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.ReportingSvc)

	// --- JWT-authenticated wallet routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("", rl("wallet_read"), walletHandler.GetWallet)
		wallet.GET("/transactions", rl("wallet_read"), walletHandler.GetTransactions)
		wallet.GET("/stats", rl("wallet_read"), walletHandler.GetStats)
		wallet.POST("/deposit", rl("wallet_deposit"), walletHandler.Deposit)
		wallet.POST("/withdraw", rl("wallet_mutate"), walletHandler.Withdraw)
		wallet.POST("/pay", rl("wallet_mutate"), walletHandler.Pay)
		wallet.POST("/refund", rl("wallet_mutate"), walletHandler.Refund)
		wallet.POST("/bonus", rl("wallet_admin"), walletHandler.GrantBonus)
		wallet.POST("/adjust", rl("wallet_admin"), walletHandler.Adjust)
		wallet.PUT("/settings", rl("wallet_mutate"), walletHandler.UpdateSettings)
	}

	// --- Gateway webhooks (HMAC-signed, no JWT) ---
	webhookAuth := middleware.GatewayWebhook(deps.Gateway, deps.Logger)
	webhooks := v1.Group("/wallet", webhookAuth)
	{
		webhooks.POST("/deposit/confirm", rl("wallet_confirm"), walletHandler.ConfirmDeposit)
		webhooks.POST("/withdraw/confirm", rl("wallet_confirm"), walletHandler.ConfirmWithdrawal)
	}

	return r
}
