package middleware

import (
	"encoding/json"
	"time"

	"ludus-wallet/internal/core/domain"
	"ludus-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// It maps HTTP methods and paths to audit actions.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapPathToAction(c.Request.URL.Path, c.Request.Method)
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if uid, exists := c.Get(CtxUserID); exists {
			if id, ok := uid.(uuid.UUID); ok {
				userID = &id
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			Details:      details,
			CreatedAt:    time.Now(),
		})
	}
}

func mapPathToAction(path, method string) (domain.AuditAction, string) {
	switch {
	case path == "/api/v1/wallet/deposit" && method == "POST":
		return domain.AuditActionDeposit, "transaction"
	case path == "/api/v1/wallet/deposit/confirm" && method == "POST":
		return domain.AuditActionDepositConfirm, "transaction"
	case path == "/api/v1/wallet/withdraw" && method == "POST":
		return domain.AuditActionWithdraw, "transaction"
	case path == "/api/v1/wallet/withdraw/confirm" && method == "POST":
		return domain.AuditActionWithdrawConfirm, "transaction"
	case path == "/api/v1/wallet/pay" && method == "POST":
		return domain.AuditActionPay, "transaction"
	case path == "/api/v1/wallet/refund" && method == "POST":
		return domain.AuditActionRefund, "transaction"
	case path == "/api/v1/wallet/bonus" && method == "POST":
		return domain.AuditActionBonus, "wallet"
	case path == "/api/v1/wallet/adjust" && method == "POST":
		return domain.AuditActionAdjust, "wallet"
	case path == "/api/v1/wallet/settings" && method == "PUT":
		return domain.AuditActionSettingsUpdate, "wallet"
	}
	return "", ""
}
