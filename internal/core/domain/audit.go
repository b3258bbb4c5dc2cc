package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction classifies an audited wallet operation.
type AuditAction string

const (
	AuditActionDeposit         AuditAction = "WALLET_DEPOSIT"
	AuditActionDepositConfirm  AuditAction = "WALLET_DEPOSIT_CONFIRM"
	AuditActionWithdraw        AuditAction = "WALLET_WITHDRAW"
	AuditActionWithdrawConfirm AuditAction = "WALLET_WITHDRAW_CONFIRM"
	AuditActionPay             AuditAction = "WALLET_PAY"
	AuditActionRefund          AuditAction = "WALLET_REFUND"
	AuditActionBonus           AuditAction = "WALLET_BONUS"
	AuditActionAdjust          AuditAction = "WALLET_ADJUST"
	AuditActionSettingsUpdate  AuditAction = "WALLET_SETTINGS_UPDATE"
)

// AuditLog records a successful wallet mutation for traceability.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id"`
	Details      []byte      `json:"details,omitempty"` // JSON blob
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
