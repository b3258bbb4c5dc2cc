package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the boundary to the external payment processor. It is
// an opaque request/response interface: the ledger never inspects gateway
// state beyond what these calls return.
type PaymentGateway interface {
	// CreateCharge initiates a charge against the user's payment method.
	// The returned Charge.ID is the reference later reconciled by the
	// gateway webhook.
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// VerifyWebhookSignature checks the HMAC signature on a webhook body.
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// ChargeRequest is the input to CreateCharge.
type ChargeRequest struct {
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	Description     string
	Metadata        map[string]string
}

// Charge is the gateway's view of an initiated payment.
type Charge struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	RedirectURL string          `json:"redirect_url,omitempty"` // 3DS / hosted page, when required
}
