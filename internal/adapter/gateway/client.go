package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ludus-wallet/config"
	"ludus-wallet/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client implements ports.PaymentGateway against the hosted payment
// processor's REST API. Amounts cross the wire in minor units (halalas).
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	log           zerolog.Logger
}

// NewClient creates a payment gateway client.
func NewClient(cfg config.GatewayConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		log:           log,
	}
}

type chargePayload struct {
	Amount      int64             `json:"amount"` // minor units
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Source      chargeSource      `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type chargeSource struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type chargeResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Source   struct {
		TransactionURL string `json:"transaction_url"`
	} `json:"source"`
	Message string `json:"message"`
}

// CreateCharge initiates a charge against the user's saved payment method.
func (c *Client) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	payload := chargePayload{
		Amount:      req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:    req.Currency,
		Description: req.Description,
		Source:      chargeSource{Type: "token", Token: req.PaymentMethodID},
		Metadata:    req.Metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal charge payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var cr chargeResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("message", cr.Message).
			Msg("gateway rejected charge")
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, cr.Message)
	}

	return &ports.Charge{
		ID:          cr.ID,
		Status:      cr.Status,
		Amount:      decimal.NewFromInt(cr.Amount).Div(decimal.NewFromInt(100)),
		Currency:    cr.Currency,
		RedirectURL: cr.Source.TransactionURL,
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature on a webhook
// body using constant-time comparison.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
