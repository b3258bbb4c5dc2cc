package middleware

import (
	"bytes"
	"io"

	"ludus-wallet/internal/core/ports"
	"ludus-wallet/pkg/apperror"
	"ludus-wallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GatewayWebhook verifies the HMAC signature on payment gateway webhook
// deliveries before the handlers see the body. The body is re-buffered so
// downstream binding still works.
func GatewayWebhook(gateway ports.PaymentGateway, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderWebhookSignature)
		if signature == "" {
			response.Error(c, apperror.ErrInvalidWebhookSignature())
			c.Abort()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if !gateway.VerifyWebhookSignature(bodyBytes, signature) {
			log.Warn().Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Msg("webhook signature verification failed")
			response.Error(c, apperror.ErrInvalidWebhookSignature())
			c.Abort()
			return
		}

		c.Next()
	}
}
