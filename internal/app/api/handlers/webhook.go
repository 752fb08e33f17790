package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/retgrow/billing/internal/app/service/notification_handler"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/response"
	"github.com/retgrow/billing/pkg/types"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor is implemented by notification_handler.NotificationHandler.
type WebhookProcessor interface {
	SignatureHeader(provider types.PaymentProvider) (string, error)
	HandleNotification(ctx context.Context, provider types.PaymentProvider, body []byte, signature string) (*nh.HandleResult, error)
}

// @Summary      Payment Webhook
// @Description  Receives provider notifications. The raw body is authenticated with the provider's signature header (x-paystack-signature, x-opay-signature, Stripe-Signature). Responds 200 once authenticated, even when the event is ignored.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "paystack, opay or stripe"
// @Param        payload body object true "Provider notification payload"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      400  {object}  handlers.RespOK
// @Failure      401  {object}  handlers.RespOK
// @Router       /api/v1/payments/webhook/{provider} [post]
func ApiPaymentWebhook(p WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		provider, ok := types.ParsePaymentProvider(c.Param("provider"))
		if !ok {
			badRequest(c, "unsupported payment provider")
			return
		}
		header, err := p.SignatureHeader(provider)
		if err != nil {
			badRequest(c, apperr.MessageOf(err))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		body, err := c.GetRawData()
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}

		l.Infow("webhook_received", "provider", provider, "bytes", len(body))
		res, err := p.HandleNotification(c.Request.Context(), provider, body, c.GetHeader(header))
		if err != nil {
			if apperr.KindOf(err) == apperr.KindSignature {
				c.JSON(http.StatusUnauthorized, response.MessageT[any](response.APIResponseCodeUnauthorized, apperr.MessageOf(err), nil))
				return
			}
			l.Warnw("webhook_bad_request", "provider", provider, "error", err)
			badRequest(c, apperr.MessageOf(err))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, p WebhookProcessor, log *zap.SugaredLogger) {
	r.POST("/webhook/:provider", ApiPaymentWebhook(p, log))
}
