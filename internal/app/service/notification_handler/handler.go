package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/retgrow/billing/internal/app/service/gateway"
	notificationlog "github.com/retgrow/billing/internal/app/service/notification_log"
	"github.com/retgrow/billing/internal/app/service/transaction"
	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/apperr"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/metrics"
	"github.com/retgrow/billing/pkg/types"
)

type Outcome string

const (
	OutcomeHandled  Outcome = "handled"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

type HandleResult struct {
	Provider  types.PaymentProvider   `json:"provider"`
	EventType string                  `json:"event_type"`
	Reference string                  `json:"reference,omitempty"`
	Outcome   Outcome                 `json:"outcome"`
	Status    types.TransactionStatus `json:"status,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

type NotificationHandler struct {
	gateways *gateway.Registry
	txnMgr   transaction.TransactionManager
	notifSvc *notificationlog.Service
	Logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewNotificationHandler(gateways *gateway.Registry, txn transaction.TransactionManager, notif *notificationlog.Service, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{
		gateways: gateways,
		txnMgr:   txn,
		notifSvc: notif,
		Logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignatureHeader names the request header carrying provider's webhook signature.
func (h *NotificationHandler) SignatureHeader(provider types.PaymentProvider) (string, error) {
	gw, err := h.gateways.Get(provider)
	if err != nil {
		return "", err
	}
	return gw.SignatureHeader(), nil
}

// HandleNotification authenticates a raw webhook body and settles the referenced payment.
// Only unknown providers, bad signatures and malformed payloads are returned as errors;
// processing failures are audited and acknowledged.
func (h *NotificationHandler) HandleNotification(ctx context.Context, provider types.PaymentProvider, body []byte, signature string) (*HandleResult, error) {
	log := logctx.FromCtx(ctx, h.Logger).With("provider", provider)
	gw, err := h.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	if !gw.VerifyWebhookSignature(body, signature) {
		log.Warnw("webhook_signature_rejected")
		metrics.IncWebhook(string(provider), string(OutcomeRejected))
		var data any
		if json.Valid(body) {
			data = json.RawMessage(body)
		}
		h.save(ctx, provider, "", "", data, nil, models.PaymentNotificationLogStatusRejected)
		return nil, apperr.Signature("Invalid signature")
	}

	parser, err := GetNotificationParser(provider, body)
	if err != nil {
		log.Warnw("webhook_payload_invalid", "error", err)
		metrics.IncWebhook(string(provider), string(OutcomeRejected))
		return nil, err
	}

	res := &HandleResult{
		Provider:  provider,
		EventType: parser.GetEventType(ctx),
		Reference: parser.GetReference(ctx),
	}
	data := parser.GetData(ctx)
	h.save(ctx, provider, res.EventType, res.Reference, data, nil, models.PaymentNotificationLogStatusReceived)

	h.process(ctx, parser, res)

	status := models.PaymentNotificationLogStatusHandled
	switch res.Outcome {
	case OutcomeIgnored:
		status = models.PaymentNotificationLogStatusIgnored
	case OutcomeFailed:
		status = models.PaymentNotificationLogStatusHandleFailed
	}
	h.save(ctx, provider, res.EventType, res.Reference, data, res, status)
	metrics.IncWebhook(string(provider), string(res.Outcome))
	log.Infow("webhook_processed", "event_type", res.EventType, "reference", res.Reference, "outcome", res.Outcome, "status", res.Status)
	return res, nil
}

func (h *NotificationHandler) process(ctx context.Context, parser NotificationParser, res *HandleResult) {
	if !parser.IsPaymentSucceeded(ctx) {
		res.Outcome = OutcomeIgnored
		res.Message = "event not handled"
		return
	}
	if res.Reference == "" {
		res.Outcome = OutcomeIgnored
		res.Message = "missing reference"
		return
	}

	out, err := h.txnMgr.VerifyAndActivate(ctx, res.Reference)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		res.Outcome = OutcomeIgnored
		res.Message = "unknown reference"
	case err != nil:
		logctx.FromCtx(ctx, h.Logger).Errorw("webhook_processing_failed", "provider", res.Provider, "reference", res.Reference, "error", err)
		res.Outcome = OutcomeFailed
		res.Message = err.Error()
	default:
		res.Outcome = OutcomeHandled
		res.Status = out.Status
		res.Message = out.Message
	}
}

func (h *NotificationHandler) save(ctx context.Context, provider types.PaymentProvider, eventType, reference string, data any, result *HandleResult, status models.PaymentNotificationLogStatus) {
	traceID, _ := ctx.Value(logctx.KeyTraceID).(string)
	row := &models.PaymentNotificationLog{
		Provider:         string(provider),
		EventType:        eventType,
		TraceID:          traceID,
		Reference:        reference,
		NotificationTime: h.now(),
		Status:           status,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			row.Data = datatypes.JSON(b)
		}
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			j := datatypes.JSON(b)
			row.Result = &j
		}
	}
	h.notifSvc.Save(ctx, row)
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
