// Package notifier is the boundary to the email service. Billing code records events in
// an outbox table; the dispatcher hands them to a Sender out of band.
package notifier

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/tool"
)

const (
	EventPaymentSucceeded = "payment_succeeded"
	EventRenewalSucceeded = "renewal_succeeded"
	EventRenewalFailed    = "renewal_failed"
)

// Notifier is fire-and-forget: failures are logged and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, userID, event string, payload map[string]any)
}

type Outbox struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewOutbox(db *gorm.DB, log *zap.SugaredLogger) *Outbox {
	return &Outbox{db: db, log: log}
}

func (o *Outbox) Notify(ctx context.Context, userID, event string, payload map[string]any) {
	row := &models.NotificationOutbox{
		ID:      tool.GenerateUUIDV7(),
		UserID:  userID,
		Event:   event,
		Payload: payload,
		Status:  models.NotificationOutboxStatusPending,
	}
	if err := o.db.WithContext(ctx).Create(row).Error; err != nil {
		logctx.FromCtx(ctx, o.log).Errorw("failed to enqueue notification", "event", event, "user_id", userID, "error", err)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, map[string]any) {}
