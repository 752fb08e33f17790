package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/config"
)

// Sender delivers one outbox event to the email collaborator.
type Sender interface {
	Send(ctx context.Context, n *models.NotificationOutbox) error
}

// RedisSender appends events to a Redis stream consumed by the email service.
type RedisSender struct {
	cli    *redis.Client
	stream string
}

func NewRedisSender(cli *redis.Client, stream string) *RedisSender {
	return &RedisSender{cli: cli, stream: stream}
}

func (s *RedisSender) Send(ctx context.Context, n *models.NotificationOutbox) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return s.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":      n.ID,
			"user_id": n.UserID,
			"event":   n.Event,
			"payload": string(payload),
		},
	}).Err()
}

// LogSender only logs; used when Redis is not configured.
type LogSender struct {
	log *zap.SugaredLogger
}

func (s *LogSender) Send(_ context.Context, n *models.NotificationOutbox) error {
	s.log.Infow("notification", "id", n.ID, "user_id", n.UserID, "event", n.Event, "payload", n.Payload)
	return nil
}

func NewSender(cli *redis.Client, cfg *config.Config, log *zap.SugaredLogger) Sender {
	if cli == nil {
		return &LogSender{log: log}
	}
	return NewRedisSender(cli, cfg.Notification.Stream)
}

type Dispatcher struct {
	db          *gorm.DB
	sender      Sender
	log         *zap.SugaredLogger
	batchSize   int
	maxAttempts int
}

func NewDispatcher(db *gorm.DB, sender Sender, log *zap.SugaredLogger, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		db:          db,
		sender:      sender,
		log:         log,
		batchSize:   lo.Ternary(cfg.Notification.BatchSize > 0, cfg.Notification.BatchSize, 50),
		maxAttempts: lo.Ternary(cfg.Notification.MaxAttempts > 0, cfg.Notification.MaxAttempts, 5),
	}
}

type DispatchResult struct {
	Sent   int
	Failed int
	Dead   int
}

// Dispatch sends one batch of pending events, oldest first. A failed send increments
// attempts; at maxAttempts the row is parked as dead.
func (d *Dispatcher) Dispatch(ctx context.Context) (*DispatchResult, error) {
	var rows []*models.NotificationOutbox
	err := d.db.WithContext(ctx).
		Where("status = ?", models.NotificationOutboxStatusPending).
		Order("created_at ASC").
		Limit(d.batchSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load pending notifications: %w", err)
	}

	res := &DispatchResult{}
	for _, n := range rows {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if sendErr := d.sender.Send(ctx, n); sendErr != nil {
			attempts := n.Attempts + 1
			status := models.NotificationOutboxStatusPending
			if attempts >= d.maxAttempts {
				status = models.NotificationOutboxStatusDead
				res.Dead++
			} else {
				res.Failed++
			}
			msg := sendErr.Error()
			if len(msg) > 512 {
				msg = msg[:512]
			}
			if err := d.db.WithContext(ctx).Model(&models.NotificationOutbox{}).Where("id = ?", n.ID).
				Updates(map[string]interface{}{"attempts": attempts, "status": status, "last_error": msg}).Error; err != nil {
				d.log.Errorw("failed to record notification failure", "id", n.ID, "error", err)
			}
			d.log.Warnw("notification send failed", "id", n.ID, "event", n.Event, "attempts", attempts, "error", sendErr)
			continue
		}
		now := time.Now().UTC()
		if err := d.db.WithContext(ctx).Model(&models.NotificationOutbox{}).Where("id = ?", n.ID).
			Updates(map[string]interface{}{"status": models.NotificationOutboxStatusSent, "sent_at": now, "attempts": n.Attempts + 1}).Error; err != nil {
			d.log.Errorw("failed to mark notification sent", "id", n.ID, "error", err)
			continue
		}
		res.Sent++
	}
	return res, nil
}

var Module = fx.Options(
	fx.Provide(NewOutbox),
	fx.Provide(func(o *Outbox) Notifier { return o }),
	fx.Provide(NewSender),
	fx.Provide(NewDispatcher),
)
