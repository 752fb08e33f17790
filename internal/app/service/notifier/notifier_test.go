package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/internal/platform/db/dbtest"
	"github.com/retgrow/billing/pkg/config"
)

type failingSender struct{ calls int }

func (s *failingSender) Send(context.Context, *models.NotificationOutbox) error {
	s.calls++
	return errors.New("smtp down")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Notification.Stream = "billing:notifications"
	cfg.Notification.BatchSize = 10
	cfg.Notification.MaxAttempts = 2
	return cfg
}

func TestDispatcher_SendsToRedisStream(t *testing.T) {
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	NewOutbox(gdb, log).Notify(ctx, "u1", EventRenewalSucceeded, map[string]any{"plan_name": "Pro"})

	cfg := testConfig()
	d := NewDispatcher(gdb, NewSender(cli, cfg, log), log, cfg)
	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)

	msgs, err := cli.XRange(ctx, cfg.Notification.Stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, EventRenewalSucceeded, msgs[0].Values["event"])
	require.Equal(t, `{"plan_name":"Pro"}`, msgs[0].Values["payload"])

	var row models.NotificationOutbox
	require.NoError(t, gdb.First(&row).Error)
	require.Equal(t, models.NotificationOutboxStatusSent, row.Status)
	require.NotNil(t, row.SentAt)

	// nothing left to send
	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Sent)
}

func TestDispatcher_ParksAfterMaxAttempts(t *testing.T) {
	gdb := dbtest.New(t)
	log := zap.NewNop().Sugar()
	ctx := context.Background()
	NewOutbox(gdb, log).Notify(ctx, "u1", EventRenewalFailed, map[string]any{"failure_reason": "declined"})

	sender := &failingSender{}
	d := NewDispatcher(gdb, sender, log, testConfig())

	res, err := d.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Failed)

	res, err = d.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Dead)

	var row models.NotificationOutbox
	require.NoError(t, gdb.First(&row).Error)
	require.Equal(t, models.NotificationOutboxStatusDead, row.Status)
	require.Equal(t, 2, row.Attempts)
	require.Equal(t, "smtp down", *row.LastError)

	// dead rows are not retried
	_, err = d.Dispatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sender.calls)
}

func TestNewSender_FallsBackToLog(t *testing.T) {
	s := NewSender(nil, testConfig(), zap.NewNop().Sugar())
	_, ok := s.(*LogSender)
	require.True(t, ok)
}
