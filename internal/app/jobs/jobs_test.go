package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/retgrow/billing/pkg/logctx"
)

func TestNewScheduler_SkipsEmptySchedules(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s, err := newScheduler(zap.NewNop().Sugar(), []Job{
		{Name: "a", Schedule: "@every 1h", Run: noop},
		{Name: "b", Schedule: "", Run: noop},
		{Name: "c", Schedule: "5 0 * * *", Run: noop},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "c"}, s.Entries())
	require.NoError(t, s.Stop(context.Background()))
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := newScheduler(zap.NewNop().Sugar(), []Job{
		{Name: "bad", Schedule: "every tuesday", Run: func(context.Context) error { return nil }},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad")
}

func TestWrap_LogsOutcomeWithTrace(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s, err := newScheduler(zap.New(core).Sugar(), nil)
	require.NoError(t, err)

	var seen string
	s.wrap(Job{Name: "ok", Run: func(ctx context.Context) error {
		seen, _ = ctx.Value(logctx.KeyTraceID).(string)
		return nil
	}})()
	require.Regexp(t, `^job-`, seen)
	require.Equal(t, 1, logs.FilterMessage("job_finished").Len())

	s.wrap(Job{Name: "boom", Run: func(context.Context) error { return errors.New("down") }})()
	failed := logs.FilterMessage("job_failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, "boom", failed[0].ContextMap()["job"])
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s, err := newScheduler(zap.NewNop().Sugar(), nil)
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go s.wrap(Job{Name: "long", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}})()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.ErrorIs(t, <-done, context.Canceled)
}
