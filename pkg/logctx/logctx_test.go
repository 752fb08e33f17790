package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtxEnrichesBase(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := context.WithValue(context.Background(), KeyTraceID, "trace-1")
	ctx = WithUserID(ctx, "user-1")
	FromCtx(ctx, base).Infow("payment_initialized")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "trace-1", fields["trace_id"])
	require.Equal(t, "user-1", fields["user_id"])
}

func TestWithUserIDDecoratesRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reqLogger := zap.New(core).Sugar().With("trace_id", "trace-2")

	ctx := context.WithValue(context.Background(), KeyLogger, reqLogger)
	ctx = WithUserID(ctx, "user-2")
	require.Equal(t, "user-2", UserID(ctx))

	FromCtx(ctx, zap.NewNop().Sugar()).Infow("hello")
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "trace-2", fields["trace_id"])
	require.Equal(t, "user-2", fields["user_id"])
}
