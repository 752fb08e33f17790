package gormlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortCaller(t *testing.T) {
	require.Equal(t, "internal/platform/db/postgres.go:38", shortCaller("/home/ci/billing/internal/platform/db/postgres.go:38"))
	require.Equal(t, "pkg/x/y.go:12", shortCaller(`C:/repo/project/pkg/x/y.go:12`))
	require.Equal(t, "b/c/d.go:1", shortCaller("/a/b/c/d.go:1"))
	require.Equal(t, "", shortCaller(""))
}
