package tool

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var referencePattern = regexp.MustCompile(`^RL-[0-9A-F]{16}$`)

func TestGenerateReference(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		ref := GenerateReference()
		require.Regexp(t, referencePattern, ref)
		_, dup := seen[ref]
		require.False(t, dup)
		seen[ref] = struct{}{}
	}
}

func TestGenerateUUIDV7(t *testing.T) {
	a, b := GenerateUUIDV7(), GenerateUUIDV7()
	require.Len(t, a, 36)
	require.NotEqual(t, a, b)
}
