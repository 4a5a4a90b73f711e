package dispatcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/dispatcher"
)

func TestNoopLockHint_AlwaysGrants(t *testing.T) {
	var hint dispatcher.NoopLockHint
	release, ok := hint.TryAcquire(context.Background(), "session-1")
	require.True(t, ok)
	require.NotNil(t, release)
	release(context.Background())
}
