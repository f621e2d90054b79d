package preprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitNilHandle(t *testing.T) {
	status, err := Wait(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, status.Success())
}

func TestSpawnAndWaitSuccess(t *testing.T) {
	h, err := Spawn([]string{"true"}, nil)
	require.NoError(t, err)
	status, err := Wait(context.Background(), h)
	require.NoError(t, err)
	require.True(t, status.Success())
}

func TestSpawnAndWaitFailure(t *testing.T) {
	h, err := Spawn([]string{"false"}, nil)
	require.NoError(t, err)
	status, err := Wait(context.Background(), h)
	require.NoError(t, err)
	require.False(t, status.Success())
}

func TestWaitCancelled(t *testing.T) {
	h, err := Spawn([]string{"sleep", "5"}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Wait(ctx, h)
	require.Error(t, err)
	h.cmd.Process.Kill()
}
