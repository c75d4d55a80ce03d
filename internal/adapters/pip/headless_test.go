package pip

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadless_EnterExit(t *testing.T) {
	var seen []string
	h := NewHeadless(func(ref string) { seen = append(seen, ref) })

	assert.ErrorIs(t, h.Exit(), ErrNotActive)
	assert.ErrorIs(t, h.Enter(context.Background(), ""), ErrEmptyRef)

	require.NoError(t, h.Enter(context.Background(), "local-1"))
	assert.Equal(t, "local-1", h.Showing())
	require.NoError(t, h.Exit())
	assert.Empty(t, h.Showing())

	assert.Equal(t, []string{"local-1", ""}, seen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.Enter(ctx, "x"), context.Canceled)
}
