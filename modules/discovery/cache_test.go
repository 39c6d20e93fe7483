package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheWriteOnce(t *testing.T) {
	var c Cache

	_, probed := c.Lookup(Fan, 10)
	require.False(t, probed)

	require.True(t, c.Store(Fan, 10, true))
	require.False(t, c.Store(Fan, 10, false))

	valid, probed := c.Lookup(Fan, 10)
	require.True(t, probed)
	require.True(t, valid)

	_, probed = c.Lookup(PWM, 10)
	require.False(t, probed)

	require.False(t, c.Store(Category(7), 1, true))
}
