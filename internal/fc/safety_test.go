package fc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommandRateLimitBlocksWithinInterval(t *testing.T) {
	now := time.Now()
	l := NewCommandRateLimit(2 * time.Second)
	l.now = func() time.Time { return now }

	require.True(t, l.AllowRTL())
	require.False(t, l.AllowRTL())

	now = now.Add(2*time.Second + time.Millisecond)
	require.True(t, l.AllowRTL())
}

func TestCommandRateLimitTracksRTLAndHoldIndependently(t *testing.T) {
	now := time.Now()
	l := NewCommandRateLimit(2 * time.Second)
	l.now = func() time.Time { return now }

	require.True(t, l.AllowRTL())
	require.True(t, l.AllowHold())
	require.False(t, l.AllowRTL())
	require.False(t, l.AllowHold())
}
