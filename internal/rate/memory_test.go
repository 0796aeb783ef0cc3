package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	base := time.Date(2024, 1, 1, 10, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4|/o365auth/init")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.EqualValues(t, 3-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "1.2.3.4|/o365auth/init")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 50*time.Second, res.RetryAfter)

	// Otra key no comparte contador.
	res, err = l.Allow(ctx, "5.6.7.8|/o365auth/init")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Ventana siguiente.
	l.now = func() time.Time { return base.Add(time.Minute) }
	res, err = l.Allow(ctx, "1.2.3.4|/o365auth/init")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestBuildResult(t *testing.T) {
	r := buildResult(5, 3, -1, 30*time.Second)
	require.False(t, r.Allowed)
	require.EqualValues(t, 0, r.Remaining)
	require.Equal(t, 30*time.Second, r.RetryAfter)
}

func TestNeedsExpiry(t *testing.T) {
	require.True(t, needsExpiry(1, -1))
	require.True(t, needsExpiry(1, 30*time.Second))
	// un EXPIRE perdido se repara en el siguiente hit
	require.True(t, needsExpiry(7, -1))
	require.False(t, needsExpiry(7, 20*time.Second))
}
