package trustroot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openroot/romguard/pkg/fuse"
)

func TestAcceptRaisesVersionMonotonically(t *testing.T) {
	r := New(&fuse.Bank{})

	require.True(t, r.Accept(5))
	require.Equal(t, uint32(5), r.Version)

	require.True(t, r.Accept(10))
	require.Equal(t, uint32(10), r.Version)
}

func TestAcceptRejectsRollback(t *testing.T) {
	r := New(&fuse.Bank{})
	require.True(t, r.Accept(10))

	ok := r.Accept(3)
	require.False(t, ok)
	require.Equal(t, uint32(10), r.Version, "rejected accept must not mutate Version")
}

func TestAcceptAllowsRepeatingTheSameVersion(t *testing.T) {
	r := New(&fuse.Bank{})
	require.True(t, r.Accept(7))
	require.True(t, r.Accept(7))
	require.Equal(t, uint32(7), r.Version)
}

func TestResyncPeriodFromContextDefaultsWhenAbsent(t *testing.T) {
	require.Equal(t, defaultResyncPeriod, ResyncPeriodFromContext(context.Background()))
}

func TestResyncPeriodFromContextHonorsAttached(t *testing.T) {
	ctx := WithResyncPeriod(context.Background(), 30*time.Second)
	require.Equal(t, 30*time.Second, ResyncPeriodFromContext(ctx))
}
