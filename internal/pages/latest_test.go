package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_LatestWins(t *testing.T) {
	l := NewLatest()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	type outcome struct {
		v   string
		err error
		ctx error
	}
	first := make(chan outcome, 1)

	go func() {
		var fctxErr error
		v, err := Fetch(ctx, l, "client-1/post", func(fctx context.Context) string {
			close(started)
			<-release
			fctxErr = fctx.Err()
			return "old"
		})
		first <- outcome{v, err, fctxErr}
	}()

	<-started
	v, err := Fetch(ctx, l, "client-1/post", func(context.Context) string { return "new" })
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(release)
	got := <-first
	assert.ErrorIs(t, got.err, ErrStale)
	assert.Empty(t, got.v)
	assert.ErrorIs(t, got.ctx, context.Canceled)
	assert.Zero(t, l.Pending())
}

func TestFetch_SlotsAreIndependent(t *testing.T) {
	l := NewLatest()
	ctx := context.Background()

	v, err := Fetch(ctx, l, "a", func(context.Context) int {
		w, err := Fetch(ctx, l, "b", func(context.Context) int { return 2 })
		require.NoError(t, err)
		return w + 1
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFetch_ZeroValueTracker(t *testing.T) {
	var l Latest
	v, err := Fetch(context.Background(), &l, "x", func(context.Context) bool { return true })
	require.NoError(t, err)
	assert.True(t, v)
}
