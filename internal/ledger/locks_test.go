package ledger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestUniqueSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueSorted([]string{"c", "a", "b", "a"}))
	assert.Empty(t, uniqueSorted(nil))

	in := []string{"b", "a"}
	uniqueSorted(in)
	assert.Equal(t, []string{"b", "a"}, in, "input is not modified")
}

func TestPlayerLocksMutualExclusion(t *testing.T) {
	l := newPlayerLocks()
	var inside, maxInside int32

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		keys := []string{"user:1", "user:2"}
		if i%2 == 1 {
			keys = []string{"user:2", "user:1"}
		}
		g.Go(func() error {
			release, err := l.acquire(context.Background(), keys...)
			if err != nil {
				return err
			}
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.size())
}

func TestPlayerLocksDisjointKeysDoNotBlock(t *testing.T) {
	l := newPlayerLocks()
	release, err := l.acquire(context.Background(), "user:1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := l.acquire(ctx, "user:2")
	require.NoError(t, err)
	other()
	assert.Equal(t, 1, l.size())
}

func TestPlayerLocksCancelWhileWaiting(t *testing.T) {
	l := newPlayerLocks()
	release, err := l.acquire(context.Background(), "user:2")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "user:1", "user:2")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// user:1 was taken first and must have been released on failure
	assert.Equal(t, 1, l.size())
	again, err := l.acquire(context.Background(), "user:1")
	require.NoError(t, err)
	again()

	release()
	assert.Equal(t, 0, l.size())
}
