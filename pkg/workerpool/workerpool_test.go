package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunBoundsConcurrency(t *testing.T) {
	pool := New("test", 2)
	var active, maxActive int64

	err := pool.Run(context.Background(), 10, func(_ context.Context, _ int) error {
		n := atomic.AddInt64(&active, 1)
		for {
			cur := atomic.LoadInt64(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt64(&maxActive, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return nil
	})

	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt64(&maxActive), int64(2))
}

func TestPoolRunReturnsFirstError(t *testing.T) {
	pool := New("test", 4)
	wantErr := errors.New("boom")

	err := pool.Run(context.Background(), 5, func(_ context.Context, i int) error {
		if i == 2 {
			return wantErr
		}
		return nil
	})
	require.ErrorIs(t, err, wantErr)
}

func TestGroupedListenerFiresOnceAllComplete(t *testing.T) {
	g := NewGroupedListener[int](3, nil)
	g.OnResponse(1)
	g.OnResponse(2)
	g.OnResponse(3)

	results, err := g.Wait()
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 2, 3}, results)
}

func TestGroupedListenerForwardsFirstFailure(t *testing.T) {
	g := NewGroupedListener[int](2, nil)
	wantErr := errors.New("shard failed")
	g.OnFailure(wantErr)
	g.OnResponse(1)

	_, err := g.Wait()
	require.ErrorIs(t, err, wantErr)
}

func TestAssertPoolThreadNoopWithoutChecker(t *testing.T) {
	require.NotPanics(t, func() { AssertPoolThread("snapshot") })
}

func TestAssertPoolThreadPanicsWhenCheckerRejects(t *testing.T) {
	SetThreadChecker(func(pool string) bool { return false })
	defer SetThreadChecker(nil)

	require.Panics(t, func() { AssertPoolThread("snapshot") })
}
