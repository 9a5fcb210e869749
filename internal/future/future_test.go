package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteAndWait(t *testing.T) {
	p, f := New[int]()
	assert.False(t, f.Resolved())

	go p.Complete(42)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, f.Resolved())
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	p, f := New[string]()
	p.Fail(boom)

	_, err := f.Value()
	assert.ErrorIs(t, err, boom)
}

func TestFirstResolutionWins(t *testing.T) {
	p, f := New[int]()
	p.Complete(1)
	p.Complete(2)
	p.Fail(errors.New("late"))

	v, err := f.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitCancelled(t *testing.T) {
	_, f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompletedAndFailedConstructors(t *testing.T) {
	v, err := Completed(7).Value()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	boom := errors.New("boom")
	_, err = Failed[int](boom).Value()
	assert.ErrorIs(t, err, boom)
}

func TestSlotSingleWinner(t *testing.T) {
	var slot Slot[int]
	var wins atomic.Int32
	var wg sync.WaitGroup

	var winnerPromise *Promise[int]
	var mu sync.Mutex
	futures := make([]*Future[int], 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, f, started := slot.Begin()
			futures[i] = f
			if started {
				wins.Add(1)
				mu.Lock()
				winnerPromise = p
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	winnerPromise.Complete(99)

	// Every caller shares the one in-flight future.
	for _, f := range futures {
		v, err := f.Value()
		require.NoError(t, err)
		assert.Equal(t, 99, v)
	}
}

func TestSlotClear(t *testing.T) {
	var slot Slot[int]

	p, f, started := slot.Begin()
	require.True(t, started)
	assert.Same(t, f, slot.Pending())

	p.Complete(1)
	slot.Clear(f)
	assert.Nil(t, slot.Pending())

	// A stale future no longer clears a fresh one.
	_, f2, started := slot.Begin()
	require.True(t, started)
	slot.Clear(f)
	assert.Same(t, f2, slot.Pending())
}
