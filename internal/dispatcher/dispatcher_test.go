package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher result")
		return nil
	}
}

func TestDispatcherStartsUninitialized(t *testing.T) {
	d := New(Async)
	assert.Equal(t, StateUninitialized, d.State())
}

func TestDispatcherPreInitTasksRunAfterFlush(t *testing.T) {
	d := New(Async)
	var order []int
	var mu sync.Mutex
	for i := 0; i < 3; i++ {
		i := i
		d.Dispatch(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	assert.Equal(t, StateUninitialized, d.State())

	d.FlushInit()
	d.Shutdown()

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, StateShutdown, d.State())
}

func TestDispatcherPreInitQueueOverflowDropsTask(t *testing.T) {
	d := New(Async, WithMaxPreInitQueueSize(2))
	ch1 := d.Dispatch(func(ctx context.Context) error { return nil })
	ch2 := d.Dispatch(func(ctx context.Context) error { return nil })
	ch3 := d.Dispatch(func(ctx context.Context) error { return nil })

	d.FlushInit()
	defer d.Shutdown()

	require.NoError(t, waitErr(t, ch1))
	require.NoError(t, waitErr(t, ch2))
	err3 := waitErr(t, ch3)
	require.Error(t, err3)
	assert.ErrorIs(t, err3, errQueueFull)
}

func TestDispatcherSyncModeRunsInline(t *testing.T) {
	d := New(Sync)
	d.FlushInit()

	var ran bool
	ch := d.Dispatch(func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, waitErr(t, ch))
	assert.True(t, ran)
}

func TestDispatcherAsyncOrderingMatchesSync(t *testing.T) {
	run := func(mode Mode) []int {
		d := New(mode)
		d.FlushInit()
		var mu sync.Mutex
		var order []int
		var chans []<-chan error
		for i := 0; i < 5; i++ {
			i := i
			chans = append(chans, d.Dispatch(func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			}))
		}
		for _, ch := range chans {
			<-ch
		}
		d.Shutdown()
		return order
	}

	assert.Equal(t, run(Sync), run(Async))
}

func TestDispatcherPersistentTaskSurvivesClear(t *testing.T) {
	d := New(Sync)
	d.FlushInit()

	var persistentRan, taskRan int32
	d.Stop()

	d.DispatchPersistent(func(ctx context.Context) error {
		atomic.AddInt32(&persistentRan, 1)
		return nil
	})
	d.Dispatch(func(ctx context.Context) error {
		atomic.AddInt32(&taskRan, 1)
		return nil
	})

	d.Clear()
	d.Resume()

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&persistentRan))
	assert.EqualValues(t, 0, atomic.LoadInt32(&taskRan))
}

func TestDispatcherClearResolvesTestTaskWaiters(t *testing.T) {
	d := New(Sync)
	d.FlushInit()
	d.Stop()

	ch := d.DispatchTest(func(ctx context.Context) error { return nil })
	d.Clear()

	err := waitErr(t, ch)
	assert.ErrorIs(t, err, errCleared)
}

func TestDispatcherClearResolvesPreInitTestTaskWaiters(t *testing.T) {
	d := New(Async)
	ch := d.DispatchTest(func(ctx context.Context) error { return nil })
	d.Clear()

	err := waitErr(t, ch)
	assert.ErrorIs(t, err, errCleared)
}

func TestDispatcherInitTaskFailureEscalatesToShutdown(t *testing.T) {
	d := New(Sync)
	boom := errors.New("boom")

	d.DispatchInit(func(ctx context.Context) error { return boom })
	d.FlushInit()

	// FlushInit synchronously drains the InitTask under Sync mode, so the
	// escalation to Shutdown has already happened by the time it returns.
	assert.Equal(t, StateShutdown, d.State())
}

func TestDispatcherShutdownIsIrreversibleAndIdempotent(t *testing.T) {
	d := New(Async)
	d.FlushInit()
	d.Shutdown()
	d.Shutdown()

	assert.Equal(t, StateShutdown, d.State())
	ch := d.Dispatch(func(ctx context.Context) error { return nil })
	err := waitErr(t, ch)
	assert.ErrorIs(t, err, errShutdown)
}

func TestDispatcherPanicRecoveredAsFailure(t *testing.T) {
	d := New(Sync)
	d.FlushInit()
	ch := d.Dispatch(func(ctx context.Context) error {
		panic("kaboom")
	})
	err := waitErr(t, ch)
	assert.ErrorIs(t, err, errTaskPanicked)
}

func TestDispatcherStopPreventsExecutionUntilResume(t *testing.T) {
	d := New(Async)
	d.FlushInit()
	d.Stop()

	var ran int32
	d.Dispatch(func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&ran))

	d.Resume()
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))

	d.Shutdown()
}
