package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w := New("test", nil)
	t.Cleanup(w.Close)
	return w
}

func TestCall_ReturnsResult(t *testing.T) {
	w := newTestWorker(t)

	got, err := Call(context.Background(), w, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	boom := errors.New("boom")
	_, err = Call(context.Background(), w, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestWorker_RunsJobsInSubmissionOrder(t *testing.T) {
	w := New("order", nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		require.NoError(t, w.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	w.Close()

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestWorker_SerializesConcurrentCallers(t *testing.T) {
	w := newTestWorker(t)

	// Unsynchronized counter: only safe because jobs never overlap.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Do(context.Background(), w, func() error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := Call(context.Background(), w, func() (int, error) { return counter, nil })
	require.NoError(t, err)
	assert.Equal(t, 50, got)
}

func TestCall_ContextBoundsOnlyTheWait(t *testing.T) {
	w := newTestWorker(t)

	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, w.Submit(func() {
		<-release
		close(finished)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	_, err := Call(ctx, w, func() (int, error) {
		ran = true
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The blocking job started before the deadline still completes.
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("started job did not complete")
	}

	// The abandoned job is skipped.
	_, err = Call(context.Background(), w, func() (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestCall_CancelledContext(t *testing.T) {
	w := newTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, w, func() (int, error) {
		t.Error("job must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose_DrainsQueuedJobs(t *testing.T) {
	w := New("drain", nil)

	count := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Submit(func() { count++ }))
	}
	w.Close()
	assert.Equal(t, 10, count)

	assert.ErrorIs(t, w.Submit(func() {}), ErrClosed)
	_, err := Call(context.Background(), w, func() (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrClosed)

	// Idempotent.
	w.Close()
}
