package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLimiterFIFOOrder(t *testing.T) {
	l := NewLimiter(0)
	defer l.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		// Enqueue sequentially so queue order is deterministic, wait in
		// parallel.
		done := make(chan struct{})
		go func() {
			defer wg.Done()
			close(done)
			_ = l.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		<-done
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLimiterMinInterval(t *testing.T) {
	const interval = 50 * time.Millisecond
	l := NewLimiter(interval)
	defer l.Close()

	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		err := l.Do(context.Background(), func(context.Context) error {
			timestamps = append(timestamps, time.Now())
			return nil
		})
		require.NoError(t, err)
	}

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		require.GreaterOrEqual(t, gap, interval, "gap between task %d and %d", i-1, i)
	}
}

func TestLimiterFailureDoesNotBlockQueue(t *testing.T) {
	l := NewLimiter(0)
	defer l.Close()

	boom := errors.New("boom")
	err := l.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	err = l.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestLimiterCancelledWhileQueued(t *testing.T) {
	l := NewLimiter(0)
	defer l.Close()

	block := make(chan struct{})
	go func() {
		_ = l.Do(context.Background(), func(context.Context) error {
			<-block
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := l.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	close(block)
	require.ErrorIs(t, err, context.Canceled)

	// Give the loop a beat to drain; the cancelled task must not have run.
	time.Sleep(20 * time.Millisecond)
	require.False(t, ran)
}

func TestLimiterClosed(t *testing.T) {
	l := NewLimiter(0)
	l.Close()
	err := l.Do(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLimiterClosed)
}
