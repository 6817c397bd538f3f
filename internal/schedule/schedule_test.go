package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryRepeatsUntilCancelled(t *testing.T) {
	var n atomic.Int32

	task := Every(context.Background(), 5*time.Millisecond, func(context.Context) {
		n.Add(1)
	})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	task.Cancel()
	<-task.Done()

	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, n.Load())
}

func TestAfterFiresOnce(t *testing.T) {
	fired := make(chan struct{}, 2)

	task := After(context.Background(), 5*time.Millisecond, func(context.Context) {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	<-task.Done()
	require.Len(t, fired, 0)
}

func TestAfterCancelledBeforeFiring(t *testing.T) {
	var fired atomic.Bool

	task := After(context.Background(), 20*time.Millisecond, func(context.Context) {
		fired.Store(true)
	})
	task.Cancel()
	task.Cancel()
	<-task.Done()

	time.Sleep(40 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestParentContextStopsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Every(ctx, time.Millisecond, func(context.Context) {})

	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task outlived its parent context")
	}
}

func TestCancelNilTask(t *testing.T) {
	var task *Task
	require.NotPanics(t, task.Cancel)
}
