// Package schedule runs periodic and one-shot callbacks that are owned by a
// component and cancelled on its teardown.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Task is a scheduled callback. The zero value is not usable; use Every or After.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every calls fn every interval until the task is cancelled or ctx ends.
// The first call happens one interval after scheduling.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()

	return t
}

// After calls fn once after d unless the task is cancelled first.
func After(ctx context.Context, d time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
			fn(ctx)
		}
	}()

	return t
}

// Cancel stops the task. It does not wait for a running callback; callbacks
// must check ownership themselves when they take locks shared with the caller.
// Safe on a nil task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
