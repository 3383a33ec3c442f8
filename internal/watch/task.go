package watch

import (
	"context"
	"sync"
)

// Task is a running poll loop. It ends Complete when the expected step
// count is reached, or Failed when cancelled or timed out.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state State
	err   error
	ticks int
}

// Cancel stops the task. The task ends Failed with context.Canceled unless
// it already finished.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task has stopped.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task stops or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err is nil while polling and after completion.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Ticks is the number of processed poll ticks.
func (t *Task) Ticks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

func (t *Task) addTick() {
	t.mu.Lock()
	t.ticks++
	t.mu.Unlock()
}

func (t *Task) setResult(state State, err error) {
	t.mu.Lock()
	t.state = state
	t.err = err
	t.mu.Unlock()
}
