package transfer

import (
	"golang.org/x/sync/errgroup"
)

// Task is a started transfer
type Task struct {
	group    errgroup.Group
	done     chan struct{}
	detached bool

	result *Result
	err    error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Wait blocks until the transfer and any deletion pass have finished.
// A detached task returns immediately.
func (t *Task) Wait() (*Result, error) {
	if t.detached {
		return t.result, nil
	}
	t.group.Wait()
	return t.result, t.err
}

// Done is closed when Wait would no longer block
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Detached reports whether rsync was left running in the background
// without being awaited
func (t *Task) Detached() bool {
	return t.detached
}
