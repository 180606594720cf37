// Package future provides a single-shot promise and a keyed registry of
// pending promises, used to turn notification-driven transports into
// request/response calls.
package future

import (
	"sync"
)

// Future is a single-shot result cell. Complete and Cancel both settle the
// cell exactly once; the exported channels allow waiting in a custom select.
type Future struct {
	result    interface{}
	completed chan struct{}
	cancelled chan struct{}
	done      bool
	mutex     sync.Mutex
}

func New() *Future {
	return &Future{
		completed: make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (f *Future) Completed() <-chan struct{} { return f.completed }
func (f *Future) Cancelled() <-chan struct{} { return f.cancelled }

func (f *Future) Complete(result interface{}) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.done {
		return false
	}
	f.result = result
	f.done = true
	close(f.completed)
	return true
}

func (f *Future) Cancel(result interface{}) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.done {
		return false
	}
	f.result = result
	f.done = true
	close(f.cancelled)
	return true
}

func (f *Future) Result() interface{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.result
}
