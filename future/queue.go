package future

import (
	"sync"
	"time"

	"github.com/marine-iot/vvmgate/logx"
)

// Queue is a keyed registry of pending futures. At most one pending future
// exists per key; resolving removes the entry, so a later Register for the
// same key always yields a fresh cell with no memory of past resolutions.
type Queue struct {
	mutex   sync.Mutex
	pending map[string]*Future
	log     *logx.Log
}

func NewQueue(log *logx.Log) *Queue {
	return &Queue{
		pending: make(map[string]*Future),
		log:     log,
	}
}

// Register returns the pending future for key, creating one if absent.
func (q *Queue) Register(key string) *Future {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if f, ok := q.pending[key]; ok {
		q.log.Debugf("future: reuse pending key=%s", key)
		return f
	}
	f := New()
	q.pending[key] = f
	q.log.Debugf("future: new pending key=%s", key)
	return f
}

// RegisterFunc attaches fn to the pending future for key. fn runs exactly
// once, on its own goroutine, with the settled result.
func (q *Queue) RegisterFunc(key string, fn func(result interface{})) {
	f := q.Register(key)
	go func() {
		select {
		case <-f.Completed():
		case <-f.Cancelled():
		}
		fn(f.Result())
	}()
}

// Trigger settles the pending future for key with value and removes it.
// Returns false when nobody was listening; that is not an error.
func (q *Queue) Trigger(key string, value interface{}) bool {
	q.mutex.Lock()
	f, ok := q.pending[key]
	if ok {
		delete(q.pending, key)
	}
	q.mutex.Unlock()
	if !ok {
		q.log.Debugf("future: trigger key=%s no listener", key)
		return false
	}
	f.Complete(value)
	return true
}

// WaitFor awaits the pending future for key up to timeout. When no entry is
// pending - never registered, or already resolved and removed - it returns
// def immediately; callers are expected to register before waiting, not
// after. On timeout the future stays registered untouched.
func (q *Queue) WaitFor(key string, timeout time.Duration, def interface{}) interface{} {
	q.mutex.Lock()
	f, ok := q.pending[key]
	q.mutex.Unlock()
	if !ok {
		q.log.Debugf("future: wait key=%s not pending", key)
		return def
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.Completed():
		return f.Result()
	case <-f.Cancelled():
		return f.Result()
	case <-t.C:
		q.log.Debugf("future: wait key=%s timeout", key)
		return def
	}
}
