// internal/keyqueue/keyqueue.go
package keyqueue

import "sync"

// Queue serializes tasks per key: for a given key tasks run in
// submission order, one at a time, while tasks for different keys run
// independently. A failed task does not stop later tasks on the same
// key. There is no timeout or cancellation at this layer; callers own
// task latency.
type Queue struct {
	mu   sync.Mutex
	keys map[string]*chain
}

// chain tracks the tail of the pending task list for one key. The
// entry is dropped from the map once its last task finishes, so idle
// keys hold no memory.
type chain struct {
	tail    chan struct{}
	pending int
}

func New() *Queue {
	return &Queue{keys: make(map[string]*chain)}
}

// Do runs task after every previously enqueued task for key has fully
// completed, and returns the task's error. Do blocks the calling
// goroutine until the task has run.
func (q *Queue) Do(key string, task func() error) error {
	q.mu.Lock()
	c, ok := q.keys[key]
	if !ok {
		c = &chain{}
		q.keys[key] = c
	}
	prev := c.tail
	done := make(chan struct{})
	c.tail = done
	c.pending++
	q.mu.Unlock()

	defer func() {
		close(done)
		q.mu.Lock()
		c.pending--
		if c.pending == 0 {
			delete(q.keys, key)
		}
		q.mu.Unlock()
	}()

	if prev != nil {
		<-prev
	}
	return task()
}

// PendingKeys reports how many keys currently have in-flight or queued
// tasks. Used by metrics and tests.
func (q *Queue) PendingKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}
