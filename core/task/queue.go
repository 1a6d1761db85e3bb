package task

import "sync"

// Queue is a FIFO of task ids safe for concurrent use.
type Queue struct {
	mu  sync.Mutex
	ids []string
}

// Add appends id to the back of the queue.
func (q *Queue) Add(id string) {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
}

// Next removes and returns the oldest id.
func (q *Queue) Next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	return id, true
}

// IsEmpty reports whether no id is queued.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
