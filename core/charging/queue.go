package charging

import (
	"sync"

	"github.com/kilianp07/warehouse/core/model"
)

// RequestQueue is a FIFO of charging requests safe for concurrent use.
type RequestQueue struct {
	mu    sync.Mutex
	items []*model.AGV
}

// NewRequestQueue returns an empty queue.
func NewRequestQueue() *RequestQueue { return &RequestQueue{} }

// Add appends agv to the tail.
func (q *RequestQueue) Add(agv *model.AGV) {
	q.mu.Lock()
	q.items = append(q.items, agv)
	q.mu.Unlock()
}

// Peek returns the head without removing it.
func (q *RequestQueue) Peek() (*model.AGV, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Poll removes and returns the head.
func (q *RequestQueue) Poll() (*model.AGV, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return head, true
}

// IsEmpty is advisory: the answer may be stale as soon as it is returned.
func (q *RequestQueue) IsEmpty() bool { return q.Len() == 0 }

// Len returns the number of queued requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns copies of the queued requests in order.
func (q *RequestQueue) Snapshot() []model.AGV {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.AGV, len(q.items))
	for i, a := range q.items {
		out[i] = *a
	}
	return out
}

// Contains reports whether a request for the AGV id is queued.
func (q *RequestQueue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range q.items {
		if a.ID == id {
			return true
		}
	}
	return false
}
