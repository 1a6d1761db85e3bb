package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/logger"
	"github.com/kilianp07/warehouse/internal/eventbus"
	"github.com/kilianp07/warehouse/internal/workerpool"
)

// Work executes one task. It must return once ctx is done.
type Work func(ctx context.Context, t Task) error

// Simulate returns a Work that takes d to carry out each task.
func Simulate(d time.Duration) Work {
	return func(ctx context.Context, _ Task) error {
		if d <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Options carries the optional collaborators of a Manager.
type Options struct {
	Workers int
	Logger  logger.Logger
	Bus     *eventbus.TypedBus[events.TaskEvent]
	// Work defaults to Simulate with DefaultDurationMS.
	Work Work
}

// Manager owns the task queue and the workers executing it.
type Manager struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	queue  *Queue
	pool   *workerpool.Pool
	work   Work
	closed atomic.Bool
	log    logger.Logger
	bus    *eventbus.TypedBus[events.TaskEvent]
	now    func() time.Time
}

// NewManager starts opts.Workers task workers.
func NewManager(opts Options) (*Manager, error) {
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Work == nil {
		opts.Work = Simulate(DefaultDurationMS * time.Millisecond)
	}
	log := logger.OrNop(opts.Logger)
	pool, err := workerpool.New("tasks", opts.Workers, 64, log)
	if err != nil {
		return nil, err
	}
	return &Manager{
		tasks: make(map[string]*Task),
		queue: &Queue{},
		pool:  pool,
		work:  opts.Work,
		log:   log,
		bus:   opts.Bus,
		now:   time.Now,
	}, nil
}

// Create registers a PENDING task at the back of the queue.
func (m *Manager) Create(typ, source, destination string) (Task, error) {
	if typ == "" {
		return Task{}, ErrEmptyType
	}
	now := m.now()
	t := &Task{
		ID:          "T-" + uuid.NewString(),
		Type:        typ,
		Source:      source,
		Destination: destination,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.mu.Lock()
	m.tasks[t.ID] = t
	snap := *t
	m.mu.Unlock()
	m.queue.Add(t.ID)

	m.log.Infof("Created task %s: %s from %s to %s", t.ID, typ, source, destination)
	m.publish(snap, nil)
	return snap, nil
}

// Assign takes a PENDING task IN_PROGRESS outside of the queue order.
func (m *Manager) Assign(id string) (Task, error) {
	return m.transition(id, StatusPending, StatusInProgress, nil)
}

// Complete marks an IN_PROGRESS task COMPLETED.
func (m *Manager) Complete(id string) (Task, error) {
	return m.transition(id, StatusInProgress, StatusCompleted, nil)
}

// Fail marks an IN_PROGRESS task FAILED with cause.
func (m *Manager) Fail(id string, cause error) (Task, error) {
	if cause == nil {
		cause = errors.New("task: failed")
	}
	return m.transition(id, StatusInProgress, StatusFailed, cause)
}

func (m *Manager) transition(id string, from, to Status, cause error) (Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status != from {
		st := t.Status
		m.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidStatus, id, st, from)
	}
	t.Status = to
	t.UpdatedAt = m.now()
	if cause != nil {
		t.Failure = cause.Error()
	}
	snap := *t
	m.mu.Unlock()

	switch to {
	case StatusInProgress:
		m.log.Infof("Task %s assigned", id)
	case StatusCompleted:
		m.log.Infof("Task %s completed", id)
		tasksFinished.WithLabelValues(snap.Type, string(to)).Inc()
	case StatusFailed:
		m.log.Errorf("Task %s failed: %v", id, cause)
		tasksFinished.WithLabelValues(snap.Type, string(to)).Inc()
	}
	m.publish(snap, cause)
	return snap, nil
}

// AssignNext takes the oldest PENDING task IN_PROGRESS. Ids of tasks
// already assigned directly are dropped from the queue.
func (m *Manager) AssignNext() (Task, bool) {
	for {
		id, ok := m.queue.Next()
		if !ok {
			return Task{}, false
		}
		if t, err := m.Assign(id); err == nil {
			return t, true
		}
	}
}

// Process hands every queued task to the workers in FIFO order and returns
// how many were started. It blocks while the worker queue is full.
func (m *Manager) Process() (int, error) {
	started := 0
	for {
		if m.closed.Load() {
			return started, ErrClosed
		}
		t, ok := m.AssignNext()
		if !ok {
			return started, nil
		}
		if err := m.pool.Submit(m.execute(t)); err != nil {
			if errors.Is(err, workerpool.ErrClosed) {
				err = ErrClosed
			}
			if _, ferr := m.Fail(t.ID, err); ferr != nil {
				m.log.Warnf("task %s: %v", t.ID, ferr)
			}
			return started, err
		}
		started++
	}
}

func (m *Manager) execute(t Task) workerpool.Task {
	return func(ctx context.Context) {
		var err error
		if ctx.Err() != nil {
			err = ErrInterrupted
		} else if err = m.work(ctx, t); err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		if err != nil {
			_, err = m.Fail(t.ID, err)
		} else {
			_, err = m.Complete(t.ID)
		}
		if err != nil {
			m.log.Warnf("task %s: %v", t.ID, err)
		}
	}
}

// HasPending reports whether a task is still waiting for a worker.
func (m *Manager) HasPending() bool { return m.count(StatusPending) > 0 }

// Running returns the number of IN_PROGRESS tasks.
func (m *Manager) Running() int { return m.count(StatusInProgress) }

func (m *Manager) count(st Status) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if t.Status == st {
			n++
		}
	}
	return n
}

// Get returns a copy of the task id.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks, oldest first.
func (m *Manager) List() []Task {
	m.mu.RLock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown stops accepting work and waits for running tasks. On a forced
// stop, tasks that had not finished end FAILED with ErrInterrupted; tasks
// never handed to a worker stay PENDING.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)
	err := m.pool.Shutdown(ctx)
	if err != nil {
		m.log.Warnf("task manager forced to stop, %d tasks interrupted before start: %v", m.pool.Skipped(), err)
	}
	return err
}

func (m *Manager) publish(t Task, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.TaskEvent{
		TaskID:      t.ID,
		Type:        t.Type,
		Source:      t.Source,
		Destination: t.Destination,
		Status:      string(t.Status),
		Err:         err,
		Time:        t.UpdatedAt,
	})
}
