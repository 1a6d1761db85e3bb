// Package workerpool runs tasks on a fixed number of goroutines.
//
// Shutdown first lets queued and running tasks finish. When the caller's
// deadline expires the task context is cancelled and running tasks are
// expected to return promptly. Tasks still queued at that point are invoked
// once with the cancelled context so they can release what they hold.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/warehouse/core/logger"
)

// ErrClosed is returned by Submit once Shutdown has been called.
var ErrClosed = errors.New("workerpool: closed")

// Task is a unit of work. ctx is cancelled on forced shutdown; a task that
// receives a done context must give up its work but still clean up.
type Task func(ctx context.Context)

// Pool is a bounded execution pool.
type Pool struct {
	name    string
	tasks   chan Task
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	log     logger.Logger
	mu      sync.RWMutex
	closed  bool
	quit    chan struct{}
	once    sync.Once
	running atomic.Int64
	skipped atomic.Int64
}

// New starts size workers. queue bounds the number of tasks waiting for a
// worker; Submit blocks while the queue is full.
func New(name string, size, queue int, log logger.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("workerpool %s: size must be positive", name)
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		tasks:  make(chan Task, queue),
		ctx:    ctx,
		cancel: cancel,
		g:      &errgroup.Group{},
		log:    log,
		quit:   make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.g.Go(p.work)
	}
	return p, nil
}

func (p *Pool) work() error {
	for t := range p.tasks {
		if p.ctx.Err() != nil {
			p.skipped.Add(1)
		}
		p.run(t)
	}
	return nil
}

func (p *Pool) run(t Task) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.Errorf("%s: task panic: %v", p.name, r)
		}
	}()
	t(p.ctx)
}

// Submit queues t for execution.
func (p *Pool) Submit(t Task) error {
	if t == nil {
		return fmt.Errorf("workerpool %s: nil task", p.name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	case <-p.quit:
		return ErrClosed
	}
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Skipped returns the number of queued tasks that only saw a cancelled
// context because of a forced shutdown.
func (p *Pool) Skipped() int { return int(p.skipped.Load()) }

// Shutdown stops accepting tasks and waits for the queue to drain. If ctx
// expires first, in-flight tasks are cancelled and ctx.Err() is returned
// once every worker has exited.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		// wakes Submit calls blocked on a full queue so the lock is free
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
