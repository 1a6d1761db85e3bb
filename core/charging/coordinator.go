package charging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/logger"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/internal/eventbus"
	"github.com/kilianp07/warehouse/internal/workerpool"
)

// DefaultAcquireTimeout bounds a single wait for a free bay.
const DefaultAcquireTimeout = 300 * time.Millisecond

type dispatchState int

const (
	stateIdle dispatchState = iota
	stateDispatching
)

func (s dispatchState) String() string {
	if s == stateDispatching {
		return "dispatching"
	}
	return "idle"
}

// Options carries the optional collaborators of a Coordinator.
type Options struct {
	Logger logger.Logger
	Bus    *eventbus.TypedBus[events.ChargingEvent]
	// Clock stamps arrivals and measures waits. Defaults to the real clock.
	Clock clock.PassiveClock
	// Failure injects station malfunctions. Defaults to DefaultFailureRate.
	Failure        FailurePolicy
	Profile        ChargeProfile
	AcquireTimeout time.Duration
	// PoolSize bounds concurrently running workers. Defaults to the station count.
	PoolSize int
}

// Coordinator assigns queued AGVs to charging stations.
type Coordinator struct {
	stations  []string
	busy      []bool
	charging  []string // AGV id per busy station
	cursor    int
	stationMu sync.Mutex

	queue          *RequestQueue
	slots          *semaphore.Weighted
	pool           *workerpool.Pool
	dropThreshold  time.Duration
	acquireTimeout time.Duration

	clock   clock.PassiveClock
	failure FailurePolicy
	profile ChargeProfile
	log     logger.Logger
	bus     *eventbus.TypedBus[events.ChargingEvent]

	stateMu    sync.Mutex
	state      dispatchState
	closed     bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	// loops counts live dispatch loops, launches every loop ever started.
	loops, peakLoops, launches int
	// beforeIdle runs when the loop finds the queue empty, before it
	// tries to go idle. Tests use it to race Submit against the reset.
	beforeIdle func()

	baseCtx    context.Context
	baseCancel context.CancelFunc
	active     atomic.Int32
}

// NewCoordinator creates a coordinator for the given stations. Station ids are
// copied; dropThreshold is the longest a request may wait before eviction.
func NewCoordinator(stations []string, dropThreshold time.Duration, opts Options) (*Coordinator, error) {
	if err := validateStations(stations); err != nil {
		return nil, err
	}
	if dropThreshold <= 0 {
		return nil, ErrInvalidThreshold
	}
	log := logger.OrNop(opts.Logger)
	size := opts.PoolSize
	if size <= 0 {
		size = len(stations)
	}
	pool, err := workerpool.New("charging", size, len(stations), log)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		stations:       append([]string(nil), stations...),
		busy:           make([]bool, len(stations)),
		charging:       make([]string, len(stations)),
		queue:          NewRequestQueue(),
		slots:          semaphore.NewWeighted(int64(len(stations))),
		pool:           pool,
		dropThreshold:  dropThreshold,
		acquireTimeout: opts.AcquireTimeout,
		clock:          opts.Clock,
		failure:        opts.Failure,
		profile:        opts.Profile,
		log:            log,
		bus:            opts.Bus,
	}
	if c.acquireTimeout <= 0 {
		c.acquireTimeout = DefaultAcquireTimeout
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.failure == nil {
		c.failure = NewRandomFailure(DefaultFailureRate, 0)
	}
	if c.profile == (ChargeProfile{}) {
		c.profile = DefaultProfile
	}
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	c.log.Infof("Initialized with %d stations", len(stations))
	return c, nil
}

// Submit queues agv and makes sure a dispatch loop is running.
func (c *Coordinator) Submit(agv *model.AGV) error {
	if agv == nil {
		return ErrNilAGV
	}
	if err := agv.Validate(); err != nil {
		return fmt.Errorf("charging: %w", err)
	}

	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return ErrClosed
	}
	agv.ArrivedAt = c.clock.Now()
	c.queue.Add(agv)
	queueDepth.Set(float64(c.queue.Len()))
	c.publish(events.ChargingEvent{Kind: events.ChargingQueued, AGVID: agv.ID, Battery: agv.Battery})
	launched := false
	if c.state == stateIdle {
		c.state = stateDispatching
		c.launchLocked()
		launched = true
	}
	c.stateMu.Unlock()

	c.log.Infof("AGV %s added to queue (battery %d%%, urgent=%t)", agv.ID, agv.Battery, agv.Urgent)
	if launched {
		c.log.Debugf("dispatch loop started")
	}
	return nil
}

// launchLocked starts a dispatch loop. stateMu must be held.
func (c *Coordinator) launchLocked() {
	ctx, cancel := context.WithCancel(c.baseCtx)
	done := make(chan struct{})
	c.loopCancel = cancel
	c.loopDone = done
	c.launches++
	c.loops++
	if c.loops > c.peakLoops {
		c.peakLoops = c.loops
	}
	go c.dispatchLoop(ctx, cancel, done)
}

func (c *Coordinator) dispatchLoop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	for {
		if ctx.Err() != nil {
			c.abortLoop()
			return
		}
		head, ok := c.queue.Peek()
		if !ok {
			if c.beforeIdle != nil {
				c.beforeIdle()
			}
			if c.finishIfEmpty() {
				return
			}
			continue
		}

		wait := head.WaitTime(c.clock.Now())
		if wait > c.dropThreshold {
			if agv, ok := c.queue.Poll(); ok {
				c.drop(agv, wait)
			}
			continue
		}

		if err := c.acquire(ctx); err != nil {
			// a timed out acquire is only a retry signal
			continue
		}
		agv, ok := c.queue.Poll()
		if !ok {
			c.slots.Release(1)
			continue
		}
		queueDepth.Set(float64(c.queue.Len()))
		idx := c.nextStation(agv.ID)
		c.dispatch(idx, agv, wait)
	}
}

func (c *Coordinator) acquire(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, c.acquireTimeout)
	defer cancel()
	return c.slots.Acquire(actx, 1)
}

// finishIfEmpty returns the loop to idle when no request is queued. The
// emptiness check and the state change share one critical section with Submit.
func (c *Coordinator) finishIfEmpty() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !c.queue.IsEmpty() {
		return false
	}
	c.state = stateIdle
	c.loops--
	c.log.Debugf("dispatch loop idle")
	return true
}

func (c *Coordinator) abortLoop() {
	c.stateMu.Lock()
	c.state = stateIdle
	c.loops--
	pending := c.queue.Len()
	c.stateMu.Unlock()
	c.log.Warnf("dispatch loop interrupted with %d requests queued", pending)
}

func (c *Coordinator) drop(agv *model.AGV, wait time.Duration) {
	queueDepth.Set(float64(c.queue.Len()))
	queueWait.Observe(wait.Seconds())
	requestOutcomes.WithLabelValues(string(events.ChargingDropped), "").Inc()
	c.log.Warnf("AGV %s dropped due to timeout after %s", agv.ID, wait.Round(time.Millisecond))
	c.publish(events.ChargingEvent{
		Kind:    events.ChargingDropped,
		AGVID:   agv.ID,
		Battery: agv.Battery,
		Wait:    wait,
	})
}

// nextStation reserves the next free station at or after the cursor and
// advances the cursor past it. A slot must be held by the caller, which
// guarantees a free station exists.
func (c *Coordinator) nextStation(agvID string) int {
	c.stationMu.Lock()
	defer c.stationMu.Unlock()
	n := len(c.stations)
	idx := c.cursor
	for i := 0; i < n; i++ {
		if !c.busy[(c.cursor+i)%n] {
			idx = (c.cursor + i) % n
			break
		}
	}
	c.busy[idx] = true
	c.charging[idx] = agvID
	c.cursor = (idx + 1) % n
	return idx
}

func (c *Coordinator) release(idx int) {
	c.stationMu.Lock()
	c.busy[idx] = false
	c.charging[idx] = ""
	c.stationMu.Unlock()
	c.active.Add(-1)
	activeAssignments.Dec()
	c.slots.Release(1)
}

func (c *Coordinator) dispatch(idx int, agv *model.AGV, wait time.Duration) {
	station := c.stations[idx]
	c.active.Add(1)
	activeAssignments.Inc()
	queueWait.Observe(wait.Seconds())
	stationAssignments.WithLabelValues(station).Inc()
	c.log.Infof("Assigning AGV %s to %s", agv.ID, station)
	c.publish(events.ChargingEvent{
		Kind:      events.ChargingAssigned,
		AGVID:     agv.ID,
		StationID: station,
		Battery:   agv.Battery,
		Wait:      wait,
	})

	w := &Worker{StationID: station, AGV: agv, Failure: c.failure, Profile: c.profile, Log: c.log}
	err := c.pool.Submit(func(ctx context.Context) {
		defer c.release(idx)
		if ctx.Err() != nil {
			// forced shutdown reached the task before a worker did
			c.finish(w, &ChargeError{Kind: FailureInterrupted, StationID: station, AGVID: agv.ID, Err: ErrInterrupted})
			return
		}
		c.runWorker(ctx, w)
	})
	if err != nil {
		c.release(idx)
		c.finish(w, &ChargeError{Kind: FailureUnexpected, StationID: station, AGVID: agv.ID, Err: err})
	}
}

func (c *Coordinator) runWorker(ctx context.Context, w *Worker) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &ChargeError{Kind: FailureUnexpected, StationID: w.StationID, AGVID: w.AGV.ID, Err: fmt.Errorf("panic: %v", r)}
		}
		c.finish(w, err)
	}()
	err = w.Run(ctx)
}

func (c *Coordinator) finish(w *Worker, err error) {
	ev := events.ChargingEvent{
		Kind:      events.ChargingCharged,
		AGVID:     w.AGV.ID,
		StationID: w.StationID,
		Battery:   w.AGV.Battery,
		Err:       err,
	}
	if err != nil {
		ev.Kind = events.ChargingFailed
		ev.Failure = string(KindOf(err))
		c.log.Errorf("Error while charging AGV %s: %v", w.AGV.ID, err)
	}
	requestOutcomes.WithLabelValues(string(ev.Kind), ev.Failure).Inc()
	c.publish(ev)
}

func (c *Coordinator) publish(ev events.ChargingEvent) {
	if c.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = c.clock.Now()
	}
	c.bus.Publish(ev)
}

// Interrupt cancels the running dispatch loop, if any, and waits for it to
// return. Queued requests stay queued; the next Submit starts a new loop.
func (c *Coordinator) Interrupt() {
	c.stateMu.Lock()
	cancel, done := c.loopCancel, c.loopDone
	c.stateMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Shutdown stops accepting requests, stops dispatching and waits for running
// charges until ctx expires, after which they are cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	done := c.loopDone
	c.stateMu.Unlock()

	c.log.Infof("Shutting down...")
	c.baseCancel()
	if done != nil {
		<-done
	}
	err := c.pool.Shutdown(ctx)
	if err != nil {
		c.log.Warnf("forced shutdown, %d charges cancelled: %v", c.Active(), err)
	}
	c.log.Infof("Stopped with %d requests left in queue", c.queue.Len())
	return err
}

// Dispatching reports whether a dispatch loop is active.
func (c *Coordinator) Dispatching() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == stateDispatching
}

// Active returns the number of charges in progress.
func (c *Coordinator) Active() int { return int(c.active.Load()) }

// QueueLen returns the number of waiting requests.
func (c *Coordinator) QueueLen() int { return c.queue.Len() }

// Queue exposes the request queue for status displays.
func (c *Coordinator) Queue() *RequestQueue { return c.queue }

// Stations returns a copy of the station ids.
func (c *Coordinator) Stations() []string { return append([]string(nil), c.stations...) }

// DropThreshold returns the configured maximum queued wait.
func (c *Coordinator) DropThreshold() time.Duration { return c.dropThreshold }

// InFlight reports whether a request for the AGV id is queued or charging.
// A request being handed from the queue to a station may briefly be in
// neither place.
func (c *Coordinator) InFlight(id string) bool {
	if c.queue.Contains(id) {
		return true
	}
	c.stationMu.Lock()
	defer c.stationMu.Unlock()
	for i, busy := range c.busy {
		if busy && c.charging[i] == id {
			return true
		}
	}
	return false
}

// QueuedRequest is a waiting request and how long it has waited.
type QueuedRequest struct {
	AGV  model.AGV
	Wait time.Duration
}

// Status is a point in time view of the coordinator.
type Status struct {
	Stations      []string
	Busy          []string
	Dispatching   bool
	Active        int
	Queue         []QueuedRequest
	DropThreshold time.Duration
}

// Status returns a snapshot for status displays.
func (c *Coordinator) Status() Status {
	st := Status{
		Stations:      c.Stations(),
		Dispatching:   c.Dispatching(),
		Active:        c.Active(),
		DropThreshold: c.dropThreshold,
	}
	c.stationMu.Lock()
	for i, busy := range c.busy {
		if busy {
			st.Busy = append(st.Busy, c.stations[i])
		}
	}
	c.stationMu.Unlock()
	now := c.clock.Now()
	for _, a := range c.queue.Snapshot() {
		st.Queue = append(st.Queue, QueuedRequest{AGV: a, Wait: a.WaitTime(now)})
	}
	return st
}
