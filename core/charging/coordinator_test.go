package charging

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/internal/eventbus"
)

var instant = ChargeProfile{Step: 100}

func newTestCoordinator(t *testing.T, stations []string, opts Options) (*Coordinator, <-chan events.ChargingEvent) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	if opts.Bus == nil {
		opts.Bus = eventbus.NewTypedWithBuffer[events.ChargingEvent](256)
	}
	if opts.Failure == nil {
		opts.Failure = NeverFail{}
	}
	if opts.Profile == (ChargeProfile{}) {
		opts.Profile = instant
	}
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = 10 * time.Millisecond
	}
	c, err := NewCoordinator(stations, 15*time.Second, opts)
	require.NoError(t, err)
	sub := opts.Bus.Subscribe()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c, sub
}

// awaitTerminal collects events until n requests reached a terminal state.
func awaitTerminal(t *testing.T, sub <-chan events.ChargingEvent, n int) []events.ChargingEvent {
	t.Helper()
	var all []events.ChargingEvent
	deadline := time.After(3 * time.Second)
	for done := 0; done < n; {
		select {
		case ev := <-sub:
			all = append(all, ev)
			if ev.Kind.Terminal() {
				done++
			}
		case <-deadline:
			t.Fatalf("timed out after %d of %d terminal events: %+v", done, n, all)
		}
	}
	return all
}

func ofKind(evs []events.ChargingEvent, kind events.ChargingKind) []events.ChargingEvent {
	var out []events.ChargingEvent
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func mustAGV(t *testing.T, id string, battery int) *model.AGV {
	t.Helper()
	a, err := model.NewAGV(id, battery, false)
	require.NoError(t, err)
	return a
}

// blockingStations holds every station inside Malfunction until released.
type blockingStations struct {
	entered chan string
	release chan struct{}
}

func newBlockingStations() *blockingStations {
	return &blockingStations{entered: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingStations) Malfunction(station string) bool {
	b.entered <- station
	<-b.release
	return false
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(nil, time.Second, Options{})
	assert.ErrorIs(t, err, ErrNoStations)
	_, err = NewCoordinator([]string{"S1", ""}, time.Second, Options{})
	assert.ErrorIs(t, err, ErrEmptyStationID)
	_, err = NewCoordinator([]string{"S1", "S1"}, time.Second, Options{})
	assert.ErrorIs(t, err, ErrDuplicateStation)
	_, err = NewCoordinator([]string{"S1"}, 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestCoordinatorCopiesStations(t *testing.T) {
	ids := []string{"S1", "S2"}
	c, _ := newTestCoordinator(t, ids, Options{})
	ids[0] = "X"
	assert.Equal(t, []string{"S1", "S2"}, c.Stations())
}

func TestSubmitRejectsInvalidAGV(t *testing.T) {
	c, _ := newTestCoordinator(t, []string{"S1"}, Options{})
	assert.ErrorIs(t, c.Submit(nil), ErrNilAGV)
	assert.ErrorIs(t, c.Submit(&model.AGV{ID: "A", Battery: 101}), model.ErrInvalidBattery)
	assert.ErrorIs(t, c.Submit(&model.AGV{Battery: 10}), model.ErrInvalidAGVID)
	assert.Equal(t, 0, c.QueueLen())
}

func TestRoundRobinAssignment(t *testing.T) {
	c, sub := newTestCoordinator(t, []string{"S1", "S2"}, Options{})

	var stations []string
	for _, id := range []string{"A1", "A2", "A3"} {
		require.Eventually(t, func() bool { return c.Active() == 0 }, time.Second, time.Millisecond)
		require.NoError(t, c.Submit(mustAGV(t, id, 40)))
		evs := awaitTerminal(t, sub, 1)
		assigned := ofKind(evs, events.ChargingAssigned)
		require.Len(t, assigned, 1)
		assert.Equal(t, id, assigned[0].AGVID)
		stations = append(stations, assigned[0].StationID)

		charged := ofKind(evs, events.ChargingCharged)
		require.Len(t, charged, 1)
		assert.Equal(t, model.MaxBattery, charged[0].Battery)
	}
	assert.Equal(t, []string{"S1", "S2", "S1"}, stations)
	assert.Equal(t, 3.0, testutil.ToFloat64(requestOutcomes.WithLabelValues("charged", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(stationAssignments.WithLabelValues("S1")))
}

func TestConcurrencyBoundedByStations(t *testing.T) {
	var (
		mu      sync.Mutex
		inUse   = map[string]bool{}
		current int
		peak    int
		shared  bool
	)
	policy := FailureFunc(func(station string) bool {
		mu.Lock()
		if inUse[station] {
			shared = true
		}
		inUse[station] = true
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inUse[station] = false
		current--
		mu.Unlock()
		return false
	})
	c, sub := newTestCoordinator(t, []string{"S1", "S2"}, Options{Failure: policy})

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Submit(mustAGV(t, "A"+string(rune('0'+i)), 30)))
	}
	evs := awaitTerminal(t, sub, 10)
	assert.Len(t, ofKind(evs, events.ChargingCharged), 10)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, shared, "a station served two AGVs at once")
	assert.LessOrEqual(t, peak, 2)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(activeAssignments) == 0 && !c.Dispatching()
	}, time.Second, time.Millisecond)
}

func TestExpiredHeadDroppedBeforeDispatch(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	fc := testingclock.NewFakeClock(start)
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Clock: fc})

	stale := mustAGV(t, "OLD", 50)
	stale.ArrivedAt = start.Add(-20 * time.Second)
	c.queue.Add(stale)

	require.NoError(t, c.Submit(mustAGV(t, "NEW", 50)))
	evs := awaitTerminal(t, sub, 2)

	dropped := ofKind(evs, events.ChargingDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, "OLD", dropped[0].AGVID)
	assert.Equal(t, 20*time.Second, dropped[0].Wait)

	assigned := ofKind(evs, events.ChargingAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, "NEW", assigned[0].AGVID)
	assert.Equal(t, 1.0, testutil.ToFloat64(requestOutcomes.WithLabelValues("dropped", "")))
}

func TestRequestDroppedWhileStationsBusy(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	fc := testingclock.NewFakeClock(start)
	block := newBlockingStations()
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Clock: fc, Failure: block})

	require.NoError(t, c.Submit(mustAGV(t, "A1", 50)))
	assert.Equal(t, "S1", <-block.entered)
	require.NoError(t, c.Submit(mustAGV(t, "A2", 50)))

	fc.Step(16 * time.Second)
	require.Eventually(t, func() bool { return c.QueueLen() == 0 }, 2*time.Second, time.Millisecond)
	close(block.release)

	evs := awaitTerminal(t, sub, 2)
	dropped := ofKind(evs, events.ChargingDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, "A2", dropped[0].AGVID)
	assert.Len(t, ofKind(evs, events.ChargingCharged), 1)
}

func TestDepletedBatteryIsInvalidState(t *testing.T) {
	alwaysFail := FailureFunc(func(string) bool { return true })
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Failure: alwaysFail})

	require.NoError(t, c.Submit(mustAGV(t, "A0", 0)))
	evs := awaitTerminal(t, sub, 1)
	failed := ofKind(evs, events.ChargingFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, string(FailureInvalidState), failed[0].Failure)
	assert.ErrorIs(t, failed[0].Err, ErrInvalidState)
	assert.Equal(t, 0, failed[0].Battery)
}

func TestMalfunctionReported(t *testing.T) {
	alwaysFail := FailureFunc(func(string) bool { return true })
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Failure: alwaysFail})

	require.NoError(t, c.Submit(mustAGV(t, "A1", 35)))
	evs := awaitTerminal(t, sub, 1)
	failed := ofKind(evs, events.ChargingFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "malfunction", failed[0].Failure)
	assert.Equal(t, 35, failed[0].Battery)
	assert.Equal(t, 1.0, testutil.ToFloat64(requestOutcomes.WithLabelValues("failed", "malfunction")))
}

func TestInterruptKeepsQueueAndRestartsOnSubmit(t *testing.T) {
	block := newBlockingStations()
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Failure: block})

	require.NoError(t, c.Submit(mustAGV(t, "A1", 50)))
	<-block.entered
	require.NoError(t, c.Submit(mustAGV(t, "A2", 50)))
	require.True(t, c.Dispatching())

	c.Interrupt()
	assert.False(t, c.Dispatching())
	assert.Equal(t, 1, c.QueueLen())

	close(block.release)

	require.NoError(t, c.Submit(mustAGV(t, "A3", 50)))
	evs := awaitTerminal(t, sub, 3)
	charged := ofKind(evs, events.ChargingCharged)
	require.Len(t, charged, 3)
	var order []string
	for _, ev := range ofKind(evs, events.ChargingAssigned) {
		order = append(order, ev.AGVID)
	}
	assert.Equal(t, []string{"A1", "A2", "A3"}, order)
}

func TestShutdownRejectsSubmit(t *testing.T) {
	c, _ := newTestCoordinator(t, []string{"S1"}, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.ErrorIs(t, c.Submit(mustAGV(t, "A1", 10)), ErrClosed)
	assert.NoError(t, c.Shutdown(ctx))
}

func TestShutdownInterruptsRunningCharge(t *testing.T) {
	slow := ChargeProfile{Step: 1, Interval: 50 * time.Millisecond}
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{Profile: slow})

	require.NoError(t, c.Submit(mustAGV(t, "A1", 10)))
	require.Eventually(t, func() bool { return c.Active() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)

	evs := awaitTerminal(t, sub, 1)
	failed := ofKind(evs, events.ChargingFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, string(FailureInterrupted), failed[0].Failure)
}

func TestForcedShutdownReleasesQueuedCharges(t *testing.T) {
	slow := ChargeProfile{Step: 1, Interval: 50 * time.Millisecond}
	// one worker for two bays: the second assignment waits inside the pool
	c, sub := newTestCoordinator(t, []string{"S1", "S2"}, Options{Profile: slow, PoolSize: 1})

	require.NoError(t, c.Submit(mustAGV(t, "A1", 10)))
	require.NoError(t, c.Submit(mustAGV(t, "A2", 10)))
	require.Eventually(t, func() bool { return c.Active() == 2 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Shutdown(ctx), context.DeadlineExceeded)

	evs := awaitTerminal(t, sub, 2)
	failed := ofKind(evs, events.ChargingFailed)
	require.Len(t, failed, 2)
	for _, ev := range failed {
		assert.Equal(t, string(FailureInterrupted), ev.Failure, ev.AGVID)
	}
	assert.Equal(t, 0, c.Active())
	assert.Empty(t, c.Status().Busy)
	assert.True(t, c.slots.TryAcquire(2), "bay slots still held after shutdown")
	assert.Equal(t, 0.0, testutil.ToFloat64(activeAssignments))
}

func TestConcurrentSubmitsShareOneLoop(t *testing.T) {
	c, sub := newTestCoordinator(t, []string{"S1", "S2"}, Options{})

	const n = 50
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			assert.NoError(t, c.Submit(mustAGV(t, fmt.Sprintf("A%02d", i), 30)))
		}(i)
	}
	close(start)
	wg.Wait()

	evs := awaitTerminal(t, sub, n)
	assert.Len(t, ofKind(evs, events.ChargingCharged), n)
	require.Eventually(t, func() bool { return !c.Dispatching() }, time.Second, time.Millisecond)

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	assert.Equal(t, 1, c.peakLoops, "two dispatch loops ran at once")
	assert.Equal(t, 0, c.loops)
	assert.GreaterOrEqual(t, c.launches, 1)
}

func TestSubmitWhileLoopDrainsIsDispatched(t *testing.T) {
	c, sub := newTestCoordinator(t, []string{"S1"}, Options{})
	var once sync.Once
	c.beforeIdle = func() {
		once.Do(func() {
			assert.NoError(t, c.Submit(mustAGV(t, "LATE", 20)))
		})
	}

	require.NoError(t, c.Submit(mustAGV(t, "A1", 40)))
	evs := awaitTerminal(t, sub, 2)
	charged := ofKind(evs, events.ChargingCharged)
	require.Len(t, charged, 2)
	assert.Equal(t, "LATE", charged[1].AGVID)
	require.Eventually(t, func() bool { return !c.Dispatching() }, time.Second, time.Millisecond)

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	assert.Equal(t, 1, c.launches, "the late request needed a second loop")
}

func TestStatusSnapshot(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	fc := testingclock.NewFakeClock(start)
	block := newBlockingStations()
	c, sub := newTestCoordinator(t, []string{"S1", "S2"}, Options{Clock: fc, Failure: block})

	st := c.Status()
	assert.False(t, st.Dispatching)
	assert.Empty(t, st.Busy)
	assert.Equal(t, 15*time.Second, st.DropThreshold)

	require.NoError(t, c.Submit(mustAGV(t, "A1", 50)))
	assert.Equal(t, "S1", <-block.entered)
	require.NoError(t, c.Submit(mustAGV(t, "A2", 40)))
	require.NoError(t, c.Submit(mustAGV(t, "A3", 30)))
	fc.Step(5 * time.Second)

	require.Eventually(t, func() bool { return c.Status().Active == 2 }, 2*time.Second, time.Millisecond)
	st = c.Status()
	assert.True(t, st.Dispatching)
	assert.Equal(t, []string{"S1", "S2"}, st.Stations)
	assert.Equal(t, []string{"S1", "S2"}, st.Busy)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, "A3", st.Queue[0].AGV.ID)
	assert.Equal(t, 5*time.Second, st.Queue[0].Wait)

	close(block.release)
	awaitTerminal(t, sub, 3)
}
