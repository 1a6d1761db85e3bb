package app

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/warehouse/config"
	"github.com/kilianp07/warehouse/core/charging"
	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/infra/logger"
)

type vehicle struct {
	agv model.AGV
	// pending is set while a charge request is queued or running.
	pending  bool
	stranded bool
	// missed counts ticks a pending request was unknown to the coordinator.
	missed int
}

// lostAfter is how many consecutive ticks a pending request may be unknown
// to the coordinator before its outcome is treated as lost.
const lostAfter = 2

// Fleet simulates the battery drain of the configured AGVs and queues the
// ones running low for charging.
type Fleet struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle
	ids      []string
	cfg      config.FleetConfig
	submit   func(*model.AGV) error
	inFlight func(id string) bool
	rng      *rand.Rand
	log      logger.Logger
}

// NewFleet seeds the simulated fleet. A zero seed uses the current time.
func NewFleet(cfg config.FleetConfig, submit func(*model.AGV) error, log logger.Logger, seed int64) *Fleet {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	f := &Fleet{
		vehicles: make(map[string]*vehicle, len(cfg.AGVs)),
		cfg:      cfg,
		submit:   submit,
		rng:      rand.New(rand.NewSource(seed)),
		log:      logger.OrNop(log),
	}
	for _, a := range cfg.AGVs {
		f.vehicles[a.ID] = &vehicle{agv: model.AGV{ID: a.ID, Battery: a.Battery, Urgent: a.Urgent}}
		f.ids = append(f.ids, a.ID)
	}
	return f
}

// TrackWith lets Tick release pending vehicles whose charging outcome was
// never observed, typically because the event was dropped.
func (f *Fleet) TrackWith(inFlight func(id string) bool) {
	f.mu.Lock()
	f.inFlight = inFlight
	f.mu.Unlock()
}

func (f *Fleet) reconcile(id string, v *vehicle) {
	if f.inFlight == nil {
		return
	}
	if f.inFlight(id) {
		v.missed = 0
		return
	}
	v.missed++
	if v.missed >= lostAfter {
		v.pending = false
		v.missed = 0
		f.log.Warnf("charging outcome for AGV %s was lost, releasing it", id)
	}
}

func (f *Fleet) drain() int {
	span := f.cfg.DrainMax - f.cfg.DrainMin
	if span <= 0 {
		return f.cfg.DrainMin
	}
	return f.cfg.DrainMin + f.rng.Intn(span+1)
}

// Tick drains every idle vehicle and submits those at or below the low
// battery level. It returns the number of accepted requests.
func (f *Fleet) Tick() int {
	f.mu.Lock()
	var due []model.AGV
	for _, id := range f.ids {
		v := f.vehicles[id]
		if v.pending {
			f.reconcile(id, v)
			continue
		}
		if v.stranded {
			continue
		}
		v.agv.Drain(f.drain())
		if v.agv.Battery <= f.cfg.LowBattery {
			v.pending = true
			due = append(due, v.agv)
		}
	}
	f.mu.Unlock()

	accepted := 0
	for i := range due {
		agv := due[i]
		f.log.Infof("AGV %s at %d%%, requesting a charging station", agv.ID, agv.Battery)
		if err := f.submit(&agv); err != nil {
			f.log.Warnf("charge request for %s rejected: %v", agv.ID, err)
			f.mu.Lock()
			f.vehicles[agv.ID].pending = false
			f.mu.Unlock()
			continue
		}
		accepted++
	}
	return accepted
}

// Observe applies the outcome of a charging request to the vehicle it
// concerns. Unknown vehicles and non terminal events are ignored.
func (f *Fleet) Observe(ev events.ChargingEvent) {
	if !ev.Kind.Terminal() {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[ev.AGVID]
	if !ok {
		return
	}
	v.pending = false
	v.missed = 0
	switch ev.Kind {
	case events.ChargingCharged:
		v.agv.Battery = ev.Battery
	case events.ChargingFailed:
		if ev.Failure == string(charging.FailureInvalidState) {
			v.stranded = true
			f.log.Warnf("AGV %s is stranded with a depleted battery", ev.AGVID)
		}
	}
}

// Snapshot returns the vehicles sorted by id.
func (f *Fleet) Snapshot() []model.AGV {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AGV, 0, len(f.vehicles))
	for _, v := range f.vehicles {
		out = append(out, v.agv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stranded returns the ids of vehicles that can no longer be charged.
func (f *Fleet) Stranded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, id := range f.ids {
		if f.vehicles[id].stranded {
			ids = append(ids, id)
		}
	}
	return ids
}
