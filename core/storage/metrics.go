package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stockOperations *prometheus.CounterVec
	locationLoad    *prometheus.GaugeVec
	interlockCycles prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.GaugeVec, prometheus.Counter) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_operations_total",
		Help: "Stock operations by kind, path and result",
	}, []string{"op", "mode", "result"})
	load := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storage_location_load",
		Help: "Items held per storage location",
	}, []string{"location"})
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storage_arm_cycles_total",
		Help: "Completed robotic arm activate/move/deactivate cycles",
	})
	return ops, load, cycles
}

func init() {
	stockOperations, locationLoad, interlockCycles = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers storage metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(stockOperations, locationLoad, interlockCycles)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	stockOperations, locationLoad, interlockCycles = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
