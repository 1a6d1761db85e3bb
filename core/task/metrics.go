package task

import (
	"github.com/prometheus/client_golang/prometheus"
)

var tasksFinished *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_finished_total",
		Help: "Warehouse tasks by type and terminal status",
	}, []string{"type", "status"})
}

func init() {
	tasksFinished = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers task metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tasksFinished)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tasksFinished = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
