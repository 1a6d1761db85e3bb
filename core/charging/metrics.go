package charging

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueDepth         prometheus.Gauge
	activeAssignments  prometheus.Gauge
	requestOutcomes    *prometheus.CounterVec
	queueWait          prometheus.Histogram
	stationAssignments *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Gauge, prometheus.Gauge, *prometheus.CounterVec, prometheus.Histogram, *prometheus.CounterVec) {
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "charging_queue_depth",
		Help: "Number of AGVs waiting for a charging bay",
	})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "charging_active_assignments",
		Help: "Number of charging bays currently in use",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_requests_total",
		Help: "Charging requests by terminal outcome",
	}, []string{"outcome", "failure"})
	wait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "charging_queue_wait_seconds",
		Help:    "Time spent queued before assignment or eviction",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	stations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_station_assignments_total",
		Help: "Number of assignments per charging station",
	}, []string{"station"})
	return depth, active, outcomes, wait, stations
}

func init() {
	queueDepth, activeAssignments, requestOutcomes, queueWait, stationAssignments = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers charging metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(queueDepth, activeAssignments, requestOutcomes, queueWait, stationAssignments)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	queueDepth, activeAssignments, requestOutcomes, queueWait, stationAssignments = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
