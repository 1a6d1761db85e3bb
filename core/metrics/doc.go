// Package metrics defines the sinks that record charging and stock activity.
// PromSink and InfluxSink live in infra/metrics and can be combined with
// NewMultiSink; optional recorder interfaces let a sink pick the events it
// understands.
package metrics
