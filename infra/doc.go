// Package infra groups the adapters that connect the warehouse core to the
// outside world: the MQTT client, metrics sinks, the SQLite journal and
// error monitoring. They depend on core types, never the other way round.
package infra
