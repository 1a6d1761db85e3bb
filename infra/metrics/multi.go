package metrics

import coremetrics "github.com/kilianp07/warehouse/core/metrics"

// MultiSink fanouts records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCharging forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCharging(rec coremetrics.ChargingRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordCharging(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordStock forwards stock records.
func (m *MultiSink) RecordStock(rec coremetrics.StockRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.StockRecorder); ok {
			if err := r.RecordStock(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOrder forwards order records.
func (m *MultiSink) RecordOrder(rec coremetrics.OrderRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.OrderRecorder); ok {
			if err := r.RecordOrder(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordQueueDepth forwards the backlog when supported by the sink.
func (m *MultiSink) RecordQueueDepth(depth int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.QueueRecorder); ok {
			if err := r.RecordQueueDepth(depth); err != nil {
				return err
			}
		}
	}
	return nil
}
