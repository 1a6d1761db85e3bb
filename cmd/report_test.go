package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
)

func TestSummarizeCharging(t *testing.T) {
	recs := []coremetrics.ChargingRecord{
		{AGVID: "A1", StationID: "S1", Outcome: "charged", Wait: 2 * time.Second},
		{AGVID: "A2", StationID: "S2", Outcome: "failed", Failure: "malfunction", Wait: 4 * time.Second},
		{AGVID: "A3", Outcome: "dropped", Wait: 6 * time.Second},
	}
	s := summarizeCharging(recs)
	assert.Equal(t, map[string]int{"charged": 1, "failed": 1, "dropped": 1}, s.Outcomes)
	assert.Equal(t, map[string]int{"malfunction": 1}, s.Failures)
	assert.Equal(t, map[string]int{"S1": 1, "S2": 1}, s.Stations)
	assert.InDelta(t, 4.0, s.MeanWait, 1e-9)
	assert.InDelta(t, 2.0, s.StdWait, 1e-9)
	assert.InDelta(t, 6.0, s.MaxWait, 1e-9)
	assert.InDelta(t, 6.0, s.P95Wait, 1e-9)
}

func TestSummarizeChargingEmpty(t *testing.T) {
	s := summarizeCharging(nil)
	assert.Empty(t, s.Outcomes)
	assert.Zero(t, s.MeanWait)

	one := summarizeCharging([]coremetrics.ChargingRecord{{Outcome: "charged", Wait: time.Second}})
	assert.Zero(t, one.StdWait)
	assert.InDelta(t, 1.0, one.MeanWait, 1e-9)
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true
	s := summarizeCharging([]coremetrics.ChargingRecord{{StationID: "S1", Outcome: "charged", Wait: time.Second}})
	var buf bytes.Buffer
	printReport(&buf, s, map[string]int{"COMPLETED": 2, "CREATED": 3})
	out := buf.String()
	require.Contains(t, out, "charged")
	require.Contains(t, out, "station S1: 1")
	require.Contains(t, out, "COMPLETED  2")
	require.Contains(t, out, "wait mean 1.00s")
}
