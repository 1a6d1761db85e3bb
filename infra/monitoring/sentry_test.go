package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/warehouse/core/monitoring"
)

func TestNewSentryMonitorDisabled(t *testing.T) {
	m, err := NewSentryMonitor(coremon.Config{})
	require.NoError(t, err)
	require.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitorBadDSN(t *testing.T) {
	_, err := NewSentryMonitor(coremon.Config{DSN: "not a dsn"})
	require.Error(t, err)
}

func TestSentryMonitorTagsEvents(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []*sentry.Event
	)
	m, err := newSentryMonitor(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			sent = append(sent, ev)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("station hardware failure"), map[string]string{"station_id": "S2"})
	m.CapturePanic("worker exploded")
	m.Flush(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	require.Equal(t, "S2", sent[0].Tags["station_id"])
	require.NotEmpty(t, sent[0].Exception)
}
