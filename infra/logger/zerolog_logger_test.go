package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestLoggerComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("ChargingCoordinator", &buf)
	l.Warnf("AGV %s dropped due to timeout", "a1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ChargingCoordinator", line["component"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "AGV a1 dropped due to timeout", line["message"])
}

func TestConfigureWritesFile(t *testing.T) {
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		_, _ = Configure(Config{Level: "info"})
	})
	path := filepath.Join(t.TempDir(), "logs", "warehouse.log")
	closeFn, err := Configure(Config{Level: "debug", File: path})
	require.NoError(t, err)
	New("storage").Infof("hello %s", "file")
	require.NoError(t, closeFn())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestConfigValidate(t *testing.T) {
	c := Config{}
	c.SetDefaults()
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{Level: "loud"}.Validate())
	_, err := Configure(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, NopLogger{}, OrNop(nil))
	l := NewWithWriter("x", &bytes.Buffer{})
	assert.Equal(t, l, OrNop(l))
}
