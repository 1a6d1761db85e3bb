package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/warehouse/core/task"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `charging:
  stations: ["S1", "S2"]
  drop_threshold_seconds: 20
  failure_rate: 0
storage:
  arm_id: "ARM-7"
  locations:
    - id: "A1"
      capacity: 100
      initial: 40
fleet:
  tick_ms: 250
  agvs:
    - id: "AGV-1"
      battery: 55
orders:
  seed:
    - medicine: "Paracetamol"
      quantity: 5
      location_id: "A1"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  use_tls: false
logging:
  level: "debug"
monitoring:
  environment: "staging"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"stations", len(cfg.Charging.Stations), 2},
		{"drop_threshold_seconds", cfg.Charging.DropThresholdSeconds, 20},
		{"failure_rate", *cfg.Charging.FailureRate, 0.0},
		{"arm_id", cfg.Storage.ArmID, "ARM-7"},
		{"location", cfg.Storage.Locations[0].Initial, 40},
		{"tick_ms", cfg.Fleet.TickMS, 250},
		{"low_battery default", cfg.Fleet.LowBattery, 20},
		{"agv", cfg.Fleet.AGVs[0].Battery, 55},
		{"order", cfg.Orders.Seed[0].LocationID, "A1"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"topic_prefix default", cfg.MQTT.TopicPrefix, "warehouse"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"journal.path default", cfg.Journal.Path, "warehouse.db"},
		{"prometheus addr default", cfg.Metrics.PrometheusAddr, ":2112"},
		{"api.addr default", cfg.API.Addr, ":8080"},
		{"monitoring.environment", cfg.Monitoring.Environment, "staging"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"charging":{"stations":["S1"]},"fleet":{"low_battery":35}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"S1"}, cfg.Charging.Stations)
	require.Equal(t, 35, cfg.Fleet.LowBattery)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", "charging:\n  stations: [\"S1\"]\n")
	t.Setenv("WH_CHARGING__DROP_THRESHOLD_SECONDS", "30")
	t.Setenv("WH_CHARGING__STATIONS", "S4,S5,S6")
	t.Setenv("WH_MQTT__TOPIC_PREFIX", "site-b")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.Charging.DropThresholdSeconds)
	require.Equal(t, []string{"S4", "S5", "S6"}, cfg.Charging.Stations)
	require.Equal(t, "site-b", cfg.MQTT.TopicPrefix)
	require.Equal(t, "site-b/status", cfg.MQTT.LWTTopic)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no stations":      "fleet:\n  tick_ms: 10\n",
		"bad failure rate": "charging:\n  stations: [\"S1\"]\n  failure_rate: 2\n",
		"unknown location": "charging:\n  stations: [\"S1\"]\norders:\n  seed:\n    - medicine: \"X\"\n      quantity: 1\n      location_id: \"nope\"\n",
		"duplicate agv":    "charging:\n  stations: [\"S1\"]\nfleet:\n  agvs:\n    - id: \"A\"\n      battery: 10\n    - id: \"A\"\n      battery: 20\n",
		"mqtt no broker":   "charging:\n  stations: [\"S1\"]\nmqtt:\n  enabled: true\n",
		"bad sample rate":  "charging:\n  stations: [\"S1\"]\nmonitoring:\n  traces_sample_rate: 3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			require.Error(t, err)
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "x = 1"))
	require.ErrorContains(t, err, "unsupported config format")
}

func TestFleetConfigValidate(t *testing.T) {
	c := FleetConfig{}
	c.SetDefaults()
	require.NoError(t, c.Validate())

	c.DrainMax = 0
	require.Error(t, c.Validate())

	c = FleetConfig{TickMS: 1, LowBattery: 101, DrainMax: 1}
	require.Error(t, c.Validate())

	c = FleetConfig{TickMS: 1, LowBattery: 20, DrainMax: 1, AGVs: []AGVConfig{{ID: "", Battery: 10}}}
	require.Error(t, c.Validate())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Charging.Stations, 3)
	require.Len(t, cfg.Fleet.AGVs, 3)
	require.True(t, cfg.Fleet.AGVs[2].Urgent)
	require.Equal(t, byte(1), cfg.MQTT.QoS["request"])
	require.True(t, cfg.API.Enabled)
	require.Len(t, cfg.Tasks.Seed, 2)
	require.Equal(t, "DOCK-2", cfg.Tasks.Seed[1].Source)
}

func TestTasksSectionValidated(t *testing.T) {
	path := writeConfig(t, "config.yaml", `charging:
  stations: ["S1"]
mqtt:
  broker: "tcp://localhost:1883"
tasks:
  seed:
    - source: "DOCK-1"
`)
	_, err := Load(path)
	require.ErrorIs(t, err, task.ErrEmptyType)
	require.ErrorContains(t, err, "tasks")
}
