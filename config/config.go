package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/warehouse/api"
	"github.com/kilianp07/warehouse/core/charging"
	"github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/core/monitoring"
	"github.com/kilianp07/warehouse/core/storage"
	"github.com/kilianp07/warehouse/core/task"
	"github.com/kilianp07/warehouse/infra/journal"
	"github.com/kilianp07/warehouse/infra/logger"
	"github.com/kilianp07/warehouse/infra/mqtt"
)

// EnvPrefix prefixes environment overrides, e.g. WH_CHARGING__DROP_THRESHOLD_SECONDS.
const EnvPrefix = "WH_"

type Config struct {
	Charging charging.Config `json:"charging"`
	Storage  storage.Config  `json:"storage"`
	Fleet    FleetConfig     `json:"fleet"`
	Orders   OrdersConfig    `json:"orders"`
	Tasks    task.Config     `json:"tasks"`
	Logging  logger.Config   `json:"logging"`
	Metrics  metrics.Config  `json:"metrics"`
	MQTT     mqtt.Config     `json:"mqtt"`
	Journal  journal.Config  `json:"journal"`
	API      api.Config      `json:"api"`
	// Monitoring configures error tracking, e.g. Sentry.
	Monitoring monitoring.Config `json:"monitoring"`
}

// Load reads path, applies environment overrides, defaults and validation.
// An empty path loads the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides; comma separated values become lists.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if strings.Contains(value, ",") {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Charging.SetDefaults()
	c.Storage.SetDefaults()
	c.Fleet.SetDefaults()
	c.Tasks.SetDefaults()
	c.Logging.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	c.Journal.SetDefaults()
	c.API.SetDefaults()
}

// Validate checks every section and the references between them.
func (c Config) Validate() error {
	if err := c.Charging.Validate(); err != nil {
		return fmt.Errorf("charging: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Fleet.Validate(); err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	if err := c.Orders.Validate(c.Storage.Locations); err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if c.Monitoring.TracesSampleRate < 0 || c.Monitoring.TracesSampleRate > 1 {
		return fmt.Errorf("monitoring: traces_sample_rate must be within [0,1]")
	}
	return nil
}
