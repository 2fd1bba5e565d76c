package core

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1sec-project/netresponse/internal/validate"
)

// APIKeyEnv is consulted for the management API key when the config file
// does not set one.
const APIKeyEnv = "NETRESPONSE_API_KEY"

// Config holds the entire netresponse configuration.
type Config struct {
	API      APIConfig         `yaml:"api"`
	Bus      BusConfig         `yaml:"bus"`
	Policies map[string]Policy `yaml:"policies"`
	Rollback RollbackConfig    `yaml:"rollback"`
	Intake   IntakeConfig      `yaml:"intake"`
	Archive  ArchiveConfig     `yaml:"archive"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// APIConfig holds management API client settings. Durations use
// time.ParseDuration syntax.
type APIConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	Timeout           string `yaml:"timeout"`
	RequestDelay      string `yaml:"request_delay"`
	DefaultRetryAfter string `yaml:"default_retry_after"`
	MaxRetryAfter     string `yaml:"max_retry_after"`
	UserAgent         string `yaml:"user_agent"`
}

// BusConfig holds NATS event bus settings.
type BusConfig struct {
	URL      string `yaml:"url"`
	Embedded bool   `yaml:"embedded"`
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port"`
}

// RollbackConfig controls automatic reversal of mitigations.
type RollbackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
}

// IntakeConfig controls consumption of threat events from the bus.
type IntakeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Workers   int    `yaml:"workers"`
	DedupSize int    `yaml:"dedup_size"`
	Durable   string `yaml:"durable"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with working defaults apart from the API
// endpoint and credential.
func DefaultConfig() *Config {
	defaults := DefaultPolicyTable()
	policies := make(map[string]Policy, severityCount)
	for _, s := range Severities {
		policies[s.String()] = defaults[s]
	}
	return &Config{
		API: APIConfig{
			Timeout:           "30s",
			RequestDelay:      "100ms",
			DefaultRetryAfter: "60s",
			MaxRetryAfter:     "24h",
			UserAgent:         "netresponse/" + Version,
		},
		Bus: BusConfig{
			URL:      "nats://127.0.0.1:4222",
			Embedded: true,
			DataDir:  "./data/nats",
			Port:     4222,
		},
		Policies: policies,
		Rollback: RollbackConfig{
			Enabled: true,
			Timeout: "30s",
		},
		Intake: IntakeConfig{
			Enabled:   true,
			Workers:   4,
			DedupSize: 10000,
			Durable:   "netresponse-intake",
		},
		Archive: DefaultArchiveConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv(APIKeyEnv)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to a YAML file. The API key is never
// written; it belongs in the environment.
func SaveConfig(cfg *Config, path string) error {
	out := *cfg
	out.API.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// PolicyTable overlays the configured per-severity policies on the defaults.
func (c *Config) PolicyTable() (PolicyTable, error) {
	table := DefaultPolicyTable()
	names := make([]string, 0, len(c.Policies))
	for name := range c.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sev, err := ParseSeverity(name)
		if err != nil {
			return table, fmt.Errorf("policies: %w", err)
		}
		if err := table.Override(sev, c.Policies[name]); err != nil {
			return table, fmt.Errorf("policies: %w", err)
		}
	}
	return table, nil
}

// LogLevel returns the lowercased log level.
func (c *Config) LogLevel() string {
	return strings.ToLower(c.Logging.Level)
}

// Validate reports configuration problems. Errors prevent startup; warnings
// describe settings that work but are probably unintended.
func (c *Config) Validate() (warnings, errs []string) {
	if _, err := validate.BaseURL(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("api.base_url: %v", err))
	}
	if err := validate.APIKey(c.API.APIKey); err != nil {
		errs = append(errs, fmt.Sprintf("api.api_key: %v (set it in config or %s)", err, APIKeyEnv))
	}
	for field, value := range map[string]string{
		"api.timeout":             c.API.Timeout,
		"api.request_delay":       c.API.RequestDelay,
		"api.default_retry_after": c.API.DefaultRetryAfter,
		"api.max_retry_after":     c.API.MaxRetryAfter,
		"rollback.timeout":        c.Rollback.Timeout,
		"archive.rotate_interval": c.Archive.RotateInterval,
	} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid duration %q", field, value))
		}
	}
	if _, err := c.PolicyTable(); err != nil {
		errs = append(errs, err.Error())
	}

	if !c.Bus.Embedded && c.Bus.URL == "" {
		errs = append(errs, "bus.url: required when bus.embedded is false")
	}
	if c.Bus.Embedded && c.Bus.DataDir == "" {
		errs = append(errs, "bus.data_dir: required when bus.embedded is true")
	}
	if c.Intake.Enabled && c.Intake.Workers <= 0 {
		errs = append(errs, "intake.workers: must be positive")
	}
	if c.Intake.Enabled && c.Intake.DedupSize <= 0 {
		errs = append(errs, "intake.dedup_size: must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr: required when metrics are enabled")
	}
	switch c.LogLevel() {
	case "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("logging.level: unknown level %q, using info", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("logging.format: unknown format %q, using console", c.Logging.Format))
	}

	if !c.Rollback.Enabled {
		warnings = append(warnings, "rollback.enabled is false: mitigations stay in place until reverted manually")
	}
	if !c.Intake.Enabled {
		warnings = append(warnings, "intake.enabled is false: threat events on the bus will not be processed")
	}
	if !c.Archive.Enabled {
		warnings = append(warnings, "archive.enabled is false: actions are kept in memory and on the bus only")
	}

	sort.Strings(errs)
	return warnings, errs
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	return fallback
}
