// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RCA_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration shared by the tool server and the batch CLI.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address of the tool server, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Model and Host identify the inference endpoint.
	Model string `koanf:"model"`
	Host  string `koanf:"host"`

	// Temperature is the sampling temperature sent with every model call.
	Temperature float64 `koanf:"temperature"`

	// TimeoutSeconds bounds a single model call.
	TimeoutSeconds int `koanf:"timeout_seconds"`

	// DataPath points at the incident CSV served by the tool server.
	DataPath string `koanf:"data_path"`

	// Column names mapping source columns to incident fields.
	ColID          string `koanf:"col_id"`
	ColSummary     string `koanf:"col_summary"`
	ColDescription string `koanf:"col_description"`
	ColRootCause   string `koanf:"col_root_cause"`
	ColResolution  string `koanf:"col_resolution"`
	ColPreventive  string `koanf:"col_preventive"`

	// Concurrency bounds in-flight evaluations during a batch run. 1 is sequential.
	Concurrency int `koanf:"concurrency"`

	// MaxRetries retries a batch row after a transport failure. 0 disables retries.
	MaxRetries int `koanf:"max_retries"`

	// ListLimit is the default page size for incident listings.
	ListLimit int `koanf:"list_limit"`

	// SessionTTLMinutes drops tool-server sessions idle this long. 0 keeps them.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		Model:          "llama3.1:8b",
		Host:           "http://localhost:11434",
		Temperature:    0.2,
		TimeoutSeconds: 180,
		DataPath:       "./data/example_incidents.csv",
		ColID:          "issue_key",
		ColSummary:     "summary",
		ColDescription: "description",
		ColRootCause:   "root_cause",
		ColResolution:  "resolution",
		ColPreventive:  "preventive_action",
		Concurrency:    1,
		MaxRetries:     0,
		ListLimit:      20,

		SessionTTLMinutes: 60,
	}
}

// Timeout returns TimeoutSeconds as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionTTL returns SessionTTLMinutes as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Columns returns the six column names in incident field order:
// id, summary, description, root cause, resolution, preventive action.
func (c *Config) Columns() [6]string {
	return [6]string{c.ColID, c.ColSummary, c.ColDescription, c.ColRootCause, c.ColResolution, c.ColPreventive}
}

// Validate checks the values Load cannot default sensibly.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Model == "":
		return fmt.Errorf("%w: model must not be empty", ErrInvalidConfig)
	case c.Host == "":
		return fmt.Errorf("%w: host must not be empty", ErrInvalidConfig)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidConfig, c.Temperature)
	case c.TimeoutSeconds <= 0:
		return fmt.Errorf("%w: timeout_seconds must be positive", ErrInvalidConfig)
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries cannot be negative", ErrInvalidConfig)
	case c.ListLimit < 1:
		return fmt.Errorf("%w: list_limit must be at least 1", ErrInvalidConfig)
	case c.SessionTTLMinutes < 0:
		return fmt.Errorf("%w: session_ttl_minutes cannot be negative", ErrInvalidConfig)
	}
	for _, col := range c.Columns() {
		if col == "" {
			return fmt.Errorf("%w: column names must not be empty", ErrInvalidConfig)
		}
	}
	return nil
}
