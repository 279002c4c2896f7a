package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the backend used when neither the config file nor the
	// environment names one.
	DefaultBaseURL = "https://webapp-amy.azurewebsites.net/"
	// BaseURLEnv overrides the base URL from the config file.
	BaseURLEnv = "WEBAPP"
	// PathEnv points at the YAML config file when no path is given explicitly.
	PathEnv = "CONFIG_PATH"
)

type Config struct {
	BaseURL string  `yaml:"base_url"`
	Polling Polling `yaml:"polling"`
	Submit  Submit  `yaml:"submit"`
}

type Polling struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Submit struct {
	Nodes     int    `yaml:"nodes"`
	WallClock string `yaml:"wall_clock"`
	Template  string `yaml:"template"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Polling: Polling{
			Interval: 5 * time.Second,
		},
		Submit: Submit{
			Nodes:     2,
			WallClock: "02:00",
			Template:  "job_template.json",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies the
// WEBAPP override. An empty path falls back to CONFIG_PATH; if that is unset
// too, only defaults and environment are used. The result is not validated:
// callers apply their own overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv(BaseURLEnv); v != "" {
		cfg.BaseURL = v
	}
	return cfg, nil
}

// Validate checks that all config values are usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url %q: scheme must be http or https", c.BaseURL)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("invalid polling interval %s", c.Polling.Interval)
	}
	if c.Polling.MaxAttempts < 0 {
		return fmt.Errorf("invalid polling max_attempts %d", c.Polling.MaxAttempts)
	}
	if c.Polling.Timeout < 0 {
		return fmt.Errorf("invalid polling timeout %s", c.Polling.Timeout)
	}
	if c.Submit.Nodes <= 0 {
		return fmt.Errorf("invalid node count %d", c.Submit.Nodes)
	}
	if c.Submit.WallClock == "" {
		return errors.New("wall_clock cannot be empty")
	}
	return nil
}
