// Package config loads, defaults, and validates peerscout settings from
// YAML files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTargetCountries  = "CA,US"
	DefaultMaxLatencyMs     = 50
	DefaultDesiredCount     = 5
	DefaultMaxAttempts      = 5
	DefaultOutput           = "list"
	DefaultLogLevel         = "info"
	DefaultProbeNetwork     = "udp"
	DefaultProbeParallelism = 8
)

// Config holds one acquisition run's settings. Every field can also be
// set through the environment as PEERSCOUT_<PATH>, e.g. PEERSCOUT_NETWORK
// or PEERSCOUT_DIRECTORY_BASE_URL.
type Config struct {
	Network         string   `yaml:"network" split_words:"true"`
	TargetCountries []string `yaml:"target_countries" split_words:"true"`
	MaxLatencyMs    float64  `yaml:"max_latency_ms" split_words:"true"`
	DesiredCount    uint     `yaml:"desired_count" split_words:"true"`
	MaxAttempts     uint     `yaml:"max_attempts" split_words:"true"`
	Output          string   `yaml:"output"`
	LogLevel        string   `yaml:"log_level" split_words:"true"`

	Directory DirectoryConfig `yaml:"directory"`
	Geo       GeoConfig       `yaml:"geo"`
	Probe     ProbeConfig     `yaml:"probe"`
}

// DirectoryConfig points at the chain directory service.
type DirectoryConfig struct {
	BaseURL string `yaml:"base_url" split_words:"true"`
}

// GeoConfig holds geolocation service settings. The access token is also
// read from the plain IPINFO_ACCESS_TOKEN environment variable.
type GeoConfig struct {
	BaseURL     string `yaml:"base_url" split_words:"true"`
	AccessToken string `yaml:"access_token" envconfig:"IPINFO_ACCESS_TOKEN"`
}

// ProbeConfig selects the ICMP socket mode and probe concurrency.
type ProbeConfig struct {
	Network     string `yaml:"network"`
	Parallelism int    `yaml:"parallelism"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// FromEnv overlays PEERSCOUT_* environment variables onto cfg. Fields
// with an alternate name, such as IPINFO_ACCESS_TOKEN, are also read
// under that bare name.
func FromEnv(cfg *Config) error {
	return envconfig.Process("peerscout", cfg)
}

// Validate checks the invariants a run depends on. It expects defaults
// to have been applied.
func Validate(cfg Config) error {
	if cfg.Network == "" {
		return fmt.Errorf("network is required")
	}
	if cfg.DesiredCount == 0 {
		return fmt.Errorf("desired_count must be positive")
	}
	if cfg.MaxAttempts == 0 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if cfg.MaxLatencyMs <= 0 {
		return fmt.Errorf("max_latency_ms must be positive")
	}
	if len(cfg.TargetCountries) == 0 {
		return fmt.Errorf("target_countries must list at least one country code")
	}
	if cfg.Output != "list" && cfg.Output != "string" {
		return fmt.Errorf("output must be \"list\" or \"string\", got %q", cfg.Output)
	}
	if cfg.Probe.Network != "udp" && cfg.Probe.Network != "ip" {
		return fmt.Errorf("probe.network must be \"udp\" or \"ip\", got %q", cfg.Probe.Network)
	}
	return nil
}

// ApplyDefaults fills in default values when empty and normalizes
// country codes to upper case.
func ApplyDefaults(cfg *Config) {
	if len(cfg.TargetCountries) == 0 {
		cfg.TargetCountries = strings.Split(DefaultTargetCountries, ",")
	}
	for i, c := range cfg.TargetCountries {
		cfg.TargetCountries[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	if cfg.MaxLatencyMs == 0 {
		cfg.MaxLatencyMs = DefaultMaxLatencyMs
	}
	if cfg.DesiredCount == 0 {
		cfg.DesiredCount = DefaultDesiredCount
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Probe.Network == "" {
		cfg.Probe.Network = DefaultProbeNetwork
	}
	if cfg.Probe.Parallelism == 0 {
		cfg.Probe.Parallelism = DefaultProbeParallelism
	}
}
