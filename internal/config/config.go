package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob of a single update run. It is loaded once at
// startup and passed into the orchestrator; there is no process-wide
// mutable configuration.
type Config struct {
	// Repo is the tracked GitHub repository in "owner/name" form.
	Repo string `yaml:"repo"`
	// ServiceName is the systemd unit running the managed binary.
	ServiceName string `yaml:"service_name"`
	// BinaryName is the release artifact and installed executable name.
	BinaryName string `yaml:"binary_name"`
	// BinaryDir is the directory holding the installed executable.
	BinaryDir string `yaml:"binary_dir"`
	// DownloadDir is where release artifacts are fetched to.
	DownloadDir string `yaml:"download_dir"`
	// StateFile tracks the last installed release identifier.
	StateFile string `yaml:"state_file"`
	// ReleasePrefix is the literal prefix preceding the embedded
	// "<major>.<minor>" version in release tags.
	ReleasePrefix string `yaml:"release_prefix"`
	// IncludePrerelease allows installing pre-release tags.
	IncludePrerelease bool `yaml:"include_prerelease"`
	// HealthTimeout bounds the post-restart liveness observation.
	HealthTimeout time.Duration `yaml:"health_timeout"`
	// HealthPollInterval is the interval between liveness counter checks.
	HealthPollInterval time.Duration `yaml:"health_poll_interval"`
	// LivenessPattern extracts the traffic counter from service log lines.
	// It must contain two capture groups: the numeric value and the unit suffix.
	LivenessPattern string `yaml:"liveness_pattern"`
	// BackupEnabled snapshots DataDir before mutating anything.
	BackupEnabled bool `yaml:"backup_enabled"`
	// DataDir is the service data directory to snapshot.
	DataDir string `yaml:"data_dir"`
	// BackupDir is where snapshots are written.
	BackupDir string `yaml:"backup_dir"`
	// WebhookURL receives alert notifications. The DISCORD_WEBHOOK_URL
	// environment variable takes precedence when set.
	WebhookURL string `yaml:"webhook_url"`
	// LogFile enables a rotating log file next to console output.
	LogFile string `yaml:"log_file"`
	// HTTPTimeout is the per-request timeout for release metadata calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "node-updater-settings.yaml"

	// DefaultStateFilename is the default filename tracking the last installed release.
	DefaultStateFilename = "last_release.txt"

	// DefaultReleasePrefix precedes the embedded version in release tags.
	DefaultReleasePrefix = "v"

	// DefaultHealthTimeout bounds how long the service gets to show traffic after restart.
	DefaultHealthTimeout = 10 * time.Minute

	// DefaultHealthPollInterval is the liveness counter polling interval.
	DefaultHealthPollInterval = 10 * time.Second

	// DefaultLivenessPattern matches the traffic counter the managed node
	// prints, e.g. "Packets sent [total]: 42.5M".
	DefaultLivenessPattern = `Packets sent \[total\].*?([\d.]+)([KM]?)`

	// DefaultHTTPTimeout is the default duration for metadata HTTP requests.
	DefaultHTTPTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// WebhookURLEnvVar overrides the configured webhook URL.
	WebhookURLEnvVar = "DISCORD_WEBHOOK_URL"

	// livenessPatternGroups is the number of capture groups the pattern must have.
	livenessPatternGroups = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepoRequired is returned when the tracked repository is missing or malformed.
	errRepoRequired = errors.New("repo must be provided as owner/name")
	// errServiceNameRequired is returned when the managed unit name is missing.
	errServiceNameRequired = errors.New("service name must be provided")
	// errBinaryNameRequired is returned when the managed binary name is missing.
	errBinaryNameRequired = errors.New("binary name must be provided")
	// errPatternGroups is returned when the liveness pattern lacks capture groups.
	errPatternGroups = errors.New("liveness pattern must capture a value and a suffix")
)

// Load reads configuration from the provided path, applies environment
// overrides, and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if webhookURL := os.Getenv(WebhookURLEnvVar); webhookURL != "" {
		cfg.WebhookURL = webhookURL
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	owner, name, found := strings.Cut(cfg.Repo, "/")
	if !found || owner == "" || name == "" {
		return fmt.Errorf("%w: %q", errRepoRequired, cfg.Repo)
	}

	if cfg.ServiceName == "" {
		return errServiceNameRequired
	}

	if cfg.BinaryName == "" {
		return errBinaryNameRequired
	}

	applyDefaults(cfg)

	pattern, err := regexp.Compile(cfg.LivenessPattern)
	if err != nil {
		return fmt.Errorf("invalid liveness pattern: %w", err)
	}

	if pattern.NumSubexp() < livenessPatternGroups {
		return errPatternGroups
	}

	if cfg.WebhookURL != "" {
		if _, err := url.ParseRequestURI(cfg.WebhookURL); err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
	}

	return nil
}

// applyDefaults fills zero-valued optional fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.BinaryDir == "" {
		cfg.BinaryDir = "."
	}

	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "."
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.ReleasePrefix == "" {
		cfg.ReleasePrefix = DefaultReleasePrefix
	}

	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	if cfg.HealthPollInterval <= 0 {
		cfg.HealthPollInterval = DefaultHealthPollInterval
	}

	if cfg.LivenessPattern == "" {
		cfg.LivenessPattern = DefaultLivenessPattern
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	if cfg.BackupDir == "" {
		cfg.BackupDir = cfg.DownloadDir
	}
}
