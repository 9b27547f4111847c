package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source configures the remote archive store the pipeline pulls from.
type Source struct {
	Backend         string `toml:"backend"` // "gcs" or "local"
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	CredentialsFile string `toml:"credentials_file"`
	LocalDir        string `toml:"local_dir"`
	FetchTimeout    int    `toml:"fetch_timeout"`
}

// Tagger configures the external metadata tagging tool.
type Tagger struct {
	Binary  string `toml:"binary"`
	Timeout int    `toml:"timeout"`
}

// Uploader configures pacing for the remote photo-service uploader.
type Uploader struct {
	// Command is the external uploader invoked once per media file. It
	// receives the media path plus one --album flag per resolved album and
	// must print the remote id on stdout.
	Command       string  `toml:"command"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
	Timeout       int     `toml:"timeout"`
}

// Workers contains per-phase worker pool sizes.
type Workers struct {
	Download int `toml:"download"`
	Extract  int `toml:"extract"`
	Merge    int `toml:"merge"`
	Upload   int `toml:"upload"`
}

// Disk configures the disk budget governor.
type Disk struct {
	BudgetGiB       int  `toml:"budget_gib"` // 0 = unlimited
	RefreshInterval int  `toml:"refresh_interval"`
	CleanupEnabled  bool `toml:"cleanup_enabled"`
}

// Retry configures failure retry behavior.
type Retry struct {
	MaxAttempts    int `toml:"max_attempts"`
	BackoffInitial int `toml:"backoff_initial"` // seconds
	BackoffMax     int `toml:"backoff_max"`     // seconds
}

// Workflow contains daemon timing and pause policy.
type Workflow struct {
	QueuePollInterval     int     `toml:"queue_poll_interval"`
	ErrorRetryInterval    int     `toml:"error_retry_interval"`
	HeartbeatInterval     int     `toml:"heartbeat_interval"`
	HeartbeatTimeout      int     `toml:"heartbeat_timeout"`
	DiscoveryInterval     int     `toml:"discovery_interval"`
	PauseFailureThreshold float64 `toml:"pause_failure_threshold"`
}

// Notifications configures optional ntfy push notifications.
type Notifications struct {
	// NtfyTopic is the full ntfy topic URL. Empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Ferry.
//
// Configuration sections by subsystem:
//   - Paths: staging and log/state directories
//   - Source: remote archive store (GCS bucket or local directory)
//   - Tagger: exiftool invocation
//   - Uploader: photo-service upload pacing
//   - Workers: per-phase concurrency
//   - Disk: staging disk budget and cleanup policy
//   - Retry: attempt limits and backoff bounds
//   - Workflow: polling, heartbeats, pause threshold
//   - Notifications: optional ntfy push notifications
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Tagger        Tagger        `toml:"tagger"`
	Uploader      Uploader      `toml:"uploader"`
	Workers       Workers       `toml:"workers"`
	Disk          Disk          `toml:"disk"`
	Retry         Retry         `toml:"retry"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ferry/config.toml")
}

// SampleConfig returns the embedded example configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DiskBudgetBytes returns the configured staging ceiling in bytes (0 = unlimited).
func (c *Config) DiskBudgetBytes() int64 {
	return int64(c.Disk.BudgetGiB) * 1024 * 1024 * 1024
}

// Seconds-valued settings are exposed as durations for collaborators.

func (c *Config) TaggerTimeout() time.Duration      { return seconds(c.Tagger.Timeout) }
func (c *Config) UploadTimeout() time.Duration      { return seconds(c.Uploader.Timeout) }
func (c *Config) FetchTimeout() time.Duration       { return seconds(c.Source.FetchTimeout) }
func (c *Config) QueuePollInterval() time.Duration  { return seconds(c.Workflow.QueuePollInterval) }
func (c *Config) ErrorRetryInterval() time.Duration { return seconds(c.Workflow.ErrorRetryInterval) }
func (c *Config) HeartbeatInterval() time.Duration  { return seconds(c.Workflow.HeartbeatInterval) }
func (c *Config) HeartbeatTimeout() time.Duration   { return seconds(c.Workflow.HeartbeatTimeout) }
func (c *Config) DiscoveryInterval() time.Duration  { return seconds(c.Workflow.DiscoveryInterval) }
func (c *Config) DiskRefreshInterval() time.Duration {
	return seconds(c.Disk.RefreshInterval)
}
func (c *Config) RetryBackoffInitial() time.Duration { return seconds(c.Retry.BackoffInitial) }
func (c *Config) RetryBackoffMax() time.Duration     { return seconds(c.Retry.BackoffMax) }

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath resolves ~ and returns an absolute, cleaned path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
