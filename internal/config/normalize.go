package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSource(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeRetry()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() error {
	c.Source.Backend = strings.ToLower(strings.TrimSpace(c.Source.Backend))
	if c.Source.Backend == "" {
		c.Source.Backend = defaultSourceBackend
	}
	var err error
	if c.Source.LocalDir != "" {
		if c.Source.LocalDir, err = expandPath(c.Source.LocalDir); err != nil {
			return fmt.Errorf("source.local_dir: %w", err)
		}
	}
	if c.Source.CredentialsFile != "" {
		if c.Source.CredentialsFile, err = expandPath(c.Source.CredentialsFile); err != nil {
			return fmt.Errorf("source.credentials_file: %w", err)
		}
	}
	if c.Source.FetchTimeout <= 0 {
		c.Source.FetchTimeout = defaultFetchTimeout
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Download <= 0 {
		c.Workers.Download = defaultDownloadWorkers
	}
	if c.Workers.Extract <= 0 {
		c.Workers.Extract = defaultExtractWorkers
	}
	if c.Workers.Merge <= 0 {
		c.Workers.Merge = defaultMergeWorkers
	}
	if c.Workers.Upload <= 0 {
		c.Workers.Upload = defaultUploadWorkers
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BackoffInitial <= 0 {
		c.Retry.BackoffInitial = defaultRetryBackoffInitial
	}
	if c.Retry.BackoffMax < c.Retry.BackoffInitial {
		c.Retry.BackoffMax = defaultRetryBackoffMax
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.DiscoveryInterval <= 0 {
		c.Workflow.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.Workflow.PauseFailureThreshold <= 0 {
		c.Workflow.PauseFailureThreshold = defaultPauseFailureThreshold
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
