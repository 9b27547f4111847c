package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateDisk(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSource() error {
	switch c.Source.Backend {
	case "gcs":
		if c.Source.Bucket == "" {
			return errors.New("source.bucket is required for the gcs backend")
		}
	case "local":
		if c.Source.LocalDir == "" {
			return errors.New("source.local_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("source.backend: unsupported value %q (expected gcs or local)", c.Source.Backend)
	}
	return nil
}

func (c *Config) validateDisk() error {
	if c.Disk.BudgetGiB < 0 {
		return errors.New("disk.budget_gib must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PauseFailureThreshold > 1 {
		return errors.New("workflow.pause_failure_threshold must be between 0 and 1")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
}
