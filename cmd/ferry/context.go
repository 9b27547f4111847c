package main

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ferry/internal/config"
	"ferry/internal/control"
	"ferry/internal/ipc"
	"ferry/internal/store"
)

type commandContext struct {
	socketFlag *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() (string, error) {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return *c.socketFlag, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Paths.LogDir, "ferryd.sock"), nil
}

// withAccess runs fn with daemon-backed access when the socket answers and
// direct store access otherwise.
func (c *commandContext) withAccess(fn func(control.Access) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	socket, err := c.socketPath()
	if err != nil {
		return err
	}

	session, err := control.OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(socket) },
		func() (*store.Store, string, error) {
			st, err := store.Open(cfg)
			return st, cfg.Paths.LogDir, err
		},
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

// withClient runs fn against the daemon socket only; commands that need a
// live daemon use this instead of withAccess.
func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket, err := c.socketPath()
	if err != nil {
		return err
	}
	client, err := ipc.Dial(socket)
	if err != nil {
		return wrapDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
