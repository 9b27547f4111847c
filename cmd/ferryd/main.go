// Command ferryd runs the migration pipeline daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"ferry/internal/config"
	"ferry/internal/daemon"
	"ferry/internal/ipc"
	"ferry/internal/logging"
	"ferry/internal/store"
	"ferry/internal/takeout"
	"ferry/internal/uploader"
	"ferry/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "ferryd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}

	source, err := takeout.NewSource(ctx, cfg)
	if err != nil {
		_ = st.Close()
		logger.Error("init archive source", logging.Error(err))
		return err
	}

	client, err := uploader.NewCommand(cfg.Uploader.Command)
	if err != nil {
		_ = st.Close()
		logger.Error("init uploader", logging.Error(err),
			logging.String(logging.FieldErrorHint, "set uploader.command in the config file"))
		return err
	}

	manager := workflow.NewManager(cfg, st, source, client, logger)

	d, err := daemon.New(cfg, st, logger, manager)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "ferryd.sock")
	ipcServer, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("ferry daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
