package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"log/slog"

	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/store"
	"ferry/internal/workflow"
)

// Daemon coordinates the pipeline and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status is daemon runtime information for operator commands.
type Status struct {
	Running      bool
	Workflow     workflow.Status
	StateDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "ferryd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ferry daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("ferry daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("ferry daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	wfStatus, err := d.workflow.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Workflow:     wfStatus,
		StateDBPath:  filepath.Join(d.cfg.Paths.LogDir, "ferry.db"),
		LockFilePath: d.lockPath,
	}, nil
}

// ListArchives returns every tracked archive.
func (d *Daemon) ListArchives(ctx context.Context) ([]*store.Archive, error) {
	return d.store.ListArchives(ctx)
}

// FailedItems returns items parked in the failed phase.
func (d *Daemon) FailedItems(ctx context.Context) ([]*store.Item, error) {
	return d.store.ItemsByPhase(ctx, store.ItemFailed)
}

// RetryFailed re-admits failed items, all of them when ids is empty. Each
// resumes at the phase it failed from.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailedItems(ctx, ids...)
}

// Reacquire resets a corrupted or failed archive so the next discovery pass
// downloads it again.
func (d *Daemon) Reacquire(ctx context.Context, archiveID string) error {
	return d.store.ReacquireArchive(ctx, archiveID)
}

// ResetStuck rolls in-flight units back to their committed phases.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// Pause halts cleanup until Resume.
func (d *Daemon) Pause(ctx context.Context, reason string) error {
	return d.workflow.Pause(ctx, reason)
}

// Resume lifts an operator pause.
func (d *Daemon) Resume(ctx context.Context) error {
	return d.workflow.Resume(ctx)
}
