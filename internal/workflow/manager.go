package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/cleanup"
	"ferry/internal/config"
	"ferry/internal/diskbudget"
	"ferry/internal/download"
	"ferry/internal/extract"
	"ferry/internal/logging"
	"ferry/internal/mediaprep"
	"ferry/internal/notifications"
	"ferry/internal/retry"
	"ferry/internal/stage"
	"ferry/internal/store"
	"ferry/internal/takeout"
	"ferry/internal/upload"
	"ferry/internal/uploader"
)

// Manager coordinates the phase lanes over the shared store.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	governor *diskbudget.Governor
	source   takeout.Source
	policy   retry.Policy
	notifier notifications.Service

	download stage.ArchiveHandler
	extract  stage.ArchiveHandler
	cleanup  stage.ArchiveHandler
	merge    stage.ItemHandler
	resolve  stage.ItemHandler
	upload   stage.ItemHandler

	pollInterval  time.Duration
	errorInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager with production handlers.
func NewManager(cfg *config.Config, st *store.Store, source takeout.Source, uploadClient uploader.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	governor := diskbudget.NewGovernor(
		cfg.Paths.StagingDir,
		cfg.DiskBudgetBytes(),
		logger,
		diskbudget.WithRefreshInterval(cfg.DiskRefreshInterval()),
	)
	paced := uploader.NewPaced(uploadClient, cfg.Uploader.RatePerSecond, cfg.Uploader.Burst, cfg.UploadTimeout())

	m := &Manager{
		cfg:      cfg,
		store:    st,
		logger:   logger,
		governor: governor,
		source:   source,
		notifier: notifications.NewService(cfg),
		policy: retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BackoffInitial: cfg.RetryBackoffInitial(),
			BackoffMax:     cfg.RetryBackoffMax(),
		},
		pollInterval:  cfg.QueuePollInterval(),
		errorInterval: cfg.ErrorRetryInterval(),
	}
	m.download = download.NewDownloader(cfg, st, governor, source, logger)
	m.extract = extract.NewHandler(cfg, st, governor, logger)
	m.cleanup = cleanup.NewHandler(st, governor, logger)
	m.merge = mediaprep.NewMerger(cfg, st, logger)
	m.resolve = mediaprep.NewResolver(st, logger)
	m.upload = upload.NewHandler(st, paced, logger)
	return m
}

// Governor exposes disk budget bookkeeping for status output.
func (m *Manager) Governor() *diskbudget.Governor {
	return m.governor
}

// Start recovers interrupted work and launches the lanes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("rolled interrupted work back to committed phases",
			logging.Int64("count", reset))
	}
	if err := m.store.ClearAlbumRunFlags(ctx); err != nil {
		return err
	}
	if err := m.governor.Refresh(); err != nil {
		m.logger.Warn("initial disk usage measurement failed", logging.Error(err))
	}
	for _, h := range m.stageHealth(ctx) {
		if !h.Ready {
			m.logger.Warn("stage dependency not ready", logging.String("health", h.Summary()))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	lanes := m.buildLanes()
	m.wg.Add(len(lanes) + 1)
	for _, lane := range lanes {
		go lane.run(runCtx)
	}
	go m.runHousekeeping(runCtx)

	m.logger.Info("workflow started",
		logging.Int("lanes", len(lanes)),
		logging.String("source", m.source.Describe()))
	return nil
}

// Stop halts admissions and waits for in-flight stages to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether lanes are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pause halts cleanup until an operator resume.
func (m *Manager) Pause(ctx context.Context, reason string) error {
	if err := m.store.SetPaused(ctx, true, reason); err != nil {
		return err
	}
	m.logger.Warn("cleanup paused by operator", logging.String("reason", reason))
	m.notifyPipelinePaused(ctx, reason)
	return nil
}

// Resume lifts a pause. The resume acknowledges every failure recorded so
// far, so the automatic pause policy stays quiet until new ones arrive.
func (m *Manager) Resume(ctx context.Context) error {
	if err := m.store.SetPaused(ctx, false, ""); err != nil {
		return err
	}
	m.logger.Info("cleanup resumed by operator")
	m.notifyPipelineResumed(ctx)
	return nil
}
