// Package download fetches discovered archives into the staging directory.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"ferry/internal/config"
	"ferry/internal/diskbudget"
	"ferry/internal/fileutil"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/stage"
	"ferry/internal/store"
	"ferry/internal/takeout"
)

// Downloader is the archive-level download stage handler.
type Downloader struct {
	cfg      *config.Config
	store    *store.Store
	governor *diskbudget.Governor
	source   takeout.Source
	logger   *slog.Logger

	mu       sync.Mutex
	reserved map[string]int64
}

// NewDownloader constructs the download stage handler.
func NewDownloader(cfg *config.Config, st *store.Store, governor *diskbudget.Governor, source takeout.Source, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		cfg:      cfg,
		store:    st,
		governor: governor,
		source:   source,
		logger:   logging.NewComponentLogger(logger, "download"),
		reserved: make(map[string]int64),
	}
}

// Prepare admits the archive's expected size against the disk budget. A
// deferral leaves the archive in place for a later poll.
func (d *Downloader) Prepare(ctx context.Context, archive *store.Archive) error {
	estimate := archive.ExpectedBytes
	if d.governor.Admit(estimate) == diskbudget.Deferred {
		return services.Wrap(services.ErrResourceExhausted, "download", "admit",
			fmt.Sprintf("archive %s (%d bytes) exceeds current disk headroom", archive.ID, estimate), nil)
	}
	d.mu.Lock()
	d.reserved[archive.ID] = estimate
	d.mu.Unlock()
	return nil
}

// Execute fetches the archive, verifies it, and records its local path and
// content hash. A re-fetched export whose bytes changed invalidates the
// item set recorded from the previous copy.
func (d *Downloader) Execute(ctx context.Context, archive *store.Archive) error {
	logger := logging.WithContext(ctx, d.logger)
	estimate := d.takeReservation(archive.ID)

	destDir := filepath.Join(d.cfg.Paths.StagingDir, "archives")
	localPath, err := d.source.Fetch(ctx, takeout.RemoteArchive{
		ID:   archive.ID,
		Name: archive.DisplayName,
		Size: archive.ExpectedBytes,
	}, destDir)
	if err != nil {
		d.governor.Release(estimate)
		return err
	}

	actual := fileutil.FileSize(localPath)
	hash, err := fileutil.HashFile(localPath)
	if err != nil {
		d.governor.Release(estimate)
		return services.Wrap(services.ErrTransient, "download", "hash", "hash fetched archive", err)
	}

	if archive.ContentHash != "" && archive.ContentHash != hash {
		logger.Warn("archive content changed since last fetch, resetting item records",
			logging.String(logging.FieldArchiveID, archive.ID))
		if _, err := d.store.DeleteItemsForArchive(ctx, archive.ID); err != nil {
			d.governor.Release(estimate)
			return services.Wrap(services.ErrTransient, "download", "reset", "drop stale item records", err)
		}
	}

	archive.LocalPath = localPath
	archive.ContentHash = hash
	d.governor.Commit(estimate, actual)

	logger.Info("archive fetched",
		logging.String(logging.FieldArchiveID, archive.ID),
		logging.Int64("bytes", actual))
	return nil
}

// HealthCheck reports whether the remote source is usable.
func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	if d.source == nil {
		return stage.Unhealthy("download", "no archive source configured")
	}
	if _, err := d.source.List(ctx); err != nil {
		return stage.Unhealthy("download", services.Details(err).Message)
	}
	return stage.Healthy("download")
}

func (d *Downloader) takeReservation(id string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	estimate := d.reserved[id]
	delete(d.reserved, id)
	return estimate
}

var _ stage.ArchiveHandler = (*Downloader)(nil)
