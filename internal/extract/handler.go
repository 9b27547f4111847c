package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ferry/internal/config"
	"ferry/internal/diskbudget"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/stage"
	"ferry/internal/store"
)

// Handler is the archive-level extraction stage handler.
type Handler struct {
	cfg      *config.Config
	store    *store.Store
	governor *diskbudget.Governor
	logger   *slog.Logger

	mu       sync.Mutex
	reserved map[string]int64
}

// NewHandler constructs the extraction stage handler.
func NewHandler(cfg *config.Config, st *store.Store, governor *diskbudget.Governor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		store:    st,
		governor: governor,
		logger:   logging.NewComponentLogger(logger, "extract"),
		reserved: make(map[string]int64),
	}
}

// Prepare validates the staged archive and admits the extraction estimate
// (twice the archive size) against the disk budget.
func (h *Handler) Prepare(ctx context.Context, archive *store.Archive) error {
	if archive.LocalPath == "" {
		return services.Wrap(services.ErrValidation, "extract", "validate",
			"archive has no staged file; download must complete first", nil)
	}
	info, err := os.Stat(archive.LocalPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "extract", "validate",
			fmt.Sprintf("staged archive %s missing", archive.LocalPath), err)
	}

	estimate := info.Size() * 2
	if h.governor.Admit(estimate) == diskbudget.Deferred {
		return services.Wrap(services.ErrResourceExhausted, "extract", "admit",
			fmt.Sprintf("extraction of %s (%d byte estimate) exceeds current disk headroom", archive.ID, estimate), nil)
	}
	h.mu.Lock()
	h.reserved[archive.ID] = estimate
	h.mu.Unlock()
	return nil
}

// Execute unpacks the archive and registers every contained media item. Item
// registration is idempotent by fingerprint, so re-running after a partial
// failure re-yields the same records.
func (h *Handler) Execute(ctx context.Context, archive *store.Archive) error {
	logger := logging.WithContext(ctx, h.logger)
	estimate := h.takeReservation(archive.ID)

	destDir := filepath.Join(h.cfg.Paths.StagingDir, "extracted", archiveStem(archive.ID))
	result, err := Archive(ctx, archive.LocalPath, destDir)
	if err != nil {
		h.governor.Release(estimate)
		return err
	}

	for _, media := range result.Media {
		sidecarRel := ""
		if media.SidecarPath != "" {
			if rel, relErr := filepath.Rel(destDir, media.SidecarPath); relErr == nil {
				sidecarRel = filepath.ToSlash(rel)
			}
		}
		if _, err := h.store.InsertItem(ctx, archive.ID, media.RelPath, sidecarRel, media.Fingerprint); err != nil {
			h.governor.Release(estimate)
			return services.Wrap(services.ErrTransient, "extract", "register", "persist item record", err)
		}
	}

	archive.ExtractDir = destDir
	h.governor.Commit(estimate, result.TotalBytes)

	logger.Info("archive extracted",
		logging.String(logging.FieldArchiveID, archive.ID),
		logging.Int("media_files", len(result.Media)),
		logging.Int64("bytes", result.TotalBytes))
	return nil
}

// HealthCheck verifies the staging directory is writable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := os.MkdirAll(h.cfg.Paths.StagingDir, 0o755); err != nil {
		return stage.Unhealthy("extract", "staging directory not writable")
	}
	return stage.Healthy("extract")
}

func (h *Handler) takeReservation(id string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	estimate := h.reserved[id]
	delete(h.reserved, id)
	return estimate
}

func archiveStem(id string) string {
	base := filepath.Base(id)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var _ stage.ArchiveHandler = (*Handler)(nil)
