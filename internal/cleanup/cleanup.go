// Package cleanup reclaims staging space from fully processed archives.
//
// Cleanup is the only destructive stage, so it is gated hard: an archive is
// eligible only after every contained item is terminal and its outcome is
// durably recorded. Losing staged bytes for an item that never reached a
// terminal phase is unrecoverable; deleting after the record is merely tidy.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"ferry/internal/diskbudget"
	"ferry/internal/fileutil"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/stage"
	"ferry/internal/store"
)

// Handler is the archive-level cleanup stage handler.
type Handler struct {
	store    *store.Store
	governor *diskbudget.Governor
	logger   *slog.Logger
}

// NewHandler constructs the cleanup stage handler.
func NewHandler(st *store.Store, governor *diskbudget.Governor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: st, governor: governor, logger: logging.NewComponentLogger(logger, "cleanup")}
}

// Prepare re-verifies the cleanup gate under the claim: no contained item
// may still be non-terminal.
func (h *Handler) Prepare(ctx context.Context, archive *store.Archive) error {
	pending, err := h.store.NonTerminalItemCount(ctx, archive.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "cleanup", "gate", "count pending items", err)
	}
	if pending > 0 {
		// An operator retry can re-open items after the promotion check ran.
		// That is a scheduling race, not a defect in the archive, so defer
		// and let the lane come back once the items settle again.
		return services.Wrap(services.ErrResourceExhausted, "cleanup", "gate",
			fmt.Sprintf("archive %s still has %d non-terminal items", archive.ID, pending), nil)
	}
	return nil
}

// Execute removes the staged zip and extraction directory, returning the
// freed bytes to the disk budget.
func (h *Handler) Execute(ctx context.Context, archive *store.Archive) error {
	logger := logging.WithContext(ctx, h.logger)

	var freed int64
	for _, path := range []string{archive.LocalPath, archive.ExtractDir} {
		n, err := fileutil.RemoveTree(path)
		if err != nil {
			return services.Wrap(services.ErrTransient, "cleanup", "remove",
				fmt.Sprintf("remove %s", path), err)
		}
		freed += n
	}

	archive.LocalPath = ""
	archive.ExtractDir = ""
	h.governor.Reclaim(freed)

	logger.Info("archive cleaned",
		logging.String(logging.FieldArchiveID, archive.ID),
		logging.Int64("bytes_freed", freed))
	return nil
}

// HealthCheck verifies filesystem deletes are possible in principle.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if _, err := os.Stat(os.TempDir()); err != nil {
		return stage.Unhealthy("cleanup", "filesystem unavailable")
	}
	return stage.Healthy("cleanup")
}

var _ stage.ArchiveHandler = (*Handler)(nil)
