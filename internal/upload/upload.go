// Package upload delivers resolved items to the destination photo service.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/stage"
	"ferry/internal/store"
	"ferry/internal/uploader"
)

// Handler is the item-level upload stage handler.
type Handler struct {
	store  *store.Store
	client uploader.Client
	logger *slog.Logger
}

// NewHandler constructs the upload stage handler.
func NewHandler(st *store.Store, client uploader.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{store: st, client: client, logger: logging.NewComponentLogger(logger, "upload")}
}

// Prepare verifies the media file is still staged.
func (h *Handler) Prepare(ctx context.Context, item *store.Item) error {
	local, err := h.localMediaPath(ctx, item)
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); err != nil {
		return services.Wrap(services.ErrValidation, "upload", "validate",
			fmt.Sprintf("staged media %s missing", local), err)
	}
	return nil
}

// Execute uploads the item with its album memberships and records the remote
// identifier the service assigned.
func (h *Handler) Execute(ctx context.Context, item *store.Item) error {
	logger := logging.WithContext(ctx, h.logger)

	local, err := h.localMediaPath(ctx, item)
	if err != nil {
		return err
	}
	memberships, err := h.store.AlbumsForItem(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "upload", "albums", "load album membership", err)
	}
	names := make([]string, len(memberships))
	for i, album := range memberships {
		names[i] = album.DisplayName
	}

	remoteID, err := h.client.Upload(ctx, local, names)
	if err != nil {
		return err
	}
	item.RemoteID = remoteID

	logger.Info("item uploaded",
		logging.Int64("item_id", item.ID),
		logging.String("remote_id", remoteID),
		logging.Int("albums", len(names)))
	return nil
}

// HealthCheck reports whether the destination service is reachable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.client == nil {
		return stage.Unhealthy("upload", "no upload client configured")
	}
	if err := h.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("upload", err.Error())
	}
	return stage.Healthy("upload")
}

func (h *Handler) localMediaPath(ctx context.Context, item *store.Item) (string, error) {
	archive, err := h.store.GetArchive(ctx, item.ArchiveID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "upload", "lookup", "load parent archive", err)
	}
	if archive == nil || archive.ExtractDir == "" {
		return "", services.Wrap(services.ErrValidation, "upload", "lookup",
			fmt.Sprintf("archive %s has no extraction directory", item.ArchiveID), nil)
	}
	return filepath.Join(archive.ExtractDir, filepath.FromSlash(item.SourcePath)), nil
}

var _ stage.ItemHandler = (*Handler)(nil)
