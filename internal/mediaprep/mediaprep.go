// Package mediaprep runs the item-level preparation stages: merging sidecar
// metadata into the media file and resolving album membership.
package mediaprep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ferry/internal/albums"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/sidecar"
	"ferry/internal/stage"
	"ferry/internal/store"
	"ferry/internal/tagger"
)

// Merger applies sidecar metadata to the extracted media file.
type Merger struct {
	store  *store.Store
	tagger tagger.Client
	logger *slog.Logger
}

// NewMerger constructs the metadata merge stage handler.
func NewMerger(cfg *config.Config, st *store.Store, logger *slog.Logger) *Merger {
	client := tagger.NewCLI(
		tagger.WithBinary(cfg.Tagger.Binary),
		tagger.WithTimeout(cfg.TaggerTimeout()),
	)
	return NewMergerWithDependencies(st, client, logger)
}

// NewMergerWithDependencies allows injecting the tagging client (used in tests).
func NewMergerWithDependencies(st *store.Store, client tagger.Client, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Merger{store: st, tagger: client, logger: logging.NewComponentLogger(logger, "mediaprep")}
}

// Prepare verifies the extracted media file still exists.
func (m *Merger) Prepare(ctx context.Context, item *store.Item) error {
	local, err := m.localMediaPath(ctx, item)
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); err != nil {
		return services.Wrap(services.ErrValidation, "mediaprep", "validate",
			fmt.Sprintf("extracted media %s missing", local), err)
	}
	return nil
}

// Execute parses the sidecar, records its fields on the item, and writes
// them into the media file. Items without a sidecar pass through untouched:
// a missing sidecar is a normal Takeout artifact, not a failure.
func (m *Merger) Execute(ctx context.Context, item *store.Item) error {
	logger := logging.WithContext(ctx, m.logger)

	if item.SidecarPath == "" {
		logger.Debug("no sidecar exported for item", logging.Int64("item_id", item.ID))
		return nil
	}

	archive, err := m.archiveFor(ctx, item)
	if err != nil {
		return err
	}
	meta, err := sidecar.Load(filepath.Join(archive.ExtractDir, filepath.FromSlash(item.SidecarPath)))
	if err != nil {
		return err
	}

	item.TakenAt = meta.TakenAt
	item.Latitude = meta.Latitude
	item.Longitude = meta.Longitude
	item.Description = meta.Description

	local := filepath.Join(archive.ExtractDir, filepath.FromSlash(item.SourcePath))
	if err := m.tagger.Apply(ctx, local, meta); err != nil {
		return err
	}

	logger.Debug("metadata merged",
		logging.Int64("item_id", item.ID),
		logging.Bool("has_taken_at", meta.TakenAt != nil),
		logging.Bool("has_geo", meta.Latitude != nil))
	return nil
}

// HealthCheck reports whether the tagging tool is invocable.
func (m *Merger) HealthCheck(ctx context.Context) stage.Health {
	if err := m.tagger.Available(); err != nil {
		return stage.Unhealthy("mediaprep", services.Details(err).Message)
	}
	return stage.Healthy("mediaprep")
}

func (m *Merger) archiveFor(ctx context.Context, item *store.Item) (*store.Archive, error) {
	archive, err := m.store.GetArchive(ctx, item.ArchiveID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "mediaprep", "lookup", "load parent archive", err)
	}
	if archive == nil || archive.ExtractDir == "" {
		return nil, services.Wrap(services.ErrValidation, "mediaprep", "lookup",
			fmt.Sprintf("archive %s has no extraction directory", item.ArchiveID), nil)
	}
	return archive, nil
}

func (m *Merger) localMediaPath(ctx context.Context, item *store.Item) (string, error) {
	archive, err := m.archiveFor(ctx, item)
	if err != nil {
		return "", err
	}
	return filepath.Join(archive.ExtractDir, filepath.FromSlash(item.SourcePath)), nil
}

var _ stage.ItemHandler = (*Merger)(nil)

// Resolver derives album membership for merged items.
type Resolver struct {
	store    *store.Store
	resolver *albums.Resolver
	logger   *slog.Logger
}

// NewResolver constructs the album resolution stage handler.
func NewResolver(st *store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		store:    st,
		resolver: albums.NewResolver(st, logger),
		logger:   logging.NewComponentLogger(logger, "albumresolve"),
	}
}

// Prepare is a no-op; resolution needs only store state.
func (r *Resolver) Prepare(ctx context.Context, item *store.Item) error {
	return nil
}

// Execute attaches the item to its albums. Idempotent: a second run yields
// identical membership.
func (r *Resolver) Execute(ctx context.Context, item *store.Item) error {
	var meta *sidecar.Metadata
	if item.SidecarPath != "" {
		archive, err := r.store.GetArchive(ctx, item.ArchiveID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "albumresolve", "lookup", "load parent archive", err)
		}
		if archive != nil && archive.ExtractDir != "" {
			path := filepath.Join(archive.ExtractDir, filepath.FromSlash(item.SidecarPath))
			parsed, err := sidecar.Load(path)
			if err != nil {
				// Resolution still works from the directory name alone, but
				// the operator should know the sidecar contributed nothing.
				logging.WithContext(ctx, r.logger).Warn("sidecar unreadable, resolving from path only",
					logging.Int64("item_id", item.ID),
					logging.String("sidecar", path),
					logging.Error(err))
			} else {
				meta = parsed
			}
		}
	}

	resolved, err := r.resolver.Resolve(ctx, item.ID, item.SourcePath, meta)
	if err != nil {
		return err
	}
	logging.WithContext(ctx, r.logger).Debug("album membership resolved",
		logging.Int64("item_id", item.ID),
		logging.Int("albums", len(resolved)))
	return nil
}

// HealthCheck always reports ready; resolution has no external dependency.
func (r *Resolver) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("albumresolve")
}

var _ stage.ItemHandler = (*Resolver)(nil)
