// Package takeout abstracts where exported archives come from.
//
// The pipeline only needs two operations: enumerate the archives an export
// produced, and fetch one into the staging directory. Production runs read a
// Google Cloud Storage bucket; tests and offline use read a local directory.
package takeout

import (
	"context"
	"fmt"

	"ferry/internal/config"
)

// RemoteArchive identifies one archive in the remote export.
type RemoteArchive struct {
	// ID is the stable remote identifier (object name or file name).
	ID string
	// Name is the operator-facing display name.
	Name string
	// Size is the expected byte count, used for disk budget admission.
	Size int64
}

// Source enumerates and fetches exported archives.
type Source interface {
	// List returns every archive currently visible in the export.
	List(ctx context.Context) ([]RemoteArchive, error)
	// Fetch downloads one archive into destDir and returns the local path.
	// Implementations verify integrity of the fetched bytes.
	Fetch(ctx context.Context, archive RemoteArchive, destDir string) (string, error)
	// Describe names the backing store for logs and health output.
	Describe() string
}

// NewSource builds the configured source implementation.
func NewSource(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Source.Backend {
	case "local":
		return NewLocalSource(cfg.Source.LocalDir), nil
	case "gcs":
		return NewGCSSource(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown source backend %q", cfg.Source.Backend)
	}
}
