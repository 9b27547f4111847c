package takeout

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ferry/internal/fileutil"
	"ferry/internal/services"
)

// LocalSource reads archives from a directory. Used by tests and for
// exports already downloaded out of band.
type LocalSource struct {
	dir string
}

// NewLocalSource builds a directory-backed source.
func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{dir: dir}
}

// List enumerates zip files directly under the source directory.
func (s *LocalSource) List(ctx context.Context) ([]RemoteArchive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "takeout", "list", "read source directory", err)
	}

	var archives []RemoteArchive
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "takeout", "list", "stat archive", err)
		}
		archives = append(archives, RemoteArchive{
			ID:   entry.Name(),
			Name: entry.Name(),
			Size: info.Size(),
		})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].ID < archives[j].ID })
	return archives, nil
}

// Fetch copies the archive into destDir with size and hash verification.
func (s *LocalSource) Fetch(ctx context.Context, archive RemoteArchive, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src := filepath.Join(s.dir, archive.ID)
	dst := filepath.Join(destDir, archive.ID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "takeout", "fetch", "create staging dir", err)
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", services.Wrap(services.ErrTransient, "takeout", "fetch", "copy archive", err)
	}
	return dst, nil
}

// Describe names the backing store.
func (s *LocalSource) Describe() string {
	return "local:" + s.dir
}
