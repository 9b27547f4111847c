package takeout

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ferry/internal/config"
	"ferry/internal/services"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// GCSSource reads exported archives from a Google Cloud Storage bucket.
type GCSSource struct {
	client       *storage.Client
	bucket       string
	prefix       string
	fetchTimeout time.Duration
}

// NewGCSSource builds a bucket-backed source using a credentials file when
// configured, falling back to Application Default Credentials.
func NewGCSSource(ctx context.Context, cfg *config.Config) (*GCSSource, error) {
	if cfg.Source.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "takeout", "gcs", "source.bucket is required", nil)
	}

	var client *storage.Client
	var err error
	if cfg.Source.CredentialsFile != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.Source.CredentialsFile))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "takeout", "gcs", "create storage client", err)
	}

	return &GCSSource{
		client:       client,
		bucket:       cfg.Source.Bucket,
		prefix:       strings.TrimSuffix(cfg.Source.Prefix, "/"),
		fetchTimeout: time.Duration(cfg.Source.FetchTimeout) * time.Second,
	}, nil
}

// List enumerates zip objects under the configured prefix.
func (s *GCSSource) List(ctx context.Context) ([]RemoteArchive, error) {
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}

	var archives []RemoteArchive
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "takeout", "list", "iterate bucket objects", err)
		}
		if !strings.EqualFold(path.Ext(attrs.Name), ".zip") {
			continue
		}
		archives = append(archives, RemoteArchive{
			ID:   attrs.Name,
			Name: path.Base(attrs.Name),
			Size: attrs.Size,
		})
	}
	return archives, nil
}

// Fetch downloads the object into destDir, verifying the byte count and
// CRC32C checksum GCS reports for the object. A checksum mismatch is corrupt
// input: retrying the same object cannot succeed.
func (s *GCSSource) Fetch(ctx context.Context, archive RemoteArchive, destDir string) (string, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	obj := s.client.Bucket(s.bucket).Object(archive.ID)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return "", services.Wrap(classifyGCS(err), "takeout", "fetch", "read object attributes", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "takeout", "fetch", "create staging dir", err)
	}
	dst := filepath.Join(destDir, path.Base(archive.ID))

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return "", services.Wrap(classifyGCS(err), "takeout", "fetch", "open object reader", err)
	}
	defer reader.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "takeout", "fetch", "create staged file", err)
	}

	crc := crc32.New(castagnoli)
	written, err := io.Copy(io.MultiWriter(out, crc), reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return "", services.Wrap(services.ErrTransient, "takeout", "fetch", "stream object bytes", err)
	}

	if written != attrs.Size {
		os.Remove(dst)
		return "", services.Wrap(services.ErrCorruptInput, "takeout", "fetch",
			fmt.Sprintf("size mismatch: remote %d bytes, fetched %d", attrs.Size, written), nil)
	}
	if attrs.CRC32C != 0 && crc.Sum32() != attrs.CRC32C {
		os.Remove(dst)
		return "", services.Wrap(services.ErrCorruptInput, "takeout", "fetch",
			fmt.Sprintf("crc32c mismatch: remote %d, fetched %d", attrs.CRC32C, crc.Sum32()), nil)
	}

	return dst, nil
}

// Describe names the backing store.
func (s *GCSSource) Describe() string {
	if s.prefix != "" {
		return fmt.Sprintf("gcs://%s/%s", s.bucket, s.prefix)
	}
	return "gcs://" + s.bucket
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

func classifyGCS(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return services.ErrPermanent
	}
	return services.ErrTransient
}
