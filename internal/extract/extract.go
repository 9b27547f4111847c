// Package extract unpacks Takeout zip archives into the staging directory
// and pairs each media file with its supplemental metadata sidecar.
package extract

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ferry/internal/services"
	"ferry/internal/sidecar"
)

// MediaFile is one extracted media entry with its optional sidecar.
type MediaFile struct {
	// RelPath is the entry path inside the archive, slash-separated.
	RelPath string
	// LocalPath is the extracted file on disk.
	LocalPath string
	// SidecarPath is the extracted sidecar, empty when none was exported.
	SidecarPath string
	Size        int64
	Fingerprint string
}

// Result summarizes one archive extraction.
type Result struct {
	Media      []MediaFile
	TotalBytes int64
}

// Fingerprint derives a stable item identity from the entry path, size, and
// the zip entry's CRC-32, so re-extracting the same archive re-yields the
// same identities while a content change at the same path and size yields a
// new one. The CRC comes free from the zip central directory.
func Fingerprint(relPath string, size int64, crc uint32) string {
	h := sha256.New()
	io.WriteString(h, relPath)
	h.Write([]byte{0})
	io.WriteString(h, strconv.FormatInt(size, 10))
	h.Write([]byte{0})
	io.WriteString(h, strconv.FormatUint(uint64(crc), 16))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Archive unpacks archivePath under destDir. A structurally corrupt zip (bad
// central directory, per-entry checksum failure, truncation) reports
// ErrCorruptInput rather than yielding a silent partial set.
func Archive(ctx context.Context, archivePath, destDir string) (*Result, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrChecksum) {
			return nil, services.Wrap(services.ErrCorruptInput, "extract", "open",
				fmt.Sprintf("archive %s is not a readable zip", filepath.Base(archivePath)), err)
		}
		return nil, services.Wrap(services.ErrTransient, "extract", "open", "open archive", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "extract", "mkdir", "create extraction dir", err)
	}

	result := &Result{}
	sidecars := make(map[string]string)

	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.FileInfo().IsDir() {
			continue
		}
		rel, err := sanitizeEntryName(entry.Name)
		if err != nil {
			return nil, services.Wrap(services.ErrCorruptInput, "extract", "entry", "unsafe entry path", err)
		}

		target := filepath.Join(destDir, filepath.FromSlash(rel))
		written, err := extractEntry(entry, target)
		if err != nil {
			if errors.Is(err, zip.ErrChecksum) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zip.ErrFormat) {
				return nil, services.Wrap(services.ErrCorruptInput, "extract", "entry",
					fmt.Sprintf("entry %s failed integrity check", rel), err)
			}
			return nil, services.Wrap(services.ErrTransient, "extract", "entry",
				fmt.Sprintf("write entry %s", rel), err)
		}
		result.TotalBytes += written

		if sidecar.IsSidecar(rel) {
			sidecars[sidecar.MediaFor(rel)] = target
			continue
		}
		if !isMedia(rel) {
			continue
		}
		result.Media = append(result.Media, MediaFile{
			RelPath:     rel,
			LocalPath:   target,
			Size:        written,
			Fingerprint: Fingerprint(rel, written, entry.CRC32),
		})
	}

	for i := range result.Media {
		if path, ok := sidecars[result.Media[i].RelPath]; ok {
			result.Media[i].SidecarPath = path
		}
	}

	return result, nil
}

func extractEntry(entry *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	src, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	// Copy through to EOF so the decompressor verifies the entry CRC.
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		return 0, err
	}
	return written, nil
}

// sanitizeEntryName rejects absolute paths and parent-directory segments.
// Only whole ".." segments are traversal; names like "photo..jpg" are legal
// zip content and must extract.
func sanitizeEntryName(name string) (string, error) {
	rel := filepath.ToSlash(name)
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("entry name %q escapes extraction root", name)
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			return "", fmt.Errorf("entry name %q escapes extraction root", name)
		}
	}
	return rel, nil
}

var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".heic": {},
	".tif": {}, ".tiff": {}, ".bmp": {}, ".raw": {}, ".dng": {}, ".cr2": {},
	".nef": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".m4v": {}, ".mkv": {},
	".webm": {}, ".3gp": {}, ".mts": {},
}

func isMedia(name string) bool {
	_, ok := mediaExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
