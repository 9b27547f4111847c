package extract_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ferry/internal/extract"
	"ferry/internal/services"
	"ferry/internal/testsupport"
)

func TestArchivePairsMediaWithSidecars(t *testing.T) {
	base := t.TempDir()
	zipPath := filepath.Join(base, "takeout-001.zip")
	testsupport.WriteZip(t, zipPath, map[string][]byte{
		"Takeout/Google Photos/Hawaii/IMG_001.jpg":                            []byte("jpegbytes"),
		"Takeout/Google Photos/Hawaii/IMG_001.jpg.supplemental-metadata.json": []byte(`{"title":"IMG_001.jpg"}`),
		"Takeout/Google Photos/Photos from 2019/clip.mp4":                     []byte("movbytes"),
		"Takeout/Google Photos/Hawaii/metadata.json":                          []byte(`{"albumData":{}}`),
		"Takeout/archive_browser.html":                                        []byte("<html></html>"),
	})

	result, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out"))
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	if len(result.Media) != 2 {
		t.Fatalf("expected 2 media files, got %d: %#v", len(result.Media), result.Media)
	}
	byRel := make(map[string]extract.MediaFile)
	for _, m := range result.Media {
		byRel[m.RelPath] = m
	}
	paired := byRel["Takeout/Google Photos/Hawaii/IMG_001.jpg"]
	if paired.SidecarPath == "" {
		t.Fatalf("expected sidecar pairing: %#v", paired)
	}
	unpaired := byRel["Takeout/Google Photos/Photos from 2019/clip.mp4"]
	if unpaired.SidecarPath != "" {
		t.Fatalf("expected no sidecar: %#v", unpaired)
	}
	if result.TotalBytes == 0 {
		t.Fatal("expected extracted byte accounting")
	}
}

func TestArchiveFingerprintsAreStable(t *testing.T) {
	base := t.TempDir()
	zipPath := filepath.Join(base, "takeout-001.zip")
	entries := map[string][]byte{
		"Takeout/Google Photos/Hawaii/IMG_001.jpg": []byte("jpegbytes"),
	}
	testsupport.WriteZip(t, zipPath, entries)

	first, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out1"))
	if err != nil {
		t.Fatalf("first extraction failed: %v", err)
	}
	second, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out2"))
	if err != nil {
		t.Fatalf("second extraction failed: %v", err)
	}
	if first.Media[0].Fingerprint != second.Media[0].Fingerprint {
		t.Fatalf("fingerprints differ across extractions: %q vs %q",
			first.Media[0].Fingerprint, second.Media[0].Fingerprint)
	}
}

func TestArchiveFingerprintTracksContent(t *testing.T) {
	base := t.TempDir()
	rel := "Takeout/Google Photos/Hawaii/IMG_001.jpg"

	// Same path, same size, different bytes: the re-exported file must get a
	// new identity so a changed archive re-uploads it.
	firstZip := filepath.Join(base, "takeout-a.zip")
	testsupport.WriteZip(t, firstZip, map[string][]byte{rel: []byte("jpegbytes")})
	secondZip := filepath.Join(base, "takeout-b.zip")
	testsupport.WriteZip(t, secondZip, map[string][]byte{rel: []byte("jpegbyteZ")})

	first, err := extract.Archive(context.Background(), firstZip, filepath.Join(base, "out1"))
	if err != nil {
		t.Fatalf("first extraction failed: %v", err)
	}
	second, err := extract.Archive(context.Background(), secondZip, filepath.Join(base, "out2"))
	if err != nil {
		t.Fatalf("second extraction failed: %v", err)
	}
	if first.Media[0].Fingerprint == second.Media[0].Fingerprint {
		t.Fatal("changed content must change the fingerprint")
	}
}

func TestArchiveRejectsCorruptZip(t *testing.T) {
	base := t.TempDir()
	zipPath := filepath.Join(base, "takeout-bad.zip")
	testsupport.WriteCorruptZip(t, zipPath)

	_, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out"))
	if !errors.Is(err, services.ErrCorruptInput) {
		t.Fatalf("expected corrupt-input classification, got %v", err)
	}
}

func TestArchiveRejectsTraversalEntries(t *testing.T) {
	base := t.TempDir()
	zipPath := filepath.Join(base, "takeout-evil.zip")
	testsupport.WriteZip(t, zipPath, map[string][]byte{
		"../outside.jpg": []byte("nope"),
	})

	_, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out"))
	if !errors.Is(err, services.ErrCorruptInput) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
}

func TestArchiveAllowsDoubledDotsInFilenames(t *testing.T) {
	base := t.TempDir()
	zipPath := filepath.Join(base, "takeout-dots.zip")
	testsupport.WriteZip(t, zipPath, map[string][]byte{
		"Takeout/Google Photos/Hawaii/photo..jpg": []byte("jpegbytes"),
	})

	result, err := extract.Archive(context.Background(), zipPath, filepath.Join(base, "out"))
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if len(result.Media) != 1 || result.Media[0].RelPath != "Takeout/Google Photos/Hawaii/photo..jpg" {
		t.Fatalf("doubled-dot filename must extract as media: %#v", result.Media)
	}
}
