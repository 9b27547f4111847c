package download_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/diskbudget"
	"ferry/internal/download"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/takeout"
	"ferry/internal/testsupport"
)

func TestDownloaderFetchesAndRecordsHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteZip(t, filepath.Join(cfg.Source.LocalDir, "takeout-001.zip"), map[string][]byte{
		"Takeout/Google Photos/Photos from 2019/IMG_001.jpg": []byte("jpeg-one"),
	})

	governor := diskbudget.NewGovernor(cfg.Paths.StagingDir, 0, logging.NewNop())
	source := takeout.NewLocalSource(cfg.Source.LocalDir)
	handler := download.NewDownloader(cfg, st, governor, source, nil)

	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 512)

	ctx := context.Background()
	if err := handler.Prepare(ctx, archive); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(ctx, archive); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if archive.LocalPath == "" {
		t.Fatal("expected local path recorded")
	}
	if _, err := os.Stat(archive.LocalPath); err != nil {
		t.Fatalf("staged archive missing: %v", err)
	}
	if archive.ContentHash == "" {
		t.Fatal("expected content hash recorded")
	}
}

func TestDownloaderDefersWhenBudgetExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	// Ceiling of one byte cannot admit the expected size.
	governor := diskbudget.NewGovernor(cfg.Paths.StagingDir, 1, logging.NewNop())
	source := takeout.NewLocalSource(cfg.Source.LocalDir)
	handler := download.NewDownloader(cfg, st, governor, source, nil)

	archive := testsupport.NewArchive(t, st, "takeout-big.zip", "takeout-big.zip", 1<<30)

	err := handler.Prepare(context.Background(), archive)
	if err == nil {
		t.Fatal("expected deferral when budget exhausted")
	}
	if !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("expected resource-exhausted classification, got %v", err)
	}
}

func TestDownloaderResetsItemsWhenContentChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	zipPath := filepath.Join(cfg.Source.LocalDir, "takeout-001.zip")
	testsupport.WriteZip(t, zipPath, map[string][]byte{
		"Takeout/Google Photos/Photos from 2019/IMG_001.jpg": []byte("first-export"),
	})

	governor := diskbudget.NewGovernor(cfg.Paths.StagingDir, 0, logging.NewNop())
	source := takeout.NewLocalSource(cfg.Source.LocalDir)
	handler := download.NewDownloader(cfg, st, governor, source, nil)

	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 512)

	ctx := context.Background()
	if err := handler.Prepare(ctx, archive); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	if err := handler.Execute(ctx, archive); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	firstHash := archive.ContentHash

	// Items recorded from the first copy.
	testsupport.NewItem(t, st, archive.ID, "Photos from 2019/IMG_001.jpg", "fp-1")

	// The remote export is replaced with different bytes.
	testsupport.WriteZip(t, zipPath, map[string][]byte{
		"Takeout/Google Photos/Photos from 2019/IMG_001.jpg": []byte("second-export"),
	})

	if err := handler.Prepare(ctx, archive); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if err := handler.Execute(ctx, archive); err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if archive.ContentHash == firstHash {
		t.Fatal("expected content hash to change")
	}
	items, err := st.ItemsByArchive(ctx, archive.ID)
	if err != nil {
		t.Fatalf("ItemsByArchive: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("stale item records should be dropped, got %d", len(items))
	}
}
