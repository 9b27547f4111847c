package upload_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/albums"
	"ferry/internal/store"
	"ferry/internal/testsupport"
	"ferry/internal/upload"
	"ferry/internal/uploader"
)

func stagedItem(t *testing.T, st *store.Store, relPath string) (*store.Archive, *store.Item) {
	t.Helper()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 1024)
	archive.ExtractDir = t.TempDir()
	if err := st.UpdateArchive(context.Background(), archive); err != nil {
		t.Fatalf("UpdateArchive: %v", err)
	}

	mediaPath := filepath.Join(archive.ExtractDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(mediaPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(mediaPath, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	item := testsupport.NewItem(t, st, archive.ID, relPath, "fp-"+relPath)
	return archive, item
}

func TestHandlerUploadsWithAlbumNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	_, item := stagedItem(t, st, "Family Vacation/IMG_001.jpg")

	resolver := albums.NewResolver(st, nil)
	if _, err := resolver.Resolve(context.Background(), item.ID, item.SourcePath, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	fake := uploader.NewFake()
	handler := upload.NewHandler(st, fake, nil)

	ctx := context.Background()
	if err := handler.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := handler.Execute(ctx, item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if item.RemoteID == "" {
		t.Fatal("expected remote id recorded on the item")
	}
	uploads := fake.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploads))
	}
	if len(uploads[0].AlbumNames) != 1 || uploads[0].AlbumNames[0] != "Family Vacation" {
		t.Fatalf("expected album name passed through, got %#v", uploads[0].AlbumNames)
	}
}

func TestHandlerPrepareRejectsMissingMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	archive, item := stagedItem(t, st, "Photos from 2019/IMG_001.jpg")

	if err := os.Remove(filepath.Join(archive.ExtractDir, "Photos from 2019", "IMG_001.jpg")); err != nil {
		t.Fatalf("remove media: %v", err)
	}

	handler := upload.NewHandler(st, uploader.NewFake(), nil)
	if err := handler.Prepare(context.Background(), item); err == nil {
		t.Fatal("expected error for missing staged media")
	}
}

func TestHandlerPropagatesUploadFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	archive, item := stagedItem(t, st, "Photos from 2019/IMG_001.jpg")

	fake := uploader.NewFake()
	mediaPath := filepath.Join(archive.ExtractDir, "Photos from 2019", "IMG_001.jpg")
	fake.FailFor[mediaPath] = os.ErrDeadlineExceeded

	handler := upload.NewHandler(st, fake, nil)
	if err := handler.Execute(context.Background(), item); err == nil {
		t.Fatal("expected upload failure to propagate")
	}
	if item.RemoteID != "" {
		t.Fatalf("failed upload must not record a remote id, got %q", item.RemoteID)
	}
}
