package uploader_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ferry/internal/uploader"
)

func TestPacedDelegatesAndRecords(t *testing.T) {
	fake := uploader.NewFake()
	paced := uploader.NewPaced(fake, 0, 0, 0)

	remoteID, err := paced.Upload(context.Background(), "/staging/a.jpg", []string{"Hawaii"})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if remoteID == "" {
		t.Fatal("expected a remote id")
	}

	uploads := fake.Uploads()
	if len(uploads) != 1 || uploads[0].MediaPath != "/staging/a.jpg" || uploads[0].AlbumNames[0] != "Hawaii" {
		t.Fatalf("unexpected recorded upload: %#v", uploads)
	}
}

func TestPacedSpacesCalls(t *testing.T) {
	fake := uploader.NewFake()
	// 20 per second with burst 1: three calls need roughly 100ms.
	paced := uploader.NewPaced(fake, 20, 1, 0)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := paced.Upload(context.Background(), "/staging/a.jpg", nil); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected pacing to spread calls, finished in %v", elapsed)
	}
}

func TestPacedPropagatesCancellation(t *testing.T) {
	fake := uploader.NewFake()
	paced := uploader.NewPaced(fake, 0.001, 1, 0)

	// Consume the single burst token, then cancel while waiting.
	if _, err := paced.Upload(context.Background(), "/staging/a.jpg", nil); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := paced.Upload(ctx, "/staging/b.jpg", nil); err == nil {
		t.Fatal("expected cancellation while waiting for limiter")
	}
}

func TestFakeFailureInjection(t *testing.T) {
	fake := uploader.NewFake()
	boom := errors.New("service unavailable")
	fake.FailFor["/staging/bad.jpg"] = boom

	if _, err := fake.Upload(context.Background(), "/staging/bad.jpg", nil); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := fake.Upload(context.Background(), "/staging/good.jpg", nil); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
}
