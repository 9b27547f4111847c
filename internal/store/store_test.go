package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ferry/internal/store"
	"ferry/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive, err := st.NewArchive(ctx, "takeout-001.zip", "takeout-001.zip", 2048)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	if archive.Phase != store.ArchiveDiscovered {
		t.Fatalf("expected discovered phase, got %s", archive.Phase)
	}

	fetched, err := st.GetArchive(ctx, "takeout-001.zip")
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if fetched == nil || fetched.ExpectedBytes != 2048 {
		t.Fatalf("unexpected fetched archive: %#v", fetched)
	}
}

func TestNewArchiveIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := st.NewArchive(ctx, "takeout-001.zip", "takeout-001.zip", 100)
	if err != nil {
		t.Fatalf("NewArchive failed: %v", err)
	}
	if err := st.TransitionArchive(ctx, first.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("TransitionArchive failed: %v", err)
	}

	again, err := st.NewArchive(ctx, "takeout-001.zip", "takeout-001.zip", 100)
	if err != nil {
		t.Fatalf("repeat NewArchive failed: %v", err)
	}
	if again.Phase != store.ArchiveDownloading {
		t.Fatalf("re-registration must not reset phase, got %s", again.Phase)
	}
}

func TestTransitionArchiveConflict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)

	if err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDiscovered, store.ArchiveDownloading)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second claim should conflict, got %v", err)
	}
}

func TestTransitionClearsRetryStateOnCommit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)

	if err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	next := time.Now().Add(time.Minute)
	if err := st.ScheduleArchiveRetry(ctx, archive.ID, store.ArchiveDownloading, "transient", "connection reset", 2, next); err != nil {
		t.Fatalf("ScheduleArchiveRetry failed: %v", err)
	}
	got, err := st.GetArchive(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got.Phase != store.ArchiveDiscovered || got.AttemptCount != 2 || got.NextRetryAt == nil {
		t.Fatalf("retry bookkeeping not recorded: %#v", got)
	}

	if err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDownloading, store.ArchiveDownloaded); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	got, err = st.GetArchive(ctx, archive.ID)
	if err != nil {
		t.Fatalf("GetArchive failed: %v", err)
	}
	if got.AttemptCount != 0 || got.ErrorKind != "" || got.NextRetryAt != nil {
		t.Fatalf("commit should clear retry state: %#v", got)
	}
}

func TestNextArchiveForPhasesHonorsBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	waiting := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	ready := testsupport.NewArchive(t, st, "takeout-002.zip", "takeout-002.zip", 100)

	if err := st.TransitionArchive(ctx, waiting.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := st.ScheduleArchiveRetry(ctx, waiting.ID, store.ArchiveDownloading, "transient", "timeout", 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleArchiveRetry failed: %v", err)
	}

	next, err := st.NextArchiveForPhases(ctx, store.ArchiveDiscovered)
	if err != nil {
		t.Fatalf("NextArchiveForPhases failed: %v", err)
	}
	if next == nil || next.ID != ready.ID {
		t.Fatalf("expected %s to be next, got %#v", ready.ID, next)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		inflight store.ArchivePhase
		expected store.ArchivePhase
	}{
		{store.ArchiveDownloading, store.ArchiveDiscovered},
		{store.ArchiveExtracting, store.ArchiveDownloaded},
		{store.ArchiveCleaning, store.ArchiveProcessed},
	}
	for i, tc := range cases {
		id := fmt.Sprintf("takeout-%03d.zip", i)
		archive := testsupport.NewArchive(t, st, id, id, 100)
		archive.Phase = tc.inflight
		if err := st.UpdateArchive(ctx, archive); err != nil {
			t.Fatalf("UpdateArchive failed: %v", err)
		}
	}

	itemArchive := testsupport.NewArchive(t, st, "takeout-items.zip", "takeout-items.zip", 100)
	item := testsupport.NewItem(t, st, itemArchive.ID, "a/b.jpg", "fp-1")
	item.Phase = store.ItemUploading
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	n, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 records reset, got %d", n)
	}

	for i, tc := range cases {
		got, err := st.GetArchive(ctx, fmt.Sprintf("takeout-%03d.zip", i))
		if err != nil {
			t.Fatalf("GetArchive failed: %v", err)
		}
		if got.Phase != tc.expected {
			t.Fatalf("archive %d: expected %s, got %s", i, tc.expected, got.Phase)
		}
	}
	gotItem, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if gotItem.Phase != store.ItemResolved {
		t.Fatalf("expected item rolled back to resolved, got %s", gotItem.Phase)
	}
}

func TestReclaimStaleRespectsCutoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	stale := testsupport.NewArchive(t, st, "takeout-stale.zip", "takeout-stale.zip", 100)
	fresh := testsupport.NewArchive(t, st, "takeout-fresh.zip", "takeout-fresh.zip", 100)

	for _, a := range []*store.Archive{stale, fresh} {
		if err := st.TransitionArchive(ctx, a.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
			t.Fatalf("claim %s failed: %v", a.ID, err)
		}
	}
	// Only the fresh archive heartbeats after the claim.
	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(20 * time.Millisecond)
	if err := st.UpdateArchiveHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateArchiveHeartbeat failed: %v", err)
	}

	n, err := st.ReclaimStale(ctx, cutoff)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed archive, got %d", n)
	}

	gotStale, _ := st.GetArchive(ctx, stale.ID)
	gotFresh, _ := st.GetArchive(ctx, fresh.ID)
	if gotStale.Phase != store.ArchiveDiscovered {
		t.Fatalf("stale archive should roll back, got %s", gotStale.Phase)
	}
	if gotFresh.Phase != store.ArchiveDownloading {
		t.Fatalf("fresh archive should keep its claim, got %s", gotFresh.Phase)
	}
}

func TestInsertItemIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)

	first, err := st.InsertItem(ctx, archive.ID, "Google Photos/Hawaii/IMG_001.jpg", "Google Photos/Hawaii/IMG_001.jpg.supplemental-metadata.json", "IMG_001.jpg|1024")
	if err != nil {
		t.Fatalf("InsertItem failed: %v", err)
	}
	if err := st.TransitionItem(ctx, first.ID, store.ItemExtracted, store.ItemMerging); err != nil {
		t.Fatalf("TransitionItem failed: %v", err)
	}

	again, err := st.InsertItem(ctx, archive.ID, "Google Photos/Hawaii/IMG_001.jpg", "", "IMG_001.jpg|1024")
	if err != nil {
		t.Fatalf("repeat InsertItem failed: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected same item row, got %d and %d", first.ID, again.ID)
	}
	if again.Phase != store.ItemMerging {
		t.Fatalf("re-insert must not reset phase, got %s", again.Phase)
	}
}

func TestMarkItemFailedRecordsResumePhase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	item := testsupport.NewItem(t, st, archive.ID, "a/b.jpg", "fp-1")

	if err := st.TransitionItem(ctx, item.ID, store.ItemExtracted, store.ItemMerging); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := st.MarkItemFailed(ctx, item.ID, store.ItemMerging, "permanent", "sidecar unreadable"); err != nil {
		t.Fatalf("MarkItemFailed failed: %v", err)
	}

	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Phase != store.ItemFailed || got.ResumePhase != store.ItemExtracted {
		t.Fatalf("unexpected failure record: %#v", got)
	}

	n, err := st.RetryFailedItems(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryFailedItems failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 item reset, got %d", n)
	}
	got, _ = st.GetItem(ctx, item.ID)
	if got.Phase != store.ItemExtracted || got.ErrorKind != "" || got.AttemptCount != 0 {
		t.Fatalf("retry should reset to resume phase with clean error state: %#v", got)
	}
}

func TestNonTerminalItemCountGatesCleanup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	a := testsupport.NewItem(t, st, archive.ID, "x/a.jpg", "fp-a")
	b := testsupport.NewItem(t, st, archive.ID, "x/b.jpg", "fp-b")

	n, err := st.NonTerminalItemCount(ctx, archive.ID)
	if err != nil {
		t.Fatalf("NonTerminalItemCount failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pending items, got %d", n)
	}

	for _, item := range []*store.Item{a, b} {
		item.Phase = store.ItemUploaded
		if err := st.UpdateItem(ctx, item); err != nil {
			t.Fatalf("UpdateItem failed: %v", err)
		}
	}
	n, err = st.NonTerminalItemCount(ctx, archive.ID)
	if err != nil {
		t.Fatalf("NonTerminalItemCount failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no pending items, got %d", n)
	}
}

func TestEnsureAlbumDeduplicatesByCanonicalKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := st.EnsureAlbum(ctx, "family", "Family")
	if err != nil {
		t.Fatalf("EnsureAlbum failed: %v", err)
	}
	second, err := st.EnsureAlbum(ctx, "family", "family")
	if err != nil {
		t.Fatalf("repeat EnsureAlbum failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one album, got ids %d and %d", first.ID, second.ID)
	}
	if second.DisplayName != "Family" {
		t.Fatalf("first-observed display name should win, got %q", second.DisplayName)
	}

	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	item := testsupport.NewItem(t, st, archive.ID, "a/b.jpg", "fp-1")
	if err := st.AddAlbumMember(ctx, first.ID, item.ID); err != nil {
		t.Fatalf("AddAlbumMember failed: %v", err)
	}
	if err := st.AddAlbumMember(ctx, first.ID, item.ID); err != nil {
		t.Fatalf("repeat AddAlbumMember failed: %v", err)
	}
	count, err := st.AlbumMemberCount(ctx, first.ID)
	if err != nil {
		t.Fatalf("AlbumMemberCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("membership must be idempotent, got %d", count)
	}
}

func TestRunStatePersistsPause(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	state, err := st.GetRunState(ctx)
	if err != nil {
		t.Fatalf("GetRunState failed: %v", err)
	}
	if state.Paused {
		t.Fatal("fresh database should not be paused")
	}

	if err := st.SetPaused(ctx, true, "failure rate above threshold"); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	st.Close()

	st2 := testsupport.MustOpenStore(t, cfg)
	state, err = st2.GetRunState(ctx)
	if err != nil {
		t.Fatalf("GetRunState after reopen failed: %v", err)
	}
	if !state.Paused || state.PauseReason == "" {
		t.Fatalf("pause flag should survive restart: %#v", state)
	}
}

func TestSetPausedAcknowledgesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	item := testsupport.NewItem(t, st, archive.ID, "a/b.jpg", "fp-1")
	if err := st.TransitionItem(ctx, item.ID, store.ItemExtracted, store.ItemMerging); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := st.MarkItemFailed(ctx, item.ID, store.ItemMerging, "permanent", "boom"); err != nil {
		t.Fatalf("MarkItemFailed failed: %v", err)
	}

	if err := st.SetPaused(ctx, false, ""); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	state, err := st.GetRunState(ctx)
	if err != nil {
		t.Fatalf("GetRunState failed: %v", err)
	}
	if state.FlaggedFailures != 1 {
		t.Fatalf("resume must record the current failed count, got %d", state.FlaggedFailures)
	}
}

func TestClearAlbumRunFlags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	album, err := st.EnsureAlbum(ctx, "family", "Family")
	if err != nil {
		t.Fatalf("EnsureAlbum failed: %v", err)
	}
	if !album.CreatedThisRun {
		t.Fatal("new album should carry the created-this-run marker")
	}

	if err := st.ClearAlbumRunFlags(ctx); err != nil {
		t.Fatalf("ClearAlbumRunFlags failed: %v", err)
	}
	album, err = st.AlbumByKey(ctx, "family")
	if err != nil {
		t.Fatalf("AlbumByKey failed: %v", err)
	}
	if album.CreatedThisRun {
		t.Fatal("marker should be cleared for the next run")
	}
}

func TestCheckHealthReportsClosedDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := st.CheckHealth(ctx); err != nil {
		t.Fatalf("CheckHealth on a fresh store failed: %v", err)
	}

	st.Close()
	if err := st.CheckHealth(ctx); err == nil {
		t.Fatal("CheckHealth must fail once the database is closed")
	}
}

func TestHealthAggregatesCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	archive := testsupport.NewArchive(t, st, "takeout-001.zip", "takeout-001.zip", 100)
	if err := st.TransitionArchive(ctx, archive.ID, store.ArchiveDiscovered, store.ArchiveDownloading); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	item := testsupport.NewItem(t, st, archive.ID, "a/b.jpg", "fp-1")
	item.Phase = store.ItemUploaded
	if err := st.UpdateItem(ctx, item); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Archives != 1 || health.ArchivesInFlight != 1 {
		t.Fatalf("unexpected archive counts: %#v", health)
	}
	if health.Items != 1 || health.ItemsUploaded != 1 {
		t.Fatalf("unexpected item counts: %#v", health)
	}
}
