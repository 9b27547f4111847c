package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ferry/internal/logging"
	"ferry/internal/stage"
	"ferry/internal/stageexec"
	"ferry/internal/store"
)

// archiveRoute maps a committed phase to its stage handler and next phase.
// An optional gate suppresses polling without failing the lane.
type archiveRoute struct {
	name       string
	from       store.ArchivePhase
	processing store.ArchivePhase
	done       store.ArchivePhase
	handler    stage.ArchiveHandler
	gate       func(context.Context) (bool, error)
	onDone     func(context.Context, *store.Archive)
}

// itemRoute is the item-side equivalent.
type itemRoute struct {
	name       string
	from       store.ItemPhase
	processing store.ItemPhase
	done       store.ItemPhase
	handler    stage.ItemHandler
}

// lane is one worker pool polling the store for claimable work.
type lane struct {
	m        *Manager
	name     string
	workers  int
	archives []archiveRoute
	items    []itemRoute
	logger   *slog.Logger
}

func (m *Manager) buildLanes() []*lane {
	downloadLane := &lane{
		m:       m,
		name:    "download",
		workers: m.cfg.Workers.Download,
		archives: []archiveRoute{{
			name:       "download",
			from:       store.ArchiveDiscovered,
			processing: store.ArchiveDownloading,
			done:       store.ArchiveDownloaded,
			handler:    m.download,
		}},
	}
	extractLane := &lane{
		m:       m,
		name:    "extract",
		workers: m.cfg.Workers.Extract,
		archives: []archiveRoute{{
			name:       "extract",
			from:       store.ArchiveDownloaded,
			processing: store.ArchiveExtracting,
			done:       store.ArchiveExtracted,
			handler:    m.extract,
		}},
	}
	// Resolution is polled before merge so items flow forward even while a
	// burst of freshly extracted items is waiting.
	prepLane := &lane{
		m:       m,
		name:    "mediaprep",
		workers: m.cfg.Workers.Merge,
		items: []itemRoute{
			{
				name:       "albumresolve",
				from:       store.ItemMerged,
				processing: store.ItemResolving,
				done:       store.ItemResolved,
				handler:    m.resolve,
			},
			{
				name:       "merge",
				from:       store.ItemExtracted,
				processing: store.ItemMerging,
				done:       store.ItemMerged,
				handler:    m.merge,
			},
		},
	}
	uploadLane := &lane{
		m:       m,
		name:    "upload",
		workers: m.cfg.Workers.Upload,
		items: []itemRoute{{
			name:       "upload",
			from:       store.ItemResolved,
			processing: store.ItemUploading,
			done:       store.ItemUploaded,
			handler:    m.upload,
		}},
	}

	cleanupLane := &lane{
		m:       m,
		name:    "cleanup",
		workers: 1,
		archives: []archiveRoute{{
			name:       "cleanup",
			from:       store.ArchiveProcessed,
			processing: store.ArchiveCleaning,
			done:       store.ArchiveCleaned,
			handler:    m.cleanup,
			gate:       m.cleanupAllowed,
			onDone:     m.notifyArchiveCompleted,
		}},
	}

	lanes := []*lane{downloadLane, extractLane, prepLane, uploadLane, cleanupLane}
	for _, l := range lanes {
		if l.workers < 1 {
			l.workers = 1
		}
		l.logger = m.logger.With(logging.String("lane", l.name))
	}
	return lanes
}

func (l *lane) run(ctx context.Context) {
	defer l.m.wg.Done()

	var workers int
	done := make(chan struct{})
	for workers = 0; workers < l.workers; workers++ {
		go func() {
			defer func() { done <- struct{}{} }()
			l.work(ctx)
		}()
	}
	for ; workers > 0; workers-- {
		<-done
	}
}

func (l *lane) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := l.step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			l.logger.Error("lane step failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lane_step_failed"),
				logging.String(logging.FieldErrorHint, "check state database access"))
			l.sleep(ctx, l.m.errorInterval)
			continue
		}
		if !processed {
			l.sleep(ctx, l.m.pollInterval)
		}
	}
}

// step claims and runs at most one unit. It reports whether any work was
// attempted so the caller knows to idle.
func (l *lane) step(ctx context.Context) (bool, error) {
	heartbeat := l.m.cfg.HeartbeatInterval()

	for _, route := range l.archives {
		if route.gate != nil {
			open, err := route.gate(ctx)
			if err != nil {
				return false, err
			}
			if !open {
				continue
			}
		}
		archive, err := l.m.store.NextArchiveForPhases(ctx, route.from)
		if err != nil {
			return false, err
		}
		if archive == nil {
			continue
		}
		err = stageexec.RunArchive(ctx, stageexec.ArchiveOptions{
			Logger:     l.logger,
			Store:      l.m.store,
			Handler:    route.handler,
			StageName:  route.name,
			From:       route.from,
			Processing: route.processing,
			Done:       route.done,
			Policy:     l.m.policy,
			Archive:    archive,
			Heartbeat:  heartbeat,
			OnDone:     route.onDone,
			OnPark:     l.m.notifyArchiveCorrupted,
		})
		return true, err
	}

	for _, route := range l.items {
		item, err := l.m.store.NextItemForPhases(ctx, route.from)
		if err != nil {
			return false, err
		}
		if item == nil {
			continue
		}
		err = stageexec.RunItem(ctx, stageexec.ItemOptions{
			Logger:     l.logger,
			Store:      l.m.store,
			Handler:    route.handler,
			StageName:  route.name,
			From:       route.from,
			Processing: route.processing,
			Done:       route.done,
			Policy:     l.m.policy,
			Item:       item,
			Heartbeat:  heartbeat,
		})
		return true, err
	}

	return false, nil
}

func (l *lane) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
