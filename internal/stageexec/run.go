// Package stageexec executes one stage against one unit, applying the claim,
// persistence, and failure-disposition semantics every phase shares.
//
// The claim is a compare-and-swap transition into the stage's in-flight
// phase. Losing the claim means another worker owns the unit; the loser
// reports nothing and walks away. Failure handling runs the retry policy:
// transient errors roll the unit back with a backoff deadline, permanent
// errors park it as failed, corrupt input parks it for re-acquisition, and
// disk-budget deferrals return the unit untouched.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ferry/internal/logging"
	"ferry/internal/retry"
	"ferry/internal/services"
	"ferry/internal/stage"
	"ferry/internal/store"
)

// ArchiveOptions controls one archive stage execution.
type ArchiveOptions struct {
	Logger     *slog.Logger
	Store      *store.Store
	Handler    stage.ArchiveHandler
	StageName  string
	From       store.ArchivePhase
	Processing store.ArchivePhase
	Done       store.ArchivePhase
	Policy     retry.Policy
	Archive    *store.Archive
	// Heartbeat, when positive, refreshes the claim's heartbeat on this
	// interval while the handler runs.
	Heartbeat time.Duration
	// OnDone, when set, runs after the archive commits to the Done phase.
	OnDone func(ctx context.Context, archive *store.Archive)
	// OnPark, when set, runs after the archive parks as corrupted.
	OnPark func(ctx context.Context, archive *store.Archive, message string)
}

// RunArchive claims and executes one archive stage. It returns an error only
// for infrastructure failures; per-unit failures are recorded in the store
// and reported as nil.
func RunArchive(ctx context.Context, opts ArchiveOptions) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil || opts.Archive == nil {
		return fmt.Errorf("stage %s requires a store and an archive", opts.StageName)
	}
	archive := opts.Archive

	err := opts.Store.TransitionArchive(ctx, archive.ID, opts.From, opts.Processing)
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim archive %s: %w", archive.ID, err)
	}
	archive.Phase = opts.Processing

	stageCtx := services.WithArchiveID(ctx, archive.ID)
	stageCtx, stageLogger := stage.ContextWithRun(stageCtx, opts.Logger, opts.StageName)
	stageLogger = stageLogger.With(logging.String(logging.FieldArchiveID, archive.ID))

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("archive", strings.TrimSpace(archive.DisplayName)))

	if opts.Heartbeat > 0 {
		stop := beat(stageCtx, opts.Heartbeat, func(hbCtx context.Context) error {
			return opts.Store.UpdateArchiveHeartbeat(hbCtx, archive.ID)
		})
		defer stop()
	}

	if err := opts.Handler.Prepare(stageCtx, archive); err != nil {
		return settleArchiveFailure(stageCtx, stageLogger, opts, err)
	}
	if err := opts.Handler.Execute(stageCtx, archive); err != nil {
		return settleArchiveFailure(stageCtx, stageLogger, opts, err)
	}

	if err := opts.Store.UpdateArchive(stageCtx, archive); err != nil {
		return fmt.Errorf("persist stage result for %s: %w", archive.ID, err)
	}
	if err := opts.Store.TransitionArchive(stageCtx, archive.ID, opts.Processing, opts.Done); err != nil {
		return fmt.Errorf("commit archive %s: %w", archive.ID, err)
	}
	archive.Phase = opts.Done

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_phase", string(opts.Done)))
	if opts.OnDone != nil {
		opts.OnDone(stageCtx, archive)
	}
	return nil
}

func settleArchiveFailure(ctx context.Context, logger *slog.Logger, opts ArchiveOptions, stageErr error) error {
	archive := opts.Archive
	if interrupted(ctx, stageErr) {
		logger.Debug("stage interrupted, leaving claim for restart recovery",
			logging.String(logging.FieldEventType, "stage_interrupted"))
		return nil
	}
	attempt := archive.AttemptCount + 1
	outcome := opts.Policy.Next(attempt, stageErr, time.Now())
	message := failureMessage(stageErr)

	switch outcome.Disposition {
	case retry.Defer:
		logger.Info("stage deferred",
			logging.String(logging.FieldEventType, "stage_defer"),
			logging.String("reason", message))
		if err := opts.Store.TransitionArchive(ctx, archive.ID, opts.Processing, opts.From); err != nil {
			return fmt.Errorf("return deferred archive %s: %w", archive.ID, err)
		}
	case retry.Retry:
		logger.Warn("stage failed, retry scheduled",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", attempt),
			logging.String(logging.FieldErrorHint, message),
			logging.Error(stageErr))
		if err := opts.Store.ScheduleArchiveRetry(ctx, archive.ID, opts.Processing,
			string(outcome.Kind), message, attempt, outcome.NextAttempt); err != nil {
			return fmt.Errorf("schedule archive retry %s: %w", archive.ID, err)
		}
	case retry.Park:
		logger.Error("stage failed on corrupt input",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorHint, message),
			logging.Error(stageErr))
		if err := opts.Store.MarkArchiveFailed(ctx, archive.ID, opts.Processing,
			store.ArchiveCorrupted, string(outcome.Kind), message); err != nil {
			return fmt.Errorf("park corrupt archive %s: %w", archive.ID, err)
		}
		if opts.OnPark != nil {
			opts.OnPark(ctx, archive, message)
		}
	default:
		logger.Error("stage failed permanently",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorHint, message),
			logging.Error(stageErr))
		if err := opts.Store.MarkArchiveFailed(ctx, archive.ID, opts.Processing,
			store.ArchiveFailed, string(outcome.Kind), message); err != nil {
			return fmt.Errorf("record archive failure %s: %w", archive.ID, err)
		}
	}
	return nil
}

// ItemOptions controls one item stage execution.
type ItemOptions struct {
	Logger     *slog.Logger
	Store      *store.Store
	Handler    stage.ItemHandler
	StageName  string
	From       store.ItemPhase
	Processing store.ItemPhase
	Done       store.ItemPhase
	Policy     retry.Policy
	Item       *store.Item
	Heartbeat  time.Duration
}

// RunItem claims and executes one item stage with the same semantics as
// RunArchive.
func RunItem(ctx context.Context, opts ItemOptions) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler unavailable: %s", opts.StageName)
	}
	if opts.Store == nil || opts.Item == nil {
		return fmt.Errorf("stage %s requires a store and an item", opts.StageName)
	}
	item := opts.Item

	err := opts.Store.TransitionItem(ctx, item.ID, opts.From, opts.Processing)
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim item %d: %w", item.ID, err)
	}
	item.Phase = opts.Processing

	stageCtx := services.WithItemID(services.WithArchiveID(ctx, item.ArchiveID), item.ID)
	stageCtx, stageLogger := stage.ContextWithRun(stageCtx, opts.Logger, opts.StageName)
	stageLogger = stageLogger.With(
		logging.String(logging.FieldArchiveID, item.ArchiveID),
		logging.Int64(logging.FieldItemID, item.ID))

	if opts.Heartbeat > 0 {
		stop := beat(stageCtx, opts.Heartbeat, func(hbCtx context.Context) error {
			return opts.Store.UpdateItemHeartbeat(hbCtx, item.ID)
		})
		defer stop()
	}

	if err := opts.Handler.Prepare(stageCtx, item); err != nil {
		return settleItemFailure(stageCtx, stageLogger, opts, err)
	}
	if err := opts.Handler.Execute(stageCtx, item); err != nil {
		return settleItemFailure(stageCtx, stageLogger, opts, err)
	}

	if err := opts.Store.UpdateItem(stageCtx, item); err != nil {
		return fmt.Errorf("persist stage result for item %d: %w", item.ID, err)
	}
	if err := opts.Store.TransitionItem(stageCtx, item.ID, opts.Processing, opts.Done); err != nil {
		return fmt.Errorf("commit item %d: %w", item.ID, err)
	}
	item.Phase = opts.Done

	stageLogger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_phase", string(opts.Done)))
	return nil
}

func settleItemFailure(ctx context.Context, logger *slog.Logger, opts ItemOptions, stageErr error) error {
	item := opts.Item
	if interrupted(ctx, stageErr) {
		logger.Debug("stage interrupted, leaving claim for restart recovery",
			logging.String(logging.FieldEventType, "stage_interrupted"))
		return nil
	}
	attempt := item.AttemptCount + 1
	outcome := opts.Policy.Next(attempt, stageErr, time.Now())
	message := failureMessage(stageErr)

	switch outcome.Disposition {
	case retry.Defer:
		if err := opts.Store.TransitionItem(ctx, item.ID, opts.Processing, opts.From); err != nil {
			return fmt.Errorf("return deferred item %d: %w", item.ID, err)
		}
	case retry.Retry:
		logger.Warn("stage failed, retry scheduled",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", attempt),
			logging.String(logging.FieldErrorHint, message),
			logging.Error(stageErr))
		if err := opts.Store.ScheduleItemRetry(ctx, item.ID, opts.Processing,
			string(outcome.Kind), message, attempt, outcome.NextAttempt); err != nil {
			return fmt.Errorf("schedule item retry %d: %w", item.ID, err)
		}
	default:
		// Items have no separate corrupted phase; parked and permanent
		// failures both record as failed with their classification.
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorHint, message),
			logging.Error(stageErr))
		if err := opts.Store.MarkItemFailed(ctx, item.ID, opts.Processing,
			string(outcome.Kind), message); err != nil {
			return fmt.Errorf("record item failure %d: %w", item.ID, err)
		}
	}
	return nil
}

// interrupted reports whether a stage error is shutdown fallout rather than a
// verdict on the unit. The claim stays put; the startup reset or the stale
// reclaimer rolls it back to its committed phase.
func interrupted(ctx context.Context, stageErr error) bool {
	return ctx.Err() != nil || errors.Is(stageErr, context.Canceled)
}

// beat runs update on the given interval until the returned stop function is
// called. Update failures are tolerated; a missed heartbeat at worst lets the
// reclaimer roll the unit back.
func beat(ctx context.Context, interval time.Duration, update func(context.Context) error) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				_ = update(hbCtx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func failureMessage(err error) string {
	if err == nil {
		return "stage failed"
	}
	if msg := strings.TrimSpace(services.Details(err).Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(err.Error())
}
