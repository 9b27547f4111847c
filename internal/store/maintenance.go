package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpdateArchiveHeartbeat refreshes the heartbeat timestamp for an in-flight archive.
func (s *Store) UpdateArchiveHeartbeat(ctx context.Context, id string) error {
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE archives SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update archive heartbeat: %w", err)
	}
	return nil
}

// UpdateItemHeartbeat refreshes the heartbeat timestamp for an in-flight item.
func (s *Store) UpdateItemHeartbeat(ctx context.Context, id int64) error {
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("update item heartbeat: %w", err)
	}
	return nil
}

// ResetStuckProcessing rolls every in-flight record back to its last durably
// committed phase. Run at startup so units interrupted by a crash are
// re-admitted without losing progress.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	now := timestamp(time.Now())

	for inflight, committed := range archiveRollbacks {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE archives SET phase = ?, last_heartbeat = NULL, updated_at = ? WHERE phase = ?`,
			committed, now, inflight,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck archives: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}

	for inflight, committed := range itemRollbacks {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE items SET phase = ?, last_heartbeat = NULL, updated_at = ? WHERE phase = ?`,
			committed, now, inflight,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck items: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

// ReclaimStale rolls in-flight records whose heartbeat expired back to their
// committed phase, recovering units owned by a worker that died mid-run.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	now := timestamp(time.Now())
	cut := timestamp(cutoff)

	for inflight, committed := range archiveRollbacks {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE archives SET phase = ?, last_heartbeat = NULL, updated_at = ?
             WHERE phase = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			committed, now, inflight, cut,
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale archives: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}

	for inflight, committed := range itemRollbacks {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE items SET phase = ?, last_heartbeat = NULL, updated_at = ?
             WHERE phase = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
			committed, now, inflight, cut,
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale items: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}

	return total, nil
}

// MarkItemFailed moves an item to the failed phase, recording the error and
// the phase the item would resume from on an explicit operator retry. The
// move is compare-and-swap guarded like any other transition.
func (s *Store) MarkItemFailed(ctx context.Context, id int64, from ItemPhase, kind, message string) error {
	resume, ok := RollbackItem(from)
	if !ok {
		resume = from
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET phase = ?, error_kind = ?, last_error = ?, resume_phase = ?,
             next_retry_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND phase = ?`,
		ItemFailed, kind, message, resume, timestamp(time.Now()), id, from,
	)
	if err != nil {
		return fmt.Errorf("mark item failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("item %d %s -> failed: %w", id, from, ErrConflict)
	}
	return nil
}

// ScheduleItemRetry rolls an in-flight item back to its committed phase with
// an incremented attempt count and a backoff deadline.
func (s *Store) ScheduleItemRetry(ctx context.Context, id int64, from ItemPhase, kind, message string, attempt int, next time.Time) error {
	resume, ok := RollbackItem(from)
	if !ok {
		return fmt.Errorf("item phase %s has no rollback target", from)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET phase = ?, attempt_count = ?, error_kind = ?, last_error = ?,
             next_retry_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND phase = ?`,
		resume, attempt, kind, message, timestamp(next), timestamp(time.Now()), id, from,
	)
	if err != nil {
		return fmt.Errorf("schedule item retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("item %d %s retry: %w", id, from, ErrConflict)
	}
	return nil
}

// MarkArchiveFailed moves an archive to a terminal failure phase. Use
// ArchiveCorrupted for integrity failures so operators can distinguish
// re-acquisition candidates from exhausted retries.
func (s *Store) MarkArchiveFailed(ctx context.Context, id string, from, terminal ArchivePhase, kind, message string) error {
	if terminal != ArchiveFailed && terminal != ArchiveCorrupted {
		return fmt.Errorf("phase %s is not a terminal failure phase", terminal)
	}
	resume, ok := RollbackArchive(from)
	if !ok {
		resume = from
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE archives
         SET phase = ?, error_kind = ?, last_error = ?, resume_phase = ?,
             next_retry_at = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND phase = ?`,
		terminal, kind, message, resume, timestamp(time.Now()), id, from,
	)
	if err != nil {
		return fmt.Errorf("mark archive failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("archive %s %s -> %s: %w", id, from, terminal, ErrConflict)
	}
	return nil
}

// ScheduleArchiveRetry rolls an in-flight archive back to its committed phase
// with an incremented attempt count and a backoff deadline.
func (s *Store) ScheduleArchiveRetry(ctx context.Context, id string, from ArchivePhase, kind, message string, attempt int, next time.Time) error {
	resume, ok := RollbackArchive(from)
	if !ok {
		return fmt.Errorf("archive phase %s has no rollback target", from)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE archives
         SET phase = ?, attempt_count = ?, error_kind = ?, last_error = ?,
             next_retry_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND phase = ?`,
		resume, attempt, kind, message, timestamp(next), timestamp(time.Now()), id, from,
	)
	if err != nil {
		return fmt.Errorf("schedule archive retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("archive %s %s retry: %w", id, from, ErrConflict)
	}
	return nil
}

// RetryFailedItems moves failed items back to their recorded resume phase
// with a fresh attempt budget. With no ids, every failed item is reset.
func (s *Store) RetryFailedItems(ctx context.Context, ids ...int64) (int64, error) {
	now := timestamp(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE items
             SET phase = COALESCE(resume_phase, ?), attempt_count = 0, error_kind = NULL,
                 last_error = NULL, next_retry_at = NULL, resume_phase = NULL, updated_at = ?
             WHERE phase = ?`,
			ItemExtracted, now, ItemFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, ItemExtracted, now)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET phase = COALESCE(resume_phase, ?), attempt_count = 0, error_kind = NULL,
             last_error = NULL, next_retry_at = NULL, resume_phase = NULL, updated_at = ?
         WHERE id IN (`+placeholders+`) AND phase = '`+string(ItemFailed)+`'`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// ReacquireArchive resets a corrupted or failed archive for a fresh download.
// Local file references are dropped; the content hash is retained so a
// changed re-upload is detected and the stale item set replaced.
func (s *Store) ReacquireArchive(ctx context.Context, id string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE archives
         SET phase = ?, attempt_count = 0, error_kind = NULL, last_error = NULL,
             next_retry_at = NULL, resume_phase = NULL, local_path = NULL,
             extract_dir = NULL, updated_at = ?
         WHERE id = ? AND phase IN (?, ?)`,
		ArchiveDiscovered, timestamp(time.Now()), id, ArchiveCorrupted, ArchiveFailed,
	)
	if err != nil {
		return fmt.Errorf("reacquire archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("archive %s is not in a terminal failure phase: %w", id, ErrConflict)
	}
	return nil
}

// SetPaused persists the operator-visible pause flag. Every call also records
// the current failed-item count as acknowledged, so the automatic pause policy
// only fires again when failures arrive after the flag was last touched.
func (s *Store) SetPaused(ctx context.Context, paused bool, reason string) error {
	flag := 0
	if paused {
		flag = 1
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO run_state (id, paused, pause_reason, flagged_failures, updated_at)
         VALUES (1, ?, ?, (SELECT COUNT(*) FROM items WHERE phase = ?), ?)
         ON CONFLICT(id) DO UPDATE SET paused = excluded.paused,
             pause_reason = excluded.pause_reason,
             flagged_failures = excluded.flagged_failures,
             updated_at = excluded.updated_at`,
		flag, nullableString(reason), ItemFailed, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

// GetRunState returns the persisted pause flag.
func (s *Store) GetRunState(ctx context.Context) (RunState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT paused, pause_reason, flagged_failures, updated_at FROM run_state WHERE id = 1`)
	var (
		paused     int
		reason     sql.NullString
		flagged    int
		updatedRaw string
	)
	err := row.Scan(&paused, &reason, &flagged, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return RunState{}, nil
	}
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{Paused: paused != 0, PauseReason: reason.String, FlaggedFailures: flagged}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}

// CheckHealth verifies the state database is reachable and structurally
// sound. quick_check is the cheap variant of the full integrity check run at
// open, so this is safe to call from the status command.
func (s *Store) CheckHealth(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping state database: %w", err)
	}
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("state database failed quick check: %s", result)
	}
	return nil
}

// Health aggregates archive and item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	archiveStats, err := s.ArchiveStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	itemStats, err := s.ItemStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}

	health := HealthSummary{}
	for phase, count := range archiveStats {
		health.Archives += count
		switch {
		case TerminalArchive(phase):
			health.ArchivesTerminal += count
		case InFlightArchive(phase):
			health.ArchivesInFlight += count
		default:
			health.ArchivesPending += count
		}
	}
	for phase, count := range itemStats {
		health.Items += count
		switch {
		case phase == ItemUploaded:
			health.ItemsUploaded += count
		case phase == ItemFailed:
			health.ItemsFailed += count
		case InFlightItem(phase):
			health.ItemsInFlight += count
		}
	}
	return health, nil
}
