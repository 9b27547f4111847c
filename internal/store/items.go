package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, archive_id, source_path, sidecar_path, fingerprint, taken_at, latitude, longitude, description, phase, attempt_count, error_kind, last_error, next_retry_at, resume_phase, remote_id, last_heartbeat, created_at, updated_at"

// InsertItem records one extracted media file. The (archive, fingerprint)
// pair is the idempotency key: re-extracting an archive after a crash finds
// the existing record instead of creating a duplicate.
func (s *Store) InsertItem(ctx context.Context, archiveID, sourcePath, sidecarPath, fingerprint string) (*Item, error) {
	if archiveID == "" || fingerprint == "" {
		return nil, errors.New("archive id and fingerprint are required")
	}
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO items (archive_id, source_path, sidecar_path, fingerprint, phase, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(archive_id, fingerprint) DO NOTHING`,
		archiveID,
		sourcePath,
		nullableString(sidecarPath),
		fingerprint,
		ItemExtracted,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.ItemByFingerprint(ctx, archiveID, fingerprint)
}

// GetItem fetches an item by identifier, nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanStoreItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemByFingerprint returns the item matching an archive/fingerprint pair.
func (s *Store) ItemByFingerprint(ctx context.Context, archiveID, fingerprint string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE archive_id = ? AND fingerprint = ?`,
		archiveID,
		fingerprint,
	)
	item, err := scanStoreItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("item by fingerprint: %w", err)
	}
	return item, nil
}

// UpdateItem persists changes to an existing item record.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET source_path = ?, sidecar_path = ?, taken_at = ?, latitude = ?, longitude = ?,
             description = ?, phase = ?, attempt_count = ?, error_kind = ?, last_error = ?,
             next_retry_at = ?, resume_phase = ?, remote_id = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		item.SourcePath,
		nullableString(item.SidecarPath),
		nullableTime(item.TakenAt),
		nullableFloat(item.Latitude),
		nullableFloat(item.Longitude),
		nullableString(item.Description),
		item.Phase,
		item.AttemptCount,
		nullableString(item.ErrorKind),
		nullableString(item.LastError),
		nullableTime(item.NextRetryAt),
		nullableString(string(item.ResumePhase)),
		nullableString(item.RemoteID),
		nullableTime(item.LastHeartbeat),
		timestamp(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// TransitionItem performs a compare-and-swap phase move for an item. It
// returns ErrConflict when the item is no longer in the expected phase,
// which is the single guard against two workers double-processing a unit.
func (s *Store) TransitionItem(ctx context.Context, id int64, from, to ItemPhase) error {
	now := time.Now().UTC()
	var heartbeat any
	if InFlightItem(to) {
		heartbeat = timestamp(now)
	}
	query := `UPDATE items SET phase = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND phase = ?`
	if !InFlightItem(to) && to != ItemFailed {
		query = `UPDATE items SET phase = ?, last_heartbeat = ?, updated_at = ?,
             attempt_count = 0, error_kind = NULL, last_error = NULL,
             next_retry_at = NULL, resume_phase = NULL
             WHERE id = ? AND phase = ?`
	}
	res, err := s.execWithRetry(
		ctx,
		query,
		to,
		heartbeat,
		timestamp(now),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition item %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("item %d %s -> %s: %w", id, from, to, ErrConflict)
	}
	return nil
}

// ItemsByArchive returns all items belonging to an archive.
func (s *Store) ItemsByArchive(ctx context.Context, archiveID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE archive_id = ? ORDER BY id`,
		archiveID,
	)
	if err != nil {
		return nil, fmt.Errorf("items by archive: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// ItemsByPhase returns items in the given phases ordered by creation time.
func (s *Store) ItemsByPhase(ctx context.Context, phases ...ItemPhase) ([]*Item, error) {
	if len(phases) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(phases))
	args := make([]any, len(phases))
	for i, phase := range phases {
		args[i] = phase
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE phase IN (`+placeholders+`) ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("items by phase: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// NextItemForPhases returns the oldest eligible item in one of the given
// phases whose retry backoff, if any, has elapsed.
func (s *Store) NextItemForPhases(ctx context.Context, phases ...ItemPhase) (*Item, error) {
	if len(phases) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(phases))
	args := make([]any, 0, len(phases)+1)
	for _, phase := range phases {
		args = append(args, phase)
	}
	args = append(args, timestamp(time.Now()))

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM items
         WHERE phase IN (`+placeholders+`)
           AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at LIMIT 1`,
		args...,
	)
	item, err := scanStoreItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// NonTerminalItemCount reports how many of an archive's items are still
// retryable or in flight. Cleanup is only safe at zero.
func (s *Store) NonTerminalItemCount(ctx context.Context, archiveID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM items WHERE archive_id = ? AND phase NOT IN (?, ?)`,
		archiveID,
		ItemUploaded,
		ItemFailed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("non-terminal item count: %w", err)
	}
	return count, nil
}

// DeleteItemsForArchive removes an archive's item records, including album
// memberships. Used when a re-fetched archive's content hash no longer
// matches the recorded one, so stale fingerprints are not trusted.
func (s *Store) DeleteItemsForArchive(ctx context.Context, archiveID string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE archive_id = ?`, archiveID)
	if err != nil {
		return 0, fmt.Errorf("delete items for archive: %w", err)
	}
	return res.RowsAffected()
}

// ItemStats returns a count of items grouped by phase.
func (s *Store) ItemStats(ctx context.Context) (map[ItemPhase]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase, COUNT(1) FROM items GROUP BY phase`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ItemPhase]int)
	for rows.Next() {
		var phase ItemPhase
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, err
		}
		stats[phase] = count
	}
	return stats, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanStoreItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanStoreItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		archiveID    string
		sourcePath   string
		sidecarPath  sql.NullString
		fingerprint  string
		takenAtRaw   sql.NullString
		latitude     sql.NullFloat64
		longitude    sql.NullFloat64
		description  sql.NullString
		phaseStr     string
		attemptCount int
		errorKind    sql.NullString
		lastError    sql.NullString
		nextRetryRaw sql.NullString
		resumeRaw    sql.NullString
		remoteID     sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&archiveID,
		&sourcePath,
		&sidecarPath,
		&fingerprint,
		&takenAtRaw,
		&latitude,
		&longitude,
		&description,
		&phaseStr,
		&attemptCount,
		&errorKind,
		&lastError,
		&nextRetryRaw,
		&resumeRaw,
		&remoteID,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:            id,
		ArchiveID:     archiveID,
		SourcePath:    sourcePath,
		SidecarPath:   sidecarPath.String,
		Fingerprint:   fingerprint,
		TakenAt:       parseTimePtr(takenAtRaw),
		Description:   description.String,
		Phase:         ItemPhase(phaseStr),
		AttemptCount:  attemptCount,
		ErrorKind:     errorKind.String,
		LastError:     lastError.String,
		NextRetryAt:   parseTimePtr(nextRetryRaw),
		ResumePhase:   ItemPhase(resumeRaw.String),
		RemoteID:      remoteID.String,
		LastHeartbeat: parseTimePtr(heartbeatRaw),
	}
	if latitude.Valid {
		v := latitude.Float64
		item.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		item.Longitude = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
