package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const archiveColumns = "id, display_name, expected_bytes, phase, attempt_count, error_kind, last_error, next_retry_at, resume_phase, local_path, extract_dir, content_hash, last_heartbeat, created_at, updated_at"

// NewArchive records a discovered archive. Inserting an already-known
// identifier is a no-op and returns the existing record, so repeated
// discovery passes are idempotent.
func (s *Store) NewArchive(ctx context.Context, id, displayName string, expectedBytes int64) (*Archive, error) {
	if id == "" {
		return nil, errors.New("archive id is required")
	}
	now := timestamp(time.Now())
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO archives (id, display_name, expected_bytes, phase, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		id,
		displayName,
		expectedBytes,
		ArchiveDiscovered,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert archive: %w", err)
	}
	return s.GetArchive(ctx, id)
}

// GetArchive fetches an archive by identifier, nil when absent.
func (s *Store) GetArchive(ctx context.Context, id string) (*Archive, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
	archive, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archive: %w", err)
	}
	return archive, nil
}

// UpdateArchive persists changes to an existing archive record.
func (s *Store) UpdateArchive(ctx context.Context, archive *Archive) error {
	if archive == nil {
		return errors.New("archive is nil")
	}
	archive.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE archives
         SET display_name = ?, expected_bytes = ?, phase = ?, attempt_count = ?,
             error_kind = ?, last_error = ?, next_retry_at = ?, resume_phase = ?,
             local_path = ?, extract_dir = ?, content_hash = ?, last_heartbeat = ?,
             updated_at = ?
         WHERE id = ?`,
		archive.DisplayName,
		archive.ExpectedBytes,
		archive.Phase,
		archive.AttemptCount,
		nullableString(archive.ErrorKind),
		nullableString(archive.LastError),
		nullableTime(archive.NextRetryAt),
		nullableString(string(archive.ResumePhase)),
		nullableString(archive.LocalPath),
		nullableString(archive.ExtractDir),
		nullableString(archive.ContentHash),
		nullableTime(archive.LastHeartbeat),
		timestamp(archive.UpdatedAt),
		archive.ID,
	)
	if err != nil {
		return fmt.Errorf("update archive: %w", err)
	}
	return nil
}

// TransitionArchive performs a compare-and-swap phase move. It returns
// ErrConflict when the archive is no longer in the expected phase. Heartbeats
// are started for in-flight phases and cleared otherwise.
func (s *Store) TransitionArchive(ctx context.Context, id string, from, to ArchivePhase) error {
	now := time.Now().UTC()
	var heartbeat any
	if InFlightArchive(to) {
		heartbeat = timestamp(now)
	}
	query := `UPDATE archives SET phase = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND phase = ?`
	if !InFlightArchive(to) && to != ArchiveFailed && to != ArchiveCorrupted {
		// A forward commit retires any retry bookkeeping from earlier attempts.
		query = `UPDATE archives SET phase = ?, last_heartbeat = ?, updated_at = ?,
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
		return fmt.Errorf("transition archive %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition archive %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("archive %s %s -> %s: %w", id, from, to, ErrConflict)
	}
	return nil
}

// ArchivesByPhase returns archives in a phase ordered by creation time.
func (s *Store) ArchivesByPhase(ctx context.Context, phases ...ArchivePhase) ([]*Archive, error) {
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
		`SELECT `+archiveColumns+` FROM archives WHERE phase IN (`+placeholders+`) ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query archives by phase: %w", err)
	}
	defer rows.Close()

	var archives []*Archive
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}
	return archives, rows.Err()
}

// ListArchives returns all archives ordered by creation time.
func (s *Store) ListArchives(ctx context.Context) ([]*Archive, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+archiveColumns+` FROM archives ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var archives []*Archive
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}
	return archives, rows.Err()
}

// NextArchiveForPhases returns the oldest archive in one of the given phases
// whose retry backoff, if any, has elapsed.
func (s *Store) NextArchiveForPhases(ctx context.Context, phases ...ArchivePhase) (*Archive, error) {
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
		`SELECT `+archiveColumns+` FROM archives
         WHERE phase IN (`+placeholders+`)
           AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at LIMIT 1`,
		args...,
	)
	archive, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// ArchiveStats returns a count of archives grouped by phase.
func (s *Store) ArchiveStats(ctx context.Context) (map[ArchivePhase]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase, COUNT(1) FROM archives GROUP BY phase`)
	if err != nil {
		return nil, fmt.Errorf("archive stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ArchivePhase]int)
	for rows.Next() {
		var phase ArchivePhase
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, err
		}
		stats[phase] = count
	}
	return stats, rows.Err()
}

func scanArchive(scanner interface{ Scan(dest ...any) error }) (*Archive, error) {
	var (
		id            string
		displayName   string
		expectedBytes int64
		phaseStr      string
		attemptCount  int
		errorKind     sql.NullString
		lastError     sql.NullString
		nextRetryRaw  sql.NullString
		resumeRaw     sql.NullString
		localPath     sql.NullString
		extractDir    sql.NullString
		contentHash   sql.NullString
		heartbeatRaw  sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&displayName,
		&expectedBytes,
		&phaseStr,
		&attemptCount,
		&errorKind,
		&lastError,
		&nextRetryRaw,
		&resumeRaw,
		&localPath,
		&extractDir,
		&contentHash,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	archive := &Archive{
		ID:            id,
		DisplayName:   displayName,
		ExpectedBytes: expectedBytes,
		Phase:         ArchivePhase(phaseStr),
		AttemptCount:  attemptCount,
		ErrorKind:     errorKind.String,
		LastError:     lastError.String,
		NextRetryAt:   parseTimePtr(nextRetryRaw),
		ResumePhase:   ArchivePhase(resumeRaw.String),
		LocalPath:     localPath.String,
		ExtractDir:    extractDir.String,
		ContentHash:   contentHash.String,
		LastHeartbeat: parseTimePtr(heartbeatRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		archive.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		archive.UpdatedAt = updated
	}
	return archive, nil
}
