package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const albumColumns = "id, canonical_key, display_name, created_this_run, created_at"

// EnsureAlbum returns the album for a canonical key, creating it if needed.
// The display name stored is the first one observed for the key; later
// callers presenting different casing attach to the existing record.
func (s *Store) EnsureAlbum(ctx context.Context, canonicalKey, displayName string) (*Album, error) {
	if canonicalKey == "" {
		return nil, errors.New("canonical key is required")
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO albums (canonical_key, display_name, created_this_run, created_at)
         VALUES (?, ?, 1, ?)
         ON CONFLICT(canonical_key) DO NOTHING`,
		canonicalKey,
		displayName,
		timestamp(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("ensure album: %w", err)
	}
	return s.AlbumByKey(ctx, canonicalKey)
}

// AlbumByKey fetches an album by canonical key, nil when absent.
func (s *Store) AlbumByKey(ctx context.Context, canonicalKey string) (*Album, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+albumColumns+` FROM albums WHERE canonical_key = ?`,
		canonicalKey,
	)
	album, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("album by key: %w", err)
	}
	return album, nil
}

// AddAlbumMember attaches an item to an album. Repeated attachment is a
// no-op, which keeps album resolution idempotent under retries.
func (s *Store) AddAlbumMember(ctx context.Context, albumID, itemID int64) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO album_members (album_id, item_id) VALUES (?, ?)`,
		albumID,
		itemID,
	)
	if err != nil {
		return fmt.Errorf("add album member: %w", err)
	}
	return nil
}

// AlbumsForItem returns the albums an item belongs to, ordered by name.
func (s *Store) AlbumsForItem(ctx context.Context, itemID int64) ([]*Album, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.id, a.canonical_key, a.display_name, a.created_this_run, a.created_at
         FROM albums a
         JOIN album_members m ON m.album_id = a.id
         WHERE m.item_id = ?
         ORDER BY a.canonical_key`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("albums for item: %w", err)
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// ListAlbums returns all albums ordered by canonical key.
func (s *Store) ListAlbums(ctx context.Context) ([]*Album, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+albumColumns+` FROM albums ORDER BY canonical_key`)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// AlbumMemberCount returns the number of items attached to an album.
func (s *Store) AlbumMemberCount(ctx context.Context, albumID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM album_members WHERE album_id = ?`,
		albumID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("album member count: %w", err)
	}
	return count, nil
}

// ClearAlbumRunFlags resets the created-this-run marker at the start of a
// run so status output distinguishes fresh albums from matched ones.
func (s *Store) ClearAlbumRunFlags(ctx context.Context) error {
	_, err := s.execWithRetry(ctx, `UPDATE albums SET created_this_run = 0 WHERE created_this_run = 1`)
	if err != nil {
		return fmt.Errorf("clear album run flags: %w", err)
	}
	return nil
}

func collectAlbums(rows *sql.Rows) ([]*Album, error) {
	var albums []*Album
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}
	return albums, rows.Err()
}

func scanAlbum(scanner interface{ Scan(dest ...any) error }) (*Album, error) {
	var (
		id             int64
		canonicalKey   string
		displayName    string
		createdThisRun int
		createdRaw     string
	)
	if err := scanner.Scan(&id, &canonicalKey, &displayName, &createdThisRun, &createdRaw); err != nil {
		return nil, err
	}
	album := &Album{
		ID:             id,
		CanonicalKey:   canonicalKey,
		DisplayName:    displayName,
		CreatedThisRun: createdThisRun != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		album.CreatedAt = created
	}
	return album, nil
}
