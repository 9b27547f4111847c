// Package albums derives album membership for extracted media items.
//
// Candidate names come from the item's containing directory inside the
// Takeout layout and from sidecar album hints. Names are deduplicated across
// archives by a canonical case-folded key while the display casing first
// observed for a key is preserved, so "Family" in one archive and "family"
// in another land in one album.
package albums

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/sidecar"
	"ferry/internal/store"
)

// yearBucket matches Takeout's automatic date folders ("Photos from 2019").
var yearBucket = regexp.MustCompile(`^Photos from \d{4}$`)

var folder = cases.Fold()

// structural directories are export layout, not user collections.
var structural = map[string]struct{}{
	"takeout":       {},
	"google photos": {},
	"archive":       {},
	"trash":         {},
	"bin":           {},
}

// Resolver attaches items to deduplicated album records.
type Resolver struct {
	store  *store.Store
	logger *slog.Logger
}

// NewResolver builds a resolver bound to the store.
func NewResolver(st *store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{store: st, logger: logging.NewComponentLogger(logger, "albums")}
}

// CanonicalKey normalizes an album name for dedup: trim, collapse inner
// whitespace, then Unicode case-fold. Stable across runs.
func CanonicalKey(name string) string {
	trimmed := strings.Join(strings.Fields(name), " ")
	return folder.String(trimmed)
}

// IsStructural reports whether a directory name is Takeout layout rather
// than a user album.
func IsStructural(name string) bool {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return true
	}
	if _, ok := structural[strings.ToLower(trimmed)]; ok {
		return true
	}
	return yearBucket.MatchString(trimmed)
}

// Candidates returns the album names an item at relPath with the given
// sidecar metadata should belong to.
func Candidates(relPath string, meta *sidecar.Metadata) []string {
	seen := make(map[string]struct{})
	var names []string

	add := func(name string) {
		name = strings.Join(strings.Fields(name), " ")
		if name == "" || IsStructural(name) {
			return
		}
		key := CanonicalKey(name)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	add(path.Base(path.Dir(relPath)))
	if meta != nil {
		for _, hint := range meta.AlbumHints {
			add(hint)
		}
	}
	return names
}

// Resolve derives album membership for an item and persists it. Resolving
// the same item twice yields identical records and membership.
func (r *Resolver) Resolve(ctx context.Context, itemID int64, relPath string, meta *sidecar.Metadata) ([]string, error) {
	names := Candidates(relPath, meta)
	resolved := make([]string, 0, len(names))

	for _, name := range names {
		album, err := r.store.EnsureAlbum(ctx, CanonicalKey(name), name)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "albums", "ensure", "persist album record", err)
		}
		if err := r.store.AddAlbumMember(ctx, album.ID, itemID); err != nil {
			return nil, services.Wrap(services.ErrTransient, "albums", "member", "persist album membership", err)
		}
		resolved = append(resolved, album.DisplayName)
	}

	if len(resolved) > 0 {
		r.logger.Debug("item resolved into albums",
			logging.Int64("item_id", itemID),
			logging.Any("albums", resolved))
	}
	return resolved, nil
}
