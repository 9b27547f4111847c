package stage

import (
	"context"

	"ferry/internal/store"
)

// ArchiveHandler describes the contract the workflow manager needs from each
// archive-level stage (download, extract, cleanup).
type ArchiveHandler interface {
	Prepare(context.Context, *store.Archive) error
	Execute(context.Context, *store.Archive) error
	HealthCheck(context.Context) Health
}

// ItemHandler describes the contract for item-level stages (metadata merge,
// album resolve, upload).
type ItemHandler interface {
	Prepare(context.Context, *store.Item) error
	Execute(context.Context, *store.Item) error
	HealthCheck(context.Context) Health
}
