// Package store persists the migration ledger in SQLite and exposes helpers
// for driving archive and item lifecycles.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-record recovery, and the
// compare-and-swap phase transitions that serialize ownership between
// workers. Archives track the download/extract/cleanup lifecycle; items track
// the per-media merge/resolve/upload lifecycle; albums record deduplicated
// collections and their membership.
//
// Every phase move goes through TransitionArchive or TransitionItem so two
// workers can never both believe they own a unit: the loser of the
// single-statement compare-and-swap gets ErrConflict and walks away. Schema
// changes bump the version in schema.go; a mismatched database is refused
// rather than silently migrated.
package store
