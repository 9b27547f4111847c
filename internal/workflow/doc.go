// Package workflow drives archives and items through the migration pipeline.
//
// The Manager runs one lane per phase: download and extract move archives,
// merge/resolve and upload move items, and a housekeeping lane handles
// discovery, stale-claim reclamation, archive promotion, the cleanup gate,
// and the pause-for-retries policy. Every lane claims work exclusively
// through the store's compare-and-swap transitions, so lanes share no state
// beyond the store and the disk budget governor.
//
// Stopping the manager cancels admissions and lets in-flight work reach its
// next durable transition; nothing is killed mid-write. Work interrupted by
// a hard crash is rolled back to its last committed phase at the next start.
package workflow
