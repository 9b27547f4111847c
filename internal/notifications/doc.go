// Package notifications delivers pipeline milestones via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The Service interface covers the migration events an operator
// cares about between status checks: archives finishing or parking, the
// pipeline pausing itself, and the backlog draining completely.
//
// Extend this package if you need alternative transports; workflow code
// depends only on the Service interface.
package notifications
