// Package logging wraps log/slog with Ferry's handler setup and standardized
// attribute keys.
//
// Console and JSON formats are selected by config; output fans out to stdout
// and the ferry.log file under the configured log directory. Context helpers
// project archive/item/phase identifiers into every record emitted during a
// phase execution.
package logging
