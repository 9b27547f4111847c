// Package logs provides bounded-memory log file tailing for the CLI.
//
// The daemon appends structured lines to ferry.log in the configured log
// directory; this package reads the last N lines and can poll for new ones
// in follow mode. Callers supply context deadlines so polling stops cleanly
// when the CLI exits.
package logs
