// Package daemon ties the migration pipeline into a single long-running
// process: it enforces single-instance execution with a file lock, owns the
// state store handle, and exposes the operator actions the CLI surfaces.
package daemon
