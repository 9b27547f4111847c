// Command ferry is the operator CLI for the migration pipeline. It talks to
// a running ferryd over its control socket and falls back to the state
// database directly when no daemon is up.
package main
