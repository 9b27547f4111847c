// Package ipc exposes daemon control over a Unix domain socket using
// JSON-RPC, so the ferry CLI can inspect and steer a running daemon without
// touching the state database it holds open.
package ipc
