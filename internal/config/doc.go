// Package config loads, normalizes, and validates Ferry's TOML configuration.
//
// Load resolves the config path (explicit flag, ~/.config/ferry/config.toml,
// or ./ferry.toml), layers the file over Default(), expands ~ in path fields,
// and rejects unusable combinations before the daemon starts.
package config
