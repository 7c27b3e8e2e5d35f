// Package config loads, normalizes, and validates gncimport configuration.
//
// It supplies repository defaults (including the built-in GeoNetCast streams),
// expands user paths, reads TOML files, and honours GNC_* environment
// overrides. Everything downstream receives a single *Config value with
// absolute paths and canonical enum values.
package config
