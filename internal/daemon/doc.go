// Package daemon coordinates the long-running importer process.
//
// It wires configuration, the watermark backend, one pipeline per active
// stream and the optional source watcher into a single lifecycle with
// flock-based locking to prevent multiple instances on the same state
// directory. Individual ingestion steps live in their own packages; the
// daemon only owns startup, shutdown and status aggregation.
package daemon
