// Package main hosts the gncimport CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the importer daemon or a single cycle,
// inspects pending files and stream watermarks, and scaffolds configuration.
// It centralizes configuration resolution and logging setup so subcommands
// stay thin; the ingestion logic itself lives in the internal packages.
package main
