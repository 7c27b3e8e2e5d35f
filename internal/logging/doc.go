// Package logging builds the slog loggers used by the importer daemon and CLI.
//
// It provides a compact console handler and a JSON handler, resolves the
// configured level and format, and exposes helpers that attach stream, tag and
// cycle identifiers from a context so every line emitted during a poll cycle
// can be correlated. Log file retention lives here as well.
package logging
