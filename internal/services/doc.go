// Package services defines shared utilities consumed by the ingestion pipeline
// and the external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp stream names, sub-stream tags, source file
//     names, stages and cycle correlation IDs for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (external tool, validation, configuration) when logged.
//
// Use these helpers when wiring new transform logic so operational behaviour
// (error handling, observability) stays uniform across streams.
package services
