// Package scanner discovers candidate source files for a stream.
//
// Each sub-stream directory is listed independently; names outside the
// stream's naming contract and files at or before the sub-stream watermark
// are dropped, and the survivors are merged into one list ordered by center
// time.
package scanner
