// Package watermark persists per-stream progress cursors.
//
// A State maps each sub-stream tag to the center time of the last file that
// was claimed for it. Files at or before that instant are never offered
// again. Two backends are provided: one JSON document per stream on disk,
// and a SQLite table shared by all streams. Both implement Claimer, an
// atomic compare-and-advance used by the pipeline to decide which worker
// owns a file when two processes race.
package watermark
