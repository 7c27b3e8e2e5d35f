// Package pipeline runs the per-stream ingestion loop.
//
// Each Pipeline owns one configured stream. A cycle loads the stream's
// watermarks, scans the source directories, claims the earliest candidate,
// transforms it and repeats until nothing newer remains. The claim is
// persisted before the transformation starts, so a crash or tool failure
// never causes a file to be retried.
//
// Cycles are driven by a self-rearming timer: Start schedules the first
// cycle after the initial delay, every cycle rearms the timer with the poll
// interval when it finishes, and Trigger pulls the next cycle forward. A
// cycle that starts while another is still running for the same stream is
// skipped.
package pipeline
