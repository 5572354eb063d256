// Package pipeline orchestrates a dubbing run end to end: caption parsing,
// voice cloning, per-segment translation and synthesis with bounded retries,
// duration reconciliation, and final timeline assembly.
//
// Translation and synthesis are pipelined across segments under a
// concurrency limit; assembly waits for every segment to settle. Segments
// that exhaust their retries are excluded from the output and reported in
// the run manifest instead of aborting the whole run.
package pipeline
