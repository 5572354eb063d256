// Package segment persists the canonical ordered sequence of subtitle cues
// for a dubbing run and tracks each segment through the pipeline lifecycle.
//
// The store is backed by SQLite and enforces the ordering invariants at
// append time: indices strictly increase, cue spans are well formed, and
// cues never overlap. Translation and synthesis results are recorded through
// dedicated mutators that reject out-of-order writes, so a segment can never
// carry audio without a translation. Reads are snapshot copies; mutations
// after a snapshot is taken are not visible to it.
package segment
