// Package reconcile decides, per segment, how to fit freshly synthesized
// audio into the video span the original cue occupied.
//
// Every decision is segment-local: the chosen adjustment makes the segment's
// video span equal its audio span (or leaves a small recorded residual), so
// timing errors never accumulate across the sequence. The package is pure
// policy; media work happens elsewhere.
package reconcile
