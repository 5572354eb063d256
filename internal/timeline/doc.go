// Package timeline folds an ordered sequence of reconciled slices into one
// continuous output plan and drives the media backend to materialize it.
//
// Placement is purely cumulative: each slice is appended at the current
// cursor and the cursor advances by the slice's video span, so gaps and
// overlaps are impossible by construction. Original source timestamps are
// used only to locate footage in the input video, never to position output.
package timeline
