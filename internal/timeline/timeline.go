package timeline

import (
	"errors"
	"fmt"
	"time"

	"loom/internal/reconcile"
)

var (
	// ErrEmptyInput reports an assembly request with no slices.
	ErrEmptyInput = errors.New("empty slice sequence")
	// ErrUnsynchronized reports a slice whose video and audio spans
	// diverge, which means reconciliation misbehaved upstream.
	ErrUnsynchronized = errors.New("unsynchronized slice")
)

// Entry is a slice placed at its output offset.
type Entry struct {
	Slice  reconcile.Slice
	Offset time.Duration
}

// Timeline is the complete output plan for a run.
type Timeline struct {
	Entries []Entry
	// Total is the output duration: the sum of all video spans.
	Total time.Duration
}

// Assemble places slices back to back in order. The returned timeline's
// Total always equals the sum of the video spans.
func Assemble(slices []reconcile.Slice) (Timeline, error) {
	if len(slices) == 0 {
		return Timeline{}, ErrEmptyInput
	}

	tl := Timeline{Entries: make([]Entry, 0, len(slices))}
	var cursor time.Duration
	for _, slice := range slices {
		if slice.VideoSpan != slice.AudioSpan {
			return Timeline{}, fmt.Errorf("%w: slice %d video %s audio %s",
				ErrUnsynchronized, slice.Index, slice.VideoSpan, slice.AudioSpan)
		}
		if slice.VideoSpan <= 0 {
			return Timeline{}, fmt.Errorf("%w: slice %d has non-positive span %s",
				ErrUnsynchronized, slice.Index, slice.VideoSpan)
		}
		tl.Entries = append(tl.Entries, Entry{Slice: slice, Offset: cursor})
		cursor += slice.VideoSpan
	}
	tl.Total = cursor
	return tl, nil
}
