package testsupport

import (
	"context"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/segment"
)

// MustOpenStore opens a segment.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *segment.Store {
	t.Helper()

	store, err := segment.Open(cfg)
	if err != nil {
		t.Fatalf("segment.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustNewRun creates a run with placeholder source paths.
func MustNewRun(t testing.TB, store *segment.Store) *segment.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), "source.mp4", "captions.srt", "de")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	return run
}

// MustAppendCues seeds a run with evenly spaced one second cues.
func MustAppendCues(t testing.TB, store *segment.Store, runID string, texts ...string) []segment.Cue {
	t.Helper()

	cues := make([]segment.Cue, 0, len(texts))
	for i, text := range texts {
		cue := segment.Cue{
			Index: i + 1,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i+1) * time.Second,
			Text:  text,
		}
		if err := store.Append(context.Background(), runID, cue); err != nil {
			t.Fatalf("Append cue %d: %v", cue.Index, err)
		}
		cues = append(cues, cue)
	}
	return cues
}
