package segment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loom/internal/segment"
	"loom/internal/testsupport"
)

func TestAppendEnforcesOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	ctx := context.Background()

	first := segment.Cue{Index: 1, Start: 0, End: 2 * time.Second, Text: "hello"}
	if err := store.Append(ctx, run.ID, first); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cases := []struct {
		name string
		cue  segment.Cue
	}{
		{"repeated index", segment.Cue{Index: 1, Start: 2 * time.Second, End: 3 * time.Second}},
		{"decreasing index", segment.Cue{Index: 0, Start: 2 * time.Second, End: 3 * time.Second}},
		{"inverted span", segment.Cue{Index: 2, Start: 3 * time.Second, End: 2 * time.Second}},
		{"zero span", segment.Cue{Index: 2, Start: 3 * time.Second, End: 3 * time.Second}},
		{"overlaps previous", segment.Cue{Index: 2, Start: 1500 * time.Millisecond, End: 3 * time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Append(ctx, run.ID, tc.cue)
			if !errors.Is(err, segment.ErrOrderingViolation) {
				t.Fatalf("expected ordering violation, got %v", err)
			}
		})
	}

	// A cue that starts exactly where the previous one ended is legal.
	touching := segment.Cue{Index: 2, Start: 2 * time.Second, End: 4 * time.Second, Text: "world"}
	if err := store.Append(ctx, run.ID, touching); err != nil {
		t.Fatalf("Append touching cue: %v", err)
	}
}

func TestTranslationBeforeAudioOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	testsupport.MustAppendCues(t, store, run.ID, "one")
	ctx := context.Background()

	if err := store.SetAudio(ctx, run.ID, 1, "/tmp/a.mp3", time.Second); !errors.Is(err, segment.ErrInvalidState) {
		t.Fatalf("expected invalid state for audio before translation, got %v", err)
	}
	if err := store.SetTranslation(ctx, run.ID, 1, "eins"); err != nil {
		t.Fatalf("SetTranslation: %v", err)
	}
	if err := store.SetTranslation(ctx, run.ID, 1, "eins"); !errors.Is(err, segment.ErrInvalidState) {
		t.Fatalf("expected invalid state for repeated translation, got %v", err)
	}
	if err := store.SetAudio(ctx, run.ID, 1, "/tmp/a.mp3", 1200*time.Millisecond); err != nil {
		t.Fatalf("SetAudio: %v", err)
	}

	got, err := store.Get(ctx, run.ID, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != segment.StatusSynthesized {
		t.Fatalf("status = %s, want synthesized", got.Status)
	}
	if got.TargetText != "eins" || got.AudioDuration != 1200*time.Millisecond {
		t.Fatalf("unexpected segment %+v", got)
	}
}

func TestMutationsAgainstMissingSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	ctx := context.Background()

	if err := store.SetTranslation(ctx, run.ID, 7, "x"); !errors.Is(err, segment.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.SetAudio(ctx, run.ID, 7, "/tmp/a.mp3", time.Second); !errors.Is(err, segment.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Get(ctx, run.ID, 7); !errors.Is(err, segment.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdvanceAndTerminalMarks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	testsupport.MustAppendCues(t, store, run.ID, "one")
	ctx := context.Background()

	if err := store.SetTranslation(ctx, run.ID, 1, "eins"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAudio(ctx, run.ID, 1, "/tmp/a.mp3", time.Second); err != nil {
		t.Fatal(err)
	}
	if err := store.Advance(ctx, run.ID, 1, segment.StatusAssembled); !errors.Is(err, segment.ErrInvalidState) {
		t.Fatalf("expected invalid state skipping reconcile, got %v", err)
	}
	if err := store.Advance(ctx, run.ID, 1, segment.StatusReconciled); err != nil {
		t.Fatalf("Advance reconciled: %v", err)
	}
	if err := store.Advance(ctx, run.ID, 1, segment.StatusAssembled); err != nil {
		t.Fatalf("Advance assembled: %v", err)
	}
	if err := store.MarkFailed(ctx, run.ID, 1, "late failure"); !errors.Is(err, segment.ErrInvalidState) {
		t.Fatalf("expected assembled segment to reject failure, got %v", err)
	}
}

func TestMarkFailedResetAndExclusion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	testsupport.MustAppendCues(t, store, run.ID, "one", "two")
	ctx := context.Background()

	if err := store.MarkFailed(ctx, run.ID, 1, "http 500"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err := store.Get(ctx, run.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempts != 1 || got.ErrorMessage != "http 500" {
		t.Fatalf("unexpected failed segment %+v", got)
	}

	if err := store.ResetFailed(ctx, run.ID, 1); err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	got, err = store.Get(ctx, run.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != segment.StatusParsed {
		t.Fatalf("reset without translation should return to parsed, got %s", got.Status)
	}

	// With a translation present, reset resumes from translated.
	if err := store.SetTranslation(ctx, run.ID, 1, "eins"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, run.ID, 1, "tts timeout"); err != nil {
		t.Fatal(err)
	}
	if err := store.ResetFailed(ctx, run.ID, 1); err != nil {
		t.Fatal(err)
	}
	got, err = store.Get(ctx, run.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != segment.StatusTranslated || got.Attempts != 2 {
		t.Fatalf("unexpected reset segment %+v", got)
	}

	if err := store.MarkExcluded(ctx, run.ID, 1, "retries exhausted"); err != nil {
		t.Fatalf("MarkExcluded: %v", err)
	}
	excluded, err := store.ExcludedIndices(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(excluded) != 1 || excluded[0] != 1 {
		t.Fatalf("excluded = %v, want [1]", excluded)
	}
}

func TestSnapshotIsolationAndIterate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	testsupport.MustAppendCues(t, store, run.ID, "one", "two", "three")
	ctx := context.Background()

	snapshot, err := store.Snapshot(ctx, run.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 3 {
		t.Fatalf("snapshot length = %d, want 3", len(snapshot))
	}

	if err := store.SetTranslation(ctx, run.ID, 2, "zwei"); err != nil {
		t.Fatal(err)
	}
	if snapshot[1].Status != segment.StatusParsed {
		t.Fatal("snapshot should not observe later mutations")
	}

	seq, err := store.Iterate(ctx, run.ID)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	for pass := 0; pass < 2; pass++ {
		var indices []int
		for seg := range seq {
			indices = append(indices, seg.Index)
		}
		if len(indices) != 3 || indices[0] != 1 || indices[2] != 3 {
			t.Fatalf("pass %d indices = %v", pass, indices)
		}
	}
}

func TestStatsAndRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.MustNewRun(t, store)
	testsupport.MustAppendCues(t, store, run.ID, "one", "two")
	ctx := context.Background()

	if err := store.SetTranslation(ctx, run.ID, 1, "eins"); err != nil {
		t.Fatal(err)
	}
	stats, err := store.Stats(ctx, run.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[segment.StatusParsed] != 1 || stats[segment.StatusTranslated] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	if err := store.SetRunVoice(ctx, run.ID, "voice-123"); err != nil {
		t.Fatalf("SetRunVoice: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, "completed", `{"segments":2}`); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VoiceID != "voice-123" || got.Status != "completed" || got.ManifestJSON == "" {
		t.Fatalf("unexpected run %+v", got)
	}

	if err := store.FinishRun(ctx, "missing", "completed", ""); !errors.Is(err, segment.ErrNotFound) {
		t.Fatalf("expected not found for missing run, got %v", err)
	}
}
