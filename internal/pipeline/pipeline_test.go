package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/pipeline"
	"loom/internal/segment"
	"loom/internal/services"
	"loom/internal/testsupport"
)

type fakeTranslator struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error
	once    map[string]int
}

func (f *fakeTranslator) Translate(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failFor[text]; ok {
		return "", err
	}
	if f.once != nil && f.once[text] > 0 {
		f.once[text]--
		return "", services.Wrap(services.ErrTransient, "translate", "", "flaky", nil)
	}
	if text == "" {
		return "", nil
	}
	return "DE:" + text, nil
}

type fakeSynthesizer struct {
	mu      sync.Mutex
	cloned  []string
	deleted []string
	failFor map[string]error
	once    map[string]int
}

func (f *fakeSynthesizer) CloneVoice(ctx context.Context, name, samplePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cloned = append(f.cloned, name)
	return "voice-clone-1", nil
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, voiceID, text, outPath string) error {
	f.mu.Lock()
	if err, ok := f.failFor[text]; ok {
		f.mu.Unlock()
		return err
	}
	if f.once != nil && f.once[text] > 0 {
		f.once[text]--
		f.mu.Unlock()
		return services.Wrap(services.ErrTransient, "synthesize", "", "flaky", nil)
	}
	f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("audio:"+text), 0o644)
}

func (f *fakeSynthesizer) DeleteVoice(ctx context.Context, voiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, voiceID)
	return nil
}

type fakeMedia struct {
	mu        sync.Mutex
	durations map[string]time.Duration
	fallback  time.Duration
	calls     []string
}

func (f *fakeMedia) note(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeMedia) touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("x"), 0o644)
}

func (f *fakeMedia) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	f.note("probe")
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[filepath.Base(path)]; ok {
		return d, nil
	}
	return f.fallback, nil
}

func (f *fakeMedia) ExtractVoiceSample(ctx context.Context, video, out string, duration time.Duration) error {
	f.note("sample")
	return f.touch(out)
}

func (f *fakeMedia) SilentAudio(ctx context.Context, out string, span time.Duration) error {
	f.note("silence")
	return f.touch(out)
}

func (f *fakeMedia) CutClip(ctx context.Context, video, out string, start, span time.Duration) error {
	f.note("cut")
	return f.touch(out)
}

func (f *fakeMedia) ExtendFreeze(ctx context.Context, video, out string, start, sourceSpan, targetSpan time.Duration) error {
	f.note("freeze")
	return f.touch(out)
}

func (f *fakeMedia) RetimeClip(ctx context.Context, video, out string, start, sourceSpan time.Duration, factor float64) error {
	f.note("retime")
	return f.touch(out)
}

func (f *fakeMedia) FitAudio(ctx context.Context, in, out string, target time.Duration) error {
	f.note("fit")
	return f.touch(out)
}

func (f *fakeMedia) OverlayAudio(ctx context.Context, videoClip, audioClip, out string) error {
	f.note("overlay")
	return f.touch(out)
}

func (f *fakeMedia) Concatenate(ctx context.Context, clips []string, out string) error {
	f.note("concat")
	return f.touch(out)
}

func (f *fakeMedia) ExtractAudioTrack(ctx context.Context, video, out string) error {
	f.note("audio-track")
	return f.touch(out)
}

func writeCaptions(t *testing.T, blocks ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "captions.srt")
	if err := os.WriteFile(path, []byte(strings.Join(blocks, "\n\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func cueBlock(n int, start, end, text string) string {
	return fmt.Sprintf("%d\n%s --> %s\n%s", n, start, end, text)
}

func newTestPipeline(t *testing.T, media *fakeMedia, translator *fakeTranslator, synth *fakeSynthesizer, opts ...testsupport.ConfigOption) (*pipeline.Pipeline, *segment.Store, *config.Config) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithWorkflow(2, 3)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	p := pipeline.New(cfg, store, translator, synth, media, nil)
	return p, store, cfg
}

func TestRunHappyPath(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:02,000", "Hello there."),
		cueBlock(2, "00:00:02,000", "00:00:04,000", "How are you?"),
	)
	media := &fakeMedia{fallback: 2 * time.Second, durations: map[string]time.Duration{"source.mp4": 4 * time.Second}}
	translator := &fakeTranslator{}
	synth := &fakeSynthesizer{}
	p, store, cfg := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunCompleted {
		t.Fatalf("status = %s", report.Status)
	}
	if report.TotalSegments != 2 || report.AssembledCount != 2 {
		t.Fatalf("counts = %d/%d", report.AssembledCount, report.TotalSegments)
	}
	if report.OutputDurationMs != 4000 {
		t.Fatalf("output duration = %dms, want 4000ms", report.OutputDurationMs)
	}
	if report.VoiceID != "voice-clone-1" {
		t.Fatalf("voice = %q", report.VoiceID)
	}

	// The cloned voice is removed once the run finishes.
	if len(synth.deleted) != 1 || synth.deleted[0] != "voice-clone-1" {
		t.Fatalf("deleted voices = %v", synth.deleted)
	}

	// Output artifacts land in the output directory.
	if !strings.HasPrefix(report.OutputVideo, cfg.Paths.OutputDir) {
		t.Fatalf("output video path = %s", report.OutputVideo)
	}
	if _, err := os.Stat(report.OutputVideo); err != nil {
		t.Fatalf("missing output video: %v", err)
	}
	manifestPath := strings.TrimSuffix(report.OutputVideo, ".mp4") + ".manifest.json"
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("missing manifest: %v", err)
	}

	// Every segment ends assembled and the run record carries the manifest.
	snapshot, err := store.Snapshot(context.Background(), report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	for _, seg := range snapshot {
		if seg.Status != segment.StatusAssembled {
			t.Fatalf("segment %d status = %s", seg.Index, seg.Status)
		}
		if !strings.HasPrefix(seg.TargetText, "DE:") {
			t.Fatalf("segment %d translation = %q", seg.Index, seg.TargetText)
		}
	}
	run, err := store.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != string(pipeline.RunCompleted) || run.ManifestJSON == "" {
		t.Fatalf("run record = %+v", run)
	}
}

func TestRunUsesConfiguredVoiceWithoutCloning(t *testing.T) {
	captions := writeCaptions(t, cueBlock(1, "00:00:00,000", "00:00:01,000", "Hi."))
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{}
	synth := &fakeSynthesizer{}
	p, _, _ := newTestPipeline(t, media, translator, synth, func(cfg *config.Config) {
		cfg.Voice.VoiceID = "external-voice"
	})

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.VoiceID != "external-voice" {
		t.Fatalf("voice = %q", report.VoiceID)
	}
	if len(synth.cloned) != 0 {
		t.Fatal("should not clone when a voice is configured")
	}
	if len(synth.deleted) != 0 {
		t.Fatal("external voices must never be deleted")
	}
}

func TestRunRetriesTransientTranslationFailures(t *testing.T) {
	captions := writeCaptions(t, cueBlock(1, "00:00:00,000", "00:00:01,000", "Flaky line."))
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{once: map[string]int{"Flaky line.": 2}}
	synth := &fakeSynthesizer{}
	p, store, _ := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunCompleted {
		t.Fatalf("status = %s", report.Status)
	}
	seg, err := store.Get(context.Background(), report.RunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", seg.Attempts)
	}
}

func TestRunExcludesSegmentAfterExhaustedRetries(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:01,000", "Good line."),
		cueBlock(2, "00:00:01,000", "00:00:02,000", "Doomed line."),
		cueBlock(3, "00:00:02,000", "00:00:03,000", "Another good line."),
	)
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{failFor: map[string]error{
		"Doomed line.": services.Wrap(services.ErrTransient, "translate", "", "always down", nil),
	}}
	synth := &fakeSynthesizer{}
	p, store, _ := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunPartial {
		t.Fatalf("status = %s, want partial", report.Status)
	}
	if len(report.ExcludedIndices) != 1 || report.ExcludedIndices[0] != 2 {
		t.Fatalf("excluded = %v", report.ExcludedIndices)
	}
	if report.AssembledCount != 2 {
		t.Fatalf("assembled = %d", report.AssembledCount)
	}

	seg, err := store.Get(context.Background(), report.RunID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Status != segment.StatusExcluded {
		t.Fatalf("segment 2 status = %s", seg.Status)
	}
}

func TestRunExcludesConsecutiveSegmentsAndSumsRemainingSpans(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:01,000", "First."),
		cueBlock(2, "00:00:01,000", "00:00:02,000", "Bad one."),
		cueBlock(3, "00:00:02,000", "00:00:03,000", "Bad two."),
		cueBlock(4, "00:00:03,000", "00:00:04,000", "Last."),
	)
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{}
	synth := &fakeSynthesizer{failFor: map[string]error{
		"DE:Bad one.": services.Wrap(services.ErrTransient, "synthesize", "", "always down", nil),
		"DE:Bad two.": services.Wrap(services.ErrTransient, "synthesize", "", "always down", nil),
	}}
	p, _, _ := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunPartial {
		t.Fatalf("status = %s, want partial", report.Status)
	}
	if len(report.ExcludedIndices) != 2 || report.ExcludedIndices[0] != 2 || report.ExcludedIndices[1] != 3 {
		t.Fatalf("excluded = %v, want [2 3]", report.ExcludedIndices)
	}
	if report.AssembledCount != 2 {
		t.Fatalf("assembled = %d", report.AssembledCount)
	}
	// The output covers exactly the surviving segments' spans.
	if report.OutputDurationMs != 2000 {
		t.Fatalf("output duration = %dms, want 2000ms", report.OutputDurationMs)
	}
}

func TestRetryBudgetIsPerPhase(t *testing.T) {
	captions := writeCaptions(t, cueBlock(1, "00:00:00,000", "00:00:01,000", "Shaky."))
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{once: map[string]int{"Shaky.": 1}}
	synth := &fakeSynthesizer{once: map[string]int{"DE:Shaky.": 1}}
	// Two attempts per phase: one translation failure must not eat into the
	// synthesis budget.
	p, store, _ := newTestPipeline(t, media, translator, synth, testsupport.WithWorkflow(2, 2))

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunCompleted {
		t.Fatalf("status = %s, want completed", report.Status)
	}
	seg, err := store.Get(context.Background(), report.RunID, 1)
	if err != nil {
		t.Fatal(err)
	}
	// One recorded failure per phase.
	if seg.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", seg.Attempts)
	}
}

func TestRunAppliesExtendFreezeForLongSpeech(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:01,000", "Long speech."),
		cueBlock(2, "00:00:01,000", "00:00:02,000", "Fits."),
	)
	media := &fakeMedia{
		fallback: time.Second,
		durations: map[string]time.Duration{
			"source.mp4": 2 * time.Second,
			"000001.mp3": 2 * time.Second,
		},
	}
	p, _, _ := newTestPipeline(t, media, &fakeTranslator{}, &fakeSynthesizer{},
		testsupport.WithReconcile(100, 500))

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Slices) != 2 {
		t.Fatalf("slices = %d", len(report.Slices))
	}
	if report.Slices[0].Adjustment != "extend_freeze" {
		t.Fatalf("adjustment = %s", report.Slices[0].Adjustment)
	}
	if report.Slices[0].VideoSpanMs != 2000 {
		t.Fatalf("video span = %dms", report.Slices[0].VideoSpanMs)
	}
	if report.OutputDurationMs != 3000 {
		t.Fatalf("output duration = %dms, want 3000ms", report.OutputDurationMs)
	}
}

func TestRunExcludesImmediatelyOnFatalError(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:01,000", "Fine."),
		cueBlock(2, "00:00:01,000", "00:00:02,000", "Rejected."),
	)
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{failFor: map[string]error{
		"Rejected.": services.Wrap(services.ErrValidation, "translate", "", "content rejected", nil),
	}}
	synth := &fakeSynthesizer{}
	p, store, _ := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	seg, err := store.Get(context.Background(), report.RunID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Status != segment.StatusExcluded {
		t.Fatalf("segment 2 status = %s", seg.Status)
	}
	if seg.Attempts != 1 {
		t.Fatalf("attempts = %d, fatal errors must not retry", seg.Attempts)
	}
}

func TestRunVoicesEmptyCueAsSilence(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:01,000", "Spoken."),
		cueBlock(2, "00:00:01,000", "00:00:02,500", ""),
	)
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{}
	synth := &fakeSynthesizer{}
	p, store, _ := newTestPipeline(t, media, translator, synth)

	report, err := p.Run(context.Background(), "source.mp4", captions)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != pipeline.RunCompleted {
		t.Fatalf("status = %s", report.Status)
	}

	seg, err := store.Get(context.Background(), report.RunID, 2)
	if err != nil {
		t.Fatal(err)
	}
	// The silent clip covers the original cue span exactly.
	if seg.AudioDuration != 1500*time.Millisecond {
		t.Fatalf("silent clip duration = %s", seg.AudioDuration)
	}

	sawSilence := false
	for _, op := range media.calls {
		if op == "silence" {
			sawSilence = true
		}
	}
	if !sawSilence {
		t.Fatal("expected a silent clip to be generated")
	}
}

func TestRunFailsWhenEverySegmentExcluded(t *testing.T) {
	captions := writeCaptions(t, cueBlock(1, "00:00:00,000", "00:00:01,000", "Doomed."))
	media := &fakeMedia{fallback: time.Second}
	translator := &fakeTranslator{failFor: map[string]error{
		"Doomed.": services.Wrap(services.ErrTransient, "translate", "", "down", nil),
	}}
	synth := &fakeSynthesizer{}
	p, store, _ := newTestPipeline(t, media, translator, synth)

	_, err := p.Run(context.Background(), "source.mp4", captions)
	if err == nil {
		t.Fatal("expected failure when nothing can be assembled")
	}

	run, err := store.GetRun(context.Background(), lastRunID(t, store))
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != string(pipeline.RunFailed) {
		t.Fatalf("run status = %s", run.Status)
	}
}

func TestRunRejectsEmptyCaptionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.srt")
	if err := os.WriteFile(path, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	media := &fakeMedia{fallback: time.Second}
	p, _, _ := newTestPipeline(t, media, &fakeTranslator{}, &fakeSynthesizer{})

	if _, err := p.Run(context.Background(), "source.mp4", path); !services.IsFatal(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunRejectsOverlappingCues(t *testing.T) {
	captions := writeCaptions(t,
		cueBlock(1, "00:00:00,000", "00:00:02,000", "First."),
		cueBlock(2, "00:00:01,500", "00:00:03,000", "Overlaps."),
	)
	media := &fakeMedia{fallback: time.Second}
	p, _, _ := newTestPipeline(t, media, &fakeTranslator{}, &fakeSynthesizer{})

	_, err := p.Run(context.Background(), "source.mp4", captions)
	if err == nil || !errors.Is(err, segment.ErrOrderingViolation) {
		t.Fatalf("expected ordering violation, got %v", err)
	}
}

func lastRunID(t *testing.T, store *segment.Store) string {
	t.Helper()
	runs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) == 0 {
		t.Fatal("no runs recorded")
	}
	return runs[0].ID
}
