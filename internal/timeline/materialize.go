package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"loom/internal/logging"
	"loom/internal/reconcile"
)

// Backend is the subset of media operations materialization needs.
type Backend interface {
	CutClip(ctx context.Context, video, out string, start, span time.Duration) error
	ExtendFreeze(ctx context.Context, video, out string, start, sourceSpan, targetSpan time.Duration) error
	RetimeClip(ctx context.Context, video, out string, start, sourceSpan time.Duration, factor float64) error
	FitAudio(ctx context.Context, in, out string, target time.Duration) error
	OverlayAudio(ctx context.Context, videoClip, audioClip, out string) error
	Concatenate(ctx context.Context, clips []string, out string) error
	ExtractAudioTrack(ctx context.Context, video, out string) error
}

// Materializer renders an assembled timeline to disk.
type Materializer struct {
	backend Backend
	workDir string
	logger  *slog.Logger
}

// NewMaterializer builds a Materializer writing intermediate clips under
// workDir.
func NewMaterializer(backend Backend, workDir string, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Materializer{backend: backend, workDir: workDir, logger: logger}
}

// Materialize renders each slice of the timeline against the source video,
// muxes its fitted audio, and concatenates the results into outVideo. When
// outAudio is non-empty the finished audio track is also exported on its
// own.
func (m *Materializer) Materialize(ctx context.Context, sourceVideo string, tl Timeline, outVideo, outAudio string) error {
	if len(tl.Entries) == 0 {
		return ErrEmptyInput
	}

	clips := make([]string, 0, len(tl.Entries))
	for _, entry := range tl.Entries {
		clip, err := m.renderSlice(ctx, sourceVideo, entry.Slice)
		if err != nil {
			return err
		}
		clips = append(clips, clip)
	}

	m.logger.Info("concatenating timeline",
		logging.Int("slices", len(clips)),
		logging.Duration("total", tl.Total))
	if err := m.backend.Concatenate(ctx, clips, outVideo); err != nil {
		return err
	}
	if outAudio != "" {
		if err := m.backend.ExtractAudioTrack(ctx, outVideo, outAudio); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) renderSlice(ctx context.Context, sourceVideo string, slice reconcile.Slice) (string, error) {
	videoClip := m.clipPath(slice.Index, "video.mp4")
	audioClip := m.clipPath(slice.Index, "audio.m4a")
	combined := m.clipPath(slice.Index, "slice.mp4")

	m.logger.Debug("rendering slice",
		logging.Int("index", slice.Index),
		logging.String("adjustment", string(slice.Adjustment)),
		logging.Duration("span", slice.VideoSpan))

	var err error
	switch slice.Adjustment {
	case reconcile.AdjustmentNone:
		err = m.backend.CutClip(ctx, sourceVideo, videoClip, slice.SourceStart, slice.VideoSpan)
	case reconcile.AdjustmentTrim:
		err = m.backend.CutClip(ctx, sourceVideo, videoClip, slice.SourceStart, slice.VideoSpan)
	case reconcile.AdjustmentExtendFreeze:
		err = m.backend.ExtendFreeze(ctx, sourceVideo, videoClip, slice.SourceStart, slice.SourceSpan(), slice.VideoSpan)
	case reconcile.AdjustmentRetime:
		err = m.backend.RetimeClip(ctx, sourceVideo, videoClip, slice.SourceStart, slice.SourceSpan(), slice.Factor)
	default:
		return "", fmt.Errorf("%w: slice %d has unknown adjustment %q", ErrUnsynchronized, slice.Index, slice.Adjustment)
	}
	if err != nil {
		return "", err
	}

	if err := m.backend.FitAudio(ctx, slice.AudioPath, audioClip, slice.AudioSpan); err != nil {
		return "", err
	}
	if err := m.backend.OverlayAudio(ctx, videoClip, audioClip, combined); err != nil {
		return "", err
	}
	return combined, nil
}

func (m *Materializer) clipPath(index int, suffix string) string {
	return filepath.Join(m.workDir, "clips", fmt.Sprintf("%06d_%s", index, suffix))
}
