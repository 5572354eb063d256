package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/services"
)

// Backend executes ffmpeg and ffprobe with the configured codecs.
type Backend struct {
	ffmpeg     string
	ffprobe    string
	videoCodec string
	audioCodec string
	frameRate  int
}

// NewBackend builds a Backend from the media section of the configuration.
func NewBackend(cfg *config.Config) *Backend {
	return &Backend{
		ffmpeg:     cfg.FFmpegBinary(),
		ffprobe:    cfg.FFprobeBinary(),
		videoCodec: cfg.Media.VideoCodec,
		audioCodec: cfg.Media.AudioCodec,
		frameRate:  cfg.Media.FrameRate,
	}
}

func (b *Backend) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, b.ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		return services.Wrap(services.ErrExternalTool, "media", op, detail, err)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// ProbeDuration returns the container duration of a media file.
func (b *Backend) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, b.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"--", path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "probe duration", strings.TrimSpace(string(output)), err)
	}
	text := strings.TrimSpace(string(output))
	seconds, err := parseSeconds(text)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "probe duration", fmt.Sprintf("unparseable duration %q", text), err)
	}
	return seconds, nil
}

func parseSeconds(text string) (time.Duration, error) {
	var seconds float64
	if _, err := fmt.Sscanf(text, "%f", &seconds); err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %f", seconds)
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond), nil
}

// ExtractVoiceSample pulls a mono audio sample from the start of the source
// video, used for voice cloning.
func (b *Backend) ExtractVoiceSample(ctx context.Context, video, out string, duration time.Duration) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "extract voice sample",
		"-y", "-i", video,
		"-t", formatSeconds(duration),
		"-vn", "-ac", "1", "-ar", "44100",
		out,
	)
}

// CutClip extracts a video-only sub-clip of the source.
func (b *Backend) CutClip(ctx context.Context, video, out string, start, span time.Duration) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "cut clip",
		"-y",
		"-ss", formatSeconds(start),
		"-i", video,
		"-t", formatSeconds(span),
		"-an",
		"-c:v", b.videoCodec,
		"-r", fmt.Sprint(b.frameRate),
		out,
	)
}

// ExtendFreeze extracts a sub-clip and holds its last frame so the output
// lasts the target span. The source read is bounded before -i: tpad only
// clones the last frame once the input stream ends, so an unbounded read
// would play past the cue instead of freezing.
func (b *Backend) ExtendFreeze(ctx context.Context, video, out string, start, sourceSpan, targetSpan time.Duration) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	extra := targetSpan - sourceSpan
	if extra < 0 {
		extra = 0
	}
	filter := fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", formatSeconds(extra))
	return b.run(ctx, "extend freeze",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(sourceSpan),
		"-i", video,
		"-an",
		"-vf", filter,
		"-t", formatSeconds(targetSpan),
		"-c:v", b.videoCodec,
		"-r", fmt.Sprint(b.frameRate),
		out,
	)
}

// RetimeClip extracts a sub-clip sped up by the given factor. A factor above
// one shortens the clip.
func (b *Backend) RetimeClip(ctx context.Context, video, out string, start, sourceSpan time.Duration, factor float64) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	if factor <= 0 {
		return services.Wrap(services.ErrInvariant, "media", "retime clip", fmt.Sprintf("factor %v is not positive", factor), nil)
	}
	// Bound the read before -i: setpts rescales timestamps after decode, so
	// an output-side -t would measure the rescaled clock and consume
	// factor times as much source as the cue owns.
	filter := fmt.Sprintf("setpts=PTS/%.4f", factor)
	return b.run(ctx, "retime clip",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(sourceSpan),
		"-i", video,
		"-an",
		"-vf", filter,
		"-c:v", b.videoCodec,
		"-r", fmt.Sprint(b.frameRate),
		out,
	)
}

// FitAudio trims or pads an audio clip with tail silence so it lasts the
// target span exactly.
func (b *Backend) FitAudio(ctx context.Context, in, out string, target time.Duration) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "fit audio",
		"-y", "-i", in,
		"-af", "apad",
		"-t", formatSeconds(target),
		"-ar", "44100", "-ac", "2",
		"-c:a", b.audioCodec,
		out,
	)
}

// SilentAudio generates a silent audio clip of the given span.
func (b *Backend) SilentAudio(ctx context.Context, out string, span time.Duration) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "silent audio",
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", formatSeconds(span),
		"-c:a", b.audioCodec,
		out,
	)
}

// OverlayAudio muxes an audio clip onto a video clip, keeping the video
// stream untouched.
func (b *Backend) OverlayAudio(ctx context.Context, videoClip, audioClip, out string) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "overlay audio",
		"-y",
		"-i", videoClip,
		"-i", audioClip,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", b.audioCodec,
		"-shortest",
		out,
	)
}

// Concatenate joins clips in order using the concat demuxer.
func (b *Backend) Concatenate(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return services.Wrap(services.ErrInvariant, "media", "concatenate", "no clips to join", nil)
	}
	if err := ensureParent(out); err != nil {
		return err
	}
	listPath := out + ".concat.txt"
	var sb strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "media", "concatenate", "write concat list", err)
	}
	defer os.Remove(listPath)
	return b.run(ctx, "concatenate",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", b.videoCodec,
		"-c:a", b.audioCodec,
		"-r", fmt.Sprint(b.frameRate),
		out,
	)
}

// ExtractAudioTrack writes the audio stream of a finished video to its own
// file for the audio-only export.
func (b *Backend) ExtractAudioTrack(ctx context.Context, video, out string) error {
	if err := ensureParent(out); err != nil {
		return err
	}
	return b.run(ctx, "extract audio track",
		"-y", "-i", video,
		"-vn",
		"-c:a", b.audioCodec,
		out,
	)
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "media", "prepare output", "create output directory", err)
	}
	return nil
}
