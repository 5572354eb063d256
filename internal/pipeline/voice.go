package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"loom/internal/logging"
	"loom/internal/segment"
)

// ensureVoice returns the voice used for the run. A configured voice id is
// used as-is; otherwise a sample is cut from the source video and cloned,
// and the clone is deleted when the run finishes.
func (p *Pipeline) ensureVoice(ctx context.Context, run *segment.Run, videoDuration time.Duration) (voiceID string, cleanup bool, err error) {
	if configured := p.cfg.Voice.VoiceID; configured != "" {
		p.logger.Info("using configured voice", logging.String("voice", configured))
		if err := p.store.SetRunVoice(ctx, run.ID, configured); err != nil {
			return "", false, err
		}
		return configured, false, nil
	}

	sampleSpan := p.voiceSampleSpan(videoDuration)
	samplePath := filepath.Join(p.cfg.Paths.WorkDir, run.ID, "voice_sample.mp3")
	if err := p.backend.ExtractVoiceSample(ctx, run.SourceVideo, samplePath, sampleSpan); err != nil {
		return "", false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.perCallTimeout())
	defer cancel()
	voiceID, err = p.synthesizer.CloneVoice(callCtx, "loom-"+run.ID, samplePath)
	if err != nil {
		return "", false, err
	}
	p.logger.Info("cloned voice from source sample",
		logging.String("voice", voiceID),
		logging.Duration("sample", sampleSpan))
	if err := p.store.SetRunVoice(ctx, run.ID, voiceID); err != nil {
		return "", false, err
	}
	return voiceID, true, nil
}

// voiceSampleSpan bounds the cloning sample between the configured minimum
// and maximum, never exceeding the video itself.
func (p *Pipeline) voiceSampleSpan(videoDuration time.Duration) time.Duration {
	min := time.Duration(p.cfg.Voice.SampleMinSeconds) * time.Second
	max := time.Duration(p.cfg.Voice.SampleMaxSeconds) * time.Second
	span := videoDuration
	if span < min {
		span = min
	}
	if max > 0 && span > max {
		span = max
	}
	return span
}

// releaseVoice deletes a cloned voice after the run. Failures are logged,
// not propagated; the dub already exists.
func (p *Pipeline) releaseVoice(voiceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.perCallTimeout())
	defer cancel()
	if err := p.synthesizer.DeleteVoice(ctx, voiceID); err != nil {
		p.logger.Warn("failed to delete cloned voice", logging.String("voice", voiceID), logging.Error(err))
	}
}
