package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/logging"
	"loom/internal/segment"
	"loom/internal/services"
	"loom/internal/srt"
	"loom/internal/timeline"
)

// Run executes a full dubbing run for one video and its caption file and
// returns the run manifest. The manifest is also persisted on the run record
// and written next to the output video.
func (p *Pipeline) Run(ctx context.Context, videoPath, captionsPath string) (*Report, error) {
	cues, err := srt.ParseFile(captionsPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "parse", captionsPath, "parse captions", err)
	}
	if len(cues) == 0 {
		return nil, services.Wrap(services.ErrValidation, "parse", captionsPath, "caption file has no cues", nil)
	}

	run, err := p.store.NewRun(ctx, videoPath, captionsPath, p.cfg.Translation.TargetLanguage)
	if err != nil {
		return nil, err
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("run started",
		logging.String("video", videoPath),
		logging.Int("segments", len(cues)))

	if err := p.store.AppendAll(ctx, run.ID, cues); err != nil {
		p.failRun(run.ID, err)
		return nil, services.Wrap(services.ErrValidation, "parse", captionsPath, "store cues", err)
	}

	videoDuration, err := p.backend.ProbeDuration(ctx, videoPath)
	if err != nil {
		p.failRun(run.ID, err)
		return nil, err
	}

	voiceID, cleanupVoice, err := p.ensureVoice(ctx, run, videoDuration)
	if err != nil {
		p.failRun(run.ID, err)
		return nil, err
	}
	if cleanupVoice {
		defer p.releaseVoice(voiceID)
	}

	if err := p.translateAll(ctx, run.ID); err != nil {
		p.failRun(run.ID, err)
		return nil, err
	}
	if err := p.synthesizeAll(ctx, run.ID, voiceID); err != nil {
		p.failRun(run.ID, err)
		return nil, err
	}

	report, err := p.assemble(ctx, run.ID, videoPath, len(cues))
	if err != nil {
		p.failRun(run.ID, err)
		return nil, err
	}
	report.SourceVideo = videoPath
	report.CaptionsPath = captionsPath
	report.TargetLanguage = p.cfg.Translation.TargetLanguage
	report.VoiceID = voiceID

	manifest, err := report.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := p.store.FinishRun(ctx, run.ID, string(report.Status), manifest); err != nil {
		return nil, err
	}
	manifestPath := strings.TrimSuffix(report.OutputVideo, filepath.Ext(report.OutputVideo)) + ".manifest.json"
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		logger.Warn("failed to write manifest file", logging.Error(err))
	}

	logger.Info("run finished",
		logging.String("status", string(report.Status)),
		logging.Int("assembled", report.AssembledCount),
		logging.Int("excluded", len(report.ExcludedIndices)))
	return report, nil
}

// assemble performs the global join: every surviving segment is reconciled,
// the timeline is assembled and materialized, and segments are advanced to
// their terminal status.
func (p *Pipeline) assemble(ctx context.Context, runID, videoPath string, total int) (*Report, error) {
	snapshot, err := p.store.Snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, seg := range snapshot {
		if seg.Status != segment.StatusSynthesized && seg.Status != segment.StatusExcluded {
			return nil, services.Wrap(services.ErrInvariant, "assemble", fmt.Sprintf("segment %d", seg.Index),
				fmt.Sprintf("segment still %s at assembly join", seg.Status), nil)
		}
	}

	slices, err := p.reconciler.ReconcileAll(snapshot)
	if err != nil {
		return nil, err
	}
	for _, slice := range slices {
		if err := p.store.Advance(ctx, runID, slice.Index, segment.StatusReconciled); err != nil {
			return nil, err
		}
	}

	excluded, err := p.store.ExcludedIndices(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(slices) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assemble", runID, "every segment was excluded", nil)
	}

	tl, err := timeline.Assemble(slices)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outVideo := filepath.Join(p.cfg.Paths.OutputDir, base+".dubbed.mp4")
	outAudio := filepath.Join(p.cfg.Paths.OutputDir, base+".dubbed.m4a")

	materializer := timeline.NewMaterializer(p.backend, filepath.Join(p.cfg.Paths.WorkDir, runID), p.logger)
	if err := materializer.Materialize(ctx, videoPath, tl, outVideo, outAudio); err != nil {
		return nil, err
	}
	for _, slice := range slices {
		if err := p.store.Advance(ctx, runID, slice.Index, segment.StatusAssembled); err != nil {
			return nil, err
		}
	}

	report := buildReport(runID, tl, slices, total, excluded)
	report.OutputVideo = outVideo
	report.OutputAudio = outAudio
	return report, nil
}

// failRun records a terminal failure on the run; best effort, the original
// error is what callers see.
func (p *Pipeline) failRun(runID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.perCallTimeout())
	defer cancel()
	if err := p.store.FinishRun(ctx, runID, string(RunFailed), ""); err != nil {
		p.logger.Warn("failed to record run failure",
			logging.String("run", runID),
			logging.Error(err),
			logging.Any("cause", cause))
	}
}
