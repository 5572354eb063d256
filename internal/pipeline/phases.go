package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/internal/logging"
	"loom/internal/segment"
	"loom/internal/services"
)

// segmentWork performs one network-bound operation for a single segment.
type segmentWork func(ctx context.Context, seg segment.Segment) error

// runPhase fans segments in the eligible status out to a bounded worker
// pool, retrying each segment with backoff until it succeeds or exhausts its
// attempts. Exhausted or fatally failed segments are excluded, never
// propagated as phase errors; only store corruption or cancellation aborts
// the phase.
func (p *Pipeline) runPhase(ctx context.Context, runID, phase string, eligible segment.Status, work segmentWork) error {
	snapshot, err := p.store.Snapshot(ctx, runID)
	if err != nil {
		return err
	}

	concurrency := p.cfg.Workflow.SynthesisConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	errs := make(chan error, len(snapshot))
	for _, seg := range snapshot {
		if seg.Status != eligible {
			continue
		}
		wg.Add(1)
		go func(seg segment.Segment) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if err := p.workSegment(ctx, runID, phase, seg, work); err != nil {
				errs <- err
			}
		}(seg)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// workSegment drives one segment through bounded retries.
func (p *Pipeline) workSegment(ctx context.Context, runID, phase string, seg segment.Segment, work segmentWork) error {
	ctx = services.WithSegment(services.WithStage(ctx, phase), seg.Index)
	maxAttempts := p.cfg.Workflow.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// Each phase gets its own attempt budget; the store's attempt counter
	// keeps accumulating across phases for reporting.
	attempts := 0
	for {
		attempt := attempts + 1
		attemptCtx := services.WithRequestID(ctx, uuid.NewString())
		log := logging.WithContext(attemptCtx, p.logger)
		callCtx, cancel := context.WithTimeout(attemptCtx, p.perCallTimeout())
		err := work(callCtx, seg)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if markErr := p.store.MarkFailed(ctx, runID, seg.Index, err.Error()); markErr != nil {
			return fmt.Errorf("record failure for segment %d: %w", seg.Index, markErr)
		}
		attempts = attempt

		if services.IsFatal(err) || attempts >= maxAttempts {
			log.Warn("excluding segment", logging.Error(err), logging.Int("attempts", attempts))
			if exclErr := p.store.MarkExcluded(ctx, runID, seg.Index, err.Error()); exclErr != nil {
				return fmt.Errorf("exclude segment %d: %w", seg.Index, exclErr)
			}
			return nil
		}

		delay := p.backoffDelay(attempts)
		log.Warn("retrying segment", logging.Error(err), logging.Int("attempt", attempts), logging.Duration("backoff", delay))
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
		if err := p.store.ResetFailed(ctx, runID, seg.Index); err != nil {
			return fmt.Errorf("reset segment %d: %w", seg.Index, err)
		}
		refreshed, err := p.store.Get(ctx, runID, seg.Index)
		if err != nil {
			return err
		}
		seg = *refreshed
	}
}

// translateAll moves every parsed segment to translated.
func (p *Pipeline) translateAll(ctx context.Context, runID string) error {
	return p.runPhase(ctx, runID, "translate", segment.StatusParsed, func(ctx context.Context, seg segment.Segment) error {
		translated, err := p.translator.Translate(ctx, seg.SourceText)
		if err != nil {
			return err
		}
		return p.store.SetTranslation(ctx, runID, seg.Index, translated)
	})
}

// minSilentClip keeps generated silence long enough for the encoder to
// produce a valid file.
const minSilentClip = 200 * time.Millisecond

// synthesizeAll moves every translated segment to synthesized. Segments with
// no text get a silent clip matching their original span.
func (p *Pipeline) synthesizeAll(ctx context.Context, runID, voiceID string) error {
	return p.runPhase(ctx, runID, "synthesize", segment.StatusTranslated, func(ctx context.Context, seg segment.Segment) error {
		audioPath := p.audioPath(runID, seg.Index)
		if seg.TargetText == "" {
			span := seg.Span()
			if span < minSilentClip {
				span = minSilentClip
			}
			if err := p.backend.SilentAudio(ctx, audioPath, span); err != nil {
				return err
			}
			return p.store.SetAudio(ctx, runID, seg.Index, audioPath, span)
		}

		if err := p.synthesizer.Synthesize(ctx, voiceID, seg.TargetText, audioPath); err != nil {
			return err
		}
		duration, err := p.backend.ProbeDuration(ctx, audioPath)
		if err != nil {
			return err
		}
		if duration <= 0 {
			return services.Wrap(services.ErrTransient, "synthesize", fmt.Sprintf("segment %d", seg.Index), "synthesized audio is empty", nil)
		}
		return p.store.SetAudio(ctx, runID, seg.Index, audioPath, duration)
	})
}

func (p *Pipeline) audioPath(runID string, index int) string {
	return filepath.Join(p.cfg.Paths.WorkDir, runID, "audio", fmt.Sprintf("%06d.mp3", index))
}
