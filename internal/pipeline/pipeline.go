package pipeline

import (
	"context"
	"log/slog"
	"time"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/reconcile"
	"loom/internal/segment"
	"loom/internal/services/eleven"
	"loom/internal/services/translate"
	"loom/internal/timeline"
)

// MediaBackend is the media tooling surface the pipeline needs.
type MediaBackend interface {
	timeline.Backend
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	ExtractVoiceSample(ctx context.Context, video, out string, duration time.Duration) error
	SilentAudio(ctx context.Context, out string, span time.Duration) error
}

// Pipeline wires the collaborators for a dubbing run.
type Pipeline struct {
	cfg         *config.Config
	store       *segment.Store
	translator  translate.Translator
	synthesizer eleven.Synthesizer
	backend     MediaBackend
	reconciler  *reconcile.Reconciler
	logger      *slog.Logger
}

// New assembles a Pipeline from its collaborators.
func New(cfg *config.Config, store *segment.Store, translator translate.Translator, synthesizer eleven.Synthesizer, backend MediaBackend, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:         cfg,
		store:       store,
		translator:  translator,
		synthesizer: synthesizer,
		backend:     backend,
		reconciler:  reconcile.New(cfg.Reconcile),
		logger:      logger,
	}
}

func (p *Pipeline) perCallTimeout() time.Duration {
	timeout := time.Duration(p.cfg.Workflow.PerCallTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return timeout
}

// backoffDelay returns the delay before the given retry attempt, doubling
// from the configured base up to the configured ceiling.
func (p *Pipeline) backoffDelay(attempt int) time.Duration {
	base := time.Duration(p.cfg.Workflow.RetryBackoffSeconds) * time.Second
	if base <= 0 {
		return 0
	}
	max := time.Duration(p.cfg.Workflow.RetryBackoffMaxSeconds) * time.Second
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
