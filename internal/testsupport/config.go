package testsupport

import (
	"path/filepath"
	"testing"

	"loom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Translation.APIKey = "test-translation-key"
	cfg.Voice.APIKey = "test-voice-key"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithReconcile overrides the reconciliation thresholds on the test config.
func WithReconcile(toleranceMs, minVisibleMs int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Reconcile.ToleranceMs = toleranceMs
		cfg.Reconcile.MinVisibleMs = minVisibleMs
	}
}

// WithWorkflow overrides retry and concurrency knobs on the test config.
func WithWorkflow(concurrency, maxAttempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.SynthesisConcurrency = concurrency
		cfg.Workflow.MaxAttempts = maxAttempts
		cfg.Workflow.RetryBackoffSeconds = 0
		cfg.Workflow.RetryBackoffMaxSeconds = 0
	}
}
