package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateVoice(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.ToleranceMs < 0 {
		return errors.New("reconcile.tolerance_ms must not be negative")
	}
	if c.Reconcile.MinVisibleMs <= 0 {
		return errors.New("reconcile.min_visible_ms must be positive")
	}
	if c.Reconcile.RetimeMinFactor <= 0 {
		return errors.New("reconcile.retime_min_factor must be positive")
	}
	if c.Reconcile.RetimeMaxFactor < c.Reconcile.RetimeMinFactor {
		return errors.New("reconcile.retime_max_factor must not be below reconcile.retime_min_factor")
	}
	if c.Reconcile.RetimeMinFactor > 1 {
		return errors.New("reconcile.retime_min_factor must not exceed 1.0")
	}
	if c.Reconcile.RetimeMaxFactor < 1 {
		return errors.New("reconcile.retime_max_factor must not be below 1.0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.synthesis_concurrency":    c.Workflow.SynthesisConcurrency,
		"workflow.max_attempts":             c.Workflow.MaxAttempts,
		"workflow.per_call_timeout_seconds": c.Workflow.PerCallTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryBackoffSeconds < 0 {
		return errors.New("workflow.retry_backoff_seconds must not be negative")
	}
	if c.Workflow.RetryBackoffMaxSeconds < c.Workflow.RetryBackoffSeconds {
		return errors.New("workflow.retry_backoff_max_seconds must not be below workflow.retry_backoff_seconds")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.VideoCodec == "" {
		return errors.New("media.video_codec must be set")
	}
	if c.Media.AudioCodec == "" {
		return errors.New("media.audio_codec must be set")
	}
	if c.Media.FrameRate <= 0 {
		return errors.New("media.frame_rate must be positive")
	}
	if c.Media.SpeechRate <= 0 {
		return errors.New("media.speech_rate_chars_per_second must be positive")
	}
	return nil
}

func (c *Config) validateVoice() error {
	if c.Voice.Stability < 0 || c.Voice.Stability > 1 {
		return errors.New("voice.stability must be between 0 and 1")
	}
	if c.Voice.SimilarityBoost < 0 || c.Voice.SimilarityBoost > 1 {
		return errors.New("voice.similarity_boost must be between 0 and 1")
	}
	if c.Voice.Style < 0 || c.Voice.Style > 1 {
		return errors.New("voice.style must be between 0 and 1")
	}
	if c.Voice.SampleMaxSeconds < c.Voice.SampleMinSeconds {
		return errors.New("voice.sample_max_seconds must not be below voice.sample_min_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
