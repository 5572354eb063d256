package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Translation contains configuration for the translation service.
type Translation struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Voice contains configuration for voice cloning and speech synthesis.
type Voice struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	ModelID      string `toml:"model_id"`
	OutputFormat string `toml:"output_format"`
	// VoiceID, when set, is an externally owned voice reused for every run.
	// Externally supplied voices are never deleted at end of run.
	VoiceID          string  `toml:"voice_id"`
	Stability        float64 `toml:"stability"`
	SimilarityBoost  float64 `toml:"similarity_boost"`
	Style            float64 `toml:"style"`
	SpeakerBoost     bool    `toml:"speaker_boost"`
	SampleMinSeconds int     `toml:"sample_min_seconds"`
	SampleMaxSeconds int     `toml:"sample_max_seconds"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
}

// Reconcile contains the duration reconciliation policy thresholds.
type Reconcile struct {
	// ToleranceMs is the audio/video delta below which no adjustment is made.
	ToleranceMs int `toml:"tolerance_ms"`
	// MinVisibleMs is the floor below which a video slice is never trimmed.
	MinVisibleMs int `toml:"min_visible_ms"`
	// RetimeMinFactor and RetimeMaxFactor clamp the playback speed multiplier.
	RetimeMinFactor float64 `toml:"retime_min_factor"`
	RetimeMaxFactor float64 `toml:"retime_max_factor"`
}

// Workflow contains configuration for pipeline scheduling and retries.
type Workflow struct {
	SynthesisConcurrency   int `toml:"synthesis_concurrency"`
	MaxAttempts            int `toml:"max_attempts"`
	RetryBackoffSeconds    int `toml:"retry_backoff_seconds"`
	RetryBackoffMaxSeconds int `toml:"retry_backoff_max_seconds"`
	PerCallTimeoutSeconds  int `toml:"per_call_timeout_seconds"`
}

// Media contains configuration for the ffmpeg media backend.
type Media struct {
	VideoCodec string  `toml:"video_codec"`
	AudioCodec string  `toml:"audio_codec"`
	FrameRate  int     `toml:"frame_rate"`
	SpeechRate float64 `toml:"speech_rate_chars_per_second"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for loom.
//
// Configuration sections by subsystem:
//   - Paths: work, output, and log directories
//   - Translation: OpenAI-compatible chat completion settings
//   - Voice: voice cloning and speech synthesis settings
//   - Reconcile: duration reconciliation thresholds
//   - Workflow: concurrency, retry, and timeout policy
//   - Media: ffmpeg output codecs and plan estimation
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Translation Translation `toml:"translation"`
	Voice       Voice       `toml:"voice"`
	Reconcile   Reconcile   `toml:"reconcile"`
	Workflow    Workflow    `toml:"workflow"`
	Media       Media       `toml:"media"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/loom/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("loom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for duration probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
