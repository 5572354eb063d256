package config

const (
	defaultWorkDir   = "~/.local/share/loom/work"
	defaultOutputDir = "~/loom-output"
	defaultLogDir    = "~/.local/share/loom/logs"

	defaultTranslationBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultTranslationModel          = "gpt-4o-mini"
	defaultTranslationSourceLanguage = "en"
	defaultTranslationTargetLanguage = "de"
	defaultTranslationTimeoutSeconds = 30

	defaultVoiceBaseURL          = "https://api.elevenlabs.io/v1"
	defaultVoiceModelID          = "eleven_multilingual_v2"
	defaultVoiceOutputFormat     = "mp3_44100_128"
	defaultVoiceStability        = 0.45
	defaultVoiceSimilarityBoost  = 0.7
	defaultVoiceStyle            = 0.2
	defaultVoiceSampleMinSeconds = 3
	defaultVoiceSampleMaxSeconds = 20
	defaultVoiceTimeoutSeconds   = 60

	defaultToleranceMs     = 150
	defaultMinVisibleMs    = 500
	defaultRetimeMinFactor = 0.85
	defaultRetimeMaxFactor = 1.15

	defaultSynthesisConcurrency   = 4
	defaultMaxAttempts            = 3
	defaultRetryBackoffSeconds    = 1
	defaultRetryBackoffMaxSeconds = 10
	defaultPerCallTimeoutSeconds  = 30

	defaultVideoCodec = "libx264"
	defaultAudioCodec = "aac"
	defaultFrameRate  = 24
	defaultSpeechRate = 14.0

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Translation: Translation{
			BaseURL:        defaultTranslationBaseURL,
			Model:          defaultTranslationModel,
			SourceLanguage: defaultTranslationSourceLanguage,
			TargetLanguage: defaultTranslationTargetLanguage,
			TimeoutSeconds: defaultTranslationTimeoutSeconds,
		},
		Voice: Voice{
			BaseURL:          defaultVoiceBaseURL,
			ModelID:          defaultVoiceModelID,
			OutputFormat:     defaultVoiceOutputFormat,
			Stability:        defaultVoiceStability,
			SimilarityBoost:  defaultVoiceSimilarityBoost,
			Style:            defaultVoiceStyle,
			SpeakerBoost:     true,
			SampleMinSeconds: defaultVoiceSampleMinSeconds,
			SampleMaxSeconds: defaultVoiceSampleMaxSeconds,
			TimeoutSeconds:   defaultVoiceTimeoutSeconds,
		},
		Reconcile: Reconcile{
			ToleranceMs:     defaultToleranceMs,
			MinVisibleMs:    defaultMinVisibleMs,
			RetimeMinFactor: defaultRetimeMinFactor,
			RetimeMaxFactor: defaultRetimeMaxFactor,
		},
		Workflow: Workflow{
			SynthesisConcurrency:   defaultSynthesisConcurrency,
			MaxAttempts:            defaultMaxAttempts,
			RetryBackoffSeconds:    defaultRetryBackoffSeconds,
			RetryBackoffMaxSeconds: defaultRetryBackoffMaxSeconds,
			PerCallTimeoutSeconds:  defaultPerCallTimeoutSeconds,
		},
		Media: Media{
			VideoCodec: defaultVideoCodec,
			AudioCodec: defaultAudioCodec,
			FrameRate:  defaultFrameRate,
			SpeechRate: defaultSpeechRate,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
