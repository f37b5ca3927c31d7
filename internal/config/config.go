package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"voice-dialogue-service/internal/service/stt"
)

// Configuration holds all service configuration.
type Configuration struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	STT           STTConfig
	Dialogue      DialogueConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds general service settings.
type ServiceConfig struct {
	Principal       string
	GRPCPort        string
	HTTPPort        string
	ActivateOnStart bool
	ConfigFile      string // dotenv file backing the key-value store
}

// CaptureConfig holds capture device settings.
type CaptureConfig struct {
	Backend       string // malgo, wav, tone
	DeviceID      string // empty selects the system default
	BufferSeconds int
	SampleRate    int
	WAVPath       string
}

// STTConfig holds speech-to-text settings.
type STTConfig struct {
	Provider              string // mock, google
	LanguageCode          string
	AudioEncoding         string
	SpeechEndTimeout      time.Duration
	DetectSilence         bool
	EnableWordConfidence  bool
	EnableTimestamps      bool
	SilenceThreshold      float64
	MaxAlternatives       int
	ContinuousRecognition bool
	InterimResults        bool
}

// DialogueConfig holds dialogue service settings.
type DialogueConfig struct {
	Provider    string // mock, watson, gemini
	URL         string
	APIKey      string
	Version     string
	Model       string
	MaxInFlight int
	Timeout     time.Duration
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTranscripts string
	TopicTurns       string
	Principal        string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Supported backends.
var (
	captureBackends  = []string{"malgo", "wav", "tone"}
	sttProviders     = []string{"mock", "google"}
	dialogueBackends = []string{"mock", "watson", "gemini"}
)

// Load reads configuration from the environment. Invalid values fall back to defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-dialogue")

	return &Configuration{
		Service: ServiceConfig{
			Principal:       principal,
			GRPCPort:        envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:        envOrDefault("HTTP_PORT", "8080"),
			ActivateOnStart: envOrDefaultBool("ACTIVATE_ON_START", true),
			ConfigFile:      envOrDefault("CONFIG_FILE", ".env"),
		},
		Capture: CaptureConfig{
			Backend:       envOrDefault("CAPTURE_BACKEND", "malgo"),
			DeviceID:      os.Getenv("CAPTURE_DEVICE"),
			BufferSeconds: envOrDefaultInt("CAPTURE_BUFFER_SECONDS", 2),
			SampleRate:    envOrDefaultInt("CAPTURE_SAMPLE_RATE", 22050),
			WAVPath:       os.Getenv("CAPTURE_WAV_PATH"),
		},
		STT: STTConfig{
			Provider:              envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:          envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding:         envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			SpeechEndTimeout:      envOrDefaultDuration("STT_SPEECH_END_TIMEOUT", time.Second),
			DetectSilence:         envOrDefaultBool("STT_DETECT_SILENCE", true),
			EnableWordConfidence:  envOrDefaultBool("STT_WORD_CONFIDENCE", false),
			EnableTimestamps:      envOrDefaultBool("STT_TIMESTAMPS", false),
			SilenceThreshold:      envOrDefaultFloat("STT_SILENCE_THRESHOLD", 0.03),
			MaxAlternatives:       envOrDefaultInt("STT_MAX_ALTERNATIVES", 1),
			ContinuousRecognition: envOrDefaultBool("STT_CONTINUOUS", true),
			InterimResults:        envOrDefaultBool("STT_INTERIM_RESULTS", true),
		},
		Dialogue: DialogueConfig{
			Provider:    envOrDefault("DIALOGUE_PROVIDER", "mock"),
			URL:         os.Getenv("DIALOGUE_URL"),
			APIKey:      os.Getenv("DIALOGUE_API_KEY"),
			Version:     envOrDefault("DIALOGUE_VERSION", "2018-09-20"),
			Model:       envOrDefault("DIALOGUE_MODEL", "gemini-2.0-flash"),
			MaxInFlight: envOrDefaultInt("DIALOGUE_MAX_IN_FLIGHT", 4),
			Timeout:     envOrDefaultDuration("DIALOGUE_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "dialogue.transcript.final"),
			TopicTurns:       envOrDefault("KAFKA_TOPIC_TURNS", "dialogue.turn.completed"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Configuration) Validate() error {
	var result *multierror.Error
	if c.Capture.BufferSeconds <= 0 {
		result = multierror.Append(result, fmt.Errorf("capture buffer seconds must be positive, got %d", c.Capture.BufferSeconds))
	}
	if c.Capture.SampleRate <= 0 {
		result = multierror.Append(result, fmt.Errorf("capture sample rate must be positive, got %d", c.Capture.SampleRate))
	}
	if n := c.Capture.BufferSeconds * c.Capture.SampleRate; n > 0 && n%2 != 0 {
		result = multierror.Append(result, fmt.Errorf("capture buffer of %d frames must be even (%ds at %dHz)", n, c.Capture.BufferSeconds, c.Capture.SampleRate))
	}
	if !oneOf(c.Capture.Backend, captureBackends) {
		result = multierror.Append(result, fmt.Errorf("unknown capture backend %q", c.Capture.Backend))
	}
	if c.Capture.Backend == "wav" && c.Capture.WAVPath == "" && c.Capture.DeviceID == "" {
		result = multierror.Append(result, errors.New("wav capture backend needs CAPTURE_WAV_PATH"))
	}
	if !oneOf(c.STT.Provider, sttProviders) {
		result = multierror.Append(result, fmt.Errorf("unknown STT provider %q", c.STT.Provider))
	}
	if c.STT.SilenceThreshold < 0 || c.STT.SilenceThreshold > 1 {
		result = multierror.Append(result, fmt.Errorf("silence threshold must be within [0,1], got %v", c.STT.SilenceThreshold))
	}
	if c.STT.MaxAlternatives < 1 {
		result = multierror.Append(result, fmt.Errorf("max alternatives must be at least 1, got %d", c.STT.MaxAlternatives))
	}
	if !oneOf(c.Dialogue.Provider, dialogueBackends) {
		result = multierror.Append(result, fmt.Errorf("unknown dialogue provider %q", c.Dialogue.Provider))
	}
	if c.Dialogue.Provider == "watson" && c.Dialogue.URL == "" {
		result = multierror.Append(result, errors.New("watson dialogue provider needs DIALOGUE_URL"))
	}
	if c.Dialogue.MaxInFlight < 1 {
		result = multierror.Append(result, fmt.Errorf("dialogue max in flight must be at least 1, got %d", c.Dialogue.MaxInFlight))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		result = multierror.Append(result, errors.New("kafka enabled without KAFKA_BROKERS"))
	}
	return result.ErrorOrNil()
}

// RecognitionOptions returns the recognizer options set on activation.
func (c STTConfig) RecognitionOptions() stt.Options {
	return stt.Options{
		DetectSilence:               c.DetectSilence,
		EnableWordConfidence:        c.EnableWordConfidence,
		EnableTimestamps:            c.EnableTimestamps,
		SilenceThreshold:            c.SilenceThreshold,
		MaxAlternatives:             c.MaxAlternatives,
		EnableContinuousRecognition: c.ContinuousRecognition,
		EnableInterimResults:        c.InterimResults,
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
