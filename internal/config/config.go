// Package config loads service configuration from the environment with
// defaults matching the original element's properties. Invalid values fall
// back to defaults rather than failing startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/dispatch"
	"github.com/Elleo/gst-deepspeech/internal/service/gate"
)

// Service holds process-level settings.
type Service struct {
	Principal  string
	ListenAddr string
}

// Engine holds recognition engine settings.
type Engine struct {
	Provider  string // mock, whisper, google
	Language  string
	Artifacts asr.Config
}

// Kafka holds event bus settings.
type Kafka struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// Observability holds logging and metrics settings.
type Observability struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Config is the full service configuration.
type Config struct {
	Service       Service
	Engine        Engine
	Silence       gate.Config
	Dispatch      dispatch.Config
	Kafka         Kafka
	Observability Observability
}

// Load reads configuration from the environment.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-gst-deepspeech")
	return &Config{
		Service: Service{
			Principal:  principal,
			ListenAddr: ":" + envOrDefault("LISTEN_PORT", "8080"),
		},
		Engine: Engine{
			Provider: envOrDefault("ENGINE_PROVIDER", "mock"),
			Language: envOrDefault("ENGINE_LANGUAGE", "en"),
			Artifacts: asr.Config{
				SpeechModelPath:   envOrDefault("SPEECH_MODEL_PATH", asr.DefaultSpeechModelPath),
				AlphabetPath:      envOrDefault("ALPHABET_PATH", asr.DefaultAlphabetPath),
				LanguageModelPath: envOrDefault("LANGUAGE_MODEL_PATH", asr.DefaultLanguageModelPath),
				TriePath:          envOrDefault("TRIE_PATH", asr.DefaultTriePath),
			},
		},
		Silence: gate.Config{
			SilenceThreshold: envOrDefaultFloat("SILENCE_THRESHOLD", gate.DefaultSilenceThreshold),
			SilenceRunLimit:  uint32(envOrDefaultInt("SILENCE_RUN_LIMIT", gate.DefaultSilenceRunLimit)),
		},
		Dispatch: dispatch.Config{
			Workers:    envOrDefaultInt("DISPATCH_WORKERS", dispatch.DefaultWorkers),
			QueueDepth: envOrDefaultInt("DISPATCH_QUEUE_DEPTH", dispatch.DefaultQueueDepth),
		},
		Kafka: Kafka{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   splitNonEmpty(envOrDefault("KAFKA_BROKERS", "")),
			Topic:     envOrDefault("KAFKA_TOPIC", "speech.recognition.events"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: Observability{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: ":" + envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

// Validate checks the ranges the silence gate and engine enforce, so bad
// settings surface at startup rather than on the first buffer.
func (c *Config) Validate() error {
	if err := c.Silence.Validate(); err != nil {
		return err
	}
	if c.Dispatch.Workers < 0 || c.Dispatch.QueueDepth < 0 {
		return fmt.Errorf("dispatch workers and queue depth must be non-negative")
	}
	switch c.Engine.Provider {
	case "mock", "whisper", "google":
	default:
		return fmt.Errorf("unknown engine provider %q", c.Engine.Provider)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
