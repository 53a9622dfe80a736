package config

import (
	"testing"

	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/dispatch"
	"github.com/Elleo/gst-deepspeech/internal/service/gate"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Service.Principal != "svc-gst-deepspeech" {
		t.Errorf("Principal = %q", cfg.Service.Principal)
	}
	if cfg.Service.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Service.ListenAddr)
	}
	if cfg.Engine.Provider != "mock" {
		t.Errorf("Provider = %q", cfg.Engine.Provider)
	}
	if cfg.Engine.Artifacts.SpeechModelPath != asr.DefaultSpeechModelPath {
		t.Errorf("SpeechModelPath = %q", cfg.Engine.Artifacts.SpeechModelPath)
	}
	if cfg.Silence.SilenceThreshold != gate.DefaultSilenceThreshold {
		t.Errorf("SilenceThreshold = %v", cfg.Silence.SilenceThreshold)
	}
	if cfg.Silence.SilenceRunLimit != gate.DefaultSilenceRunLimit {
		t.Errorf("SilenceRunLimit = %v", cfg.Silence.SilenceRunLimit)
	}
	if cfg.Dispatch.Workers != dispatch.DefaultWorkers {
		t.Errorf("Workers = %d", cfg.Dispatch.Workers)
	}
	if cfg.Kafka.Enabled {
		t.Error("Kafka should default to disabled")
	}
	if cfg.Kafka.Topic != "speech.recognition.events" {
		t.Errorf("Topic = %q", cfg.Kafka.Topic)
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.Observability.MetricsAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "svc-custom")
	t.Setenv("LISTEN_PORT", "9000")
	t.Setenv("ENGINE_PROVIDER", "whisper")
	t.Setenv("SPEECH_MODEL_PATH", "/opt/models/ggml-base.en.bin")
	t.Setenv("SILENCE_THRESHOLD", "0.25")
	t.Setenv("SILENCE_RUN_LIMIT", "8")
	t.Setenv("DISPATCH_WORKERS", "4")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg := Load()

	if cfg.Service.Principal != "svc-custom" {
		t.Errorf("Principal = %q", cfg.Service.Principal)
	}
	if cfg.Service.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q", cfg.Service.ListenAddr)
	}
	if cfg.Engine.Provider != "whisper" {
		t.Errorf("Provider = %q", cfg.Engine.Provider)
	}
	if cfg.Engine.Artifacts.SpeechModelPath != "/opt/models/ggml-base.en.bin" {
		t.Errorf("SpeechModelPath = %q", cfg.Engine.Artifacts.SpeechModelPath)
	}
	if cfg.Silence.SilenceThreshold != 0.25 {
		t.Errorf("SilenceThreshold = %v", cfg.Silence.SilenceThreshold)
	}
	if cfg.Silence.SilenceRunLimit != 8 {
		t.Errorf("SilenceRunLimit = %v", cfg.Silence.SilenceRunLimit)
	}
	if cfg.Dispatch.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Dispatch.Workers)
	}
	if !cfg.Kafka.Enabled {
		t.Error("Kafka should be enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SILENCE_THRESHOLD", "not-a-number")
	t.Setenv("SILENCE_RUN_LIMIT", "nope")
	t.Setenv("DISPATCH_WORKERS", "many")
	t.Setenv("KAFKA_ENABLED", "sometimes")

	cfg := Load()

	if cfg.Silence.SilenceThreshold != gate.DefaultSilenceThreshold {
		t.Errorf("SilenceThreshold = %v, want default", cfg.Silence.SilenceThreshold)
	}
	if cfg.Silence.SilenceRunLimit != gate.DefaultSilenceRunLimit {
		t.Errorf("SilenceRunLimit = %v, want default", cfg.Silence.SilenceRunLimit)
	}
	if cfg.Dispatch.Workers != dispatch.DefaultWorkers {
		t.Errorf("Workers = %d, want default", cfg.Dispatch.Workers)
	}
	if cfg.Kafka.Enabled {
		t.Error("unparseable KAFKA_ENABLED should fall back to disabled")
	}
}

func TestLoad_KafkaPrincipalFallsBackToServicePrincipal(t *testing.T) {
	t.Setenv("SERVICE_PRINCIPAL", "svc-shared")

	cfg := Load()
	if cfg.Kafka.Principal != "svc-shared" {
		t.Errorf("Kafka.Principal = %q, want service principal", cfg.Kafka.Principal)
	}

	t.Setenv("KAFKA_PRINCIPAL", "svc-kafka-only")
	cfg = Load()
	if cfg.Kafka.Principal != "svc-kafka-only" {
		t.Errorf("Kafka.Principal = %q, want explicit override", cfg.Kafka.Principal)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold zero", func(c *Config) { c.Silence.SilenceThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.Silence.SilenceThreshold = 1.5 }},
		{"negative workers", func(c *Config) { c.Dispatch.Workers = -1 }},
		{"negative queue depth", func(c *Config) { c.Dispatch.QueueDepth = -1 }},
		{"unknown provider", func(c *Config) { c.Engine.Provider = "sphinx" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
