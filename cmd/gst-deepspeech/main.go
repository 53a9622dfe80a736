package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Elleo/gst-deepspeech/internal/api/ws"
	"github.com/Elleo/gst-deepspeech/internal/config"
	"github.com/Elleo/gst-deepspeech/internal/events"
	"github.com/Elleo/gst-deepspeech/internal/observability"
	"github.com/Elleo/gst-deepspeech/internal/observability/logging"
	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/asr/google"
	"github.com/Elleo/gst-deepspeech/internal/service/asr/mock"
	"github.com/Elleo/gst-deepspeech/internal/service/asr/whisper"
)

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Engine.Provider).Msg("Failed to load recognition engine")
	}
	defer engine.Close()

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})
	defer publisher.Close()

	obs := observability.NewServer(cfg.Observability.MetricsAddr)
	obs.Start()

	ingress := ws.NewServer(cfg.Service.ListenAddr, engine, publisher, cfg.Silence, cfg.Dispatch)
	ingress.Start()

	log.Info().
		Str("listen", cfg.Service.ListenAddr).
		Str("provider", cfg.Engine.Provider).
		Float64("silenceThreshold", cfg.Silence.SilenceThreshold).
		Uint32("silenceRunLimit", cfg.Silence.SilenceRunLimit).
		Msg("gst-deepspeech service started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ingress.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Ingress shutdown error")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown error")
	}
}

// buildEngine selects the engine factory for the configured provider and
// wraps it in a reloadable handle.
func buildEngine(cfg *config.Config) (*asr.Handle, error) {
	var factory asr.Factory
	switch cfg.Engine.Provider {
	case "mock":
		factory = mock.NewFactory
	case "whisper":
		factory = whisper.Factory(whisper.WithLanguage(cfg.Engine.Language))
	case "google":
		factory = google.Factory(context.Background())
	default:
		return nil, fmt.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
	return asr.NewHandle(factory, cfg.Engine.Artifacts)
}
