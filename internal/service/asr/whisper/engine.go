// Package whisper provides a local recognition engine backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
package whisper

import (
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/Elleo/gst-deepspeech/internal/service/asr"
)

const defaultLanguage = "en"

// Engine implements asr.Engine on a whisper.cpp model. The speech model path
// names the GGML model file; the alphabet, language-model, and trie paths are
// accepted for configuration compatibility but have no whisper.cpp
// equivalent and are ignored.
type Engine struct {
	model    whisperlib.Model
	language string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguage sets the transcription language code (e.g. "en", "de").
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// New loads the whisper model from cfg.SpeechModelPath.
func New(cfg asr.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := whisperlib.New(cfg.SpeechModelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", cfg.SpeechModelPath, err)
	}
	e := &Engine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Factory returns an asr.Factory building whisper engines with the given
// options.
func Factory(opts ...Option) asr.Factory {
	return func(cfg asr.Config) (asr.Engine, error) {
		return New(cfg, opts...)
	}
}

// ExtractFeatures converts S16LE PCM into the normalised float32 samples
// whisper.cpp consumes. Safe for concurrent use.
func (e *Engine) ExtractFeatures(pcm []byte) (asr.Features, error) {
	if len(pcm) < 2 {
		return nil, errors.New("whisper: segment holds no complete samples")
	}
	return pcmToFloat32(pcm), nil
}

// Infer runs whisper.cpp over the extracted samples and returns the joined
// segment text. Each call creates a fresh decoding context from the shared
// model; contexts are not thread-safe, so callers must serialize Infer.
func (e *Engine) Infer(f asr.Features) (string, error) {
	samples, ok := f.([]float32)
	if !ok {
		return "", fmt.Errorf("whisper: unexpected features type %T", f)
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", e.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

var _ asr.Engine = (*Engine)(nil)
