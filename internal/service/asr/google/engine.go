// Package google provides a recognition engine backed by Google Cloud
// Speech-to-Text batch recognition. Requires GOOGLE_APPLICATION_CREDENTIALS.
package google

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/Elleo/gst-deepspeech/internal/audio"
	"github.com/Elleo/gst-deepspeech/internal/service/asr"
)

const defaultLanguageCode = "en-US"

// Engine implements asr.Engine using the cloud Recognize RPC. The model
// artifact paths in asr.Config have no cloud equivalent and are ignored; the
// engine exists so deployments without local model files can still run the
// same pipeline.
type Engine struct {
	client       *speech.Client
	languageCode string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguageCode sets the BCP-47 recognition language (default "en-US").
func WithLanguageCode(code string) Option {
	return func(e *Engine) { e.languageCode = code }
}

// New creates a cloud speech client.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	e := &Engine{client: c, languageCode: defaultLanguageCode}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Factory returns an asr.Factory building cloud engines. The configuration's
// model paths are not used.
func Factory(ctx context.Context, opts ...Option) asr.Factory {
	return func(asr.Config) (asr.Engine, error) {
		return New(ctx, opts...)
	}
}

// ExtractFeatures passes the PCM through unchanged; the cloud API consumes
// raw LINEAR16 audio. Safe for concurrent use.
func (e *Engine) ExtractFeatures(pcm []byte) (asr.Features, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("google: empty segment")
	}
	return pcm, nil
}

// Infer submits the segment audio for batch recognition and returns the top
// alternative of the first result, or an empty string when nothing was
// recognized.
func (e *Engine) Infer(f asr.Features) (string, error) {
	pcm, ok := f.([]byte)
	if !ok {
		return "", fmt.Errorf("google: unexpected features type %T", f)
	}

	resp, err := e.client.Recognize(context.Background(), &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: audio.SampleRate,
			LanguageCode:    e.languageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return "", fmt.Errorf("google: recognize: %w", err)
	}

	for _, r := range resp.Results {
		if len(r.Alternatives) > 0 {
			return r.Alternatives[0].Transcript, nil
		}
	}
	return "", nil
}

// Close releases the cloud client.
func (e *Engine) Close() error {
	return e.client.Close()
}

var _ asr.Engine = (*Engine)(nil)
