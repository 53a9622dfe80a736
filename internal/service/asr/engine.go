// Package asr defines the interface to the external speech recognition
// engine and the reloadable handle through which dispatch workers reach it.
package asr

import "errors"

// Artifact path defaults from the original element.
const (
	DefaultSpeechModelPath   = "/usr/share/deepspeech/models/output_graph.pb"
	DefaultAlphabetPath      = "/usr/share/deepspeech/models/alphabet.txt"
	DefaultLanguageModelPath = "/usr/share/deepspeech/models/lm.binary"
	DefaultTriePath          = "/usr/share/deepspeech/models/trie"
)

// ErrMissingModelPath is returned when the speech model path is empty.
var ErrMissingModelPath = errors.New("speech model path must not be empty")

// Config holds the engine's model artifact locations. Changing any of them
// requires rebuilding the engine (see Handle.Reconfigure).
type Config struct {
	SpeechModelPath   string
	AlphabetPath      string
	LanguageModelPath string
	TriePath          string
}

// DefaultConfig returns the original element's default artifact paths.
func DefaultConfig() Config {
	return Config{
		SpeechModelPath:   DefaultSpeechModelPath,
		AlphabetPath:      DefaultAlphabetPath,
		LanguageModelPath: DefaultLanguageModelPath,
		TriePath:          DefaultTriePath,
	}
}

// Validate checks that the configuration can identify a model.
func (c Config) Validate() error {
	if c.SpeechModelPath == "" {
		return ErrMissingModelPath
	}
	return nil
}

// Features is an engine-specific intermediate representation of a segment's
// audio, produced by ExtractFeatures and consumed by Infer.
type Features any

// Engine is the external recognition capability: given a completed segment it
// returns recognized text. Implementations load shared model state that is
// not safe for concurrent decoding.
type Engine interface {
	// ExtractFeatures converts raw S16LE PCM into the engine's input
	// representation. Safe for concurrent use.
	ExtractFeatures(pcm []byte) (Features, error)

	// Infer decodes features into text. NOT safe for concurrent use; callers
	// must serialize invocations. An empty string is a valid result meaning
	// nothing was recognized.
	Infer(f Features) (string, error)

	// Close releases the engine's model resources.
	Close() error
}

// Factory builds an Engine from a configuration. Used by Handle to rebuild
// the engine on reconfiguration.
type Factory func(Config) (Engine, error)
