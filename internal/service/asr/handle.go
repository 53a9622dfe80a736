package asr

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// holder wraps the interface so it can sit behind an atomic.Pointer.
type holder struct {
	engine Engine
}

// Handle is the single shared owner of the engine seen by dispatch workers.
// Reconfigure atomically swaps the engine used by future work; workers that
// already grabbed the previous engine keep a valid reference until they
// finish. Retired engines are closed when the handle itself is closed, since
// in-flight inference may still hold them.
type Handle struct {
	factory Factory

	// inferMu serializes Engine.Infer across every dispatch worker of every
	// stream; engines do not support concurrent decoding.
	inferMu sync.Mutex

	mu      sync.Mutex // serializes Reconfigure/Close
	cfg     Config
	retired []Engine
	closed  bool

	cur atomic.Pointer[holder]
}

// NewHandle builds the initial engine from cfg and wraps it in a handle.
func NewHandle(factory Factory, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	h := &Handle{factory: factory, cfg: cfg}
	h.cur.Store(&holder{engine: eng})
	return h, nil
}

// Engine returns the engine future work should use.
func (h *Handle) Engine() Engine {
	return h.cur.Load().engine
}

// Infer runs eng.Infer under the handle's inference lock. eng is passed
// explicitly so features extracted before a reconfiguration are decoded by
// the engine that produced them.
func (h *Handle) Infer(eng Engine, f Features) (string, error) {
	h.inferMu.Lock()
	defer h.inferMu.Unlock()
	return eng.Infer(f)
}

// Config returns the configuration of the current engine.
func (h *Handle) Config() Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// Reconfigure builds a new engine from cfg and swaps it in. On failure the
// previous engine stays in place and keeps serving; the error is returned to
// the caller and must not disturb in-flight processing.
func (h *Handle) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	eng, err := h.factory(cfg)
	if err != nil {
		log.Error().Err(err).
			Str("speechModel", cfg.SpeechModelPath).
			Msg("Engine reload failed, keeping previous engine")
		return err
	}

	old := h.cur.Swap(&holder{engine: eng})
	h.cfg = cfg
	h.retired = append(h.retired, old.engine)

	log.Info().
		Str("speechModel", cfg.SpeechModelPath).
		Str("alphabet", cfg.AlphabetPath).
		Str("languageModel", cfg.LanguageModelPath).
		Str("trie", cfg.TriePath).
		Msg("Engine reloaded")
	return nil
}

// Close releases the current engine and every retired one. Call only after
// dispatch has drained.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var err error
	if e := h.cur.Load().engine.Close(); e != nil {
		err = e
	}
	for _, eng := range h.retired {
		if e := eng.Close(); e != nil && err == nil {
			err = e
		}
	}
	h.retired = nil
	return err
}
