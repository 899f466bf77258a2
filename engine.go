package nmtflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tokenizer converts between text and the engine's subword tokens.
type Tokenizer interface {
	// Encode tokenizes text in the given source language (FLORES-200 tag).
	Encode(ctx context.Context, text, lang string) ([]string, error)
	// Decode joins tokens back into text, optionally dropping special tokens.
	Decode(ctx context.Context, tokens []string, skipSpecial bool) (string, error)
	// LanguageToken returns the target-prefix token for a language tag.
	LanguageToken(lang string) (string, bool)
}

// Engine is the neural translation engine.
type Engine interface {
	// DecodeBatch returns the top hypothesis for every item, target prefix
	// included, or fails as a whole.
	DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error)
}

// DecodeRequest is one decoding attempt against the engine.
type DecodeRequest struct {
	Source            [][]string // Source tokens per item
	TargetPrefix      [][]string // Forced target prefix per item, language token first
	BeamWidth         int
	MaxNewTokens      int // Tokens the engine may generate beyond the prefix
	RepetitionPenalty float64
	NoRepeatNgramSize int
}

// EngineState is the lifecycle state of an EngineHandle.
type EngineState int

const (
	StateUnloaded EngineState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s EngineState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EngineLoader builds an engine and its tokenizer.
type EngineLoader func(ctx context.Context) (Engine, Tokenizer, error)

// EngineHandle owns an engine/tokenizer pair and its load lifecycle:
// unloaded -> loading -> ready | failed. A failed handle may be loaded again.
type EngineHandle struct {
	mu        sync.RWMutex
	state     EngineState
	engine    Engine
	tokenizer Tokenizer
	lastErr   error
	started   time.Time
	completed time.Time
	loader    EngineLoader
	logger    *slog.Logger
	done      chan struct{}
}

// HealthReport summarises an EngineHandle for health endpoints.
type HealthReport struct {
	State       string `json:"state"`
	Loaded      bool   `json:"loaded"`
	LastError   string `json:"last_error,omitempty"`
	LoadTimeMs  int64  `json:"load_time_ms,omitempty"`
	LoadedAt    string `json:"loaded_at,omitempty"`
	LoadStarted string `json:"load_started,omitempty"`
}

// NewEngineHandle creates an unloaded handle that will use loader.
func NewEngineHandle(loader EngineLoader) *EngineHandle {
	return &EngineHandle{
		loader: loader,
		logger: discardLogger(),
	}
}

// NewReadyEngineHandle wraps an already constructed engine and tokenizer.
func NewReadyEngineHandle(engine Engine, tokenizer Tokenizer) *EngineHandle {
	now := time.Now()
	return &EngineHandle{
		state:     StateReady,
		engine:    engine,
		tokenizer: tokenizer,
		started:   now,
		completed: now,
		logger:    discardLogger(),
	}
}

// SetLogger sets the logger used for state transitions.
func (h *EngineHandle) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// Load runs the loader synchronously. Concurrent callers wait for the load
// already in progress. Loading a ready handle is a no-op.
func (h *EngineHandle) Load(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateReady:
		h.mu.Unlock()
		return nil
	case StateLoading:
		done := h.done
		h.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.lastErr
	}

	if h.loader == nil {
		h.state = StateFailed
		h.lastErr = errors.New("no engine loader configured")
		h.mu.Unlock()
		return h.lastErr
	}

	h.state = StateLoading
	h.started = time.Now()
	h.lastErr = nil
	h.done = make(chan struct{})
	done := h.done
	loader := h.loader
	logger := h.logger
	h.mu.Unlock()

	logger.Info("loading translation engine")
	engine, tokenizer, err := loader(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	defer close(done)

	h.completed = time.Now()
	if err == nil && (engine == nil || tokenizer == nil) {
		err = errors.New("loader returned a nil engine or tokenizer")
	}
	if err != nil {
		h.state = StateFailed
		h.lastErr = err
		logger.Error("translation engine failed to load", "error", err)
		return err
	}

	h.state = StateReady
	h.engine = engine
	h.tokenizer = tokenizer
	logger.Info("translation engine ready", "load_ms", h.completed.Sub(h.started).Milliseconds())
	return nil
}

// LoadAsync starts Load in a background goroutine.
func (h *EngineHandle) LoadAsync(ctx context.Context) {
	go func() {
		_ = h.Load(ctx)
	}()
}

// State returns the current lifecycle state.
func (h *EngineHandle) State() EngineState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// IsLoaded reports whether the engine is ready for use.
func (h *EngineHandle) IsLoaded() bool {
	return h.State() == StateReady
}

// LastError returns the last load error, or "" if none.
func (h *EngineHandle) LastError() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastErr == nil {
		return ""
	}
	return h.lastErr.Error()
}

// Health returns a snapshot of the handle for health reporting.
func (h *EngineHandle) Health() HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := HealthReport{
		State:  h.state.String(),
		Loaded: h.state == StateReady,
	}
	if h.lastErr != nil {
		r.LastError = h.lastErr.Error()
	}
	if !h.started.IsZero() {
		r.LoadStarted = h.started.UTC().Format(time.RFC3339)
	}
	if h.state == StateReady || h.state == StateFailed {
		r.LoadTimeMs = h.completed.Sub(h.started).Milliseconds()
		r.LoadedAt = h.completed.UTC().Format(time.RFC3339)
	}
	return r
}

// acquire returns the engine and tokenizer, or ErrEngineUnavailable.
func (h *EngineHandle) acquire() (Engine, Tokenizer, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateReady {
		msg := "engine is " + h.state.String()
		if h.lastErr != nil {
			msg += ": " + h.lastErr.Error()
		}
		return nil, nil, &ConfigError{Message: msg, Cause: ErrEngineUnavailable}
	}
	return h.engine, h.tokenizer, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// String implements fmt.Stringer for log output.
func (r HealthReport) String() string {
	return fmt.Sprintf("state=%s loaded=%t", r.State, r.Loaded)
}
