package nmtflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineUnavailable is returned when the engine handle is not ready.
	ErrEngineUnavailable = errors.New("translation engine unavailable")

	// ErrMissingLanguageToken is returned when the tokenizer has no prefix
	// token for the target language.
	ErrMissingLanguageToken = errors.New("no language token for target")

	// ErrUnsupportedDirection is returned for an unknown language pair.
	ErrUnsupportedDirection = errors.New("unsupported translation direction")
)

// TranslationError is the base error type for translation failures.
type TranslationError struct {
	Message string
	Cause   error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// EngineError indicates the external engine call itself failed.
type EngineError struct {
	Message   string
	Cause     error
	Retryable bool // Whether the call can be retried

	// RetryAfter is the wait the engine asked for before the next attempt,
	// 0 when it gave none.
	RetryAfter time.Duration
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("engine error: %s", e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ConfigError is a configuration-fatal failure. Callers should treat it as
// service unavailable; it is never retried.
type ConfigError struct {
	Message   string
	Direction Direction
	Cause     error
}

func (e *ConfigError) Error() string {
	msg := "configuration error: " + e.Message
	if e.Direction != "" {
		msg += fmt.Sprintf(" (direction %s)", e.Direction)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ScriptError reports that a unit could not be decoded into the target
// alphabet within the escalation budget.
type ScriptError struct {
	Input     int // Position of the input text in TranslateTexts; 0 for TranslateHTML
	Index     int // Position of the unit within its input
	Direction Direction
	Attempts  int
	Text      string // Last rejected output
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("could not guarantee target-script output for unit %d of input %d (direction %s) after %d attempts",
		e.Index, e.Input, e.Direction, e.Attempts)
}

// CacheError indicates a cache backend failure. Caches log these and
// degrade to misses rather than returning them to callers.
type CacheError struct {
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cache error: %s", e.Message)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// SegmentError indicates a content segmentation or rehydration failure.
type SegmentError struct {
	Message     string
	Cause       error
	ContentType string // The type of content that failed to process
}

func (e *SegmentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("segment error (%s): %s: %v", e.ContentType, e.Message, e.Cause)
	}
	return fmt.Sprintf("segment error (%s): %s", e.ContentType, e.Message)
}

func (e *SegmentError) Unwrap() error {
	return e.Cause
}

// CountMismatchError indicates the engine returned a different number of
// hypotheses than items submitted.
type CountMismatchError struct {
	Expected int
	Got      int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("hypothesis count mismatch: expected %d, got %d", e.Expected, e.Got)
}
