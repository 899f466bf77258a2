package nmtflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestTranslationError(t *testing.T) {
	cause := errors.New("underlying error")
	err := &TranslationError{Message: "translation failed", Cause: cause}

	if err.Error() != "translation failed: underlying error" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}

	err2 := &TranslationError{Message: "simple error"}
	if err2.Error() != "simple error" {
		t.Errorf("unexpected error message: %s", err2.Error())
	}
}

func TestEngineError(t *testing.T) {
	err := &EngineError{Message: "sidecar timeout", Retryable: true}

	if err.Error() != "engine error: sidecar timeout" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	if !err.Retryable {
		t.Error("error should be retryable")
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Message: "missing prefix token", Direction: SpanishToDanish, Cause: ErrMissingLanguageToken}

	want := "configuration error: missing prefix token (direction es-da): no language token for target"
	if err.Error() != want {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, ErrMissingLanguageToken) {
		t.Error("ConfigError should unwrap to ErrMissingLanguageToken")
	}
}

func TestScriptError(t *testing.T) {
	wrapped := fmt.Errorf("batch: %w", &ScriptError{Index: 2, Direction: DanishToSpanish, Attempts: 4})

	var se *ScriptError
	if !errors.As(wrapped, &se) {
		t.Fatal("errors.As should find ScriptError")
	}
	if se.Index != 2 || se.Direction != DanishToSpanish {
		t.Errorf("unexpected fields: %+v", se)
	}
}

func TestCacheError(t *testing.T) {
	err := &CacheError{Message: "connection failed"}

	if err.Error() != "cache error: connection failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestSegmentError(t *testing.T) {
	err := &SegmentError{Message: "parse failed", ContentType: "html"}

	if err.Error() != "segment error (html): parse failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestCountMismatchError(t *testing.T) {
	err := &CountMismatchError{Expected: 5, Got: 3}

	expected := "hypothesis count mismatch: expected 5, got 3"
	if err.Error() != expected {
		t.Errorf("unexpected error message: %s, want %s", err.Error(), expected)
	}
}
