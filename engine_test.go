package nmtflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEngineHandle_LoadSuccess(t *testing.T) {
	h := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		return newMockEngine(nil), newMockTokenizer(), nil
	})

	if h.State() != StateUnloaded {
		t.Fatalf("initial state = %s", h.State())
	}
	if err := h.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !h.IsLoaded() {
		t.Error("expected handle to be loaded")
	}

	report := h.Health()
	if report.State != "ready" || !report.Loaded || report.LoadedAt == "" {
		t.Errorf("unexpected health report: %+v", report)
	}
}

func TestEngineHandle_LoadFailureThenRetry(t *testing.T) {
	attempts := 0
	h := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		attempts++
		if attempts == 1 {
			return nil, nil, errors.New("model files missing")
		}
		return newMockEngine(nil), newMockTokenizer(), nil
	})

	if err := h.Load(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}
	if h.State() != StateFailed {
		t.Errorf("state = %s, want failed", h.State())
	}
	if h.LastError() != "model files missing" {
		t.Errorf("LastError() = %q", h.LastError())
	}

	_, _, err := h.acquire()
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected ErrEngineUnavailable, got %v", err)
	}

	if err := h.Load(context.Background()); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if !h.IsLoaded() || h.LastError() != "" {
		t.Errorf("expected clean ready state, got %s / %q", h.State(), h.LastError())
	}
}

func TestEngineHandle_NilEngineIsFailure(t *testing.T) {
	h := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		return newMockEngine(nil), nil, nil
	})
	if err := h.Load(context.Background()); err == nil {
		t.Fatal("expected error for nil tokenizer")
	}
	if h.State() != StateFailed {
		t.Errorf("state = %s", h.State())
	}
}

func TestEngineHandle_NoLoader(t *testing.T) {
	h := NewEngineHandle(nil)
	if err := h.Load(context.Background()); err == nil {
		t.Fatal("expected error without loader")
	}
}

func TestEngineHandle_ConcurrentLoadsShareOneAttempt(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	h := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return newMockEngine(nil), newMockTokenizer(), nil
	})

	h.LoadAsync(context.Background())
	deadline := time.Now().Add(time.Second)
	for h.State() != StateLoading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.State() != StateLoading {
		t.Fatalf("state = %s, want loading", h.State())
	}

	_, _, err := h.acquire()
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("expected unavailable while loading, got %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Load(context.Background())
		}()
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("waiting Load returned %v", err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestEngineHandle_LoadWaitCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		<-release
		return newMockEngine(nil), newMockTokenizer(), nil
	})
	h.LoadAsync(context.Background())
	for h.State() != StateLoading {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Load(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestNewReadyEngineHandle(t *testing.T) {
	h := NewReadyEngineHandle(newMockEngine(nil), newMockTokenizer())
	if !h.IsLoaded() {
		t.Fatal("expected ready handle")
	}
	e, tok, err := h.acquire()
	if err != nil || e == nil || tok == nil {
		t.Errorf("acquire() = %v, %v, %v", e, tok, err)
	}
}

func TestEngineState_String(t *testing.T) {
	tests := map[EngineState]string{
		StateUnloaded:   "unloaded",
		StateLoading:    "loading",
		StateReady:      "ready",
		StateFailed:     "failed",
		EngineState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
