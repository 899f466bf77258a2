package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZaguanLabs/nmtflow"
)

// sidecar is a fake model server: it translates with a MockEngine and
// tokenizes on whitespace.
func sidecar(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	mock := NewMockEngine()
	var agents []string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /v1/languages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"languages": map[string]string{"spa_Latn": "__spa_Latn__", "dan_Latn": "__dan_Latn__"},
		})
	})
	mux.HandleFunc("POST /v1/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Text, Lang string }
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"tokens": append(strings.Fields(req.Text), EOS)})
	})
	mux.HandleFunc("POST /v1/detokenize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tokens      []string `json:"tokens"`
			SkipSpecial bool     `json:"skip_special"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var kept []string
		for _, tok := range req.Tokens {
			if req.SkipSpecial && (tok == EOS || strings.HasPrefix(tok, "__")) {
				continue
			}
			kept = append(kept, tok)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": strings.Join(kept, " ")})
	})
	mux.HandleFunc("POST /v1/translate_batch", func(w http.ResponseWriter, r *http.Request) {
		var req translateBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.BeamSize == 99 {
			http.Error(w, "out of memory", http.StatusServiceUnavailable)
			return
		}
		hyps, _ := mock.DecodeBatch(r.Context(), DecodeRequest{
			Source:       req.Source,
			TargetPrefix: req.TargetPrefix,
			MaxNewTokens: req.MaxDecodingLength,
		})
		_ = json.NewEncoder(w).Encode(translateBatchResponse{Hypotheses: hyps})
	})

	return httptest.NewServer(mux), &agents
}

func TestHTTPEngine_Loader(t *testing.T) {
	srv, agents := sidecar(t)
	defer srv.Close()

	eng, tok, err := HTTPLoader(HTTPConfig{BaseURL: srv.URL + "/"})(context.Background())
	if err != nil {
		t.Fatalf("loader failed: %v", err)
	}
	if eng == nil || tok == nil {
		t.Fatal("loader returned nil engine or tokenizer")
	}

	lt, ok := tok.LanguageToken("dan_Latn")
	if !ok || lt != "__dan_Latn__" {
		t.Errorf("LanguageToken = %q, %v", lt, ok)
	}
	if len(*agents) != 1 || (*agents)[0] != nmtflow.UserAgent() {
		t.Errorf("User-Agent not sent: %v", *agents)
	}
}

func TestHTTPEngine_Tokenizer(t *testing.T) {
	srv, _ := sidecar(t)
	defer srv.Close()

	e := NewHTTPEngine(HTTPConfig{BaseURL: srv.URL})
	ctx := context.Background()

	tokens, err := e.Encode(ctx, "Hola mundo", "spa_Latn")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(tokens) != 3 || tokens[2] != EOS {
		t.Errorf("Encode = %v", tokens)
	}

	text, err := e.Decode(ctx, []string{"__dan_Latn__", "Hej", "verden", EOS}, true)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if text != "Hej verden" {
		t.Errorf("Decode = %q", text)
	}

	if _, ok := e.LanguageToken("dan_Latn"); ok {
		t.Error("LanguageToken should be empty before LoadLanguages")
	}
}

func TestHTTPEngine_DecodeBatch(t *testing.T) {
	srv, _ := sidecar(t)
	defer srv.Close()

	e := NewHTTPEngine(HTTPConfig{BaseURL: srv.URL})
	out, err := e.DecodeBatch(context.Background(), DecodeRequest{
		Source:       [][]string{{"Hola", "mundo", EOS}},
		TargetPrefix: [][]string{{"__dan_Latn__"}},
		BeamWidth:    4,
		MaxNewTokens: 16,
	})
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	if got := strings.Join(out[0], " "); got != "__dan_Latn__ Hej verden" {
		t.Errorf("DecodeBatch = %q", got)
	}
}

func TestHTTPEngine_ServerError(t *testing.T) {
	srv, _ := sidecar(t)
	defer srv.Close()

	e := NewHTTPEngine(HTTPConfig{BaseURL: srv.URL})
	_, err := e.DecodeBatch(context.Background(), DecodeRequest{
		Source:       [][]string{{"Hola", EOS}},
		TargetPrefix: [][]string{{"__dan_Latn__"}},
		BeamWidth:    99,
	})

	var ee *nmtflow.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected EngineError, got %v", err)
	}
	if !ee.Retryable {
		t.Error("503 should be retryable")
	}
	if !strings.Contains(ee.Error(), "out of memory") {
		t.Errorf("Error should carry the server message: %v", ee)
	}
}

func TestHTTPEngine_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewHTTPEngine(HTTPConfig{BaseURL: srv.URL})
	err := e.LoadLanguages(context.Background())

	var ee *nmtflow.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected EngineError, got %v", err)
	}
	if !ee.Retryable || ee.RetryAfter != 3*time.Second {
		t.Errorf("Retryable = %v, RetryAfter = %v; want true, 3s", ee.Retryable, ee.RetryAfter)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 2 ", 2 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.in); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPEngine_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	e := NewHTTPEngine(HTTPConfig{BaseURL: srv.URL})
	err := e.LoadLanguages(context.Background())

	var ee *nmtflow.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected EngineError, got %v", err)
	}
	if ee.Retryable {
		t.Error("404 should not be retryable")
	}
}

func TestHTTPEngine_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := HTTPLoader(HTTPConfig{BaseURL: url})(context.Background())
	var ee *nmtflow.EngineError
	if !errors.As(err, &ee) || !ee.Retryable {
		t.Errorf("Expected retryable EngineError, got %v", err)
	}
}
