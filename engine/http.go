package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZaguanLabs/nmtflow"
)

const defaultHTTPTimeout = 2 * time.Minute

// HTTPConfig configures an HTTPEngine.
type HTTPConfig struct {
	BaseURL string        // Model server root, e.g. http://localhost:8081
	APIKey  string        // Sent as a bearer token when set
	Timeout time.Duration // Per-request timeout (default: 2m)
}

// HTTPEngine talks to a model-serving sidecar that hosts the engine and its
// subword tokenizer behind a small JSON API:
//
//	POST /v1/translate_batch  decode a batch
//	POST /v1/tokenize         encode text
//	POST /v1/detokenize       decode tokens
//	GET  /v1/languages        language tag to prefix token map
//	GET  /v1/health           liveness
type HTTPEngine struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu         sync.RWMutex
	langTokens map[string]string
}

// NewHTTPEngine creates a client for the sidecar at cfg.BaseURL. Call
// LoadLanguages before using it as a Tokenizer.
func NewHTTPEngine(cfg HTTPConfig) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPEngine{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		langTokens: make(map[string]string),
	}
}

// HTTPLoader returns an EngineLoader that checks the sidecar is up and
// fetches its language tokens.
func HTTPLoader(cfg HTTPConfig) nmtflow.EngineLoader {
	return func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
		e := NewHTTPEngine(cfg)
		if err := e.Ping(ctx); err != nil {
			return nil, nil, err
		}
		if err := e.LoadLanguages(ctx); err != nil {
			return nil, nil, err
		}
		return e, e, nil
	}
}

type translateBatchRequest struct {
	Source            [][]string `json:"source"`
	TargetPrefix      [][]string `json:"target_prefix"`
	BeamSize          int        `json:"beam_size"`
	MaxDecodingLength int        `json:"max_decoding_length"`
	RepetitionPenalty float64    `json:"repetition_penalty,omitempty"`
	NoRepeatNgramSize int        `json:"no_repeat_ngram_size,omitempty"`
}

type translateBatchResponse struct {
	Hypotheses [][]string `json:"hypotheses"`
}

// DecodeBatch implements Engine.
func (e *HTTPEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	body := translateBatchRequest{
		Source:            req.Source,
		TargetPrefix:      req.TargetPrefix,
		BeamSize:          req.BeamWidth,
		MaxDecodingLength: req.MaxNewTokens,
		RepetitionPenalty: req.RepetitionPenalty,
		NoRepeatNgramSize: req.NoRepeatNgramSize,
	}

	var resp translateBatchResponse
	if err := e.do(ctx, http.MethodPost, "/v1/translate_batch", body, &resp); err != nil {
		return nil, err
	}
	return resp.Hypotheses, nil
}

// Encode implements Tokenizer.
func (e *HTTPEngine) Encode(ctx context.Context, text, lang string) ([]string, error) {
	var resp struct {
		Tokens []string `json:"tokens"`
	}
	req := map[string]string{"text": text, "lang": lang}
	if err := e.do(ctx, http.MethodPost, "/v1/tokenize", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// Decode implements Tokenizer.
func (e *HTTPEngine) Decode(ctx context.Context, tokens []string, skipSpecial bool) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	req := map[string]any{"tokens": tokens, "skip_special": skipSpecial}
	if err := e.do(ctx, http.MethodPost, "/v1/detokenize", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// LanguageToken implements Tokenizer from the map fetched by LoadLanguages.
func (e *HTTPEngine) LanguageToken(lang string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tok, ok := e.langTokens[lang]
	return tok, ok
}

// LoadLanguages fetches the language token map from the sidecar.
func (e *HTTPEngine) LoadLanguages(ctx context.Context) error {
	var resp struct {
		Languages map[string]string `json:"languages"`
	}
	if err := e.do(ctx, http.MethodGet, "/v1/languages", nil, &resp); err != nil {
		return err
	}
	if len(resp.Languages) == 0 {
		return &nmtflow.EngineError{Message: "model server reported no languages"}
	}

	e.mu.Lock()
	e.langTokens = resp.Languages
	e.mu.Unlock()
	return nil
}

// Ping checks the sidecar's health endpoint.
func (e *HTTPEngine) Ping(ctx context.Context) error {
	return e.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (e *HTTPEngine) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &nmtflow.EngineError{Message: "failed to encode request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return &nmtflow.EngineError{Message: "failed to build request", Cause: err}
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", nmtflow.UserAgent())
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return &nmtflow.EngineError{
			Message:   "model server request " + path,
			Cause:     err,
			Retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &nmtflow.EngineError{Message: "failed to read response", Cause: err, Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return &nmtflow.EngineError{
			Message:    fmt.Sprintf("model server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &nmtflow.EngineError{Message: "failed to parse response", Cause: err}
	}
	return nil
}

var (
	_ Engine    = (*HTTPEngine)(nil)
	_ Tokenizer = (*HTTPEngine)(nil)
)

// retryAfter parses a Retry-After header given in seconds. HTTP dates are
// not used by model servers and yield 0.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
