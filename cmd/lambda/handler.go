package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/ZaguanLabs/nmtflow/internal/app"
)

// Actions accepted by the handler.
const (
	ActionTranslateTexts = "translate_texts"
	ActionTranslateHTML  = "translate_html"
	ActionClearCache     = "clear_cache"
	ActionCacheStats     = "cache_stats"
)

// Request is the input to the Lambda function.
type Request struct {
	Action    string            `json:"action"`
	Texts     []string          `json:"texts,omitempty"`
	HTML      string            `json:"html,omitempty"`
	Direction string            `json:"direction,omitempty"`
	Budget    int               `json:"budget,omitempty"`
	Strict    bool              `json:"strict,omitempty"`
	Formal    bool              `json:"formal,omitempty"`
	Glossary  map[string]string `json:"glossary,omitempty"`
}

// Response is the output of the Lambda function. Code classifies failures
// so callers can map them to a status: "unavailable", "bad_request",
// "script" or "engine".
type Response struct {
	Translations   []string            `json:"translations,omitempty"`
	HTML           string              `json:"html,omitempty"`
	EntriesCleared *int                `json:"entriesCleared,omitempty"`
	Stats          *nmtflow.CacheStats `json:"stats,omitempty"`
	Error          string              `json:"error,omitempty"`
	Code           string              `json:"code,omitempty"`
}

// Handler dispatches requests to the pipeline.
type Handler struct {
	app *app.App
}

// NewHandler creates a handler around an assembled app.
func NewHandler(a *app.App) *Handler {
	return &Handler{app: a}
}

// Handle processes one request. Failures are reported in the response.
func (h *Handler) Handle(ctx context.Context, req Request) *Response {
	switch req.Action {
	case ActionClearCache:
		n := h.app.Pipeline.ClearCache().EntriesCleared
		return &Response{EntriesCleared: &n}
	case ActionCacheStats:
		stats := h.app.Pipeline.CacheStats()
		return &Response{Stats: &stats}
	case ActionTranslateTexts, ActionTranslateHTML:
	default:
		return &Response{Error: fmt.Sprintf("unknown action %q", req.Action), Code: "bad_request"}
	}

	if err := validateRequest(req); err != nil {
		return &Response{Error: err.Error(), Code: "bad_request"}
	}

	opts, err := h.app.TranslateOptions(req.Direction, req.Budget, req.Strict, req.Formal, nmtflow.Glossary(req.Glossary))
	if err != nil {
		return errorResponse(err)
	}

	if req.Action == ActionTranslateHTML {
		out, err := h.app.Pipeline.TranslateHTML(ctx, req.HTML, opts)
		if err != nil {
			return errorResponse(err)
		}
		return &Response{HTML: out}
	}

	out, err := h.app.Pipeline.TranslateTexts(ctx, req.Texts, opts)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Translations: out}
}

// validateRequest checks the request is valid.
func validateRequest(req Request) error {
	if req.Action == ActionTranslateTexts && req.Texts == nil {
		return errors.New("texts is required")
	}
	if req.Budget < 0 {
		return errors.New("budget must not be negative")
	}
	return nil
}

func errorResponse(err error) *Response {
	resp := &Response{Error: err.Error(), Code: "engine"}

	var scriptErr *nmtflow.ScriptError
	var segErr *nmtflow.SegmentError
	switch {
	case errors.Is(err, nmtflow.ErrEngineUnavailable), errors.Is(err, nmtflow.ErrMissingLanguageToken):
		resp.Code = "unavailable"
	case errors.Is(err, nmtflow.ErrUnsupportedDirection), errors.As(err, &segErr):
		resp.Code = "bad_request"
	case errors.As(err, &scriptErr):
		resp.Code = "script"
	}
	return resp
}
