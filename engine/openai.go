package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/sashabaranov/go-openai"
)

// OpenAIEngine decodes through an OpenAI-compatible chat completion API.
// It has no subword vocabulary, so it tokenizes on whitespace and treats
// MaxNewTokens as a word budget.
type OpenAIEngine struct {
	WhitespaceTokenizer

	client      *openai.Client
	model       string
	temperature float32
}

// OpenAIConfig holds configuration for the OpenAI engine.
type OpenAIConfig struct {
	APIKey      string  // OpenAI API key
	Model       string  // Model to use (default: "gpt-4o-mini")
	Temperature float32 // Temperature for generation (default: 0.2)
	BaseURL     string  // Custom base URL (optional)
}

// NewOpenAIEngine creates a new OpenAI engine.
func NewOpenAIEngine(cfg OpenAIConfig) *OpenAIEngine {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	return &OpenAIEngine{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
	}
}

// promptItem is one source text and the start its translation must keep.
type promptItem struct {
	Text   string `json:"text"`
	Prefix string `json:"prefix,omitempty"`
}

// DecodeBatch translates the batch in one completion call. Every item of a
// batch shares the target language of its first prefix.
func (e *OpenAIEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	if len(req.Source) == 0 {
		return [][]string{}, nil
	}
	if len(req.TargetPrefix) != len(req.Source) {
		return nil, &nmtflow.EngineError{Message: "source and prefix counts differ"}
	}

	items := make([]promptItem, len(req.Source))
	for i, src := range req.Source {
		items[i] = promptItem{
			Text:   sourceText(src),
			Prefix: strings.Join(req.TargetPrefix[i][min(1, len(req.TargetPrefix[i])):], " "),
		}
	}

	userMessage, err := json.Marshal(map[string][]promptItem{"items": items})
	if err != nil {
		return nil, &nmtflow.EngineError{Message: "failed to encode prompt", Cause: err}
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.buildSystemPrompt(targetTag(req.TargetPrefix[0]))},
			{Role: openai.ChatMessageRoleUser, Content: string(userMessage)},
		},
		Temperature: e.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, &nmtflow.EngineError{
			Message:   "OpenAI API call failed",
			Cause:     err,
			Retryable: isRetryableError(err),
		}
	}

	if len(resp.Choices) == 0 {
		return nil, &nmtflow.EngineError{
			Message:   "no response from OpenAI",
			Retryable: true,
		}
	}

	translations, err := parseResponse(resp.Choices[0].Message.Content, len(req.Source))
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(translations))
	for i, t := range translations {
		out[i] = resume(req.TargetPrefix[i], t, req.MaxNewTokens)
	}
	return out, nil
}

func (e *OpenAIEngine) buildSystemPrompt(tag string) string {
	targetName := tag
	if code, ok := languageOfTag(tag); ok {
		targetName = nmtflow.GetLanguageName(code)
	}

	return fmt.Sprintf(`# Role
You are a machine translation engine. You translate every input text into %s.

# Rules
- Translate faithfully and completely. Do not summarise, explain or add content.
- Placeholders of the form ⟦KIND:value⟧ must appear in the output exactly as in the input.
- When an item has a "prefix", the translation must begin with that prefix verbatim and continue from it.
- Output only %s. Never copy the source language.

# Format
Return a valid JSON object with a single key "translations" containing an array of strings in the exact same order as the input items.
Example: { "translations": ["translated string 1", "translated string 2"] }
- Do NOT wrap in Markdown code blocks.`, targetName, targetName)
}

func parseResponse(content string, expectedCount int) ([]string, error) {
	var objResult map[string]any
	if err := json.Unmarshal([]byte(content), &objResult); err == nil {
		if translations, ok := objResult["translations"]; ok {
			if arr, ok := translations.([]any); ok {
				return toStringSlice(arr, expectedCount)
			}
		}

		for _, v := range objResult {
			if arr, ok := v.([]any); ok {
				return toStringSlice(arr, expectedCount)
			}
		}
	}

	var arrResult []any
	if err := json.Unmarshal([]byte(content), &arrResult); err == nil {
		return toStringSlice(arrResult, expectedCount)
	}

	return nil, &nmtflow.EngineError{
		Message:   "invalid response format from OpenAI",
		Retryable: false,
	}
}

func toStringSlice(arr []any, expectedCount int) ([]string, error) {
	if len(arr) != expectedCount {
		return nil, &nmtflow.CountMismatchError{
			Expected: expectedCount,
			Got:      len(arr),
		}
	}

	result := make([]string, len(arr))
	for i, v := range arr {
		if s, ok := v.(string); ok {
			result[i] = s
		} else {
			result[i] = fmt.Sprintf("%v", v)
		}
	}
	return result, nil
}

func isRetryableError(err error) bool {
	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"rate limit",
		"timeout",
		"connection refused",
		"temporary",
		"503",
		"502",
		"429",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var (
	_ Engine    = (*OpenAIEngine)(nil)
	_ Tokenizer = (*OpenAIEngine)(nil)
)
