package engine

import (
	"context"
	"fmt"
	"sync"
)

// MockEngine returns canned translations and honours the token budget the
// way a real engine does, so truncation and continuation can be exercised
// without a model. Unknown sources translate to "[source]".
type MockEngine struct {
	WhitespaceTokenizer

	mu           sync.Mutex
	Translations map[string]string // Source text to full translation
	Err          error             // Returned by every DecodeBatch when set
	CallCount    int
	LastRequest  *DecodeRequest
}

// NewMockEngine creates a mock engine with a few Spanish/Danish phrases.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Translations: map[string]string{
			"Hola":                     "Hej",
			"Hola mundo":               "Hej verden",
			"Buenos días.":             "God morgen.",
			"Gracias.":                 "Tak.",
			"Hej":                      "Hola",
			"Hej verden":               "Hola mundo",
			"God morgen.":              "Buenos días.",
			"Tak.":                     "Gracias.",
			"Bienvenido a ⟦TERM:Acme⟧": "Velkommen til ⟦TERM:Acme⟧",
		},
	}
}

// DecodeBatch resumes each item's canned translation after its forced
// prefix and emits at most MaxNewTokens words of it.
func (m *MockEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastRequest = &req
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]string, len(req.Source))
	for i, src := range req.Source {
		text := sourceText(src)
		target, ok := m.Translations[text]
		if !ok {
			target = fmt.Sprintf("[%s]", text)
		}

		var prefix []string
		if i < len(req.TargetPrefix) {
			prefix = req.TargetPrefix[i]
		}
		out[i] = resume(prefix, target, req.MaxNewTokens)
	}
	return out, nil
}

// Reset clears the call counters.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount = 0
	m.LastRequest = nil
}

var (
	_ Engine    = (*MockEngine)(nil)
	_ Tokenizer = (*MockEngine)(nil)
)
