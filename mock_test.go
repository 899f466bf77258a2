package nmtflow

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const eos = "</s>"

// mockTokenizer splits on whitespace and appends an end-of-sentence token.
type mockTokenizer struct {
	langTokens map[string]string
	encodeErr  error
}

func newMockTokenizer() *mockTokenizer {
	tokens := make(map[string]string, len(FloresCodes))
	for _, tag := range FloresCodes {
		tokens[tag] = tag
	}
	return &mockTokenizer{langTokens: tokens}
}

func (t *mockTokenizer) Encode(ctx context.Context, text, lang string) ([]string, error) {
	if t.encodeErr != nil {
		return nil, t.encodeErr
	}
	return append(strings.Fields(text), eos), nil
}

func (t *mockTokenizer) Decode(ctx context.Context, tokens []string, skipSpecial bool) (string, error) {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if skipSpecial && t.isSpecial(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " "), nil
}

func (t *mockTokenizer) LanguageToken(lang string) (string, bool) {
	tok, ok := t.langTokens[lang]
	return tok, ok
}

func (t *mockTokenizer) isSpecial(tok string) bool {
	if tok == eos {
		return true
	}
	_, ok := t.langTokens[tok]
	return ok
}

// mockEngine looks up a full target for every source and emits at most
// MaxNewTokens of it after the forced prefix, so truncation and
// continuation behave like a real engine with a token budget.
type mockEngine struct {
	mu           sync.Mutex
	translations map[string]string
	outputFn     func(source string, beam int) string
	err          error
	dropLast     bool
	requests     []DecodeRequest
}

func newMockEngine(translations map[string]string) *mockEngine {
	return &mockEngine{translations: translations}
}

func (e *mockEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requests = append(e.requests, req)
	if e.err != nil {
		return nil, e.err
	}
	if len(req.Source) != len(req.TargetPrefix) {
		return nil, errors.New("source and prefix counts differ")
	}

	out := make([][]string, 0, len(req.Source))
	for i, src := range req.Source {
		source := strings.Join(trimEOS(src), " ")

		var target string
		switch {
		case e.outputFn != nil:
			target = e.outputFn(source, req.BeamWidth)
		case e.translations[source] != "":
			target = e.translations[source]
		default:
			target = "[" + source + "]"
		}

		full := strings.Fields(target)
		prefix := req.TargetPrefix[i]
		done := len(prefix) - 1
		if done > len(full) {
			done = len(full)
		}
		remaining := full[done:]
		if req.MaxNewTokens > 0 && len(remaining) > req.MaxNewTokens {
			remaining = remaining[:req.MaxNewTokens]
		}

		hyp := append(append([]string{}, prefix...), remaining...)
		out = append(out, hyp)
	}

	if e.dropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *mockEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *mockEngine) request(i int) DecodeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[i]
}

func trimEOS(tokens []string) []string {
	if n := len(tokens); n > 0 && tokens[n-1] == eos {
		return tokens[:n-1]
	}
	return tokens
}

// mockCache is an unbounded TranslationCache keyed like the real ones.
type mockCache struct {
	mu     sync.Mutex
	data   map[string]string
	hits   int64
	misses int64
	puts   int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]string)}
}

func (c *mockCache) Get(direction, text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[CacheKey(direction, text)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *mockCache) Put(direction, text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[CacheKey(direction, text)] = translation
}

func (c *mockCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.data)
	c.data = make(map[string]string)
	return n
}

func (c *mockCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.data), Hits: c.hits, Misses: c.misses}
}

// paragraphProcessor is a minimal ContentProcessor: every non-blank line
// is one unit, everything else is kept verbatim.
type paragraphProcessor struct {
	contentType string
}

func (p *paragraphProcessor) ContentType() string { return p.contentType }

func (p *paragraphProcessor) Segment(content string) (*Document, error) {
	doc := &Document{ContentType: p.contentType, Source: content}
	lines := strings.SplitAfter(content, "\n")
	for _, line := range lines {
		body := strings.TrimRight(line, "\n")
		if strings.TrimSpace(body) == "" {
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockSeparator, Raw: line, Index: -1})
			continue
		}
		idx := len(doc.Units)
		doc.Units = append(doc.Units, Unit{Index: idx, Text: body})
		doc.Blocks = append(doc.Blocks, Block{Kind: BlockText, Raw: body, Index: idx})
		if len(body) < len(line) {
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockSeparator, Raw: "\n", Index: -1})
		}
	}
	return doc, nil
}

func (p *paragraphProcessor) Rehydrate(doc *Document, translations map[int]string) (string, error) {
	var sb strings.Builder
	for _, b := range doc.Blocks {
		if b.Kind == BlockText {
			if t, ok := translations[b.Index]; ok {
				sb.WriteString(t)
				continue
			}
		}
		sb.WriteString(b.Raw)
	}
	return sb.String(), nil
}
