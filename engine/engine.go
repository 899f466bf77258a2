// Package engine provides translation engine backends: an HTTP client for
// a model-serving sidecar, an AWS Lambda client, an OpenAI-backed engine,
// a mock for tests and dry runs, and a circuit breaker wrapper.
package engine

import (
	"context"
	"strings"

	"github.com/ZaguanLabs/nmtflow"
)

// Engine is an alias to the main package interface.
type Engine = nmtflow.Engine

// Tokenizer is an alias to the main package interface.
type Tokenizer = nmtflow.Tokenizer

// DecodeRequest is an alias to the main package type.
type DecodeRequest = nmtflow.DecodeRequest

// EOS is the end-of-sentence token appended by WhitespaceTokenizer.
const EOS = "</s>"

// WhitespaceTokenizer treats every whitespace-separated word as a token and
// uses FLORES-200 tags as language tokens. Engines without a subword
// vocabulary of their own pair with it.
type WhitespaceTokenizer struct{}

// Encode splits text into words and appends EOS.
func (WhitespaceTokenizer) Encode(ctx context.Context, text, lang string) ([]string, error) {
	return append(strings.Fields(text), EOS), nil
}

// Decode joins tokens with single spaces.
func (t WhitespaceTokenizer) Decode(ctx context.Context, tokens []string, skipSpecial bool) (string, error) {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if skipSpecial && t.isSpecial(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " "), nil
}

// LanguageToken returns lang itself when it is a known FLORES-200 tag.
func (WhitespaceTokenizer) LanguageToken(lang string) (string, bool) {
	if _, ok := languageOfTag(lang); ok {
		return lang, true
	}
	return "", false
}

func (WhitespaceTokenizer) isSpecial(tok string) bool {
	if tok == EOS {
		return true
	}
	_, ok := languageOfTag(tok)
	return ok
}

// languageOfTag maps a FLORES-200 tag back to its short language code.
func languageOfTag(tag string) (string, bool) {
	for code, t := range nmtflow.FloresCodes {
		if t == tag {
			return code, true
		}
	}
	return "", false
}

// sourceText rebuilds the text of a WhitespaceTokenizer encoding.
func sourceText(tokens []string) string {
	if n := len(tokens); n > 0 && tokens[n-1] == EOS {
		tokens = tokens[:n-1]
	}
	return strings.Join(tokens, " ")
}

// resume continues a forced prefix with the words of a full target text.
// The prefix's language token is skipped, so the words already present in
// the prefix are not emitted twice. At most maxNew words are generated.
func resume(prefix []string, target string, maxNew int) []string {
	words := strings.Fields(target)
	done := min(max(len(prefix)-1, 0), len(words))
	words = words[done:]
	if maxNew > 0 && len(words) > maxNew {
		words = words[:maxNew]
	}

	hyp := make([]string, 0, len(prefix)+len(words))
	hyp = append(hyp, prefix...)
	return append(hyp, words...)
}

// targetTag returns the language token that heads a target prefix.
func targetTag(prefix []string) string {
	if len(prefix) == 0 {
		return ""
	}
	return prefix[0]
}

var _ Tokenizer = WhitespaceTokenizer{}
