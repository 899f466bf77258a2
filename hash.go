package nmtflow

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText returns the cache-equivalence form of text: NFC composed,
// whitespace runs collapsed to one space, trimmed and lowercased.
func NormalizeText(text string) string {
	composed := norm.NFC.String(text)
	return strings.ToLower(strings.Join(strings.Fields(composed), " "))
}

// HashText computes the SHA-256 hash of the normalized text.
func HashText(text string) string {
	hash := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(hash[:])
}

// CacheKey generates a direction-qualified cache key for text.
func CacheKey(scope, text string) string {
	return scope + ":" + NormalizeText(text)
}

// CacheScope returns the cache key-space for a request. Plain requests use
// the bare direction. Formal register and glossaries change the output, so
// they get their own qualified scopes.
func CacheScope(opts TranslateOptions) string {
	scope := string(opts.Direction)
	if opts.Formal {
		scope += "+formal"
	}
	if len(opts.Glossary) > 0 {
		scope += "+g=" + glossaryFingerprint(opts.Glossary)
	}
	return scope
}

func glossaryFingerprint(g Glossary) string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(strings.ToLower(k)))
		h.Write([]byte{0})
		h.Write([]byte(g[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}
