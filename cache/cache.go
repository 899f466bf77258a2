// Package cache provides translation cache backends for the pipeline.
package cache

import (
	"strings"

	"github.com/ZaguanLabs/nmtflow"
)

// TranslationCache is the interface every backend implements.
type TranslationCache = nmtflow.TranslationCache

// Entry is one cached translation as exposed for export.
type Entry struct {
	Scope string // Direction key-space, e.g. "es-da" or "es-da+formal"
	Text  string // Normalized source text
	Value string
}

// ExportableCache is a cache whose contents can be enumerated.
type ExportableCache interface {
	TranslationCache
	Entries() []Entry
}

// splitKey reverses nmtflow.CacheKey. Scopes never contain ':'.
func splitKey(key string) (scope, text string) {
	scope, text, _ = strings.Cut(key, ":")
	return scope, text
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
