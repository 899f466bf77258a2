package nmtflow

import (
	"strings"
	"sync"
)

// ParallelCacheLookup looks up units in the cache concurrently. Units that
// normalize to the same key are looked up once. Blank units are skipped.
// Returns cached translations by unit position.
func ParallelCacheLookup(cache TranslationCache, scope string, units []string) map[int]string {
	hits := make(map[int]string)
	if cache == nil || len(units) == 0 {
		return hits
	}

	type lookupResult struct {
		key   string
		value string
		found bool
	}

	// Deduplicate units by key first
	positions := make(map[string][]int)
	sample := make(map[string]string)
	for i, u := range units {
		if strings.TrimSpace(u) == "" {
			continue
		}
		key := CacheKey(scope, u)
		if _, exists := positions[key]; !exists {
			sample[key] = u
		}
		positions[key] = append(positions[key], i)
	}

	results := make(chan lookupResult, len(positions))
	var wg sync.WaitGroup

	for key, text := range sample {
		wg.Add(1)
		go func(k, t string) {
			defer wg.Done()
			if val, ok := cache.Get(scope, t); ok {
				results <- lookupResult{key: k, value: val, found: true}
			} else {
				results <- lookupResult{key: k}
			}
		}(key, text)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if !r.found {
			continue
		}
		for _, pos := range positions[r.key] {
			hits[pos] = r.value
		}
	}

	return hits
}
