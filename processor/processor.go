// Package processor segments content into translatable units and rebuilds
// it from their translations.
package processor

import (
	"unicode/utf8"

	"github.com/ZaguanLabs/nmtflow"
)

// ContentProcessor is an alias to the main package interface.
type ContentProcessor = nmtflow.ContentProcessor

// Document is an alias to the main package type.
type Document = nmtflow.Document

// span is a half-open byte range.
type span struct {
	start, end int
}

// pack merges consecutive segments greedily while the merged text stays
// within max runes. A segment longer than max stays whole.
func pack(s string, segs []span, max int) []span {
	if len(segs) == 0 {
		return nil
	}
	out := []span{segs[0]}
	for _, seg := range segs[1:] {
		last := &out[len(out)-1]
		if utf8.RuneCountInString(s[last.start:seg.end]) <= max {
			last.end = seg.end
			continue
		}
		out = append(out, seg)
	}
	return out
}
