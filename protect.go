package nmtflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SpanKind classifies a protected span.
type SpanKind string

const (
	KindURL    SpanKind = "URL"
	KindEmail  SpanKind = "EMAIL"
	KindDate   SpanKind = "DATE"
	KindNumber SpanKind = "NUM"
)

const termKind = "TERM"

// ProtectedSpan records one masked occurrence in the original text.
type ProtectedSpan struct {
	Kind     SpanKind
	Index    int // Placeholder number, assigned left to right
	Start    int // Byte offset in the original text
	End      int
	Original string
	Restore  string // Value put back on unprotect; starts equal to Original
}

// Placeholder returns the marker that stands in for the span.
func (s ProtectedSpan) Placeholder() string {
	return placeholder(string(s.Kind), strconv.Itoa(s.Index))
}

// RestoreMap carries everything Unprotect needs to undo Protect.
type RestoreMap struct {
	Spans []ProtectedSpan
	Terms []string // Matched glossary text in order of appearance

	// SourceBrackets is set when the unmasked text already contained ⟦ or
	// ⟧; those are content and survive the residual cleanup.
	SourceBrackets bool

	// Filled in by Unprotect.
	Lost     int // Spans whose placeholder was missing from the engine output
	Residual int // Unresolved markers stripped from the output
}

var protectPatterns = []struct {
	kind SpanKind
	re   *regexp.Regexp
}{
	{KindURL, regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'⟦⟧]+`)},
	{KindEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{KindDate, regexp.MustCompile(`\b\d{1,2}[./\-]\d{1,2}[./\-]\d{2,4}\b`)},
	{KindNumber, regexp.MustCompile(`\b\d{1,3}(?:[.,]\d{3})+(?:[.,]\d+)?\b|\b\d+(?:[.,]\d+)?\b`)},
}

var (
	placeholderPattern = regexp.MustCompile(`⟦\s*(URL|EMAIL|DATE|NUM)\s*:\s*(\d+)\s*⟧`)
	termMarkerPattern  = regexp.MustCompile(`⟦\s*TERM\s*:\s*([^⟧]*?)\s*⟧`)
	residualPattern    = regexp.MustCompile(`⟦\s*(?:URL|EMAIL|DATE|NUM|TERM)\s*:\s*[^⟦⟧\s]*\s*⟧?`)
	bracketPattern     = regexp.MustCompile(`[⟦⟧]`)
)

const urlTrailingPunct = ".,;:!?)]}"

func placeholder(kind, value string) string {
	return "⟦" + kind + ":" + value + "⟧"
}

// Protect masks URLs, emails, dates and numbers with indexed placeholders,
// then wraps glossary terms in term markers. Candidates are claimed in that
// priority order; a lower-priority candidate overlapping a claimed span is
// dropped. Every occurrence gets its own record, numbered left to right.
func Protect(text string, glossary Glossary) (string, *RestoreMap) {
	rm := &RestoreMap{SourceBrackets: strings.ContainsAny(text, "⟦⟧")}

	var spans []ProtectedSpan
	overlaps := func(start, end int) bool {
		for _, s := range spans {
			if start < s.End && s.Start < end {
				return true
			}
		}
		return false
	}

	for _, p := range protectPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.kind == KindURL {
				end = start + len(strings.TrimRight(text[start:end], urlTrailingPunct))
			}
			if end <= start || overlaps(start, end) {
				continue
			}
			spans = append(spans, ProtectedSpan{
				Kind:     p.kind,
				Start:    start,
				End:      end,
				Original: text[start:end],
				Restore:  text[start:end],
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var b strings.Builder
	pos := 0
	for i := range spans {
		spans[i].Index = i
		b.WriteString(text[pos:spans[i].Start])
		b.WriteString(spans[i].Placeholder())
		pos = spans[i].End
	}
	b.WriteString(text[pos:])
	rm.Spans = spans

	masked := b.String()
	if len(glossary) > 0 {
		masked, rm.Terms = protectTerms(masked, glossary)
	}
	return masked, rm
}

type glossaryTerm struct {
	text string
	re   *regexp.Regexp
}

// protectTerms wraps glossary terms, longest first, on word boundaries.
// Text already inside a placeholder is never matched.
func protectTerms(masked string, glossary Glossary) (string, []string) {
	terms := sortedTerms(glossary)
	if len(terms) == 0 {
		return masked, nil
	}

	alternatives := make([]string, len(terms))
	for i, t := range terms {
		alternatives[i] = regexp.QuoteMeta(t.text)
	}
	candidates := regexp.MustCompile(`(?i)` + strings.Join(alternatives, "|"))

	protected := placeholderPattern.FindAllStringIndex(masked, -1)
	insidePlaceholder := func(i int) int {
		for _, p := range protected {
			if i >= p[0] && i < p[1] {
				return p[1]
			}
		}
		return -1
	}

	var (
		b       strings.Builder
		matched []string
		pos     int
		scan    int
	)
	for scan < len(masked) {
		loc := candidates.FindStringIndex(masked[scan:])
		if loc == nil {
			break
		}
		start := scan + loc[0]
		if end := insidePlaceholder(start); end >= 0 {
			scan = end
			continue
		}

		end := -1
		for _, t := range terms {
			m := t.re.FindStringIndex(masked[start:])
			if m == nil {
				continue
			}
			if isWordBoundary(masked, start) && isWordBoundary(masked, start+m[1]) {
				end = start + m[1]
				break
			}
		}
		if end < 0 {
			_, size := utf8.DecodeRuneInString(masked[start:])
			scan = start + size
			continue
		}

		b.WriteString(masked[pos:start])
		b.WriteString(placeholder(termKind, masked[start:end]))
		matched = append(matched, masked[start:end])
		pos, scan = end, end
	}
	b.WriteString(masked[pos:])
	return b.String(), matched
}

func sortedTerms(glossary Glossary) []glossaryTerm {
	terms := make([]glossaryTerm, 0, len(glossary))
	for k := range glossary {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		terms = append(terms, glossaryTerm{
			text: k,
			re:   regexp.MustCompile(`^(?i)` + regexp.QuoteMeta(k)),
		})
	}
	sort.Slice(terms, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(terms[i].text), utf8.RuneCountInString(terms[j].text)
		if li != lj {
			return li > lj
		}
		return terms[i].text < terms[j].text
	})
	return terms
}

// isWordBoundary reports whether offset i in s does not split a word. Terms
// that start or end with punctuation still match next to other punctuation.
func isWordBoundary(s string, i int) bool {
	var before, after rune = -1, -1
	if i > 0 {
		before, _ = utf8.DecodeLastRuneInString(s[:i])
	}
	if i < len(s) {
		after, _ = utf8.DecodeRuneInString(s[i:])
	}
	return !isWordRune(before) || !isWordRune(after)
}

func isWordRune(r rune) bool {
	return r >= 0 && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

// Unprotect reverses Protect. Term markers resolve through a
// case-insensitive glossary lookup, falling back to the matched text;
// placeholders resolve to their span's Restore value; anything left over is
// stripped.
func Unprotect(masked string, rm *RestoreMap, glossary Glossary) string {
	lookup := make(map[string]string, len(glossary))
	for k, v := range glossary {
		lookup[strings.ToLower(strings.TrimSpace(k))] = v
	}

	out := termMarkerPattern.ReplaceAllStringFunc(masked, func(m string) string {
		sub := termMarkerPattern.FindStringSubmatch(m)
		if v, ok := lookup[strings.ToLower(strings.TrimSpace(sub[1]))]; ok {
			return v
		}
		return sub[1]
	})

	if rm != nil {
		seen := make(map[int]bool, len(rm.Spans))
		out = placeholderPattern.ReplaceAllStringFunc(out, func(m string) string {
			sub := placeholderPattern.FindStringSubmatch(m)
			idx, err := strconv.Atoi(sub[2])
			if err != nil || idx < 0 || idx >= len(rm.Spans) {
				return m
			}
			seen[idx] = true
			return rm.Spans[idx].Restore
		})
		rm.Lost = len(rm.Spans) - len(seen)
	}

	out, n := StripResidualMarkers(out, rm != nil && rm.SourceBrackets)
	if rm != nil {
		rm.Residual = n
	}
	return out
}

// StripResidualMarkers removes placeholder and term marker fragments left
// in s and reports how many were removed. Stray brackets are removed too
// unless keepBrackets is set.
func StripResidualMarkers(s string, keepBrackets bool) (string, int) {
	n := 0
	strip := func(string) string {
		n++
		return ""
	}
	out := residualPattern.ReplaceAllStringFunc(s, strip)
	if !keepBrackets {
		out = bracketPattern.ReplaceAllStringFunc(out, strip)
	}
	if n > 0 {
		out = strings.Join(strings.FieldsFunc(out, func(r rune) bool { return r == ' ' }), " ")
	}
	return out, n
}

func (rm *RestoreMap) String() string {
	return fmt.Sprintf("RestoreMap{spans=%d terms=%d lost=%d residual=%d}", len(rm.Spans), len(rm.Terms), rm.Lost, rm.Residual)
}
