package processor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ZaguanLabs/nmtflow"
)

// DefaultMaxUnitChars is the largest unit, in runes, the text processor
// produces unless a single sentence line is longer.
const DefaultMaxUnitChars = 600

var (
	singleBreak = regexp.MustCompile(`\r\n|\r|\n`)
	// Terminal punctuation, optional closing quotes, whitespace, uppercase.
	sentenceBreak = regexp.MustCompile(`[.!?…]["'»”’)\]]*(\s+)\p{Lu}`)
	lineBreak     = regexp.MustCompile(`[ \t]*(?:\r\n|\r|\n)[ \t]*`)
)

// TextProcessor segments plain text into paragraph units.
type TextProcessor struct {
	maxUnitChars int
}

// TextOption configures a TextProcessor.
type TextOption func(*TextProcessor)

// WithMaxUnitChars sets the size above which paragraphs are split into
// sentences.
func WithMaxUnitChars(n int) TextOption {
	return func(p *TextProcessor) {
		if n > 0 {
			p.maxUnitChars = n
		}
	}
}

// NewTextProcessor creates a plain text processor.
func NewTextProcessor(opts ...TextOption) *TextProcessor {
	p := &TextProcessor{maxUnitChars: DefaultMaxUnitChars}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContentType returns "text".
func (p *TextProcessor) ContentType() string {
	return "text"
}

// Segment splits content on runs of two or more line breaks. Each
// paragraph becomes one unit, or several when it is longer than the unit
// budget. Separators, blank paragraphs and the whitespace around units are
// kept as separator blocks, so every block is an exact substring.
func (p *TextProcessor) Segment(content string) (*nmtflow.Document, error) {
	doc := &nmtflow.Document{ContentType: p.ContentType(), Source: content}

	pos := 0
	for _, sep := range paragraphBreaks(content) {
		p.segmentParagraph(doc, content[pos:sep.start])
		addSeparator(doc, content[sep.start:sep.end])
		pos = sep.end
	}
	p.segmentParagraph(doc, content[pos:])

	return doc, nil
}

// paragraphBreaks returns the runs of two or more line breaks, where only
// spaces and tabs may sit between the breaks of a run. A CRLF pair is one
// break.
func paragraphBreaks(content string) []span {
	var out []span
	var run span
	count := 0
	for _, loc := range singleBreak.FindAllStringIndex(content, -1) {
		if count > 0 && strings.Trim(content[run.end:loc[0]], " \t") == "" {
			run.end = loc[1]
			count++
			continue
		}
		if count >= 2 {
			out = append(out, run)
		}
		run = span{loc[0], loc[1]}
		count = 1
	}
	if count >= 2 {
		out = append(out, run)
	}
	return out
}

func (p *TextProcessor) segmentParagraph(doc *nmtflow.Document, para string) {
	core := strings.TrimSpace(para)
	if core == "" {
		addSeparator(doc, para)
		return
	}

	lead := strings.Index(para, core)
	addSeparator(doc, para[:lead])

	chunks := p.split(core)
	prev := 0
	for _, c := range chunks {
		addSeparator(doc, core[prev:c.start])
		text := core[c.start:c.end]
		idx := len(doc.Units)
		doc.Units = append(doc.Units, nmtflow.Unit{Index: idx, Text: text})
		doc.Blocks = append(doc.Blocks, nmtflow.Block{Kind: nmtflow.BlockText, Raw: text, Index: idx})
		prev = c.end
	}

	addSeparator(doc, para[lead+len(core):])
}

// split cuts an oversized paragraph on sentence boundaries, and sentences
// that are still too long on line boundaries.
func (p *TextProcessor) split(core string) []span {
	if utf8.RuneCountInString(core) <= p.maxUnitChars {
		return []span{{0, len(core)}}
	}

	var out []span
	for _, chunk := range pack(core, sentences(core), p.maxUnitChars) {
		text := core[chunk.start:chunk.end]
		if utf8.RuneCountInString(text) <= p.maxUnitChars {
			out = append(out, chunk)
			continue
		}
		for _, line := range pack(text, gapSplit(text, lineBreak), p.maxUnitChars) {
			out = append(out, span{chunk.start + line.start, chunk.start + line.end})
		}
	}
	return out
}

// sentences returns sentence spans; the whitespace between them is left out.
func sentences(s string) []span {
	var segs []span
	start := 0
	for _, m := range sentenceBreak.FindAllStringSubmatchIndex(s, -1) {
		segs = append(segs, span{start, m[2]})
		start = m[3]
	}
	return append(segs, span{start, len(s)})
}

// gapSplit returns the spans between matches of re.
func gapSplit(s string, re *regexp.Regexp) []span {
	var segs []span
	start := 0
	for _, loc := range re.FindAllStringIndex(s, -1) {
		if loc[0] > start {
			segs = append(segs, span{start, loc[0]})
		}
		start = loc[1]
	}
	if start < len(s) {
		segs = append(segs, span{start, len(s)})
	}
	return segs
}

func addSeparator(doc *nmtflow.Document, raw string) {
	if raw == "" {
		return
	}
	doc.Blocks = append(doc.Blocks, nmtflow.Block{Kind: nmtflow.BlockSeparator, Raw: raw, Index: -1})
}

// Rehydrate joins unit translations with the original separators. Units
// without a translation keep their source text.
func (p *TextProcessor) Rehydrate(doc *nmtflow.Document, translations map[int]string) (string, error) {
	if doc == nil {
		return "", &nmtflow.SegmentError{Message: "nil document", ContentType: p.ContentType()}
	}

	var sb strings.Builder
	sb.Grow(len(doc.Source))
	for _, b := range doc.Blocks {
		if b.Kind == nmtflow.BlockText {
			if t, ok := translations[b.Index]; ok {
				sb.WriteString(t)
				continue
			}
		}
		sb.WriteString(b.Raw)
	}
	return sb.String(), nil
}

var _ ContentProcessor = (*TextProcessor)(nil)
