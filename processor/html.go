package processor

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/ZaguanLabs/nmtflow"
)

const noTranslateAttr = "data-no-translate"

var escapeText = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// HTMLProcessor segments HTML into tag, text and literal blocks using the
// x/net/html tokenizer. Every block keeps its raw source bytes, so markup
// is re-emitted exactly as written.
type HTMLProcessor struct {
	ignoredTags map[string]bool
	sanitizer   *Sanitizer
}

// HTMLOption configures an HTMLProcessor.
type HTMLOption func(*HTMLProcessor)

// WithIgnoredTags replaces the set of elements whose content is copied
// through untranslated.
func WithIgnoredTags(tags ...string) HTMLOption {
	return func(p *HTMLProcessor) {
		p.ignoredTags = make(map[string]bool, len(tags))
		for _, tag := range tags {
			p.ignoredTags[strings.ToLower(tag)] = true
		}
	}
}

// WithSanitizer runs s over the input before segmenting it.
func WithSanitizer(s *Sanitizer) HTMLOption {
	return func(p *HTMLProcessor) {
		p.sanitizer = s
	}
}

// NewHTMLProcessor creates a new HTML processor with default ignored tags.
func NewHTMLProcessor(opts ...HTMLOption) *HTMLProcessor {
	p := &HTMLProcessor{ignoredTags: nmtflow.IgnoredTags}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContentType returns "html".
func (p *HTMLProcessor) ContentType() string {
	return "html"
}

// Segment tokenizes content. Text tokens become units, translated without
// their surrounding whitespace. Text inside ignored elements or elements
// marked data-no-translate, comments and doctypes become literal blocks.
func (p *HTMLProcessor) Segment(content string) (*nmtflow.Document, error) {
	if p.sanitizer != nil {
		clean, err := p.sanitizer.Sanitize(content)
		if err != nil {
			return nil, &nmtflow.SegmentError{Message: "sanitize failed", Cause: err, ContentType: p.ContentType()}
		}
		content = clean
	}

	doc := &nmtflow.Document{ContentType: p.ContentType(), Source: content}

	var (
		literalTag   string // element that opened the current literal region
		literalDepth int
	)

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return nil, &nmtflow.SegmentError{Message: "failed to tokenize HTML", Cause: z.Err(), ContentType: p.ContentType()}
		}
		raw := string(z.Raw())

		switch tt {
		case html.TextToken:
			if literalDepth > 0 {
				addSeparator(doc, raw)
				continue
			}
			p.addText(doc, raw)

		case html.StartTagToken, html.SelfClosingTagToken:
			name, attrs, noTranslate := readTag(z)
			if tt == html.SelfClosingTagToken || nmtflow.SelfClosingTags[name] {
				doc.Blocks = append(doc.Blocks, nmtflow.Block{
					Kind: nmtflow.BlockSelfClosing, Raw: raw, Tag: name, Attrs: attrs, Index: -1,
				})
				continue
			}

			switch {
			case literalDepth > 0 && name == literalTag:
				literalDepth++
			case literalDepth == 0 && (p.ignoredTags[name] || noTranslate):
				literalTag, literalDepth = name, 1
			}
			doc.Blocks = append(doc.Blocks, nmtflow.Block{
				Kind: nmtflow.BlockOpenTag, Raw: raw, Tag: name, Attrs: attrs, Index: -1,
			})

		case html.EndTagToken:
			nameBytes, _ := z.TagName()
			name := string(nameBytes)
			if literalDepth > 0 && name == literalTag {
				literalDepth--
			}
			doc.Blocks = append(doc.Blocks, nmtflow.Block{
				Kind: nmtflow.BlockCloseTag, Raw: raw, Tag: name, Index: -1,
			})

		default:
			// Comments and doctypes
			addSeparator(doc, raw)
		}
	}

	return doc, nil
}

// addText adds a text token, splitting off its surrounding whitespace.
func (p *HTMLProcessor) addText(doc *nmtflow.Document, raw string) {
	core := strings.TrimSpace(raw)
	if core == "" {
		addSeparator(doc, raw)
		return
	}
	lead := strings.Index(raw, core)

	idx := len(doc.Units)
	doc.Units = append(doc.Units, nmtflow.Unit{
		Index:    idx,
		Text:     html.UnescapeString(core),
		Leading:  raw[:lead],
		Trailing: raw[lead+len(core):],
	})
	doc.Blocks = append(doc.Blocks, nmtflow.Block{Kind: nmtflow.BlockText, Raw: raw, Index: idx})
}

// readTag returns the lowercased tag name and its attributes without event
// handlers, and whether it carries data-no-translate.
func readTag(z *html.Tokenizer) (string, map[string]string, bool) {
	nameBytes, hasAttr := z.TagName()
	name := string(nameBytes)

	var attrs map[string]string
	noTranslate := false
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		k := string(key)
		if k == noTranslateAttr {
			noTranslate = true
		}
		if strings.HasPrefix(k, "on") {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[k] = string(val)
	}
	return name, attrs, noTranslate
}

// Rehydrate replaces each text block with its escaped translation,
// keeping the original whitespace around it. Blocks without a translation,
// or whose translation equals the source, are emitted unchanged.
func (p *HTMLProcessor) Rehydrate(doc *nmtflow.Document, translations map[int]string) (string, error) {
	if doc == nil {
		return "", &nmtflow.SegmentError{Message: "nil document", ContentType: p.ContentType()}
	}

	var sb strings.Builder
	sb.Grow(len(doc.Source))
	for _, b := range doc.Blocks {
		if b.Kind != nmtflow.BlockText {
			sb.WriteString(b.Raw)
			continue
		}
		if b.Index < 0 || b.Index >= len(doc.Units) {
			sb.WriteString(b.Raw)
			continue
		}

		u := doc.Units[b.Index]
		t, ok := translations[b.Index]
		if !ok || t == u.Text {
			sb.WriteString(b.Raw)
			continue
		}
		sb.WriteString(u.Leading)
		sb.WriteString(escapeText.Replace(t))
		sb.WriteString(u.Trailing)
	}
	return sb.String(), nil
}

var _ ContentProcessor = (*HTMLProcessor)(nil)
