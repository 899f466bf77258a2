package processor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	defaultStripTags = []string{"script", "style", "iframe", "object", "embed"}
	unsafeScheme     = regexp.MustCompile(`(?i)^\s*(?:javascript|data|vbscript|file):`)
	documentMarker   = regexp.MustCompile(`(?i)<(?:!doctype|html|head|body)[\s>]`)
	urlAttrs         = []string{"href", "src", "action", "formaction", "xlink:href"}
)

// Sanitizer removes active content from HTML before it is segmented.
type Sanitizer struct {
	stripTags []string
}

// NewSanitizer creates a sanitizer that drops script, style, iframe,
// object and embed elements, event handler attributes and URLs with
// executable schemes. Extra tags are dropped too.
func NewSanitizer(extraTags ...string) *Sanitizer {
	tags := append([]string{}, defaultStripTags...)
	for _, t := range extraTags {
		tags = append(tags, strings.ToLower(t))
	}
	return &Sanitizer{stripTags: tags}
}

// Sanitize returns the cleaned markup. Fragments come back as fragments;
// full documents keep their html, head and body elements.
func (s *Sanitizer) Sanitize(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", err
	}

	doc.Find(strings.Join(s.stripTags, ", ")).Remove()

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			cleanAttrs(n)
		}
	})

	if documentMarker.MatchString(content) {
		return doc.Html()
	}
	return doc.Find("body").Html()
}

func cleanAttrs(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if isURLAttr(key) && unsafeScheme.MatchString(a.Val) {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func isURLAttr(key string) bool {
	for _, a := range urlAttrs {
		if key == a {
			return true
		}
	}
	return false
}
