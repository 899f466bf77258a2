package nmtflow

// BlockKind identifies the role of a Block within a segmented document.
type BlockKind int

const (
	// BlockText is translatable text. Its Index points at a Unit.
	BlockText BlockKind = iota
	// BlockOpenTag is an HTML start tag.
	BlockOpenTag
	// BlockCloseTag is an HTML end tag.
	BlockCloseTag
	// BlockSelfClosing is a void or self-closing HTML element (br, hr, img, ...).
	BlockSelfClosing
	// BlockSeparator is literal text copied through untouched: paragraph
	// breaks, whitespace-only runs, comments, ignored element bodies.
	BlockSeparator
)

func (k BlockKind) String() string {
	switch k {
	case BlockText:
		return "text"
	case BlockOpenTag:
		return "open"
	case BlockCloseTag:
		return "close"
	case BlockSelfClosing:
		return "self-closing"
	case BlockSeparator:
		return "separator"
	default:
		return "unknown"
	}
}

// Block is one ordered fragment of a segmented document. Concatenating the
// Raw field of every block reproduces the segmented source exactly.
type Block struct {
	Kind  BlockKind
	Raw   string            // Verbatim source bytes
	Tag   string            // Lowercased tag name for tag blocks
	Attrs map[string]string // Filtered attributes for open and self-closing tags
	Index int               // Unit index for text blocks, -1 otherwise
}

// Unit is one translatable span of text produced by segmentation.
type Unit struct {
	Index    int    // Position in Document.Units
	Text     string // Trimmed text submitted for translation
	Leading  string // Whitespace preceding Text inside the block
	Trailing string // Whitespace following Text inside the block
}

// Document is the result of segmenting one input.
type Document struct {
	ContentType string
	Source      string // Input after any sanitizing, the base for rehydration
	Blocks      []Block
	Units       []Unit
}

// Texts returns the unit texts in index order.
func (d *Document) Texts() []string {
	texts := make([]string, len(d.Units))
	for i, u := range d.Units {
		texts[i] = u.Text
	}
	return texts
}

// Glossary maps source terms to their required rendering in the output.
type Glossary map[string]string

// TranslateOptions carries the per-request parameters of an entry point.
type TranslateOptions struct {
	Direction Direction
	Budget    int  // Explicit token budget, 0 when the caller supplied none
	Strict    bool // Honour Budget exactly: no floor elevation, no continuation
	Formal    bool // Rewrite the output in formal register where supported
	Glossary  Glossary
}

// CacheStats reports the state of a TranslationCache.
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"` // 0 when the backend is unbounded
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"` // Percentage, 0 when no lookups happened
}

// ClearResult is returned by Pipeline.ClearCache.
type ClearResult struct {
	EntriesCleared int `json:"entries_cleared"`
}

// IgnoredTags contains HTML tags whose content is copied through untranslated.
var IgnoredTags = map[string]bool{
	"script":   true,
	"style":    true,
	"code":     true,
	"pre":      true,
	"textarea": true,
	"noscript": true,
}

// SelfClosingTags contains the HTML void elements.
var SelfClosingTags = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"source": true,
	"track":  true,
	"wbr":    true,
}
