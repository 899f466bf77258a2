package nmtflow

import (
	"fmt"
	"strings"
)

// Direction is a translation direction written "source-target", e.g. "es-da".
type Direction string

const (
	// SpanishToDanish translates Spanish into Danish.
	SpanishToDanish Direction = "es-da"
	// DanishToSpanish translates Danish into Spanish.
	DanishToSpanish Direction = "da-es"
)

// FloresCodes maps short language codes to the FLORES-200 tags the engine
// and tokenizer use as language tokens.
var FloresCodes = map[string]string{
	"es": "spa_Latn",
	"da": "dan_Latn",
	"en": "eng_Latn",
	"sv": "swe_Latn",
	"nb": "nob_Latn",
	"de": "deu_Latn",
	"fr": "fra_Latn",
	"it": "ita_Latn",
	"pt": "por_Latn",
}

// LanguageNames maps short language codes to human-readable names.
var LanguageNames = map[string]string{
	"es": "Spanish",
	"da": "Danish",
	"en": "English",
	"sv": "Swedish",
	"nb": "Norwegian Bokmål",
	"de": "German",
	"fr": "French",
	"it": "Italian",
	"pt": "Portuguese",
}

// ParseDirection parses "es-da", "ES_DA" or "es→da" into a Direction.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", "→", "-", ">", "-").Replace(s)

	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDirection, s)
	}

	src, tgt := BaseLang(parts[0]), BaseLang(parts[1])
	if _, ok := FloresCodes[src]; !ok {
		return "", fmt.Errorf("%w: unknown source language %q", ErrUnsupportedDirection, parts[0])
	}
	if _, ok := FloresCodes[tgt]; !ok {
		return "", fmt.Errorf("%w: unknown target language %q", ErrUnsupportedDirection, parts[1])
	}
	if src == tgt {
		return "", fmt.Errorf("%w: source and target are both %q", ErrUnsupportedDirection, src)
	}

	return Direction(src + "-" + tgt), nil
}

// Source returns the short source language code.
func (d Direction) Source() string {
	src, _, _ := strings.Cut(string(d), "-")
	return src
}

// Target returns the short target language code.
func (d Direction) Target() string {
	_, tgt, _ := strings.Cut(string(d), "-")
	return tgt
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	return Direction(d.Target() + "-" + d.Source())
}

// SourceTag returns the FLORES-200 tag of the source language.
func (d Direction) SourceTag() string {
	return FloresCodes[d.Source()]
}

// TargetTag returns the FLORES-200 tag of the target language.
func (d Direction) TargetTag() string {
	return FloresCodes[d.Target()]
}

// Valid reports whether both languages of the direction are supported.
func (d Direction) Valid() bool {
	_, err := ParseDirection(string(d))
	return err == nil && Direction(strings.ToLower(string(d))) == d
}

// BaseLang extracts the base language code ("da" from "da_DK" or "da-DK").
func BaseLang(lang string) string {
	lang = strings.ReplaceAll(lang, "-", "_")
	base, _, _ := strings.Cut(lang, "_")
	return strings.ToLower(base)
}

// GetLanguageName returns the human-readable name for a language code.
// Falls back to the code itself if not found.
func GetLanguageName(langCode string) string {
	if name, ok := LanguageNames[BaseLang(langCode)]; ok {
		return name
	}
	return langCode
}

// ToHTMLLang converts a locale code to HTML lang attribute format (e.g., "da_DK" → "da-DK").
func ToHTMLLang(langCode string) string {
	return strings.ReplaceAll(langCode, "_", "-")
}
