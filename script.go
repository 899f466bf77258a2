package nmtflow

import (
	"strings"
	"unicode"
)

// TargetLetters lists the non-ASCII letters each supported language writes
// with, including common loanword diacritics. ASCII letters are always
// allowed.
var TargetLetters = map[string]string{
	"da": "æøåéüäöó",
	"nb": "æøåéèêóòôü",
	"sv": "åäöéü",
	"es": "áéíóúñüï",
	"en": "éï",
	"de": "äöüß",
	"fr": "àâæçéèêëîïôœùûüÿ",
	"it": "àèéìíîòóùú",
	"pt": "áâãàçéêíóôõúü",
}

const commonSymbols = "€$£%&*+=<>|\\~`^@#°§/"

// ScriptValidator checks that text is written in the target alphabet.
type ScriptValidator struct {
	threshold float64
}

// NewScriptValidator creates a validator with the given minimum share of
// allowed characters. Values outside (0, 1] fall back to 0.8.
func NewScriptValidator(threshold float64) *ScriptValidator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	return &ScriptValidator{threshold: threshold}
}

// IsExpectedScript reports whether at least the threshold share of text's
// characters are allowed for lang. Empty text is valid.
func (v *ScriptValidator) IsExpectedScript(text, lang string) bool {
	return v.Ratio(text, lang) >= v.threshold
}

// Ratio returns the share of allowed characters in text, 1 for empty text.
func (v *ScriptValidator) Ratio(text, lang string) float64 {
	letters := TargetLetters[BaseLang(lang)]

	total, allowed := 0, 0
	for _, r := range text {
		total++
		if isAllowedRune(r, letters) {
			allowed++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(allowed) / float64(total)
}

func isAllowedRune(r rune, letters string) bool {
	switch {
	case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
		return true
	case unicode.IsSpace(r), unicode.IsPunct(r):
		return true
	case strings.ContainsRune(commonSymbols, r):
		return true
	case unicode.IsLetter(r):
		return strings.ContainsRune(letters, unicode.ToLower(r))
	default:
		return false
	}
}
