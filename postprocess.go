package nmtflow

import (
	"regexp"
	"strings"
)

var (
	datePartsPattern = regexp.MustCompile(`^(\d{1,2})[./\-](\d{1,2})[./\-](\d{2,4})$`)

	// No \b here: RE2 word boundaries are ASCII-only and would split words
	// at æ, ø and å. Matches are checked with isWordBoundary instead.
	danishGreeting = regexp.MustCompile(`(?i)hej\s+`)
	danishClosing  = regexp.MustCompile(`(?i)(?:med venlig hilsen|venlig hilsen|hilsen|mvh)`)
	danishPronouns = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)du`), "De"},
		{regexp.MustCompile(`(?i)dig`), "Dem"},
		{regexp.MustCompile(`(?i)dine?`), "Deres"},
	}
)

// PostNormalize applies the target language's conventions to a decoded,
// still masked, unit. Date conventions are applied to the protected date
// records so Unprotect restores them already rewritten.
func PostNormalize(dir Direction, text string, rm *RestoreMap, formal bool) string {
	switch dir.Target() {
	case "da":
		rewriteDates(rm, ".")
		if formal {
			text = FormalizeDanish(text)
		}
	case "es":
		rewriteDates(rm, "/")
	}
	return text
}

func rewriteDates(rm *RestoreMap, sep string) {
	if rm == nil {
		return
	}
	for i, s := range rm.Spans {
		if s.Kind != KindDate {
			continue
		}
		if m := datePartsPattern.FindStringSubmatch(s.Original); m != nil {
			rm.Spans[i].Restore = m[1] + sep + m[2] + sep + m[3]
		}
	}
}

// FormalizeDanish rewrites Danish text into formal register: the first
// "Hej X" greeting becomes "Kære X", informal closings become
// "Med venlig hilsen" and du/dig/din/dine become De/Dem/Deres.
func FormalizeDanish(text string) string {
	for _, loc := range danishGreeting.FindAllStringIndex(text, -1) {
		if isWordBoundary(text, loc[0]) {
			text = text[:loc[0]] + "Kære " + text[loc[1]:]
			break
		}
	}

	text = replaceWords(text, danishClosing, "Med venlig hilsen")

	for _, p := range danishPronouns {
		text = replaceWords(text, p.re, p.repl)
	}
	return text
}

// replaceWords replaces the matches of re that start and end on word
// boundaries.
func replaceWords(text string, re *regexp.Regexp, repl string) string {
	locs := re.FindAllStringIndex(text, -1)
	if locs == nil {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	prev := 0
	for _, loc := range locs {
		if !isWordBoundary(text, loc[0]) || !isWordBoundary(text, loc[1]) {
			continue
		}
		sb.WriteString(text[prev:loc[0]])
		sb.WriteString(repl)
		prev = loc[1]
	}
	sb.WriteString(text[prev:])
	return sb.String()
}
