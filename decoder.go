package nmtflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	leakedLangTag  = regexp.MustCompile(`\b[a-z]{3}_[A-Z][a-z]{3}\b`)
	leakedControl  = regexp.MustCompile(`<\|[^|]*\|>|</?s>|<pad>|<unk>`)
	multipleSpaces = regexp.MustCompile(`[ \t]{2,}`)
)

// decoder drives the engine for one request: budget selection, batching,
// continuation of truncated hypotheses and script escalation.
type decoder struct {
	engine    Engine
	tokenizer Tokenizer
	cfg       DecodingConfig
	validator *ScriptValidator
	logger    *slog.Logger
}

// translate decodes already protected texts. The result has one entry per
// input or the call fails as a whole. Script failures are reported with the
// index of the offending text in texts.
func (d *decoder) translate(ctx context.Context, texts []string, opts TranslateOptions) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}

	targetTag := opts.Direction.TargetTag()
	prefixToken, ok := d.tokenizer.LanguageToken(targetTag)
	if targetTag == "" || !ok || prefixToken == "" {
		return nil, &ConfigError{
			Message:   fmt.Sprintf("tokenizer has no prefix token for %q", targetTag),
			Direction: opts.Direction,
			Cause:     ErrMissingLanguageToken,
		}
	}

	sources := make([][]string, len(texts))
	for i, text := range texts {
		tokens, err := d.tokenizer.Encode(ctx, text, opts.Direction.SourceTag())
		if err != nil {
			return nil, &EngineError{Message: "tokenize failed", Cause: err}
		}
		sources[i] = tokens
	}

	results := make([]string, 0, len(texts))
	for start := 0; start < len(sources); start += d.cfg.MaxBatchSize {
		end := min(start+d.cfg.MaxBatchSize, len(sources))
		out, err := d.decodeBatch(ctx, sources[start:end], prefixToken, opts, d.cfg.BeamWidth)
		if err != nil {
			return nil, err
		}
		results = append(results, out...)
	}

	target := opts.Direction.Target()
	for i, text := range results {
		if d.validator.IsExpectedScript(text, target) {
			continue
		}
		fixed, err := d.escalate(ctx, i, sources[i], prefixToken, opts, text)
		if err != nil {
			return nil, err
		}
		results[i] = fixed
	}

	return results, nil
}

// decodeBatch runs one decoding attempt plus any continuation passes and
// returns cleaned text per source.
func (d *decoder) decodeBatch(ctx context.Context, sources [][]string, prefixToken string, opts TranslateOptions, beam int) ([]string, error) {
	lengths := make([]int, len(sources))
	prefixes := make([][]string, len(sources))
	for i, s := range sources {
		lengths[i] = len(s)
		prefixes[i] = []string{prefixToken}
	}
	budget := EffectiveBudget(opts.Budget, opts.Strict, DeriveBudget(lengths, d.cfg.Budget))

	hyps, err := d.call(ctx, DecodeRequest{
		Source:            sources,
		TargetPrefix:      prefixes,
		BeamWidth:         beam,
		MaxNewTokens:      budget,
		RepetitionPenalty: d.cfg.RepetitionPenalty,
		NoRepeatNgramSize: d.cfg.NoRepeatNgramSize,
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, len(sources))
	for i := range sources {
		generated := stripPrefix(hyps[i], prefixes[i])
		if !opts.Strict {
			generated, err = d.continueIfTruncated(ctx, sources[i], prefixToken, generated, budget, opts, beam)
			if err != nil {
				return nil, err
			}
		}

		text, err := d.tokenizer.Decode(ctx, generated, true)
		if err != nil {
			return nil, &EngineError{Message: "detokenize failed", Cause: err}
		}
		out[i] = cleanTranslation(text)
	}
	return out, nil
}

// continueIfTruncated extends a hypothesis that stopped at its budget
// without terminal punctuation, using it as a forced prefix. The number of
// passes is capped by Continuation.MaxPasses.
func (d *decoder) continueIfTruncated(ctx context.Context, source []string, prefixToken string, generated []string, budget int, opts TranslateOptions, beam int) ([]string, error) {
	lastLen := len(generated)

	for pass := 0; pass < d.cfg.Continuation.MaxPasses; pass++ {
		truncated, err := d.looksTruncated(ctx, generated, lastLen, budget)
		if err != nil {
			return nil, err
		}
		if !truncated {
			break
		}

		next := DeriveBudget([]int{len(source)}, d.cfg.Budget)
		d.logger.Warn("hypothesis looks truncated, continuing",
			"direction", opts.Direction, "generated", len(generated), "budget", budget, "pass", pass+1)

		prefix := make([]string, 0, len(generated)+1)
		prefix = append(prefix, prefixToken)
		prefix = append(prefix, generated...)

		hyps, err := d.call(ctx, DecodeRequest{
			Source:            [][]string{source},
			TargetPrefix:      [][]string{prefix},
			BeamWidth:         beam,
			MaxNewTokens:      next,
			RepetitionPenalty: d.cfg.RepetitionPenalty,
			NoRepeatNgramSize: d.cfg.NoRepeatNgramSize,
		})
		if err != nil {
			return nil, err
		}

		more := stripPrefix(hyps[0], prefix)
		if len(more) > 0 && len(generated) > 0 && more[0] == generated[len(generated)-1] {
			more = more[1:]
		}
		if len(more) == 0 {
			break
		}

		generated = append(generated, more...)
		lastLen = len(more)
		budget = next
	}

	return generated, nil
}

// looksTruncated reports whether the last attempt used (almost) its whole
// budget and the text does not end on terminal punctuation.
func (d *decoder) looksTruncated(ctx context.Context, generated []string, lastLen, budget int) (bool, error) {
	if lastLen < budget-d.cfg.Continuation.Margin {
		return false, nil
	}

	text, err := d.tokenizer.Decode(ctx, generated, true)
	if err != nil {
		return false, &EngineError{Message: "detokenize failed", Cause: err}
	}
	return !endsWithTerminal(cleanTranslation(text), d.cfg.Continuation.TerminalPunctuation), nil
}

func endsWithTerminal(text, terminal string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text)
	return strings.ContainsRune(terminal, r)
}

// escalate retries a single unit with a wider beam until its output passes
// the script check or the escalation budget runs out.
func (d *decoder) escalate(ctx context.Context, index int, source []string, prefixToken string, opts TranslateOptions, rejected string) (string, error) {
	target := opts.Direction.Target()
	beam := d.cfg.BeamWidth
	attempts := 1

	for esc := 0; esc < d.cfg.Script.MaxEscalations && beam < d.cfg.Script.MaxBeamWidth; esc++ {
		beam++
		d.logger.Warn("output failed script check, retrying with wider beam",
			"unit", index, "direction", opts.Direction, "beam", beam,
			"ratio", d.validator.Ratio(rejected, target))

		out, err := d.decodeBatch(ctx, [][]string{source}, prefixToken, opts, beam)
		if err != nil {
			return "", err
		}
		attempts++

		if d.validator.IsExpectedScript(out[0], target) {
			return out[0], nil
		}
		rejected = out[0]
	}

	return "", &ScriptError{
		Index:     index,
		Direction: opts.Direction,
		Attempts:  attempts,
		Text:      rejected,
	}
}

// call performs one bounded engine call and checks the hypothesis count.
func (d *decoder) call(ctx context.Context, req DecodeRequest) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	hyps, err := d.engine.DecodeBatch(ctx, req)
	if err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, &EngineError{Message: "decode batch failed", Cause: err}
	}
	if len(hyps) != len(req.Source) {
		return nil, &CountMismatchError{Expected: len(req.Source), Got: len(hyps)}
	}
	return hyps, nil
}

// stripPrefix removes the forced target prefix from a hypothesis. Engines
// that echo only the language token are handled too.
func stripPrefix(hyp, prefix []string) []string {
	if len(hyp) >= len(prefix) {
		match := true
		for i := range prefix {
			if hyp[i] != prefix[i] {
				match = false
				break
			}
		}
		if match {
			return append([]string(nil), hyp[len(prefix):]...)
		}
	}
	if len(hyp) > 0 && len(prefix) > 0 && hyp[0] == prefix[0] {
		return append([]string(nil), hyp[1:]...)
	}
	return append([]string(nil), hyp...)
}

// cleanTranslation removes language tags and control tokens that leaked
// into the decoded text.
func cleanTranslation(text string) string {
	text = leakedLangTag.ReplaceAllString(text, "")
	text = leakedControl.ReplaceAllString(text, "")
	text = multipleSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
