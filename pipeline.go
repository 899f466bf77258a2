package nmtflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// TranslationCache stores finalized unit translations keyed by direction
// scope and normalized text. Implementations never fail: backend errors
// degrade to misses.
type TranslationCache interface {
	Get(direction, text string) (string, bool)
	Put(direction, text, translation string)
	Clear() int
	Stats() CacheStats
}

// ContentProcessor segments one content type into units and rebuilds it.
type ContentProcessor interface {
	Segment(content string) (*Document, error)
	Rehydrate(doc *Document, translations map[int]string) (string, error)
	ContentType() string
}

// Pipeline composes segmentation, caching, protection, decoding and
// reassembly around an engine handle.
type Pipeline struct {
	engine            *EngineHandle
	cache             TranslationCache
	processors        map[string]ContentProcessor
	decoding          DecodingConfig
	logger            *slog.Logger
	logTranslations   bool
	parallelThreshold int
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithCache sets the translation cache.
func WithCache(cache TranslationCache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = cache
	}
}

// WithProcessor registers a content processor.
func WithProcessor(processor ContentProcessor) PipelineOption {
	return func(p *Pipeline) {
		p.processors[processor.ContentType()] = processor
	}
}

// WithDecodingConfig sets the decoding parameters.
func WithDecodingConfig(cfg DecodingConfig) PipelineOption {
	return func(p *Pipeline) {
		p.decoding = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLogTranslations logs every decoded source/target pair at debug level.
func WithLogTranslations(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.logTranslations = enabled
	}
}

// WithParallelLookup enables concurrent cache lookups for requests with at
// least threshold units. 0 disables them.
func WithParallelLookup(threshold int) PipelineOption {
	return func(p *Pipeline) {
		p.parallelThreshold = threshold
	}
}

// NewPipeline creates a Pipeline around an engine handle.
func NewPipeline(engine *EngineHandle, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:     engine,
		processors: make(map[string]ContentProcessor),
		decoding:   DefaultDecodingConfig(),
		logger:     discardLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}
	p.decoding = p.decoding.normalized()

	return p
}

// TranslateTexts translates each text, preserving its paragraph layout.
// The result has one entry per input.
func (p *Pipeline) TranslateTexts(ctx context.Context, texts []string, opts TranslateOptions) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	proc, err := p.processor("text")
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, len(texts))
	var units []string
	for i, text := range texts {
		doc, err := proc.Segment(text)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
		units = append(units, doc.Texts()...)
	}

	translated, err := p.translateUnits(ctx, units, opts)
	if err != nil {
		var scriptErr *ScriptError
		if errors.As(err, &scriptErr) {
			scriptErr.Input, scriptErr.Index = locateUnit(docs, scriptErr.Index)
		}
		return nil, err
	}

	out := make([]string, len(texts))
	offset := 0
	for i, doc := range docs {
		byIndex := make(map[int]string, len(doc.Units))
		for j := range doc.Units {
			byIndex[j] = translated[offset+j]
		}
		offset += len(doc.Units)

		out[i], err = proc.Rehydrate(doc, byIndex)
		if err != nil {
			return nil, &TranslationError{Message: fmt.Sprintf("rehydrating text %d", i), Cause: err}
		}
	}

	return out, nil
}

// locateUnit maps a position in the flattened unit list of docs back to
// the input it came from and its index within that input.
func locateUnit(docs []*Document, flat int) (input, index int) {
	for i, doc := range docs {
		if flat < len(doc.Units) {
			return i, flat
		}
		flat -= len(doc.Units)
	}
	return len(docs) - 1, flat
}

// TranslateHTML translates the text content of an HTML document or
// fragment, leaving its markup untouched. Input without translatable text
// is returned as segmented (after sanitizing, if configured).
func (p *Pipeline) TranslateHTML(ctx context.Context, html string, opts TranslateOptions) (string, error) {
	if err := validateOptions(opts); err != nil {
		return "", err
	}

	proc, err := p.processor("html")
	if err != nil {
		return "", err
	}

	doc, err := proc.Segment(html)
	if err != nil {
		return "", err
	}
	if len(doc.Units) == 0 {
		return doc.Source, nil
	}

	translated, err := p.translateUnits(ctx, doc.Texts(), opts)
	if err != nil {
		return "", err
	}

	byIndex := make(map[int]string, len(translated))
	for i, t := range translated {
		byIndex[i] = t
	}
	out, err := proc.Rehydrate(doc, byIndex)
	if err != nil {
		return "", &TranslationError{Message: "rehydrating html", Cause: err}
	}
	return out, nil
}

// ClearCache empties the translation cache.
func (p *Pipeline) ClearCache() ClearResult {
	if p.cache == nil {
		return ClearResult{}
	}
	n := p.cache.Clear()
	p.logger.Info("translation cache cleared", "entries", n)
	return ClearResult{EntriesCleared: n}
}

// CacheStats reports the translation cache state.
func (p *Pipeline) CacheStats() CacheStats {
	if p.cache == nil {
		return CacheStats{}
	}
	return p.cache.Stats()
}

// Engine returns the engine handle.
func (p *Pipeline) Engine() *EngineHandle {
	return p.engine
}

// DecodingConfig returns the effective decoding parameters.
func (p *Pipeline) DecodingConfig() DecodingConfig {
	return p.decoding
}

type pendingUnit struct {
	text      string
	positions []int
	masked    string
	restore   *RestoreMap
}

// translateUnits resolves units through the cache and decodes the misses.
// Blank units pass through; identical misses are decoded once.
func (p *Pipeline) translateUnits(ctx context.Context, units []string, opts TranslateOptions) ([]string, error) {
	results := make([]string, len(units))
	if len(units) == 0 {
		return results, nil
	}

	if p.engine == nil {
		return nil, &ConfigError{Message: "no engine handle configured", Cause: ErrEngineUnavailable}
	}
	engine, tokenizer, err := p.engine.acquire()
	if err != nil {
		return nil, err
	}

	scope := CacheScope(opts)
	hits := p.lookupCache(scope, units)

	var misses []*pendingUnit
	byKey := make(map[string]*pendingUnit)
	for i, u := range units {
		if strings.TrimSpace(u) == "" {
			results[i] = u
			continue
		}
		if v, ok := hits[i]; ok {
			results[i] = v
			continue
		}

		key := CacheKey(scope, u)
		if pending, ok := byKey[key]; ok {
			pending.positions = append(pending.positions, i)
			continue
		}
		pending := &pendingUnit{text: u, positions: []int{i}}
		byKey[key] = pending
		misses = append(misses, pending)
	}

	if len(misses) > 0 {
		masked := make([]string, len(misses))
		for j, m := range misses {
			m.masked, m.restore = Protect(normalizeLineEndings(m.text), opts.Glossary)
			masked[j] = m.masked
		}

		d := &decoder{
			engine:    engine,
			tokenizer: tokenizer,
			cfg:       p.decoding,
			validator: NewScriptValidator(p.decoding.Script.Threshold),
			logger:    p.logger,
		}
		outs, err := d.translate(ctx, masked, opts)
		if err != nil {
			var scriptErr *ScriptError
			if errors.As(err, &scriptErr) && scriptErr.Index < len(misses) {
				scriptErr.Index = misses[scriptErr.Index].positions[0]
			}
			return nil, err
		}

		for j, m := range misses {
			out := PostNormalize(opts.Direction, outs[j], m.restore, opts.Formal)
			final := Unprotect(out, m.restore, opts.Glossary)
			if m.restore.Lost > 0 || m.restore.Residual > 0 {
				p.logger.Warn("protected spans did not survive decoding",
					"direction", opts.Direction, "lost", m.restore.Lost, "residual", m.restore.Residual)
			}
			if p.logTranslations {
				p.logger.Debug("translation", "direction", opts.Direction, "source", m.text, "target", final)
			}

			if p.cache != nil {
				p.cache.Put(scope, m.text, final)
			}
			for _, pos := range m.positions {
				results[pos] = final
			}
		}
	}

	p.logger.Debug("translated units",
		"direction", opts.Direction, "units", len(units), "cached", len(hits), "decoded", len(misses))

	return results, nil
}

// lookupCache returns cached translations by unit position.
func (p *Pipeline) lookupCache(scope string, units []string) map[int]string {
	if p.cache == nil {
		return map[int]string{}
	}
	if p.parallelThreshold > 0 && len(units) >= p.parallelThreshold {
		return ParallelCacheLookup(p.cache, scope, units)
	}

	hits := make(map[int]string)
	for i, u := range units {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if v, ok := p.cache.Get(scope, u); ok {
			hits[i] = v
		}
	}
	return hits
}

func (p *Pipeline) processor(contentType string) (ContentProcessor, error) {
	proc, ok := p.processors[contentType]
	if !ok {
		return nil, &SegmentError{
			Message:     "no processor registered for content type",
			ContentType: contentType,
		}
	}
	return proc, nil
}

func validateOptions(opts TranslateOptions) error {
	if !opts.Direction.Valid() {
		return &ConfigError{
			Message:   "unsupported direction",
			Direction: opts.Direction,
			Cause:     ErrUnsupportedDirection,
		}
	}
	return nil
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeLineEndings(s string) string {
	return lineEndings.Replace(s)
}
