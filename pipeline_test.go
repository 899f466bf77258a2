package nmtflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func newTestPipeline(engine *mockEngine, cache TranslationCache, opts ...PipelineOption) *Pipeline {
	base := []PipelineOption{
		WithProcessor(&paragraphProcessor{contentType: "text"}),
		WithProcessor(&paragraphProcessor{contentType: "html"}),
		WithDecodingConfig(testDecodingConfig()),
	}
	if cache != nil {
		base = append(base, WithCache(cache))
	}
	handle := NewReadyEngineHandle(engine, newMockTokenizer())
	return NewPipeline(handle, append(base, opts...)...)
}

func TestPipeline_TranslateTexts(t *testing.T) {
	engine := newMockEngine(map[string]string{
		"Hola mundo.":  "Hej verden.",
		"Buenos días.": "God morgen.",
	})
	p := newTestPipeline(engine, newMockCache())

	out, err := p.TranslateTexts(context.Background(), []string{"Hola mundo.", "Buenos días.\n\nHola mundo."}, esda)
	if err != nil {
		t.Fatalf("TranslateTexts failed: %v", err)
	}

	want := []string{"Hej verden.", "God morgen.\n\nHej verden."}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %q, want %q", out, want)
	}
	// Both distinct units go out in a single batch
	if engine.calls() != 1 || len(engine.request(0).Source) != 2 {
		t.Errorf("expected one batch of 2, got %d calls", engine.calls())
	}
}

func TestPipeline_EmptyInput(t *testing.T) {
	p := NewPipeline(nil, WithProcessor(&paragraphProcessor{contentType: "text"}))

	out, err := p.TranslateTexts(context.Background(), nil, esda)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", out)
	}
}

func TestPipeline_BlankTextsPassThrough(t *testing.T) {
	engine := newMockEngine(nil)
	p := newTestPipeline(engine, newMockCache())

	in := []string{"", "   ", "\n\n"}
	out, err := p.TranslateTexts(context.Background(), in, esda)
	if err != nil {
		t.Fatalf("TranslateTexts failed: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("got %q, want %q", out, in)
	}
	if engine.calls() != 0 {
		t.Errorf("engine called %d times for blank input", engine.calls())
	}
}

func TestPipeline_CacheHitSkipsEngine(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola mundo.": "Hej verden."})
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	if _, err := p.TranslateTexts(context.Background(), []string{"Hola mundo."}, esda); err != nil {
		t.Fatal(err)
	}
	calls := engine.calls()

	out, err := p.TranslateTexts(context.Background(), []string{"hola   MUNDO."}, esda)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "Hej verden." {
		t.Errorf("got %q", out[0])
	}
	if engine.calls() != calls {
		t.Errorf("cosmetic variant should be served from cache")
	}
}

func TestPipeline_CacheIsDirectional(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola.": "Hej."})
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	if _, err := p.TranslateTexts(context.Background(), []string{"Hola."}, esda); err != nil {
		t.Fatal(err)
	}
	if _, err := p.TranslateTexts(context.Background(), []string{"Hola."}, TranslateOptions{Direction: DanishToSpanish}); err != nil {
		t.Fatal(err)
	}
	if engine.calls() != 2 {
		t.Errorf("opposite direction must not hit the cache, got %d calls", engine.calls())
	}
	if got := engine.request(1).TargetPrefix[0][0]; got != "spa_Latn" {
		t.Errorf("second request prefix = %q", got)
	}
}

func TestPipeline_DeduplicatesMisses(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola.": "Hej."})
	p := newTestPipeline(engine, newMockCache())

	out, err := p.TranslateTexts(context.Background(), []string{"Hola.", "Hola.", "hola."}, esda)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range out {
		if s != "Hej." {
			t.Errorf("out[%d] = %q", i, s)
		}
	}
	if n := len(engine.request(0).Source); n != 1 {
		t.Errorf("expected 1 unique source, got %d", n)
	}
}

func TestPipeline_ProtectsSpans(t *testing.T) {
	engine := newMockEngine(nil)
	engine.outputFn = func(source string, beam int) string {
		return strings.NewReplacer("Visita", "Besøg", "el", "den").Replace(source)
	}
	p := newTestPipeline(engine, nil)

	out, err := p.TranslateTexts(context.Background(), []string{"Visita https://acme.com el 12/03/2024."}, esda)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "Besøg https://acme.com den 12.03.2024." {
		t.Errorf("got %q", out[0])
	}

	src := strings.Join(engine.request(0).Source[0], " ")
	if strings.Contains(src, "acme.com") || strings.Contains(src, "2024") {
		t.Errorf("protected values reached the engine: %q", src)
	}
}

func TestPipeline_GlossaryScopedCache(t *testing.T) {
	engine := newMockEngine(nil)
	engine.outputFn = func(source string, beam int) string {
		return strings.Replace(source, "Bienvenido a", "Velkommen til", 1)
	}
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	opts := TranslateOptions{Direction: SpanishToDanish, Glossary: Glossary{"Acme": "Acme"}}
	out, err := p.TranslateTexts(context.Background(), []string{"Bienvenido a Acme"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "Velkommen til Acme" {
		t.Errorf("got %q", out[0])
	}

	if _, ok := cache.Get(string(DanishToSpanish), "Bienvenido a Acme"); ok {
		t.Error("entry leaked into the da-es key space")
	}
	if _, ok := cache.Get(CacheScope(opts), "Bienvenido a Acme"); !ok {
		t.Error("entry missing from its own scope")
	}
}

func TestPipeline_FormalRegister(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola Ana, ¿cómo estás?": "Hej Ana, hvordan har du det?"})
	p := newTestPipeline(engine, newMockCache())

	opts := TranslateOptions{Direction: SpanishToDanish, Formal: true}
	out, err := p.TranslateTexts(context.Background(), []string{"Hola Ana, ¿cómo estás?"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "Kære Ana, hvordan har De det?" {
		t.Errorf("got %q", out[0])
	}

	informal, err := p.TranslateTexts(context.Background(), []string{"Hola Ana, ¿cómo estás?"}, esda)
	if err != nil {
		t.Fatal(err)
	}
	if informal[0] != "Hej Ana, hvordan har du det?" {
		t.Errorf("formal output leaked into the plain scope: %q", informal[0])
	}
}

func TestPipeline_EngineUnavailable(t *testing.T) {
	handle := NewEngineHandle(func(ctx context.Context) (Engine, Tokenizer, error) {
		return newMockEngine(nil), newMockTokenizer(), nil
	})
	p := NewPipeline(handle, WithProcessor(&paragraphProcessor{contentType: "text"}))

	_, err := p.TranslateTexts(context.Background(), []string{"Hola."}, esda)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %T", err)
	}
}

func TestPipeline_UnsupportedDirection(t *testing.T) {
	p := newTestPipeline(newMockEngine(nil), nil)

	_, err := p.TranslateTexts(context.Background(), []string{"Hola"}, TranslateOptions{Direction: "es-xx"})
	if !errors.Is(err, ErrUnsupportedDirection) {
		t.Errorf("expected ErrUnsupportedDirection, got %v", err)
	}
	_, err = p.TranslateHTML(context.Background(), "<p>Hola</p>", TranslateOptions{Direction: "es-es"})
	if !errors.Is(err, ErrUnsupportedDirection) {
		t.Errorf("expected ErrUnsupportedDirection, got %v", err)
	}
}

func TestPipeline_NoProcessor(t *testing.T) {
	p := NewPipeline(NewReadyEngineHandle(newMockEngine(nil), newMockTokenizer()))

	_, err := p.TranslateHTML(context.Background(), "<p>Hola</p>", esda)
	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("expected SegmentError, got %v", err)
	}
	if segErr.ContentType != "html" {
		t.Errorf("ContentType = %q", segErr.ContentType)
	}
}

func TestPipeline_ScriptErrorReportsOriginalPosition(t *testing.T) {
	engine := newMockEngine(nil)
	engine.outputFn = func(source string, beam int) string {
		if source == "Dos." {
			return "Два."
		}
		return "En."
	}
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	_, err := p.TranslateTexts(context.Background(), []string{"Uno.", "Uno.", "Dos."}, esda)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Input != 2 || scriptErr.Index != 0 {
		t.Errorf("Input, Index = %d, %d; want 2, 0", scriptErr.Input, scriptErr.Index)
	}
	if cache.puts != 0 {
		t.Errorf("failed request stored %d cache entries", cache.puts)
	}
}

func TestPipeline_ScriptErrorLocatesInputText(t *testing.T) {
	engine := newMockEngine(nil)
	engine.outputFn = func(source string, beam int) string {
		if source == "Tres." {
			return "Три."
		}
		return "En."
	}
	p := newTestPipeline(engine, newMockCache())

	_, err := p.TranslateTexts(context.Background(), []string{"Uno.\nDos.", "Dos.\nTres."}, esda)
	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		t.Fatalf("expected ScriptError, got %v", err)
	}
	if scriptErr.Input != 1 || scriptErr.Index != 1 {
		t.Errorf("Input, Index = %d, %d; want 1, 1", scriptErr.Input, scriptErr.Index)
	}
	if !strings.Contains(err.Error(), "unit 1 of input 1") {
		t.Errorf("error should name the input: %v", err)
	}
}

func TestLocateUnit(t *testing.T) {
	docs := []*Document{
		{Units: []Unit{{Index: 0}, {Index: 1}}},
		{},
		{Units: []Unit{{Index: 0}, {Index: 1}, {Index: 2}}},
	}
	tests := []struct {
		flat, input, index int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 2, 0},
		{4, 2, 2},
	}
	for _, tt := range tests {
		input, index := locateUnit(docs, tt.flat)
		if input != tt.input || index != tt.index {
			t.Errorf("locateUnit(%d) = %d, %d; want %d, %d", tt.flat, input, index, tt.input, tt.index)
		}
	}
}

func TestPipeline_EngineFailureDoesNotCache(t *testing.T) {
	engine := newMockEngine(nil)
	engine.err = errors.New("device lost")
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	_, err := p.TranslateTexts(context.Background(), []string{"Hola."}, esda)
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if cache.Stats().Size != 0 {
		t.Error("nothing should be cached after an engine failure")
	}
}

func TestPipeline_TranslateHTML(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola.": "Hej."})
	p := newTestPipeline(engine, nil)

	out, err := p.TranslateHTML(context.Background(), "Hola.\n", esda)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hej.\n" {
		t.Errorf("got %q", out)
	}

	out, err = p.TranslateHTML(context.Background(), "\n\n", esda)
	if err != nil {
		t.Fatal(err)
	}
	if out != "\n\n" {
		t.Errorf("input without units should come back as is, got %q", out)
	}
}

func TestPipeline_ParallelLookup(t *testing.T) {
	engine := newMockEngine(map[string]string{"Uno.": "En.", "Dos.": "To.", "Tres.": "Tre."})
	cache := newSlowCache(0)
	p := newTestPipeline(engine, cache, WithParallelLookup(2))

	in := []string{"Uno.", "Dos.", "Tres."}
	if _, err := p.TranslateTexts(context.Background(), in, esda); err != nil {
		t.Fatal(err)
	}
	out, err := p.TranslateTexts(context.Background(), in, esda)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, []string{"En.", "To.", "Tre."}) {
		t.Errorf("got %q", out)
	}
	if engine.calls() != 1 {
		t.Errorf("second request should be served from cache, got %d calls", engine.calls())
	}
}

func TestPipeline_ClearCacheAndStats(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola.": "Hej."})
	cache := newMockCache()
	p := newTestPipeline(engine, cache)

	if _, err := p.TranslateTexts(context.Background(), []string{"Hola.", "Adiós."}, esda); err != nil {
		t.Fatal(err)
	}
	if got := p.CacheStats().Size; got != 2 {
		t.Errorf("Size = %d, want 2", got)
	}
	if got := p.ClearCache().EntriesCleared; got != 2 {
		t.Errorf("EntriesCleared = %d, want 2", got)
	}
	if got := p.CacheStats().Size; got != 0 {
		t.Errorf("Size after clear = %d", got)
	}

	noCache := newTestPipeline(engine, nil)
	if noCache.ClearCache().EntriesCleared != 0 || noCache.CacheStats() != (CacheStats{}) {
		t.Error("pipeline without cache should report zeros")
	}
}

func TestNewPipeline_NormalizesDecodingConfig(t *testing.T) {
	p := NewPipeline(nil, WithDecodingConfig(DecodingConfig{}))
	cfg := p.DecodingConfig()
	if cfg.BeamWidth != 4 || cfg.MaxBatchSize != 16 || cfg.Script.Threshold != 0.8 {
		t.Errorf("zero config not filled with defaults: %+v", cfg)
	}
}

type brokenRehydrator struct {
	paragraphProcessor
}

func (p *brokenRehydrator) Rehydrate(doc *Document, translations map[int]string) (string, error) {
	return "", &SegmentError{ContentType: p.contentType, Message: "block index out of range"}
}

func TestPipeline_RehydrateFailure(t *testing.T) {
	engine := newMockEngine(map[string]string{"Hola": "Hej"})
	handle := NewReadyEngineHandle(engine, newMockTokenizer())
	p := NewPipeline(handle,
		WithProcessor(&brokenRehydrator{paragraphProcessor{contentType: "html"}}),
		WithDecodingConfig(testDecodingConfig()),
	)

	_, err := p.TranslateHTML(context.Background(), "Hola", esda)

	var trErr *TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %T: %v", err, err)
	}
	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Errorf("expected the SegmentError cause to be preserved, got %v", err)
	}
}
