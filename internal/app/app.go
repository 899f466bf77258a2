// Package app assembles a Pipeline, its engine, cache and processors from a
// config.Config. It is shared by the command-line tool and the Lambda
// entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/ZaguanLabs/nmtflow/cache"
	"github.com/ZaguanLabs/nmtflow/config"
	"github.com/ZaguanLabs/nmtflow/engine"
	"github.com/ZaguanLabs/nmtflow/processor"
)

// parallelLookupThreshold is the unit count from which cache lookups run
// concurrently when parallel_lookup is enabled.
const parallelLookupThreshold = 32

// Options are the assembly choices that do not live in the config file.
type Options struct {
	CacheFile string // Warm-start file for the lru cache, exported on Close
	Sanitize  bool   // Sanitize HTML before segmentation
}

// App is a configured pipeline plus the resources it owns.
type App struct {
	Config   *config.Config
	Handle   *nmtflow.EngineHandle
	Pipeline *nmtflow.Pipeline
	Glossary nmtflow.Glossary

	logger  *slog.Logger
	cache   nmtflow.TranslationCache
	closers []func() error
}

// New builds the pipeline described by cfg. The engine is not loaded.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, logger: logger}

	a.Handle = nmtflow.NewEngineHandle(engineLoader(cfg, logger))
	a.Handle.SetLogger(logger)

	if err := a.openCache(ctx, opts.CacheFile); err != nil {
		return nil, err
	}

	if cfg.GlossaryFile != "" {
		g, err := config.LoadGlossary(cfg.GlossaryFile)
		if err != nil {
			return nil, err
		}
		a.Glossary = g
	}

	var htmlOpts []processor.HTMLOption
	if opts.Sanitize {
		htmlOpts = append(htmlOpts, processor.WithSanitizer(processor.NewSanitizer()))
	}

	popts := []nmtflow.PipelineOption{
		nmtflow.WithProcessor(processor.NewTextProcessor()),
		nmtflow.WithProcessor(processor.NewHTMLProcessor(htmlOpts...)),
		nmtflow.WithDecodingConfig(cfg.DecodingConfig()),
		nmtflow.WithLogger(logger),
		nmtflow.WithLogTranslations(cfg.Log.Translations),
	}
	if a.cache != nil {
		popts = append(popts, nmtflow.WithCache(a.cache))
	}
	if cfg.ParallelLookup {
		popts = append(popts, nmtflow.WithParallelLookup(parallelLookupThreshold))
	}

	a.Pipeline = nmtflow.NewPipeline(a.Handle, popts...)
	return a, nil
}

func (a *App) openCache(ctx context.Context, cacheFile string) error {
	switch a.Config.Cache.Backend {
	case config.CacheNone:
		return nil
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			URL:       a.Config.Cache.RedisURL,
			TTL:       a.Config.Cache.TTL,
			KeyPrefix: a.Config.Cache.KeyPrefix,
			Logger:    a.logger,
		})
		if err != nil {
			return err
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
		return nil
	}

	lc, err := cache.NewLRUCache(cache.LRUConfig{Capacity: a.Config.Cache.Capacity, TTL: a.Config.Cache.TTL})
	if err != nil {
		return err
	}
	a.cache = lc

	if cacheFile == "" {
		return nil
	}
	res, err := cache.NewImporter(lc).ImportFromFile(cacheFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Debug("cache file not found, starting cold", "path", cacheFile)
	case err != nil:
		return err
	default:
		a.logger.Info("cache imported", "path", cacheFile, "entries", res.Imported, "skipped", res.Skipped)
	}
	a.closers = append(a.closers, func() error {
		n, err := cache.NewExporter(lc).ExportToFile(cacheFile, map[string]string{"version": nmtflow.FullVersion()})
		if err == nil {
			a.logger.Info("cache exported", "path", cacheFile, "entries", n)
		}
		return err
	})
	return nil
}

// Load loads the engine unless it is configured to load in the background.
func (a *App) Load(ctx context.Context) error {
	if a.Config.Engine.LoadAsync {
		a.Handle.LoadAsync(ctx)
		return nil
	}
	return a.Handle.Load(ctx)
}

// TranslateOptions builds request options for direction, or the configured
// default direction when it is empty. The configured glossary applies when
// the request brings none.
func (a *App) TranslateOptions(direction string, budget int, strict, formal bool, glossary nmtflow.Glossary) (nmtflow.TranslateOptions, error) {
	if direction == "" {
		direction = a.Config.Direction
	}
	dir, err := nmtflow.ParseDirection(direction)
	if err != nil {
		return nmtflow.TranslateOptions{}, err
	}
	if len(glossary) == 0 {
		glossary = a.Glossary
	}
	return nmtflow.TranslateOptions{
		Direction: dir,
		Budget:    budget,
		Strict:    strict,
		Formal:    formal,
		Glossary:  glossary,
	}, nil
}

// Close releases the cache backend and exports the warm-start file.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// engineLoader returns the loader for the configured engine kind, with the
// resilience wrappers applied to whatever it builds.
func engineLoader(cfg *config.Config, logger *slog.Logger) nmtflow.EngineLoader {
	var base nmtflow.EngineLoader
	switch cfg.Engine.Kind {
	case config.EngineHTTP:
		base = engine.HTTPLoader(engine.HTTPConfig{
			BaseURL: cfg.Engine.URL,
			APIKey:  cfg.Engine.APIKey,
			Timeout: cfg.Engine.Timeout,
		})
	case config.EngineLambda:
		base = engine.LambdaLoader(engine.LambdaConfig{
			FunctionName: cfg.Engine.Function,
			Region:       cfg.Engine.Region,
		})
	case config.EngineOpenAI:
		base = func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
			e := engine.NewOpenAIEngine(engine.OpenAIConfig{
				APIKey:  cfg.Engine.APIKey,
				Model:   cfg.Engine.Model,
				BaseURL: cfg.Engine.URL,
			})
			return e, e, nil
		}
	case config.EngineMock:
		base = func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
			m := engine.NewMockEngine()
			return m, m, nil
		}
	default:
		return func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
			return nil, nil, &nmtflow.ConfigError{Message: fmt.Sprintf("unknown engine kind %q", cfg.Engine.Kind)}
		}
	}

	return func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
		eng, tok, err := base(ctx)
		if err != nil {
			return nil, nil, err
		}
		return wrapEngine(eng, cfg.Resilience, logger), tok, nil
	}
}

// wrapEngine applies rate limiting, circuit breaking and retries, in that
// order from the inside out.
func wrapEngine(eng nmtflow.Engine, r config.ResilienceConfig, logger *slog.Logger) nmtflow.Engine {
	if r.RateLimit > 0 {
		eng = nmtflow.NewRateLimitedEngine(eng, nmtflow.RateLimitConfig{SegmentsPerSecond: r.RateLimit})
	}
	if r.Breaker {
		eng = engine.NewBreakerEngine(eng, engine.BreakerConfig{
			FailureThreshold: r.BreakerThreshold,
			Logger:           logger,
		})
	}
	if r.Retries > 0 {
		rc := nmtflow.DefaultRetryConfig()
		rc.MaxRetries = r.Retries
		if logger != nil {
			rc.OnRetry = func(attempt int, delay time.Duration, err error) {
				logger.Warn("retrying engine call", "attempt", attempt, "delay", delay, "error", err)
			}
		}
		eng = nmtflow.NewRetryableEngine(eng, rc)
	}
	return eng
}
