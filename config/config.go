// Package config loads nmtflow settings from a YAML file, NMTFLOW_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "NMTFLOW"

// Engine kinds.
const (
	EngineMock   = "mock"
	EngineHTTP   = "http"
	EngineLambda = "lambda"
	EngineOpenAI = "openai"
)

// Cache backends.
const (
	CacheLRU   = "lru"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Config is the complete service configuration.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Decoding   DecodingConfig   `mapstructure:"decoding"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Log        LogConfig        `mapstructure:"log"`

	Direction      string `mapstructure:"direction"`       // Default direction for the CLI
	GlossaryFile   string `mapstructure:"glossary_file"`   // YAML term map applied to every request
	ParallelLookup bool   `mapstructure:"parallel_lookup"` // Look up cache entries concurrently
}

// EngineConfig selects and configures the translation engine.
type EngineConfig struct {
	Kind      string        `mapstructure:"kind"`
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Function  string        `mapstructure:"function"`
	Region    string        `mapstructure:"region"`
	Model     string        `mapstructure:"model"`
	LoadAsync bool          `mapstructure:"load_async"`
}

// CacheConfig selects and configures the translation cache.
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	Capacity  int           `mapstructure:"capacity"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// DecodingConfig holds the tunable decoding parameters.
type DecodingConfig struct {
	BeamWidth         int           `mapstructure:"beam_width"`
	MaxBeamWidth      int           `mapstructure:"max_beam_width"`
	MaxEscalations    int           `mapstructure:"max_escalations"`
	RepetitionPenalty float64       `mapstructure:"repetition_penalty"`
	NoRepeatNgramSize int           `mapstructure:"no_repeat_ngram_size"`
	MaxBatchSize      int           `mapstructure:"max_batch_size"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MinTokens         int           `mapstructure:"min_tokens"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	MaxPasses         int           `mapstructure:"max_passes"`
	ScriptThreshold   float64       `mapstructure:"script_threshold"`
}

// ResilienceConfig configures the optional engine wrappers.
type ResilienceConfig struct {
	Retries          int     `mapstructure:"retries"`
	RateLimit        float64 `mapstructure:"rate_limit"` // Segments per second, 0 disables
	Breaker          bool    `mapstructure:"breaker"`
	BreakerThreshold uint32  `mapstructure:"breaker_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level        string `mapstructure:"level"`
	Translations bool   `mapstructure:"translations"` // Log source/target pairs at debug level
}

// New returns a viper instance with defaults and environment binding set
// up. Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

// SetDefaults installs the default of every key on v and binds NMTFLOW_*
// environment variables.
func SetDefaults(v *viper.Viper) {
	def := nmtflow.DefaultDecodingConfig()

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	v.SetDefault("engine.kind", EngineMock)
	v.SetDefault("engine.url", "")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.timeout", 2*time.Minute)
	v.SetDefault("engine.function", "")
	v.SetDefault("engine.region", "")
	v.SetDefault("engine.model", "gpt-4o-mini")
	v.SetDefault("engine.load_async", false)
	v.SetDefault("cache.backend", CacheLRU)
	v.SetDefault("cache.capacity", 1024)
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "nmtflow:")
	v.SetDefault("decoding.beam_width", def.BeamWidth)
	v.SetDefault("decoding.max_beam_width", def.Script.MaxBeamWidth)
	v.SetDefault("decoding.max_escalations", def.Script.MaxEscalations)
	v.SetDefault("decoding.repetition_penalty", def.RepetitionPenalty)
	v.SetDefault("decoding.no_repeat_ngram_size", def.NoRepeatNgramSize)
	v.SetDefault("decoding.max_batch_size", def.MaxBatchSize)
	v.SetDefault("decoding.request_timeout", def.RequestTimeout)
	v.SetDefault("decoding.min_tokens", def.Budget.MinTokens)
	v.SetDefault("decoding.max_tokens", def.Budget.MaxTokens)
	v.SetDefault("decoding.max_passes", def.Continuation.MaxPasses)
	v.SetDefault("decoding.script_threshold", def.Script.Threshold)
	v.SetDefault("resilience.retries", 0)
	v.SetDefault("resilience.rate_limit", 0.0)
	v.SetDefault("resilience.breaker", false)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.translations", false)
	v.SetDefault("direction", string(nmtflow.SpanishToDanish))
	v.SetDefault("glossary_file", "")
	v.SetDefault("parallel_lookup", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads cfgFile, or ./nmtflow.yaml or $HOME/.nmtflow.yaml when it is
// empty, and returns the validated configuration. A missing default file is
// not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName("nmtflow")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, &nmtflow.ConfigError{Message: "failed to read config file", Cause: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &nmtflow.ConfigError{Message: "failed to decode config", Cause: err}
	}
	if cfg.Engine.APIKey == "" && cfg.Engine.Kind == EngineOpenAI {
		cfg.Engine.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Engine.Kind {
	case EngineMock:
	case EngineHTTP:
		if c.Engine.URL == "" {
			errs = append(errs, &nmtflow.ConfigError{Message: "engine.url is required for the http engine"})
		}
	case EngineLambda:
		if c.Engine.Function == "" {
			errs = append(errs, &nmtflow.ConfigError{Message: "engine.function is required for the lambda engine"})
		}
	case EngineOpenAI:
		if c.Engine.APIKey == "" {
			errs = append(errs, &nmtflow.ConfigError{Message: "engine.api_key or OPENAI_API_KEY is required for the openai engine"})
		}
	default:
		errs = append(errs, &nmtflow.ConfigError{Message: fmt.Sprintf("unknown engine kind %q", c.Engine.Kind)})
	}

	switch c.Cache.Backend {
	case CacheLRU, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, &nmtflow.ConfigError{Message: "cache.redis_url is required for the redis cache"})
		}
	default:
		errs = append(errs, &nmtflow.ConfigError{Message: fmt.Sprintf("unknown cache backend %q", c.Cache.Backend)})
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, &nmtflow.ConfigError{Message: "cache.capacity must not be negative"})
	}

	if c.Direction != "" {
		if _, err := nmtflow.ParseDirection(c.Direction); err != nil {
			errs = append(errs, &nmtflow.ConfigError{Message: "invalid direction", Cause: err})
		}
	}

	d := c.Decoding
	if d.ScriptThreshold < 0 || d.ScriptThreshold > 1 {
		errs = append(errs, &nmtflow.ConfigError{Message: "decoding.script_threshold must be within [0, 1]"})
	}
	if d.MaxTokens > 0 && d.MinTokens > d.MaxTokens {
		errs = append(errs, &nmtflow.ConfigError{Message: "decoding.min_tokens exceeds decoding.max_tokens"})
	}
	if d.BeamWidth < 0 || d.MaxBeamWidth < 0 || d.MaxBatchSize < 0 {
		errs = append(errs, &nmtflow.ConfigError{Message: "decoding widths and sizes must not be negative"})
	}
	if c.Resilience.Retries < 0 || c.Resilience.RateLimit < 0 {
		errs = append(errs, &nmtflow.ConfigError{Message: "resilience settings must not be negative"})
	}

	return errors.Join(errs...)
}

// DecodingConfig converts the settings into the pipeline's decoding
// parameters. Zero values keep the pipeline defaults.
func (c *Config) DecodingConfig() nmtflow.DecodingConfig {
	out := nmtflow.DefaultDecodingConfig()
	d := c.Decoding

	if d.BeamWidth > 0 {
		out.BeamWidth = d.BeamWidth
	}
	if d.MaxBeamWidth > 0 {
		out.Script.MaxBeamWidth = d.MaxBeamWidth
	}
	if d.MaxEscalations > 0 {
		out.Script.MaxEscalations = d.MaxEscalations
	}
	if d.RepetitionPenalty > 0 {
		out.RepetitionPenalty = d.RepetitionPenalty
	}
	out.NoRepeatNgramSize = d.NoRepeatNgramSize
	if d.MaxBatchSize > 0 {
		out.MaxBatchSize = d.MaxBatchSize
	}
	if d.RequestTimeout > 0 {
		out.RequestTimeout = d.RequestTimeout
	}
	if d.MinTokens > 0 {
		out.Budget.MinTokens = d.MinTokens
	}
	if d.MaxTokens > 0 {
		out.Budget.MaxTokens = d.MaxTokens
	}
	if d.MaxPasses >= 0 {
		out.Continuation.MaxPasses = d.MaxPasses
	}
	if d.ScriptThreshold > 0 {
		out.Script.Threshold = d.ScriptThreshold
	}
	return out
}
