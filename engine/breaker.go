package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/sony/gobreaker"
)

// BreakerConfig configures a BreakerEngine.
type BreakerConfig struct {
	Name             string        // Breaker name used in logs (default: "engine")
	FailureThreshold uint32        // Consecutive failures that open the breaker (default: 5)
	OpenTimeout      time.Duration // Time spent open before a trial call (default: 30s)
	HalfOpenRequests uint32        // Trial calls allowed while half-open (default: 1)
	Logger           *slog.Logger
}

// BreakerEngine stops calling a failing engine for a while instead of
// piling requests onto it. Only transient engine failures count towards
// opening the breaker.
type BreakerEngine struct {
	engine Engine
	cb     *gobreaker.CircuitBreaker
}

// NewBreakerEngine wraps engine with a circuit breaker.
func NewBreakerEngine(engine Engine, cfg BreakerConfig) *BreakerEngine {
	name := cfg.Name
	if name == "" {
		name = "engine"
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &BreakerEngine{
		engine: engine,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: halfOpen,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("engine circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !nmtflow.IsRetryable(err)
			},
		}),
	}
}

// DecodeBatch implements Engine.
func (e *BreakerEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	out, err := e.cb.Execute(func() (interface{}, error) {
		return e.engine.DecodeBatch(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &nmtflow.EngineError{Message: "circuit breaker " + e.cb.Name(), Cause: err}
		}
		return nil, err
	}
	return out.([][]string), nil
}

// State returns the breaker state: "closed", "half-open" or "open".
func (e *BreakerEngine) State() string {
	return e.cb.State().String()
}

var _ Engine = (*BreakerEngine)(nil)
