package nmtflow

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket metering segments sent to the engine.
// One token is one source segment, so a batch of sixteen costs sixteen.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	SegmentsPerSecond float64
	Burst             int // defaults to one full decoding batch
}

// NewRateLimiter returns a limiter starting with a full bucket.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rate := cfg.SegmentsPerSecond
	if rate <= 0 {
		rate = 32
	}
	burst := float64(cfg.Burst)
	if burst <= 0 {
		burst = float64(DefaultDecodingConfig().MaxBatchSize)
	}
	return &RateLimiter{
		tokens:     burst,
		capacity:   burst,
		perSecond:  rate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until n tokens are available or ctx is done. Requests larger
// than the bucket are clamped to its capacity so they can still proceed.
func (r *RateLimiter) Wait(ctx context.Context, n int) error {
	for {
		wait, ok := r.reserve(n)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAcquire takes n tokens if they are available right now.
func (r *RateLimiter) TryAcquire(n int) bool {
	_, ok := r.reserve(n)
	return ok
}

// Available reports the tokens currently in the bucket.
func (r *RateLimiter) Available() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill(time.Now())
	return r.tokens
}

func (r *RateLimiter) reserve(n int) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	need := float64(n)
	if need > r.capacity {
		need = r.capacity
	}
	r.refill(time.Now())
	if r.tokens >= need {
		r.tokens -= need
		return 0, true
	}
	deficit := need - r.tokens
	return time.Duration(deficit / r.perSecond * float64(time.Second)), false
}

// must hold mu
func (r *RateLimiter) refill(now time.Time) {
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.perSecond
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.lastRefill = now
}

// RateLimitedEngine throttles DecodeBatch calls by batch size.
type RateLimitedEngine struct {
	engine  Engine
	limiter *RateLimiter
}

var _ Engine = (*RateLimitedEngine)(nil)

func NewRateLimitedEngine(engine Engine, cfg RateLimitConfig) *RateLimitedEngine {
	return &RateLimitedEngine{engine: engine, limiter: NewRateLimiter(cfg)}
}

func (e *RateLimitedEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	if err := e.limiter.Wait(ctx, len(req.Source)); err != nil {
		return nil, &EngineError{Message: "rate limit wait cancelled", Cause: err}
	}
	return e.engine.DecodeBatch(ctx, req)
}

// Limiter exposes the underlying bucket.
func (e *RateLimitedEngine) Limiter() *RateLimiter {
	return e.limiter
}
