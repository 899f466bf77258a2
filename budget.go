package nmtflow

import (
	"math"
	"time"
)

// BudgetConfig tunes DeriveBudget. The multipliers are defaults observed to
// avoid truncation, not correctness constants.
type BudgetConfig struct {
	ShortMultiplier float64 // Applied when the longest input is <= LongThreshold tokens
	LongMultiplier  float64 // Applied above LongThreshold; never below ShortMultiplier
	LongThreshold   int
	MinTokens       int // Floor of every derived budget
	MaxTokens       int // Ceiling of every derived budget, 0 for none
}

// ContinuationConfig tunes truncation detection and continuation.
type ContinuationConfig struct {
	Margin              int    // A hypothesis within Margin tokens of its budget may be truncated
	MaxPasses           int    // Continuation passes per unit, 0 disables continuation
	TerminalPunctuation string // Runes that mark a hypothesis as complete
}

// ScriptConfig tunes the script validator and beam escalation.
type ScriptConfig struct {
	Threshold      float64 // Minimum share of allowed characters
	MaxEscalations int     // Retries with a wider beam before giving up
	MaxBeamWidth   int     // Beam width is never raised above this
}

// DecodingConfig holds the parameters of every decoding attempt.
type DecodingConfig struct {
	BeamWidth         int
	RepetitionPenalty float64
	NoRepeatNgramSize int
	MaxBatchSize      int           // Cache misses are decoded in batches of at most this size
	RequestTimeout    time.Duration // Upper bound of a single engine call

	Budget       BudgetConfig
	Continuation ContinuationConfig
	Script       ScriptConfig
}

// DefaultBudgetConfig returns the default budget parameters.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		ShortMultiplier: 2.0,
		LongMultiplier:  3.0,
		LongThreshold:   128,
		MinTokens:       256,
		MaxTokens:       2048,
	}
}

// DefaultDecodingConfig returns sensible defaults for decoding.
func DefaultDecodingConfig() DecodingConfig {
	return DecodingConfig{
		BeamWidth:         4,
		RepetitionPenalty: 1.2,
		MaxBatchSize:      16,
		RequestTimeout:    300 * time.Second,
		Budget:            DefaultBudgetConfig(),
		Continuation: ContinuationConfig{
			Margin:              2,
			MaxPasses:           1,
			TerminalPunctuation: `.!?…:;"'»)]`,
		},
		Script: ScriptConfig{
			Threshold:      0.8,
			MaxEscalations: 3,
			MaxBeamWidth:   8,
		},
	}
}

// normalized fills zero values with defaults and repairs settings that
// would break budget monotonicity.
func (c BudgetConfig) normalized() BudgetConfig {
	def := DefaultBudgetConfig()
	if c.ShortMultiplier <= 0 {
		c.ShortMultiplier = def.ShortMultiplier
	}
	if c.LongMultiplier < c.ShortMultiplier {
		c.LongMultiplier = c.ShortMultiplier
	}
	if c.LongThreshold <= 0 {
		c.LongThreshold = def.LongThreshold
	}
	if c.MinTokens <= 0 {
		c.MinTokens = 1
	}
	if c.MaxTokens > 0 && c.MaxTokens < c.MinTokens {
		c.MaxTokens = c.MinTokens
	}
	return c
}

func (c DecodingConfig) normalized() DecodingConfig {
	def := DefaultDecodingConfig()
	if c.BeamWidth <= 0 {
		c.BeamWidth = def.BeamWidth
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.Continuation.Margin < 0 {
		c.Continuation.Margin = 0
	}
	if c.Continuation.MaxPasses < 0 {
		c.Continuation.MaxPasses = 0
	}
	if c.Continuation.TerminalPunctuation == "" {
		c.Continuation.TerminalPunctuation = def.Continuation.TerminalPunctuation
	}
	if c.Script.Threshold <= 0 || c.Script.Threshold > 1 {
		c.Script.Threshold = def.Script.Threshold
	}
	if c.Script.MaxEscalations < 0 {
		c.Script.MaxEscalations = 0
	}
	if c.Script.MaxBeamWidth < c.BeamWidth {
		c.Script.MaxBeamWidth = c.BeamWidth + c.Script.MaxEscalations
	}
	c.Budget = c.Budget.normalized()
	return c
}

// DeriveBudget computes the decoding budget for a batch from the token
// lengths of its inputs. It is monotone: a batch whose longest input is
// longer never gets a smaller budget.
func DeriveBudget(lengths []int, cfg BudgetConfig) int {
	cfg = cfg.normalized()

	longest := 0
	for _, n := range lengths {
		if n > longest {
			longest = n
		}
	}

	mult := cfg.ShortMultiplier
	if longest > cfg.LongThreshold {
		mult = cfg.LongMultiplier
	}

	budget := int(math.Ceil(float64(longest) * mult))
	if budget < cfg.MinTokens {
		budget = cfg.MinTokens
	}
	if cfg.MaxTokens > 0 && budget > cfg.MaxTokens {
		budget = cfg.MaxTokens
	}
	return budget
}

// EffectiveBudget picks the budget of a decoding attempt. A strict explicit
// budget is honoured exactly; otherwise an explicit budget below the
// derived floor is raised to it.
func EffectiveBudget(explicit int, strict bool, derived int) int {
	switch {
	case explicit <= 0:
		return derived
	case strict:
		return explicit
	case explicit < derived:
		return derived
	default:
		return explicit
	}
}
