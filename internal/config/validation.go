package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration validation. Check with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidAlpha indicates the hybrid weight is outside [0,1].
	ErrInvalidAlpha = errors.New("invalid retrieval alpha")

	// ErrInvalidTopK indicates the retrieval topK is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidBudget indicates the rerank context budget is not positive.
	ErrInvalidBudget = errors.New("invalid rerank context budget")

	// ErrInvalidMargin indicates the expert confidence margin is outside [0,1].
	ErrInvalidMargin = errors.New("invalid expert confidence margin")

	// ErrInvalidMaxExperts indicates the expert fan-out cap is out of range.
	ErrInvalidMaxExperts = errors.New("invalid max experts")

	// ErrInvalidWindow indicates the memory window size is not positive.
	ErrInvalidWindow = errors.New("invalid memory window")

	// ErrInvalidAdmission indicates the generation admission limits are invalid.
	ErrInvalidAdmission = errors.New("invalid generation admission limits")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

// Upper bounds guarding against misconfiguration rather than policy.
const (
	maxTopK       = 100
	maxExpertsCap = 5
)

// Validate checks the configuration for range errors. It returns the first
// violation found, wrapped around its sentinel.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (must be gemini or openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return ErrInvalidModelName
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		return fmt.Errorf("%w: %v (must be in [0,1])", ErrInvalidAlpha, c.Retrieval.Alpha)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > maxTopK {
		return fmt.Errorf("%w: %d (must be in [1,%d])", ErrInvalidTopK, c.Retrieval.TopK, maxTopK)
	}
	if c.Retrieval.UseMMR && (c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1) {
		return fmt.Errorf("%w: mmr_lambda %v (must be in [0,1])", ErrInvalidAlpha, c.Retrieval.MMRLambda)
	}

	if c.Rerank.ContextBudget < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidBudget, c.Rerank.ContextBudget)
	}

	if c.Experts.ConfidenceMargin < 0 || c.Experts.ConfidenceMargin > 1 {
		return fmt.Errorf("%w: %v (must be in [0,1])", ErrInvalidMargin, c.Experts.ConfidenceMargin)
	}
	if c.Experts.MaxExperts < 1 || c.Experts.MaxExperts > maxExpertsCap {
		return fmt.Errorf("%w: %d (must be in [1,%d])", ErrInvalidMaxExperts, c.Experts.MaxExperts, maxExpertsCap)
	}

	if c.Memory.WindowTurns < 1 {
		return fmt.Errorf("%w: window_turns %d", ErrInvalidWindow, c.Memory.WindowTurns)
	}
	if c.Memory.CompactThreshold <= c.Memory.WindowTurns {
		return fmt.Errorf("%w: compact_threshold %d must exceed window_turns %d",
			ErrInvalidWindow, c.Memory.CompactThreshold, c.Memory.WindowTurns)
	}

	if c.Generation.MaxConcurrent < 1 || c.Generation.QueueSize < 0 {
		return fmt.Errorf("%w: max_concurrent=%d queue_size=%d",
			ErrInvalidAdmission, c.Generation.MaxConcurrent, c.Generation.QueueSize)
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts=%d", ErrInvalidAdmission, c.Generation.MaxAttempts)
	}

	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}
