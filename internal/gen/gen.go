// Package gen adapts the hosted generation service behind a small interface.
//
// The service is treated as untrusted-latency and rate-limited: every call
// goes through global admission control (rate limiter plus a bounded waiter
// queue), a circuit breaker, bounded-backoff retries for transient errors,
// and a per-call timeout. Callers see either a response or an error they can
// match with errors.Is; they never hang on a dead upstream.
package gen

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
)

// Request is one generation call. Prompt and Messages are alternatives:
// single-shot judgment passes use Prompt, conversational calls use Messages.
type Request struct {
	System   string
	Prompt   string
	Messages []*ai.Message
}

// Response is the text produced by the service.
type Response struct {
	Text string
}

// Generator is the consumer-facing contract. Client is the production
// implementation; tests substitute scripted fakes.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Sentinel errors. Check with errors.Is.
var (
	// ErrGenerationFailed indicates all retry attempts were exhausted.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrBackpressure indicates the admission queue is full; the caller
	// should surface a busy signal rather than wait.
	ErrBackpressure = errors.New("generation backpressure: admission queue full")

	// ErrCircuitOpen indicates the circuit breaker is rejecting calls.
	ErrCircuitOpen = errors.New("generation circuit open")
)
