package gen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/okulai/okulai/internal/log"
)

// ClientConfig configures the genkit-backed generation client.
type ClientConfig struct {
	ModelName   string        // e.g. "googleai/gemini-2.5-flash"
	Temperature float32       // 0 leaves the model default in place
	CallTimeout time.Duration // per-attempt timeout (default: 30s)
	Retry       RetryConfig
	Breaker     CircuitBreakerConfig
	Admission   AdmissionConfig
}

// Client implements Generator on top of a genkit model. Every call passes
// admission control, the circuit breaker, and a bounded retry loop.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	callTimeout time.Duration
	retry       RetryConfig
	breaker     *CircuitBreaker
	admission   *Admission
	logger      log.Logger
}

// NewClient creates a generation client.
func NewClient(g *genkit.Genkit, cfg ClientConfig, logger log.Logger) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Client{
		g:           g,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		callTimeout: cfg.CallTimeout,
		retry:       cfg.Retry.withDefaults(),
		breaker:     NewCircuitBreaker(cfg.Breaker),
		admission:   NewAdmission(cfg.Admission),
		logger:      logger,
	}
}

// Generate runs one model call with retries. Non-retryable errors return
// immediately; retryable ones back off exponentially until the attempt
// budget is spent, after which the last error is wrapped in
// ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := c.admission.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.admission.Release()

	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	var lastErr error
	interval := c.retry.InitialInterval

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := c.call(ctx, req)
		if err == nil {
			c.breaker.Success()
			return resp, nil
		}
		lastErr = err
		c.breaker.Failure()

		if !retryableError(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.Warn("generation attempt failed, retrying",
			"attempt", attempt,
			"backoff", interval,
			"error", err)

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		interval *= 2
		if interval > c.retry.MaxInterval {
			interval = c.retry.MaxInterval
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationFailed, c.retry.MaxAttempts, lastErr)
}

func (c *Client) call(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
	}
	if c.temperature > 0 {
		opts = append(opts, ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(c.temperature),
		}))
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if len(req.Messages) > 0 {
		opts = append(opts, ai.WithMessages(req.Messages...))
	}
	if req.Prompt != "" {
		opts = append(opts, ai.WithPrompt(req.Prompt))
	}

	resp, err := genkit.Generate(callCtx, c.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	return &Response{Text: resp.Text()}, nil
}
