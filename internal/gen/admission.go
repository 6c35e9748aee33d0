package gen

import (
	"context"

	"golang.org/x/time/rate"
)

// AdmissionConfig bounds how much concurrent generation work is accepted.
type AdmissionConfig struct {
	RatePerSecond float64 // sustained request rate (default: 5)
	Burst         int     // rate limiter burst (default: 10)
	MaxConcurrent int     // in-flight generation calls (default: 8)
	QueueSize     int     // callers allowed to wait for a slot (default: 32)
}

// Admission gates generation calls with a token-bucket rate limit and a
// bounded concurrency semaphore. Callers beyond MaxConcurrent+QueueSize are
// rejected immediately with ErrBackpressure instead of queueing without
// bound.
type Admission struct {
	limiter *rate.Limiter
	slots   chan struct{}
	waiters chan struct{}
}

// NewAdmission creates an admission controller, applying defaults for zero
// values in cfg.
func NewAdmission(cfg AdmissionConfig) *Admission {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}

	return &Admission{
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		waiters: make(chan struct{}, cfg.MaxConcurrent+cfg.QueueSize),
	}
}

// Acquire blocks until a concurrency slot and a rate token are available.
// It returns ErrBackpressure when the wait queue is full, or the context
// error if ctx ends first. On success the caller must call Release.
func (a *Admission) Acquire(ctx context.Context) error {
	select {
	case a.waiters <- struct{}{}:
	default:
		return ErrBackpressure
	}

	select {
	case a.slots <- struct{}{}:
	case <-ctx.Done():
		<-a.waiters
		return ctx.Err()
	}

	if err := a.limiter.Wait(ctx); err != nil {
		<-a.slots
		<-a.waiters
		return err
	}
	return nil
}

// Release frees the slot taken by a successful Acquire.
func (a *Admission) Release() {
	<-a.slots
	<-a.waiters
}
