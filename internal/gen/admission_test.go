package gen

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAdmissionAcquireRelease(t *testing.T) {
	a := NewAdmission(AdmissionConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 2, QueueSize: 1})
	ctx := context.Background()

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	a.Release()
	a.Release()

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
	a.Release()
}

func TestAdmissionBackpressure(t *testing.T) {
	a := NewAdmission(AdmissionConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 1, QueueSize: 1})
	ctx := context.Background()

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// One waiter fits in the queue.
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- a.Acquire(ctx)
	}()

	// Give the waiter time to enqueue.
	time.Sleep(20 * time.Millisecond)

	// Queue is now full.
	if err := a.Acquire(ctx); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("Acquire = %v, want ErrBackpressure", err)
	}

	a.Release()
	if err := <-waiterDone; err != nil {
		t.Fatalf("queued Acquire: %v", err)
	}
	a.Release()
}

func TestAdmissionContextCancellation(t *testing.T) {
	a := NewAdmission(AdmissionConfig{RatePerSecond: 1000, Burst: 1000, MaxConcurrent: 1, QueueSize: 2})

	if err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Acquire(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
	a.Release()
}
