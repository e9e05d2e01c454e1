package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrExceedsCapacity is returned when a caller asks for more tokens than the
// bucket can ever hold.
var ErrExceedsCapacity = errors.New("requested tokens exceed bucket capacity")

// Limiter is satisfied by Bucket and Adaptive.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
	TryAcquire(n int) bool
}

// Bucket is a token-bucket rate limiter.
type Bucket struct {
	name string

	mu       sync.Mutex
	capacity float64 // effective capacity, requests per minute
	tokens   float64
	last     time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithClock replaces the time source and the sleep function. Tests use it to
// observe waits without sleeping.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(b *Bucket) {
		b.now = now
		b.sleep = sleep
	}
}

// NewBucket creates a full bucket holding perMinute tokens.
func NewBucket(name string, perMinute float64, opts ...Option) *Bucket {
	b := &Bucket{
		name:     name,
		capacity: perMinute,
		tokens:   perMinute,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.last = b.now()
	return b
}

// Name identifies the endpoint family the bucket governs.
func (b *Bucket) Name() string {
	return b.name
}

// Acquire blocks until n tokens are available or ctx is done.
func (b *Bucket) Acquire(ctx context.Context, n int) error {
	need := float64(n)
	for {
		b.mu.Lock()
		b.refillLocked()
		if need > b.capacity {
			capacity := b.capacity
			b.mu.Unlock()
			return fmt.Errorf("%s: acquire %d of %.2f: %w", b.name, n, capacity, ErrExceedsCapacity)
		}
		if b.tokens >= need {
			b.tokens -= need
			b.mu.Unlock()
			return nil
		}
		wait := secondsToDuration((need - b.tokens) / b.rateLocked())
		b.mu.Unlock()

		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire takes n tokens if they are available and never blocks.
func (b *Bucket) TryAcquire(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < float64(n) {
		return false
	}
	b.tokens -= float64(n)
	return true
}

// Tokens returns the current balance after refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// Capacity returns the effective capacity in requests per minute.
func (b *Bucket) Capacity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// refillLocked adds elapsed × rate tokens, clamped to capacity.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rateLocked()
		b.last = now
	}
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// rateLocked returns the refill rate in tokens per second.
func (b *Bucket) rateLocked() float64 {
	return b.capacity / 60
}

// secondsToDuration rounds up so a wait always covers the deficit.
func secondsToDuration(s float64) time.Duration {
	d := time.Duration(math.Ceil(s * float64(time.Second)))
	if d < time.Nanosecond {
		d = time.Nanosecond
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
