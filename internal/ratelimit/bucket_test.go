package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when the limiter sleeps or the test says so.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) totalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

func TestBucket_TryAcquireDrains(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket("test", 10, WithClock(clock.Now, clock.Sleep))

	for i := 0; i < 10; i++ {
		if !b.TryAcquire(1) {
			t.Fatalf("TryAcquire #%d = false, want true", i+1)
		}
	}
	if b.TryAcquire(1) {
		t.Error("11th TryAcquire = true, want false")
	}
}

func TestBucket_AcquireWaitsForDeficit(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket("test", 10, WithClock(clock.Now, clock.Sleep))

	for i := 0; i < 10; i++ {
		b.TryAcquire(1)
	}

	if err := b.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire error = %v", err)
	}

	// 10/min refills one token every 6 seconds.
	got := clock.totalSlept()
	if diff := math.Abs(got.Seconds() - 6); diff > 0.01 {
		t.Errorf("waited %v, want ~6s", got)
	}
	if tokens := b.Tokens(); tokens < 0 || tokens > 0.01 {
		t.Errorf("Tokens() = %v, want ~0", tokens)
	}
}

func TestBucket_AcquireRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	// 600/min = 10 tokens per second, so one token takes ~100ms.
	b := NewBucket("real", 600)
	for b.TryAcquire(1) {
	}

	start := time.Now()
	if err := b.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Errorf("Acquire took %v, want ~100ms", elapsed)
	}
}

func TestBucket_RefillNeverExceedsCapacity(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket("test", 30, WithClock(clock.Now, clock.Sleep))

	steps := []time.Duration{
		time.Millisecond, time.Second, 7 * time.Second, time.Minute, time.Hour, 0,
	}
	for _, step := range steps {
		b.TryAcquire(3)
		clock.Advance(step)
		if tokens := b.Tokens(); tokens > 30 || tokens < 0 {
			t.Fatalf("after %v tokens = %v, want within [0, 30]", step, tokens)
		}
	}
}

func TestBucket_AcquireCancelled(t *testing.T) {
	b := NewBucket("test", 1)
	b.TryAcquire(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBucket_AcquireExceedsCapacity(t *testing.T) {
	b := NewBucket("test", 5)

	err := b.Acquire(context.Background(), 6)
	if !errors.Is(err, ErrExceedsCapacity) {
		t.Errorf("Acquire error = %v, want ErrExceedsCapacity", err)
	}
}

func TestBucket_ConcurrentAcquire(t *testing.T) {
	clock := newFakeClock()
	b := NewBucket("test", 100, WithClock(clock.Now, clock.Sleep))

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryAcquire(1) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 50 {
		t.Errorf("granted = %d, want 50", granted)
	}
	if tokens := b.Tokens(); math.Abs(tokens-50) > 0.001 {
		t.Errorf("Tokens() = %v, want 50", tokens)
	}
}
