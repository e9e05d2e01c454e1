package ratelimit

import "log/slog"

const (
	minBackoffFactor = 0.1
	maxBackoffFactor = 1.0
	rejectionFactor  = 0.7
	recoveryFactor   = 1.01
)

// Adaptive is a Bucket whose capacity follows a backoff factor in [0.1, 1.0].
type Adaptive struct {
	*Bucket

	base   float64
	factor float64 // guarded by Bucket.mu
	logger *slog.Logger
}

// NewAdaptive creates an adaptive limiter with base capacity perMinute.
func NewAdaptive(name string, perMinute float64, logger *slog.Logger, opts ...Option) *Adaptive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adaptive{
		Bucket: NewBucket(name, perMinute, opts...),
		base:   perMinute,
		factor: maxBackoffFactor,
		logger: logger,
	}
}

// ReportRejection slows the limiter after a throttling signal.
func (a *Adaptive) ReportRejection() {
	a.mu.Lock()
	// Accrue tokens at the old rate before the capacity drops.
	a.refillLocked()
	a.factor *= rejectionFactor
	if a.factor < minBackoffFactor {
		a.factor = minBackoffFactor
	}
	a.capacity = a.base * a.factor
	if a.tokens > a.capacity {
		a.tokens = a.capacity
	}
	factor, capacity := a.factor, a.capacity
	a.mu.Unlock()

	a.logger.Warn("rate limit backoff",
		"limiter", a.name,
		"backoff_factor", factor,
		"effective_capacity", capacity,
	)
}

// ReportSuccess moves the limiter 1% back toward its base capacity.
func (a *Adaptive) ReportSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.factor >= maxBackoffFactor {
		return
	}
	a.refillLocked()
	a.factor *= recoveryFactor
	if a.factor > maxBackoffFactor {
		a.factor = maxBackoffFactor
	}
	a.capacity = a.base * a.factor
}

// BackoffFactor returns the current factor.
func (a *Adaptive) BackoffFactor() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.factor
}

// BaseCapacity returns the configured capacity.
func (a *Adaptive) BaseCapacity() float64 {
	return a.base
}
