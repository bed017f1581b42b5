package resilience

import "time"

// Config is the retry and breaker policy shared by the vector store, model providers and the broker.
// Zero fields take the defaults below.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// Defaults keep the worst case of one provider call (three attempts plus backoff) well inside the
// reasoning timeout.
const (
	defaultMaxAttempts      = 3
	defaultInitialBackoff   = 200 * time.Millisecond
	defaultMaxBackoff       = 2 * time.Second
	defaultMultiplier       = 2.0
	defaultMinRequests      = 10
	defaultFailureRatio     = 0.5
	defaultOpenTimeout      = 30 * time.Second
	defaultHalfOpenMaxCalls = 2
)

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:        defaultMaxAttempts,
		RetryInitialBackoff:     defaultInitialBackoff,
		RetryMaxBackoff:         defaultMaxBackoff,
		RetryMultiplier:         defaultMultiplier,
		BreakerEnabled:          true,
		BreakerMinRequests:      defaultMinRequests,
		BreakerFailureRatio:     defaultFailureRatio,
		BreakerOpenTimeout:      defaultOpenTimeout,
		BreakerHalfOpenMaxCalls: defaultHalfOpenMaxCalls,
	}
}

func (c Config) normalize() Config {
	c.RetryMaxAttempts = positiveOr(c.RetryMaxAttempts, defaultMaxAttempts)
	c.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, defaultInitialBackoff)
	c.RetryMaxBackoff = max(c.RetryMaxBackoff, c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = defaultMultiplier
	}
	c.BreakerMinRequests = positiveOr(c.BreakerMinRequests, defaultMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = defaultFailureRatio
	}
	c.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, defaultOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, defaultHalfOpenMaxCalls)
	return c
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
