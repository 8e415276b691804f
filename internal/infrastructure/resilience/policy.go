package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config controls retries and the per-operation circuit breaker. Provider
// calls run once unless RetryMaxAttempts is raised.
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

	// OnStateChange observes breaker transitions, e.g. for metrics.
	OnStateChange func(operation string, from, to State)
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize replaces unset or out-of-range values with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()

	c.RetryMaxAttempts = orDefault(c.RetryMaxAttempts, def.RetryMaxAttempts, c.RetryMaxAttempts > 0)
	c.RetryInitialBackoff = orDefault(c.RetryInitialBackoff, def.RetryInitialBackoff, c.RetryInitialBackoff > 0)
	c.RetryMaxBackoff = max(orDefault(c.RetryMaxBackoff, def.RetryMaxBackoff, c.RetryMaxBackoff > 0), c.RetryInitialBackoff)
	c.RetryMultiplier = orDefault(c.RetryMultiplier, def.RetryMultiplier, c.RetryMultiplier >= 1)

	c.BreakerMinRequests = orDefault(c.BreakerMinRequests, def.BreakerMinRequests, c.BreakerMinRequests > 0)
	c.BreakerFailureRatio = orDefault(c.BreakerFailureRatio, def.BreakerFailureRatio, c.BreakerFailureRatio > 0 && c.BreakerFailureRatio <= 1)
	c.BreakerOpenTimeout = orDefault(c.BreakerOpenTimeout, def.BreakerOpenTimeout, c.BreakerOpenTimeout > 0)
	c.BreakerHalfOpenMaxCalls = orDefault(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls, c.BreakerHalfOpenMaxCalls > 0)
	return c
}

func orDefault[T any](v, def T, valid bool) T {
	if valid {
		return v
	}
	return def
}

func (c Config) retriesEnabled() bool {
	return c.RetryMaxAttempts > 1
}

// shouldTrip opens the breaker once enough calls were seen and the failure
// ratio reaches the threshold.
func (c Config) shouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.BreakerMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.BreakerFailureRatio
}

func (c Config) breakerSettings(
	operation string,
	classifier ErrorClassifier,
	onStateChange func(name string, from, to gobreaker.State),
) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        operation,
		MaxRequests: c.BreakerHalfOpenMaxCalls,
		Timeout:     c.BreakerOpenTimeout,
		ReadyToTrip: c.shouldTrip,
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: onStateChange,
	}
}
