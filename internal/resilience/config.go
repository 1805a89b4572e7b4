package resilience

import (
	"time"
)

// FromCircuitConfig converts config values to a CircuitBreakerConfig,
// keeping defaults for zero values.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// LinearRetry returns a RetryConfig making maxAttempts total attempts and
// sleeping delay × attempt between them.
func LinearRetry(maxAttempts int, delay time.Duration, shouldRetry func(error) bool) RetryConfig {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryConfig{
		MaxAttempts: maxAttempts,
		Backoff:     LinearBackoff(delay),
		ShouldRetry: shouldRetry,
	}
}
