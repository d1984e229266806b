package resilience

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/config"
)

// RetryFromConfig builds a RetryConfig from the retry config section.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return cfg
}

// BreakerFromConfig builds a CircuitBreakerConfig from the circuit section.
// Only transient failures trip the breaker, so a malformed prompt never
// locks out healthy traffic. State changes are logged.
func BreakerFromConfig(c config.CircuitConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	cfg.ShouldTrip = IsTransient
	cfg.OnStateChange = func(name string, from, to CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return cfg
}
