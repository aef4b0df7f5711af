package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
	openai "github.com/sashabaranov/go-openai"
)

// ErrRateLimited is returned when the local rate limiter rejects a call.
var ErrRateLimited = errors.New("LLM rate limit exceeded")

// ResilientConfig configures ResilientCompleter.
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableRateLimit      bool

	// RatePerSecond for rate limiting (default: 5)
	RatePerSecond int
	// MaxAttempts for retry (default: 3)
	MaxAttempts int
	// InitialDelay before the first retry (default: 1s)
	InitialDelay time.Duration

	Logger *slog.Logger
}

// DefaultResilientConfig returns defaults suited to a shared classroom endpoint.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableRateLimit:      true,
		RatePerSecond:        5,
		MaxAttempts:          3,
		InitialDelay:         time.Second,
	}
}

// ResilientCompleter wraps a Completer with rate limiting, a circuit breaker
// and retries on transient HTTP failures.
type ResilientCompleter struct {
	next           Completer
	circuitBreaker circuitbreaker.CircuitBreaker[string]
	retrier        retry.Retry[string]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// NewResilientCompleter wraps next according to cfg.
func NewResilientCompleter(next Completer, cfg ResilientConfig) *ResilientCompleter {
	rc := &ResilientCompleter{next: next, logger: cfg.Logger}
	if rc.logger == nil {
		rc.logger = slog.Default()
	}

	if cfg.EnableCircuitBreaker {
		rc.circuitBreaker = circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: breakerSuccess,
			OnStateChange: func(from, to circuitbreaker.State) {
				rc.logger.Warn("LLM circuit breaker state change", "from", from.String(), "to", to.String())
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		delay := cfg.InitialDelay
		if delay <= 0 {
			delay = time.Second
		}
		rc.retrier = retry.New[string](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  delay,
			MaxDelay:      20 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 5
		}
		rc.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rc
}

// Complete implements Completer.
func (rc *ResilientCompleter) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	if rc.rateLimit != nil && !rc.rateLimit.Allow(ctx, "llm") {
		return "", ErrRateLimited
	}

	operation := func(ctx context.Context) (string, error) {
		return rc.next.Complete(ctx, system, user, temperature)
	}

	switch {
	case rc.circuitBreaker != nil && rc.retrier != nil:
		return rc.circuitBreaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return rc.retrier.Do(ctx, operation)
		})
	case rc.circuitBreaker != nil:
		return rc.circuitBreaker.Execute(ctx, operation)
	case rc.retrier != nil:
		return rc.retrier.Do(ctx, operation)
	default:
		return operation(ctx)
	}
}

// Close releases the rate limiter.
func (rc *ResilientCompleter) Close() error {
	if rc.rateLimit != nil {
		if err := rc.rateLimit.Close(); err != nil {
			return fmt.Errorf("close rate limiter: %w", err)
		}
	}
	return nil
}

// breakerSuccess reports whether err leaves the endpoint looking healthy.
// A request cancelled by its caller, as on a lesson switch, is not an
// endpoint failure.
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// isRetryable reports whether err is a transient API failure.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
