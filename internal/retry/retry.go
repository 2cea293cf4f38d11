// Package retry provides bounded exponential backoff and cancellable waits
// for network calls made by the deployer and the verification dispatcher.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ErrExhausted is wrapped into the error returned once MaxAttempts is reached
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds an exponential backoff loop
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	Initial     time.Duration // delay after the first failure
	Max         time.Duration // cap on any single delay
	Multiplier  float64       // defaults to 2
}

// NewPolicy creates a doubling policy
func NewPolicy(maxAttempts int, initial, max time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Initial: initial, Max: max, Multiplier: 2}
}

// Delay returns the wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Operation is one attempt. attempt is 1-based.
type Operation func(ctx context.Context, attempt int) error

// Classifier reports whether an error is worth another attempt
type Classifier func(error) bool

// Do runs op until it succeeds, returns a non-retryable error, the policy is
// exhausted or ctx is done. It returns the number of attempts made.
func Do(ctx context.Context, p Policy, retryable Classifier, logger *slog.Logger, op Operation) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if retryable == nil || !retryable(err) {
			return attempt, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("operation failed, retrying with backoff",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_in", delay.String(),
			"error", err)

		if err := Sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"eof",
	"tls handshake",
	"no such host",
	"dial tcp",
	"too many requests",
	"rate limit",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway timeout",
}

// IsTransient reports whether err looks like a network fault that may clear
// on its own. A per-call deadline counts; a cancelled parent context does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
