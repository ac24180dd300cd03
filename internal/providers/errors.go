package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// RateLimitError signals a 429 from the upstream API. RetryAfter carries
// the server-suggested backoff when the header was present.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// transientStatusError marks an upstream 5xx as retryable.
type transientStatusError struct {
	StatusCode int
	Message    string
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether a failed call is worth retrying: rate limits,
// upstream 5xx, and network timeouts. Schema violations, auth failures and
// cancelled contexts are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsRateLimit(err) {
		return true
	}
	var tse *transientStatusError
	if errors.As(err, &tse) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// parseRetryAfter interprets a Retry-After header value: either delta
// seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
