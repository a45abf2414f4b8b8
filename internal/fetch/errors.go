package fetch

import (
	"errors"
	"fmt"
)

// NetworkError indicates a connection-level or timeout failure. It is
// retriable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError indicates the remote signaled throttling (429 or 503). It
// is retriable after backoff.
type RateLimitError struct {
	URL        string
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited fetching %s: HTTP %d", e.URL, e.StatusCode)
}

// HTTPError indicates a non-success status that is not a throttling signal.
// It is not retriable.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is an HTTPError with status 404. The
// remote archive answers 404 for hours it has not published yet, so callers
// treat this case as "not ready" rather than a hard failure.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == 404
}

func retriable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}
