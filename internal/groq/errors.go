package groq

import (
	"fmt"
	"time"
)

// RateLimitError is the only error that moves failover on to the next key.
// When the whole pool is exhausted it also drives the non-200 webhook
// response so the platform redelivers later.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("Rate limit reached. Try again in %s", e.RetryAfter)
	}
	return "Rate limit reached"
}

// APIError is a non-rate-limit error reported by the backend. Retrying with
// a different key will not help, so failover stops on it.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError wraps a transport failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to reach API: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError wraps an unreadable response body.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse API response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
