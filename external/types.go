// Package external fetches the images the proxy compresses.
//
// DESIGN: external is the only package that talks to origin servers.
// One Fetch is a bounded sequence of attempts:
//   - attempt:   GET with per-attempt timeout, redirects up to the configured budget
//   - classify:  transport errors and 408/429/5xx gateway codes are retried
//   - decode:    Content-Encoding (gzip, deflate, br, zstd) is removed from the body
//
// Every failure is reported as ErrFetchFailed wrapping the cause.
package external

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrFetchFailed is wrapped by every error Fetch returns.
var ErrFetchFailed = errors.New("fetch failed")

// ErrBodyTooLarge is returned when the upstream body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("upstream body too large")

// FetchResult is a fully buffered upstream response.
type FetchResult struct {
	Body        []byte
	Header      http.Header // Content-Encoding and Content-Length removed once decoded
	StatusCode  int
	ContentType string // sniffed from Body
	URL         string // final URL after redirects
	Attempts    int
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
