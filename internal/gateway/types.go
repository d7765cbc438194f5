// Package gateway types - types for the image compression proxy.
//
// DESIGN: Types used by the gateway for:
//   - Request state carried through the fetch/compress/emit pipeline
//   - The upstream Fetcher interface
//   - Gateway-wide constants
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/Rushs321/suko/external"
	"github.com/Rushs321/suko/internal/compress"
	"github.com/Rushs321/suko/internal/monitoring"
	"github.com/Rushs321/suko/internal/params"
)

const (
	// HeaderRequestID carries the request ID in and out of the proxy.
	HeaderRequestID = "X-Request-ID"

	// MaxRateLimitBuckets caps the number of tracked client IPs.
	MaxRateLimitBuckets = 10000

	// RetryAfterSeconds is sent with 503 admission rejections.
	RetryAfterSeconds = "1"
)

// Fetcher downloads upstream images.
type Fetcher interface {
	Fetch(ctx context.Context, target string, header http.Header) (*external.FetchResult, error)
}

// =============================================================================
// REQUEST STATE - Carries state through processing
// =============================================================================

// requestState collects what one request did, for telemetry and metrics.
// Owned by the handling goroutine.
type requestState struct {
	RequestID  string
	ReceivedAt time.Time
	Params     params.RequestContext
	HasParams  bool

	Fetch        *external.FetchResult
	FetchLatency time.Duration

	Decision      *compress.Decision
	EncodeLatency time.Duration

	Outcome monitoring.Outcome
	Err     error
}

func newRequestState(requestID string) *requestState {
	return &requestState{RequestID: requestID, ReceivedAt: time.Now()}
}
