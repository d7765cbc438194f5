// Pipeline configuration - upstream fetch, codec and decision engine.
package config

import (
	"fmt"
	"time"
)

const (
	DefaultFetchTimeout = 60 * time.Second
	DefaultFetchRetries = 5
	DefaultMaxRedirects = 10
	DefaultMaxBodyBytes = 32 << 20
)

// FetchConfig controls the upstream image fetch.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`        // Per-attempt timeout
	Retries      int           `yaml:"retries"`        // Retries after the first attempt on transient failure
	MaxRedirects int           `yaml:"max_redirects"`  // Redirect hops followed
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Upstream body limit, 0 = unlimited
	UserAgent    string        `yaml:"user_agent"`     // Sent when the client sent none
}

// Validate checks fetch settings.
func (f FetchConfig) Validate() error {
	if f.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if f.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if f.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0")
	}
	if f.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	return nil
}

// Budget is the longest time the fetch attempts alone can take.
func (f FetchConfig) Budget() time.Duration {
	return f.Timeout * time.Duration(f.Retries+1)
}

// CodecConfig holds the process-wide codec toggles. Set once at worker startup.
type CodecConfig struct {
	Concurrency    int  `yaml:"concurrency"`      // Parallel encodes per worker, 0 = NumCPU
	Cache          bool `yaml:"cache"`            // Keep encoder scratch buffers between requests
	SIMD           bool `yaml:"simd"`             // Allow SIMD code paths when the CPU has them
	GCAfterRequest bool `yaml:"gc_after_request"` // Memory reclamation hint after each response
}

// Validate checks codec settings.
func (c CodecConfig) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("codec.concurrency must be >= 0")
	}
	return nil
}

// CompressionConfig holds the decision engine feature flags.
type CompressionConfig struct {
	BestFormat        bool `yaml:"best_format"`         // Try every format, keep the smallest
	AltFormatFallback bool `yaml:"alt_format_fallback"` // Retry once with the other format when no bytes were saved
}
