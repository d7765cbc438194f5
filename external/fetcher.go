package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/internal/config"
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	errInvalidURL       = errors.New("invalid target url")
)

// Fetcher downloads upstream images with retry.
type Fetcher struct {
	client  *http.Client
	cfg     config.FetchConfig
	backOff func() backoff.BackOff
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithBackOff replaces the delay policy between attempts.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(f *Fetcher) { f.backOff = fn }
}

// NewFetcher creates a Fetcher. The transport never negotiates compression on
// its own; Content-Encoding is requested explicitly and decoded by Fetch.
func NewFetcher(cfg config.FetchConfig, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	f := &Fetcher{cfg: cfg, backOff: defaultBackOff}
	f.client = &http.Client{Transport: transport, CheckRedirect: f.checkRedirect}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (f *Fetcher) checkRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) > f.cfg.MaxRedirects {
		return fmt.Errorf("%w (limit %d)", errTooManyRedirects, f.cfg.MaxRedirects)
	}
	return nil
}

// Fetch downloads target with the given request headers (see BuildHeaders).
// Transient failures are retried up to cfg.Retries times.
func (f *Fetcher) Fetch(ctx context.Context, target string, header http.Header) (*FetchResult, error) {
	attempts := 0
	operation := func() (*FetchResult, error) {
		attempts++
		return f.attempt(ctx, target, header)
	}
	notify := func(err error, next time.Duration) {
		log.Debug().
			Err(err).
			Str("url", target).
			Int("attempt", attempts).
			Dur("retry_in", next).
			Msg("upstream fetch failed, retrying")
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.backOff()),
		backoff.WithMaxTries(uint(f.cfg.Retries+1)),
		backoff.WithNotify(notify),
	)
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrFetchFailed, attempts, err)
	}
	res.Attempts = attempts
	return res, nil
}

// attempt performs one GET. Errors that another attempt cannot fix are
// wrapped with backoff.Permanent.
func (f *Fetcher) attempt(ctx context.Context, target string, header http.Header) (*FetchResult, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, backoff.Permanent(fmt.Errorf("%w: %q", errInvalidURL, target))
	}

	actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", errInvalidURL, err))
	}
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Close = true

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{StatusCode: resp.StatusCode}
		if serr.Retryable() {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	body, err := readLimited(resp.Body, f.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	respHeader := resp.Header.Clone()
	if enc := respHeader.Get("Content-Encoding"); enc != "" {
		body, err = decodeBody(enc, body, f.cfg.MaxBodyBytes)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		respHeader.Del("Content-Encoding")
	}
	respHeader.Del("Content-Length")

	return &FetchResult{
		Body:        body,
		Header:      respHeader,
		StatusCode:  resp.StatusCode,
		ContentType: mimetype.Detect(body).String(),
		URL:         resp.Request.URL.String(),
	}, nil
}
