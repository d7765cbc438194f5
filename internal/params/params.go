// Package params turns an inbound query string into a RequestContext.
//
// Recognized parameters: url, jpg, bw, l. Everything else is forwarded to the
// target URL unchanged, in encounter order.
package params

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Rushs321/suko/internal/codec"
)

const (
	// DefaultQuality applies when l is absent or malformed.
	DefaultQuality = 80

	// Identifier is the plaintext body served when no url is given.
	Identifier = "bandwidth-hero-proxy"
)

// ErrMissingURL means the request carried no url parameter.
var ErrMissingURL = errors.New("missing url parameter")

// legacyPrefix matches double-proxied URLs from the old bandwidth mirror:
// http://<a.b.c.d>/bmi/ optionally followed by another scheme.
var legacyPrefix = regexp.MustCompile(`(?i)^https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/bmi/(https?://)?`)

// RequestContext is the validated per-request configuration.
// It is a value: WithFormat returns a copy.
type RequestContext struct {
	TargetURL string
	Format    codec.Format
	Grayscale bool
	Quality   int
}

// WithFormat returns a copy of rc using format f.
func (rc RequestContext) WithFormat(f codec.Format) RequestContext {
	rc.Format = f
	return rc
}

// Options returns the codec options for rc.
func (rc RequestContext) Options() codec.Options {
	return codec.Options{Format: rc.Format, Quality: rc.Quality, Grayscale: rc.Grayscale}
}

// Extract parses a raw query string.
func Extract(rawQuery string) (RequestContext, error) {
	rc := RequestContext{Format: codec.FormatWebP, Quality: DefaultQuality}

	var targets []string
	var extra strings.Builder
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key := unescape(rawKey)
		value := unescape(rawValue)

		switch key {
		case "url":
			targets = append(targets, value)
		case "jpg":
			if isSet(value) {
				rc.Format = codec.FormatJPEG
			}
		case "bw":
			rc.Grayscale = isSet(value)
		case "l":
			rc.Quality = parseQuality(value)
		default:
			extra.WriteByte('&')
			extra.WriteString(key)
			if value != "" {
				extra.WriteByte('=')
				extra.WriteString(value)
			}
		}
	}

	target := strings.Join(targets, "&url=")
	if target == "" {
		return RequestContext{}, ErrMissingURL
	}
	rc.TargetURL = RewriteLegacyURL(target) + extra.String()
	return rc, nil
}

// RewriteLegacyURL unwraps the legacy mirror prefix to a plain http:// URL.
func RewriteLegacyURL(u string) string {
	loc := legacyPrefix.FindStringIndex(u)
	if loc == nil {
		return u
	}
	return "http://" + u[loc[1]:]
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

func isSet(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func parseQuality(v string) int {
	q, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return DefaultQuality
	}
	return min(max(q, 0), 100)
}

type contextKey struct{}

// WithContext stores rc on ctx for downstream handlers.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext retrieves the RequestContext stored by WithContext.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(RequestContext)
	return rc, ok
}
