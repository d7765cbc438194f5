// Package compress decides whether a re-encoded image is worth serving.
//
// DESIGN: The engine never touches HTTP. It runs at most two encodes in
// single-format mode (the requested format, then its alternate) or one
// EncodeBest call in best-format mode, and reports either a win to serve or a
// redirect to the original URL. A result that saves zero bytes is not a win.
package compress

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/internal/codec"
	"github.com/Rushs321/suko/internal/config"
	"github.com/Rushs321/suko/internal/params"
)

// Outcome is the terminal decision for one request.
type Outcome int

const (
	OutcomeRedirect Outcome = iota
	OutcomeServe
)

func (o Outcome) String() string {
	if o == OutcomeServe {
		return "serve"
	}
	return "redirect"
}

// SizeInfo summarizes one encode against the original body.
// Saved is negative when the encode inflated the image.
type SizeInfo struct {
	Original   int     `json:"original"`
	Compressed int     `json:"compressed"`
	Saved      int     `json:"saved"`
	Percent    float64 `json:"percent"`
}

// NewSizeInfo computes the savings of compressed against original.
func NewSizeInfo(original, compressed int) SizeInfo {
	s := SizeInfo{Original: original, Compressed: compressed, Saved: original - compressed}
	if original > 0 {
		s.Percent = float64(s.Saved) / float64(original) * 100
	}
	return s
}

// Won reports whether at least one byte was saved.
func (s SizeInfo) Won() bool { return s.Saved > 0 }

// Attempt records one encode.
type Attempt struct {
	Format codec.Format         `json:"format"`
	Size   SizeInfo             `json:"size"`
	Sizes  map[codec.Format]int `json:"sizes,omitempty"`
}

// Decision is the result of Decide.
type Decision struct {
	Outcome  Outcome
	Output   *codec.Output         // set only for OutcomeServe
	Context  params.RequestContext // parameters of the last attempt
	Size     SizeInfo              // last attempt
	Attempts []Attempt
}

// Engine runs the compress-or-redirect decision.
type Engine struct {
	codec codec.Codec
	cfg   config.CompressionConfig
}

// New creates an Engine.
func New(c codec.Codec, cfg config.CompressionConfig) *Engine {
	return &Engine{codec: c, cfg: cfg}
}

// Decide encodes original according to rc. A codec error is returned together
// with the partial decision so the caller can still record the attempts.
func (e *Engine) Decide(ctx context.Context, original []byte, rc params.RequestContext) (*Decision, error) {
	if e.cfg.BestFormat {
		return e.decideBest(ctx, original, rc)
	}

	d := &Decision{Outcome: OutcomeRedirect, Context: rc}
	candidates := [2]codec.Format{rc.Format, rc.Format.Alternate()}
	for i, f := range candidates {
		cur := rc.WithFormat(f)
		out, err := e.codec.Encode(ctx, original, cur.Options())
		if err != nil {
			return d, fmt.Errorf("encode %s: %w", f, err)
		}

		size := NewSizeInfo(len(original), out.Size())
		d.Attempts = append(d.Attempts, Attempt{Format: f, Size: size})
		d.Context = cur
		d.Size = size

		if size.Won() {
			d.Outcome = OutcomeServe
			d.Output = out
			return d, nil
		}
		if i > 0 || !e.cfg.AltFormatFallback {
			break
		}
		log.Info().
			Str("url", rc.TargetURL).
			Str("format", string(f)).
			Str("retry_format", string(candidates[1])).
			Str("original", humanize.Bytes(uint64(size.Original))).
			Str("compressed", humanize.Bytes(uint64(size.Compressed))).
			Msg("no bytes saved, retrying with alternate format")
	}
	return d, nil
}

func (e *Engine) decideBest(ctx context.Context, original []byte, rc params.RequestContext) (*Decision, error) {
	d := &Decision{Outcome: OutcomeRedirect, Context: rc}
	out, err := e.codec.EncodeBest(ctx, original, rc.Options())
	if err != nil {
		return d, fmt.Errorf("encode best: %w", err)
	}

	size := NewSizeInfo(len(original), out.Size())
	d.Attempts = append(d.Attempts, Attempt{Format: out.Format, Size: size, Sizes: out.Sizes})
	d.Context = rc.WithFormat(out.Format)
	d.Size = size
	if size.Won() {
		d.Outcome = OutcomeServe
		d.Output = out
	}
	return d, nil
}
