package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"runtime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/webp"
	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Rushs321/suko/internal/config"
)

// Encoder implements Codec with the standard JPEG encoder and a pure-Go WebP encoder.
type Encoder struct {
	pool *Pool
	simd bool
}

// New creates an Encoder from the process-wide codec settings.
func New(cfg config.CodecConfig) *Encoder {
	size := cfg.Concurrency
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Encoder{
		pool: newPool(size, cfg.Cache),
		simd: cfg.SIMD && SIMDSupported(),
	}
}

// SIMDSupported reports whether the CPU has the vector extensions the codec can use.
func SIMDSupported() bool {
	return cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.ASIMD)
}

// LogSettings reports the effective codec settings once at startup.
func (e *Encoder) LogSettings(cfg config.CodecConfig) {
	log.Info().
		Int("concurrency", e.pool.Size()).
		Bool("cache", cfg.Cache).
		Bool("simd_requested", cfg.SIMD).
		Bool("simd_enabled", e.simd).
		Str("cpu", cpuid.CPU.BrandName).
		Msg("codec configured")
}

// Encode re-encodes data once with the requested options.
func (e *Encoder) Encode(ctx context.Context, data []byte, opts Options) (*Output, error) {
	slot, err := e.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.release(slot)

	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeImage(slot.scratch(), prepare(img, opts), opts)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Output{Format: opts.Format, Data: encoded, Width: b.Dx(), Height: b.Dy()}, nil
}

// EncodeBest encodes every candidate format and returns the smallest.
// opts.Format is ignored.
func (e *Encoder) EncodeBest(ctx context.Context, data []byte, opts Options) (*Output, error) {
	slot, err := e.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.release(slot)

	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()

	var best *Output
	sizes := make(map[Format]int, len(Candidates))
	for _, f := range Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o := opts
		o.Format = f
		encoded, err := encodeImage(slot.scratch(), prepare(img, o), o)
		if err != nil {
			return nil, err
		}
		sizes[f] = len(encoded)
		if best == nil || len(encoded) < best.Size() {
			best = &Output{Format: f, Data: encoded, Width: b.Dx(), Height: b.Dy()}
		}
	}
	best.Sizes = sizes
	return best, nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnsupportedImage)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mime.String())
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mime.String())
		}
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// prepare flattens transparency onto white where the output cannot carry it
// and converts to grayscale when requested.
func prepare(img image.Image, opts Options) image.Image {
	if (opts.Format == FormatJPEG || opts.Grayscale) && !isOpaque(img) {
		img = flatten(img)
	}
	if opts.Grayscale {
		b := img.Bounds()
		gray := image.NewGray(b)
		draw.Draw(gray, b, img, b.Min, draw.Src)
		return gray
	}
	return img
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

func encodeImage(buf *bytes.Buffer, img image.Image, opts Options) ([]byte, error) {
	quality := min(max(opts.Quality, 0), 100)
	switch opts.Format {
	case FormatJPEG:
		// The JPEG encoder accepts 1-100.
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: max(quality, 1)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(buf, img, webp.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("encode: unknown format %q", opts.Format)
	}
	return bytes.Clone(buf.Bytes()), nil
}
