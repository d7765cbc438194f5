// Package codec is the image re-encoding boundary of the proxy.
//
// DESIGN: The decision engine only talks to the Codec interface:
//   - Encode:     one re-encode with the requested format/quality/grayscale
//   - EncodeBest: every candidate format, smallest result wins
//
// Encoder is the production implementation (pure Go, no CGo). Tests use fakes.
package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Format is an output image format.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
)

// Candidates is the fixed order tried by EncodeBest. Ties keep the earlier entry.
var Candidates = []Format{FormatWebP, FormatJPEG}

// ErrUnsupportedImage is returned when the input bytes are not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported image")

// MIME returns the content type served for the format.
func (f Format) MIME() string {
	return "image/" + string(f)
}

// Alternate returns the other supported format (webp <-> jpeg).
func (f Format) Alternate() Format {
	if f == FormatJPEG {
		return FormatWebP
	}
	return FormatJPEG
}

// ParseFormat parses "webp", "jpeg" or "jpg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webp":
		return FormatWebP, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// Options selects how an image is re-encoded.
type Options struct {
	Format    Format
	Quality   int // 0-100
	Grayscale bool
}

// Output is a successful re-encode.
type Output struct {
	Format Format
	Data   []byte
	Width  int
	Height int

	// Sizes holds the encoded size of every candidate (EncodeBest only).
	Sizes map[Format]int
}

// Size returns the encoded size in bytes.
func (o *Output) Size() int {
	return len(o.Data)
}

// Codec re-encodes raw image bytes.
type Codec interface {
	Encode(ctx context.Context, data []byte, opts Options) (*Output, error)
	EncodeBest(ctx context.Context, data []byte, opts Options) (*Output, error)
}
