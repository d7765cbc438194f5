package external

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeBody removes the Content-Encoding layers from body, last applied first.
// The decoded size is bounded by limit (0 = unlimited).
func decodeBody(contentEncoding string, body []byte, limit int64) ([]byte, error) {
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		if coding == "" || coding == "identity" {
			continue
		}
		r, err := decoder(coding, body)
		if err != nil {
			return nil, err
		}
		body, err = readLimited(r, limit)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s body: %w", coding, err)
		}
	}
	return body, nil
}

func decoder(coding string, body []byte) (io.ReadCloser, error) {
	src := bytes.NewReader(body)
	switch coding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return zr, nil
	case "deflate":
		// Most servers send zlib-wrapped deflate, some send it raw.
		zr, err := zlib.NewReader(src)
		if err != nil {
			return flate.NewReader(bytes.NewReader(body)), nil
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(src)), nil
	case "zstd":
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", coding)
	}
}

// readLimited reads r fully, failing with ErrBodyTooLarge past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}
