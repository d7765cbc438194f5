// Response emission for the compression pipeline.
//
// DESIGN: The emitter is the only code that writes to the client:
//   - serve():      compressed image with size headers
//   - redirect():   302 to the original image URL
//   - identifier(): plaintext service identifier for requests without url
//   - reject():     503 with Retry-After when admission is full
//
// Once headers are sent nothing else may be written, so redirect() refuses
// and reports false instead.
package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Rushs321/suko/external"
	"github.com/Rushs321/suko/internal/codec"
	"github.com/Rushs321/suko/internal/compress"
	"github.com/Rushs321/suko/internal/params"
)

var errHeadersSent = errors.New("response headers already sent")

// originalBodyHeaders describe the upstream bytes, not the re-encoded body.
var originalBodyHeaders = []string{
	"Content-Range",
	"Accept-Ranges",
	"Etag",
	"Last-Modified",
	"Content-Md5",
	"Digest",
}

type emitter struct {
	w      http.ResponseWriter
	sent   bool
	status int
	bytes  int
}

func newEmitter(w http.ResponseWriter) *emitter {
	return &emitter{w: w}
}

// headersSent reports whether the status line was written, either by this
// emitter or by anything else sharing the underlying writer.
func (e *emitter) headersSent() bool {
	if e.sent {
		return true
	}
	if rw, ok := e.w.(*responseWriter); ok {
		return rw.wroteHeader
	}
	return false
}

func (e *emitter) writeHeader(status int) {
	e.sent = true
	e.status = status
	e.w.WriteHeader(status)
}

// serve writes the compressed image. Upstream headers are kept except those
// describing the original body or the upstream connection; the proxy's own
// request ID wins over an upstream one.
func (e *emitter) serve(upstream http.Header, out *codec.Output, size compress.SizeInfo) error {
	if e.headersSent() {
		return errHeadersSent
	}

	h := e.w.Header()
	requestID := http.CanonicalHeaderKey(HeaderRequestID)
	for k, v := range upstream {
		if k == requestID && h.Get(requestID) != "" {
			continue
		}
		h[k] = append([]string(nil), v...)
	}
	external.RemoveHopHeaders(h)
	for _, name := range originalBodyHeaders {
		h.Del(name)
	}

	h.Set("Content-Encoding", "identity")
	h.Set("Content-Type", out.Format.MIME())
	h.Set("Content-Length", strconv.Itoa(out.Size()))
	h.Set("X-Original-Size", strconv.Itoa(size.Original))
	h.Set("X-Bytes-Saved", strconv.Itoa(size.Saved))

	e.writeHeader(http.StatusOK)
	n, err := e.w.Write(out.Data)
	e.bytes += n
	return err
}

// redirect sends the client to the original image. It returns false when
// headers were already sent and nothing was written.
func (e *emitter) redirect(target string) bool {
	if e.headersSent() {
		return false
	}
	h := e.w.Header()
	h.Set("Location", target)
	h.Set("Content-Length", "0")
	h.Del("Content-Type")
	e.writeHeader(http.StatusFound)
	return true
}

// identifier answers a request that carried no url parameter.
func (e *emitter) identifier() {
	if e.headersSent() {
		return
	}
	e.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	e.writeHeader(http.StatusOK)
	n, _ := io.WriteString(e.w, params.Identifier)
	e.bytes += n
}

// reject tells the client to come back later.
func (e *emitter) reject() {
	if e.headersSent() {
		return
	}
	e.w.Header().Set("Retry-After", RetryAfterSeconds)
	e.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	e.writeHeader(http.StatusServiceUnavailable)
	n, _ := io.WriteString(e.w, "server busy\n")
	e.bytes += n
}
