// HTTP middleware for recovery, logging, admission and rate limiting.
//
// DESIGN: Middleware chain (applied in order):
//  1. panicRecovery:     Catch panics, redirect to the original image when possible
//  2. loggingMiddleware: Request ID, request/response logging with timing
//  3. security:          Security headers
//  4. admissionControl:  Per-worker active/queued limits (proxy route only)
//  5. rateLimit:         Per-IP token bucket rate limiting (proxy route only, off by default)
package gateway

import (
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/internal/admission"
	"github.com/Rushs321/suko/internal/monitoring"
	"github.com/Rushs321/suko/internal/params"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// whether headers went out.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// wrapResponseWriter returns w itself when it is already wrapped.
func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader captures the status code before writing it.
func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

// Write marks headers as sent, as the underlying writer does.
func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// loggingMiddleware logs request details and duration using the structured logging system.
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		// Add request ID to context for downstream logging
		ctx := monitoring.WithRequestIDContext(r.Context(), requestID)
		r = r.WithContext(ctx)

		g.requestLogger.LogIncoming(monitoring.NewRequestInfo(r, requestID))

		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		g.requestLogger.LogResponse(&monitoring.ResponseInfo{
			RequestID:  requestID,
			StatusCode: wrapped.status,
			Latency:    time.Since(start),
		})
	})
}

// panicRecovery middleware recovers from panics. A proxy request whose
// headers are not yet sent is redirected to the original image; anything else
// gets a 500 if still possible.
func (g *Gateway) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrapResponseWriter(w)
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}
			stack := string(debug.Stack())
			requestID := rw.Header().Get(HeaderRequestID)

			// Alert on panic
			g.alerts.FlagPanic(requestID, err, stack)

			if rw.wroteHeader {
				return
			}
			if rc, perr := params.Extract(r.URL.RawQuery); perr == nil {
				newEmitter(rw).redirect(rc.TargetURL)
				return
			}
			g.writeError(rw, "internal error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(rw, r)
	})
}

// admissionControl middleware holds every proxy request in the worker's admission
// queue and marks the worker busy once admitted.
func (g *Gateway) admissionControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, err := g.admit.Acquire(r.Context())
		if err != nil {
			requestID := monitoring.RequestIDFromContext(r.Context())
			if errors.Is(err, admission.ErrQueueFull) {
				g.alerts.FlagQueueRejected(requestID, g.admit.Queued())
				st := newRequestState(requestID)
				if rc, perr := params.Extract(r.URL.RawQuery); perr == nil {
					st.Params, st.HasParams = rc, true
				}
				st.Outcome, st.Err = monitoring.OutcomeRejected, err
				em := newEmitter(w)
				em.reject()
				g.complete(r, em, st)
				return
			}
			// Client went away while queued.
			log.Debug().Err(err).Str("request_id", requestID).Msg("request abandoned in admission queue")
			return
		}
		defer release()

		g.idle.Touch()
		next.ServeHTTP(w, r)
	})
}

// rateLimit middleware enforces per-IP rate limiting.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	if g.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := g.getClientIP(r)
		if !g.rateLimiter.allow(ip) {
			log.Warn().Str("ip", ip).Msg("rate limit exceeded")
			w.Header().Set("Retry-After", RetryAfterSeconds)
			g.writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// security middleware adds security headers.
func (g *Gateway) security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP address from the request.
// Trusts X-Forwarded-For and X-Real-IP headers only from localhost.
func (g *Gateway) getClientIP(r *http.Request) string {
	// Only trust X-Forwarded-For from localhost (reverse proxy)
	if remoteIP, _, _ := net.SplitHostPort(r.RemoteAddr); remoteIP == "127.0.0.1" || remoteIP == "::1" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
