// HTTP request handling for the image compression proxy.
//
// DESIGN: Main request flow (strictly ordered):
//   - handleCompress(): params -> fetch -> decide -> emit
//   - redirect():       every failure before headers are sent ends in a 302
//   - complete():       one completion event, metrics and memory hint per request
//
// Also includes health check, favicon and error helpers.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/external"
	"github.com/Rushs321/suko/internal/compress"
	"github.com/Rushs321/suko/internal/monitoring"
	"github.com/Rushs321/suko/internal/params"
	"github.com/Rushs321/suko/internal/store"
)

// handleCompress is the proxy endpoint: GET /?url=&jpg=&bw=&l=
func (g *Gateway) handleCompress(w http.ResponseWriter, r *http.Request) {
	requestID := monitoring.RequestIDFromContext(r.Context())
	st := newRequestState(requestID)
	em := newEmitter(w)
	defer func() {
		if p := recover(); p != nil {
			// Record the redirect here; panicRecovery still alerts.
			st.Err = fmt.Errorf("panic: %v", p)
			if st.HasParams {
				g.redirect(em, st)
			} else {
				st.Outcome = monitoring.OutcomeFailed
			}
			g.complete(r, em, st)
			panic(p)
		}
		g.complete(r, em, st)
	}()

	rc, err := params.Extract(r.URL.RawQuery)
	if err != nil {
		log.Debug().Str("request_id", requestID).Msg("no url parameter, answering with identifier")
		st.Outcome = monitoring.OutcomeIdentifier
		em.identifier()
		return
	}
	st.Params, st.HasParams = rc, true
	ctx := params.WithContext(r.Context(), rc)

	fetchStart := time.Now()
	res, err := g.fetcher.Fetch(ctx, rc.TargetURL, external.BuildHeaders(r, g.cfg.Fetch.UserAgent))
	st.FetchLatency = time.Since(fetchStart)
	if err != nil {
		st.Err = err
		g.metrics.RecordFetchFailure()
		g.alerts.FlagFetchFailure(requestID, rc.TargetURL, err)
		g.redirect(em, st)
		return
	}
	st.Fetch = res
	g.requestLogger.LogFetched(&monitoring.FetchInfo{
		RequestID:   requestID,
		URL:         res.URL,
		ContentType: res.ContentType,
		Size:        len(res.Body),
		Attempts:    res.Attempts,
		Latency:     st.FetchLatency,
	})

	encodeStart := time.Now()
	decision, err := g.engine.Decide(ctx, res.Body, rc)
	st.EncodeLatency = time.Since(encodeStart)
	st.Decision = decision
	if err != nil {
		st.Err = err
		g.metrics.RecordCodecFailure()
		g.alerts.FlagCodecFailure(requestID, rc.TargetURL, string(rc.Format), err)
		g.redirect(em, st)
		return
	}

	if decision.Outcome != compress.OutcomeServe {
		g.redirect(em, st)
		return
	}

	g.extendWriteDeadline(em)
	if err := em.serve(res.Header, decision.Output, decision.Size); err != nil {
		st.Err = err
		st.Outcome = monitoring.OutcomeFailed
		g.alerts.FlagPostSendFailure(requestID, rc.TargetURL, err)
		return
	}
	st.Outcome = monitoring.OutcomeServed
}

// redirect sends the client to the original URL, or records a post-send
// failure when headers already went out.
func (g *Gateway) redirect(em *emitter, st *requestState) {
	g.extendWriteDeadline(em)
	if em.redirect(st.Params.TargetURL) {
		st.Outcome = monitoring.OutcomeRedirected
		return
	}
	st.Outcome = monitoring.OutcomeFailed
	g.alerts.FlagPostSendFailure(st.RequestID, st.Params.TargetURL, st.Err)
}

// extendWriteDeadline restarts the connection's write deadline before the
// response goes out. The server-wide WriteTimeout starts counting when the
// request is read, and a slow upstream with retries can use all of it.
func (g *Gateway) extendWriteDeadline(em *emitter) {
	timeout := g.cfg.Server.WriteTimeout
	if timeout <= 0 || em.headersSent() {
		return
	}
	err := http.NewResponseController(em.w).SetWriteDeadline(time.Now().Add(timeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug().Err(err).Msg("failed to extend write deadline")
	}
}

// complete records the terminal state of a request.
func (g *Gateway) complete(r *http.Request, em *emitter, st *requestState) {
	latency := time.Since(st.ReceivedAt)

	ev := &monitoring.CompletionEvent{
		RequestID:       st.RequestID,
		Timestamp:       st.ReceivedAt.UTC(),
		Worker:          g.workerID,
		PID:             os.Getpid(),
		ClientIP:        g.getClientIP(r),
		Outcome:         st.Outcome,
		StatusCode:      em.status,
		RequestHeaders:  monitoring.FlattenHeaders(r.Header),
		ResponseHeaders: monitoring.FlattenHeaders(em.w.Header()),
		FetchLatencyMs:  st.FetchLatency.Milliseconds(),
		EncodeLatencyMs: st.EncodeLatency.Milliseconds(),
		TotalLatencyMs:  latency.Milliseconds(),
	}
	if st.HasParams {
		ev.TargetURL = st.Params.TargetURL
		ev.Format = string(st.Params.Format)
		ev.Grayscale = st.Params.Grayscale
		ev.Quality = st.Params.Quality
	}
	if st.Fetch != nil {
		ev.OriginalSize = len(st.Fetch.Body)
		ev.FetchAttempts = st.Fetch.Attempts
	}
	if d := st.Decision; d != nil {
		ev.Format = string(d.Context.Format)
		if len(d.Attempts) > 0 {
			ev.CompressedSize = d.Size.Compressed
			ev.BytesSaved = d.Size.Saved
			ev.SavedPercent = d.Size.Percent
		}
		for _, a := range d.Attempts {
			ev.Attempts = append(ev.Attempts, monitoring.AttemptRecord{
				Format:         string(a.Format),
				CompressedSize: a.Size.Compressed,
				BytesSaved:     a.Size.Saved,
			})
			g.metrics.RecordEncode(string(a.Format))
		}
		g.requestLogger.LogDecision(&monitoring.DecisionInfo{
			RequestID:  st.RequestID,
			URL:        st.Params.TargetURL,
			Format:     ev.Format,
			Outcome:    st.Outcome,
			Original:   ev.OriginalSize,
			Compressed: ev.CompressedSize,
			Saved:      ev.BytesSaved,
			Percent:    ev.SavedPercent,
		})
	}
	if st.Err != nil {
		ev.Error = st.Err.Error()
	}

	g.tracker.Record(context.WithoutCancel(r.Context()), ev)
	g.metrics.RecordRequest(st.Outcome, latency)
	if st.Fetch != nil {
		g.metrics.RecordCompression(ev.OriginalSize, ev.BytesSaved, st.Outcome == monitoring.OutcomeServed)
	}
	g.alerts.FlagHighLatency(st.RequestID, latency, ev.TargetURL)

	if g.cfg.Codec.GCAfterRequest {
		g.hinter.Hint()
	}
}

// handleFavicon answers browsers probing for an icon.
func (g *Gateway) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": msg, "type": "proxy_error"},
	})
}

// handleHealth returns worker health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"version": g.version,
		"worker":  g.workerID,
		"pid":     os.Getpid(),
		"uptime":  time.Since(g.startedAt).Round(time.Second).String(),
		"idle":    g.idle.Idle().Round(time.Millisecond).String(),
		"admission": map[string]int{
			"active": g.admit.Active(),
			"queued": g.admit.Queued(),
			"limit":  g.admit.ActiveLimit(),
		},
		"counters": g.metrics.Stats(),
	}

	summary, err := g.store.Summary(r.Context(), time.Now().Add(-store.DefaultRetention))
	if err != nil {
		log.Warn().Err(err).Msg("health: store summary failed")
		health["status"] = "degraded"
	} else {
		health["last_hour"] = summary
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}
