// Package gateway is the per-worker HTTP server of the image compression proxy.
//
// DESIGN: One Gateway per worker process. It owns the worker's collaborators:
//   - fetcher + compression engine: the request pipeline (handler.go)
//   - admission controller + idle tracker: updated on every admitted request
//   - reclaimer: idle-window memory hints on a cron schedule
//   - tracker + store + metrics: completion events, /healthz and /metrics
//
// Every worker binds the same port with SO_REUSEPORT; the kernel spreads
// connections across them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rushs321/suko/external"
	"github.com/Rushs321/suko/internal/admission"
	"github.com/Rushs321/suko/internal/codec"
	"github.com/Rushs321/suko/internal/compress"
	"github.com/Rushs321/suko/internal/config"
	"github.com/Rushs321/suko/internal/monitoring"
	"github.com/Rushs321/suko/internal/reclaim"
	"github.com/Rushs321/suko/internal/store"
)

// Gateway serves the proxy for one worker.
type Gateway struct {
	cfg       *config.Config
	version   string
	workerID  int
	startedAt time.Time

	fetcher Fetcher
	engine  *compress.Engine

	admit     *admission.Controller
	idle      *reclaim.IdleTracker
	hinter    reclaim.Hinter
	reclaimer *reclaim.Reclaimer

	store         store.Store
	tracker       *monitoring.Tracker
	metrics       *monitoring.Metrics
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	rateLimiter   *clientLimiter

	handler http.Handler
	server  *http.Server
}

type options struct {
	fetcher  Fetcher
	codec    codec.Codec
	store    store.Store
	hinter   reclaim.Hinter
	clock    func() time.Time
	workerID int
	version  string
}

// Option customizes a Gateway.
type Option func(*options)

// WithFetcher replaces the upstream fetcher.
func WithFetcher(f Fetcher) Option { return func(o *options) { o.fetcher = f } }

// WithCodec replaces the image codec.
func WithCodec(c codec.Codec) Option { return func(o *options) { o.codec = c } }

// WithStore replaces the completion store.
func WithStore(s store.Store) Option { return func(o *options) { o.store = s } }

// WithHinter replaces the memory reclamation hinter.
func WithHinter(h reclaim.Hinter) Option { return func(o *options) { o.hinter = h } }

// WithClock sets the clock used by the idle tracker.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// WithWorkerID tags logs, telemetry and /healthz with the worker slot.
func WithWorkerID(id int) Option { return func(o *options) { o.workerID = id } }

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option { return func(o *options) { o.version = v } }

// New creates a Gateway from cfg.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	if o.codec == nil {
		enc := codec.New(cfg.Codec)
		enc.LogSettings(cfg.Codec)
		o.codec = enc
	}
	if o.fetcher == nil {
		o.fetcher = external.NewFetcher(cfg.Fetch)
	}
	if o.store == nil {
		st, err := openStore(cfg.Monitoring)
		if err != nil {
			return nil, err
		}
		o.store = st
	}

	telemetryPath := ""
	if cfg.Monitoring.TelemetryEnabled {
		telemetryPath = cfg.Monitoring.TelemetryPath
	}
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:       true,
		LogPath:       telemetryPath,
		LogToStdout:   cfg.Monitoring.LogToStdout,
		RedactHeaders: cfg.Monitoring.RedactHeaders,
	}, o.store)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	logger := monitoring.Wrap(log.Logger)
	metrics := monitoring.NewMetrics()

	g := &Gateway{
		cfg:           cfg,
		version:       o.version,
		workerID:      o.workerID,
		startedAt:     time.Now(),
		fetcher:       o.fetcher,
		engine:        compress.New(o.codec, cfg.Compression),
		idle:          reclaim.NewIdleTracker(o.clock),
		store:         o.store,
		tracker:       tracker,
		metrics:       metrics,
		alerts:        monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold}),
		requestLogger: monitoring.NewRequestLogger(logger),
	}

	if cfg.Admission.Enabled() {
		g.admit = admission.New(*cfg.Admission.ActiveLimit, cfg.Admission.QueuedLimit)
	}
	metrics.RegisterAdmission(g.admit.Active, g.admit.Queued)

	hinter := o.hinter
	if hinter == nil {
		hinter = reclaim.NewHinter(nil)
	}
	g.hinter = &meteredHinter{next: hinter, metrics: metrics}
	g.reclaimer = reclaim.New(g.idle, g.hinter, cfg.Reclaim)

	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit)
	}

	g.handler = g.routes()
	g.server = &http.Server{
		Handler:           g.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return g, nil
}

func openStore(cfg config.MonitoringConfig) (store.Store, error) {
	if cfg.SQLitePath == "" {
		return store.NewMemoryStore(store.DefaultRetention), nil
	}
	st, err := store.OpenSQLite(context.Background(), cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion store: %w", err)
	}
	return st, nil
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", g.admissionControl(g.rateLimit(http.HandlerFunc(g.handleCompress))))
	mux.HandleFunc("GET /favicon.ico", g.handleFavicon)
	mux.HandleFunc("GET /healthz", g.handleHealth)
	if g.cfg.Monitoring.MetricsEnabled {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	return g.panicRecovery(g.loggingMiddleware(g.security(mux)))
}

// Handler returns the full middleware chain.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start binds the configured port (shared with the other workers) and serves
// until Shutdown.
func (g *Gateway) Start() error {
	addr := fmt.Sprintf(":%d", g.cfg.Server.Port)
	ln, err := listenReusePort(context.Background(), addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	if err := g.reclaimer.Start(); err != nil {
		return err
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("admission", g.admit != nil).
		Bool("best_format", g.cfg.Compression.BestFormat).
		Bool("alt_format_fallback", g.cfg.Compression.AltFormatFallback).
		Msg("worker listening")

	if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	g.reclaimer.Stop()
	g.rateLimiter.close()
	_ = g.tracker.Close()
	if cerr := g.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// meteredHinter counts started reclamation hints.
type meteredHinter struct {
	next    reclaim.Hinter
	metrics *monitoring.Metrics
}

func (h *meteredHinter) Hint() bool {
	started := h.next.Hint()
	if started {
		h.metrics.RecordReclaimHint()
	}
	return started
}
