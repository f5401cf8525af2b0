package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxConcurrent  int
	CORSOrigin     string
	// APIKey, when set, is required as X-API-Key on tree, tile and
	// nearest-segment routes.
	APIKey string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:           addr,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxConcurrent:  runtime.NumCPU() * 2,
	}
}

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_counts_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traffic_counts_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// NewServer creates an HTTP server with all routes and middleware.
func NewServer(cfg ServerConfig, handlers *Handlers) *http.Server {
	mux := http.NewServeMux()

	// Concurrency limiter.
	sem := make(chan struct{}, cfg.MaxConcurrent)

	// Data routes.
	mux.HandleFunc("GET /trees/{id}", withMiddleware("tree", withAPIKey(handlers.HandleTree, cfg.APIKey), sem, cfg))
	mux.HandleFunc("GET /tiles/mvt.json", withMiddleware("tilejson", handlers.HandleTileJSON, sem, cfg))
	mux.HandleFunc("GET /tiles/{z}/{x}/{file}", withMiddleware("tile", withAPIKey(handlers.HandleTile, cfg.APIKey), sem, cfg))
	mux.HandleFunc("GET /api/v1/segments/nearest", withMiddleware("nearest", withAPIKey(handlers.HandleNearest, cfg.APIKey), sem, cfg))

	// Operational routes.
	mux.HandleFunc("GET /api/v1/health", withMiddleware("health", handlers.HandleHealth, sem, cfg))
	mux.HandleFunc("GET /api/v1/stats", withMiddleware("stats", handlers.HandleStats, sem, cfg))
	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.CORSOrigin != "" {
		mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
			setCORS(w, cfg)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		})
	}

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// ListenAndServe starts the server and blocks until shutdown signal.
func ListenAndServe(srv *http.Server) error {
	// Graceful shutdown on SIGTERM/SIGINT.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("Received %s, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(p)
}

func setCORS(w http.ResponseWriter, cfg ServerConfig) {
	w.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "X-API-Key, If-None-Match")
	w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
}

// withAPIKey rejects requests whose X-API-Key does not match key. An empty
// key disables the check.
func withAPIKey(handler http.HandlerFunc, key string) http.HandlerFunc {
	if key == "" {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "")
			return
		}
		handler(w, r)
	}
}

// withMiddleware wraps a handler with request ids, logging, metrics,
// recovery, security headers, and concurrency limiting.
func withMiddleware(route string, handler http.HandlerFunc, sem chan struct{}, cfg ServerConfig) http.HandlerFunc {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		// Security headers.
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")

		// CORS.
		if cfg.CORSOrigin != "" {
			setCORS(w, cfg)
		}

		sw := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			code := sw.status
			if code == 0 {
				code = http.StatusOK
			}
			elapsed := time.Since(start)
			httpRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
			httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			log.Printf("%s %s %d %s id=%s", r.Method, r.URL.Path, code, elapsed.Round(time.Microsecond), reqID)
		}()

		// Concurrency limiter.
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		default:
			sw.Header().Set("Retry-After", "1")
			http.Error(sw, `{"error":"service_unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		// Recovery.
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic: %v id=%s", rec, reqID)
				http.Error(sw, `{"error":"internal_error"}`, http.StatusInternalServerError)
			}
		}()

		// Request timeout.
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		handler(sw, r.WithContext(ctx))
	}
}
