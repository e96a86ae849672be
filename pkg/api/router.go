package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/pkg/api/handlers"
	apimw "github.com/marmos91/dittobtt/pkg/api/middleware"
	"github.com/marmos91/dittobtt/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Per-request log context and tracing span
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /api/v1/device - Device geometry
//   - GET /api/v1/sectors/{sector} - Read sectors
//   - PUT /api/v1/sectors/{sector} - Write sectors
//   - GET|POST /api/v1/check - Consistency check
//   - GET /metrics - Prometheus metrics, when enabled
func NewRouter(cfg APIConfig, dev handlers.Device, metricsEnabled bool) http.Handler {
	cfg.ApplyDefaults()

	r := chi.NewRouter()

	var deviceID string
	if dev != nil {
		deviceID = dev.Info().UUID
	}

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimw.RequestContext(deviceID))
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.WriteTimeout))

	healthHandler := handlers.NewHealthHandler(dev)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if dev != nil {
		deviceHandler := handlers.NewDeviceHandler(dev)
		sectorHandler := handlers.NewSectorHandler(dev, cfg.MaxSectors)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/device", deviceHandler.Get)
			r.Get("/check", deviceHandler.Check)
			r.Post("/check", deviceHandler.Check)
			r.Get("/sectors/{sector}", sectorHandler.Read)
			r.Put("/sectors/{sector}", sectorHandler.Write)
		})
	}

	if metricsEnabled {
		if reg := metrics.GetRegistry(); reg != nil {
			r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// isHealthPath keeps probe traffic out of the INFO log.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level, DEBUG for probes): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		logger.DebugCtx(ctx, "API request started",
			logger.KeyMethod, r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			logger.KeyMethod, r.Method,
			"path", r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		}
		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(ctx, "API request completed", args...)
			return
		}
		logger.InfoCtx(ctx, "API request completed", args...)
	})
}
