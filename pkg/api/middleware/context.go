// Package middleware provides HTTP middleware for the dittobtt API.
package middleware

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/dittobtt/internal/logger"
	"github.com/marmos91/dittobtt/internal/telemetry"
)

// RequestContext attaches a logger.LogContext and a server span to every
// request. It must run after chi's RequestID and RealIP middleware.
//
// The span is named after the route pattern once chi has matched it; until
// then the raw path stands in.
func RequestContext(device string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := telemetry.StartAPISpan(r.Context(), r.Method, r.URL.Path,
				telemetry.ClientIP(clientIP(r.RemoteAddr)))
			defer span.End()

			lc := logger.NewLogContext(device).
				WithRequest(chimw.GetReqID(ctx), clientIP(r.RemoteAddr)).
				WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
			ctx = logger.WithContext(ctx, lc)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if rctx := chi.RouteContext(ctx); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					span.SetAttributes(telemetry.HTTPRoute(pattern))
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(telemetry.HTTPStatus(status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
