package api

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddleware wraps handlers with OpenTelemetry tracing when enabled.
func (h *Handlers) TracingMiddleware(next http.Handler) http.Handler {
	if !h.config.TracingEnabled {
		return next
	}

	return otelhttp.NewHandler(next, "runlens",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)
}
