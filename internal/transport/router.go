package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pitabwire/relaygate/internal/dispatch"
	"github.com/pitabwire/relaygate/internal/metrics"
	"github.com/pitabwire/relaygate/internal/observability"
)

// Dependencies holds the injected dependencies for the HTTP transport
// layer: the dispatch controller driving /api/*, the metrics accumulator
// behind /metrics, and the boot-time values needed by middleware.
type Dependencies struct {
	Dispatch            *dispatch.Controller
	Metrics             *metrics.Accumulator
	Logger              *zap.Logger
	InstanceID          string
	MaxRequestBodyBytes int64
	RequestTimeout      time.Duration
}

// NewRouter creates a chi.Router wiring the three routes in the HTTP
// surface: GET /ping, GET /metrics, and {GET,POST,PUT,PATCH,DELETE}
// /api/{*path}. All routes share the same global middleware chain; there
// is no authenticated/public split in this gateway.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(RequestLogging(deps.Logger))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}

	r.Get("/ping", observability.HandlePing())
	r.Get("/metrics", NewMetricsHandler(deps.Metrics, deps.InstanceID))

	dispatchHandler := NewDispatchHandler(deps.Dispatch, deps.MaxRequestBodyBytes)
	r.Route("/api", func(api chi.Router) {
		api.Get("/*", dispatchHandler)
		api.Post("/*", dispatchHandler)
		api.Put("/*", dispatchHandler)
		api.Patch("/*", dispatchHandler)
		api.Delete("/*", dispatchHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	return r
}
