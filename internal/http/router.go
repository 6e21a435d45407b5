package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest-service/internal/observability"
)

// RouterConfig selects the ingest path and the per-request guards applied to it.
type RouterConfig struct {
	IngestPath     string
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
}

// NewRouter wires the handler routes and middleware chain.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	if cfg.IngestPath == "" {
		cfg.IngestPath = "/weather-api"
	}

	router := mux.NewRouter()
	router.NotFoundHandler = CORSMiddleware(http.NotFoundHandler())
	router.MethodNotAllowedHandler = CORSMiddleware(http.HandlerFunc(methodNotAllowed))
	router.Use(CORSMiddleware)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.MatcherFunc(isPreflight).HandlerFunc(h.Preflight).Name("preflight")
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	ingest := router.NewRoute().Subrouter()
	ingest.Use(RateLimitMiddleware(cfg.Limiter))
	ingest.Use(TimeoutMiddleware(cfg.RequestTimeout))
	// Every method except OPTIONS ingests; OPTIONS never reaches here.
	ingest.HandleFunc(cfg.IngestPath, h.Ingest)
	if cfg.IngestPath != "/" {
		ingest.HandleFunc("/", h.Ingest)
	}
	return router
}

// isPreflight matches OPTIONS on any path. A method matcher would turn every
// unknown path into a 405.
func isPreflight(r *http.Request, _ *mux.RouteMatch) bool {
	return r.Method == http.MethodOptions
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusMethodNotAllowed)
}
