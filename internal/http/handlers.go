package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/lifecycle"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
	"github.com/kjstillabower/weather-ingest-service/internal/traffic"
	"github.com/kjstillabower/weather-ingest-service/internal/validation"
)

// Messages returned to browser clients. The front-end matches on them verbatim.
const (
	fetchErrorMessage      = "Erreur lors de la récupération des données météo"
	invalidLocationMessage = "Paramètre location invalide"
	rateLimitedMessage     = "Trop de requêtes"
)

// Ingester produces and records one observation per call.
type Ingester interface {
	Ingest(ctx context.Context, location string) (models.Observation, error)
}

// Pinger reports backend reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds request-level settings for the ingest handler.
type HandlerConfig struct {
	DefaultLocation   string
	LocationMaxLength int // 0 disables the check
	HealthPingTimeout time.Duration
	// DegradedWindow and DegradedErrorPct report degraded when upstream
	// failures within the window reach the percentage. 0 disables.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	ServiceName      string
	Version          string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	ingester         Ingester
	store            Pinger
	cfg              HandlerConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string

	// draining reports the process drain state; lifecycle in production.
	draining func() (reason string, since time.Duration, ok bool)
}

func lifecycleDrain() (string, time.Duration, bool) {
	return lifecycle.ShutdownReason(), lifecycle.DrainingFor(), lifecycle.IsShuttingDown()
}

// NewHandler returns a new Handler. store may be nil, in which case /health
// does not check persistence.
func NewHandler(ingester Ingester, store Pinger, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if cfg.HealthPingTimeout <= 0 {
		cfg.HealthPingTimeout = 2 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "weather-ingest-service"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ingester: ingester,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		draining: lifecycleDrain,
	}
}

// Ingest handles every non-OPTIONS method on the ingest path. The optional location query
// parameter labels the stored row.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	location, err := validation.LocationLabel(r.URL.Query().Get("location"), h.cfg.DefaultLocation, h.cfg.LocationMaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, invalidLocationMessage, err)
		return
	}

	obs, err := h.ingester.Ingest(r.Context(), location)
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("ingest failed",
			zap.String("location", location), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, fetchErrorMessage, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// Preflight answers CORS preflight requests with an empty 200.
// CORSMiddleware has already set the headers.
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status      string
	statusCode  int
	reason      string
	storeErr    error
	drainingFor time.Duration
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.store != nil {
		if result.storeErr != nil {
			checks["store"] = "unhealthy"
		} else {
			checks["store"] = "healthy"
		}
	}
	body := map[string]interface{}{
		"status":    result.status,
		"service":   h.cfg.ServiceName,
		"version":   h.cfg.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.status == "shutting-down" {
		body["reason"] = result.reason
		body["draining_seconds"] = result.drainingFor.Seconds()
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates, in order: shutting-down, store reachability,
// upstream error rate, healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if reason, since, ok := h.draining(); ok {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: reason, drainingFor: since}
	}
	if h.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, h.cfg.HealthPingTimeout)
		defer cancel()
		if err := h.store.Ping(pingCtx); err != nil {
			return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: "store_unreachable", storeErr: err}
		}
	}
	if h.cfg.DegradedWindow > 0 && h.cfg.DegradedErrorPct > 0 {
		failures, total := traffic.FailureRate(h.cfg.DegradedWindow)
		if total > 0 && failures*100 >= h.cfg.DegradedErrorPct*total {
			return healthResult{status: "degraded", statusCode: http.StatusServiceUnavailable, reason: "error_rate_breach"}
		}
	}
	return healthResult{status: "healthy", statusCode: http.StatusOK}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every non-2xx response from the ingest path.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// writeError writes {"error": message, "details": err} and echoes the
// correlation ID header for log lookup.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if corrID := observability.CorrelationID(r.Context()); corrID != "" {
		w.Header().Set("X-Correlation-ID", corrID)
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}
