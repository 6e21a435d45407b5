package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest-service/internal/observability"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	header := w.Header().Get("X-Correlation-ID")
	if header == "" {
		t.Fatal("X-Correlation-ID header missing")
	}
	if seen != header {
		t.Errorf("context correlation ID = %q, header = %q", seen, header)
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context(), nil).Info("handled")
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "test-corr-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "test-corr-123" {
		t.Errorf("X-Correlation-ID = %q, want test-corr-123", got)
	}
	entries := logs.FilterMessage("handled").All()
	if len(entries) != 1 || entries[0].ContextMap()["correlation_id"] != "test-corr-123" {
		t.Errorf("request logger missing correlation_id: %+v", entries)
	}
}

func TestMiddleware_CORSOnEveryResponse(t *testing.T) {
	router := mux.NewRouter()
	router.Use(CORSMiddleware)
	router.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing on error response")
	}
}

func TestMiddleware_MetricsUsesRouteTemplate(t *testing.T) {
	h := newTestHandler(&mockIngester{obs: sampleObservation()}, nil, 0)
	router := newTestRouter(h)

	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/weather-api", "2xx")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather-api?location=Kara", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("requests counter delta = %v, want 1", got)
	}

	preflight := observability.HTTPRequestsTotal.WithLabelValues(http.MethodOptions, "preflight", "2xx")
	before = testutil.ToFloat64(preflight)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodOptions, "/some/path", nil))
	if got := testutil.ToFloat64(preflight) - before; got != 1 {
		t.Errorf("preflight counter delta = %v, want 1", got)
	}
}

func TestMiddleware_InFlightTracked(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
		close(done)
	}()

	<-started
	if InFlightCount() < 1 {
		t.Errorf("InFlightCount() = %d, want >= 1", InFlightCount())
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

func TestMiddleware_TimeoutSetsDeadline(t *testing.T) {
	ing := &mockIngester{block: true}
	h := newTestHandler(ing, nil, 0)
	router := NewRouter(h, RouterConfig{RequestTimeout: 20 * time.Millisecond}, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather-api", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errorResponse
	_ = decodeJSON(w, &body)
	if body.Details != context.DeadlineExceeded.Error() {
		t.Errorf("details = %q, want %q", body.Details, context.DeadlineExceeded.Error())
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	ing := &mockIngester{obs: sampleObservation()}
	h := newTestHandler(ing, nil, 0)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	router := NewRouter(h, RouterConfig{Limiter: limiter}, zap.NewNop())

	before := testutil.ToFloat64(observability.RateLimitDeniedTotal)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/weather-api", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/weather-api", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	var body errorResponse
	if err := decodeJSON(second, &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Trop de requêtes" || body.Details != errRateLimited.Error() {
		t.Errorf("body = %+v", body)
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal) - before; got != 1 {
		t.Errorf("denied counter delta = %v, want 1", got)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if health.Code != http.StatusOK {
		t.Errorf("/health status = %d, rate limit must not apply", health.Code)
	}
	if len(ing.calls()) != 1 {
		t.Errorf("ingest calls = %d, want 1", len(ing.calls()))
	}
}

func TestStatusCodeString(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 404: "4xx", 500: "5xx", 429: "4xx"} {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func decodeJSON(w *httptest.ResponseRecorder, v interface{}) error {
	return json.NewDecoder(w.Body).Decode(v)
}
