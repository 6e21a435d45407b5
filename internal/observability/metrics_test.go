package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies label dimensions match usage in client, http, service and store.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/weather-api", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather-api").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("success").Inc()
	WeatherAPICallsTotal.WithLabelValues("server_error").Inc()
	WeatherAPIDuration.WithLabelValues("success").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("upstream_5xx").Inc()
	SchedulerRunsTotal.WithLabelValues("success").Inc()
}

func TestRecordStoreWrite(t *testing.T) {
	okBefore := testutil.ToFloat64(StoreWritesTotal.WithLabelValues("memory", "success"))
	errBefore := testutil.ToFloat64(StoreWritesTotal.WithLabelValues("memory", "error"))

	RecordStoreWrite("memory", nil, 0.001)
	RecordStoreWrite("memory", errors.New("boom"), 0.002)

	if got := testutil.ToFloat64(StoreWritesTotal.WithLabelValues("memory", "success")); got != okBefore+1 {
		t.Errorf("success writes = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(StoreWritesTotal.WithLabelValues("memory", "error")); got != errBefore+1 {
		t.Errorf("error writes = %v, want %v", got, errBefore+1)
	}
}

func TestRecordObservation(t *testing.T) {
	before := testutil.ToFloat64(ObservationsTotal.WithLabelValues("false"))
	RecordObservation(false)
	if got := testutil.ToFloat64(ObservationsTotal.WithLabelValues("false")); got != before+1 {
		t.Errorf("observationsTotal{conditionsKnown=false} = %v, want %v", got, before+1)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
