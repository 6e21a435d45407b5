//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/models"
	testhelpers "github.com/kjstillabower/weather-ingest-service/internal/testhelpers"
)

// setupIntegrationRouter creates a router backed by the live provider and the configured store.
func setupIntegrationRouter(t *testing.T) (http.Handler, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, st, cleanup := testhelpers.SetupIntegrationService(t, cfg)
	h := NewHandler(svc, st, HandlerConfig{DefaultLocation: defaultLabel}, zap.NewNop())
	return NewRouter(h, RouterConfig{RequestTimeout: 20 * time.Second}, zap.NewNop()), cleanup
}

func TestIntegration_IngestLive(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weather-api?location=Integration", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var obs models.Observation
	if err := json.NewDecoder(w.Body).Decode(&obs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obs.Location != "Integration" || obs.Conditions == "" || obs.Date != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("observation = %+v", obs)
	}
}

func TestIntegration_ConcurrentIngest(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d status = %d", i, code)
		}
	}
}

func TestIntegration_Health(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t)
	defer cleanup()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, body = %s", w.Code, w.Body.String())
	}
}
