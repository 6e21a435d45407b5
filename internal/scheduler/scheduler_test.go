package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
)

type recordingIngester struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	deadline []bool
}

func (r *recordingIngester) Ingest(ctx context.Context, location string) (models.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, location)
	_, ok := ctx.Deadline()
	r.deadline = append(r.deadline, ok)
	if err := r.fail[location]; err != nil {
		return models.Observation{}, err
	}
	return models.Observation{Location: location, Conditions: "Ciel dégagé"}, nil
}

func (r *recordingIngester) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Spec: "@hourly"}, &recordingIngester{}, nil); err == nil {
		t.Error("New() without locations expected error")
	}
	if _, err := New(Config{Spec: "not a spec", Locations: []string{"a"}}, &recordingIngester{}, nil); err == nil {
		t.Error("New() with invalid spec expected error")
	}
	s, err := New(Config{Spec: "*/15 * * * *", Locations: []string{"a"}}, &recordingIngester{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = s.Stop(context.Background())
}

// TestRunOnce_SequentialAndFailureTolerant verifies every label is ingested in order and
// a failure does not stop the remaining labels.
func TestRunOnce_SequentialAndFailureTolerant(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ing := &recordingIngester{fail: map[string]error{"Kara": errors.New("upstream failure")}}
	s, err := New(Config{Spec: "@hourly", Locations: []string{"Lomé, Togo", "Kara", "Sokodé"}, RunTimeout: time.Second}, ing, zap.New(core))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Stop(context.Background())

	success := observability.SchedulerRunsTotal.WithLabelValues("success")
	failure := observability.SchedulerRunsTotal.WithLabelValues("failure")
	okBefore, failBefore := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	if n := s.RunOnce(context.Background()); n != 1 {
		t.Errorf("RunOnce() failures = %d, want 1", n)
	}

	got := ing.snapshot()
	want := []string{"Lomé, Togo", "Kara", "Sokodé"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	for i, ok := range ing.deadline {
		if !ok {
			t.Errorf("call %d had no deadline, want RunTimeout applied", i)
		}
	}
	if d := testutil.ToFloat64(success) - okBefore; d != 2 {
		t.Errorf("success delta = %v, want 2", d)
	}
	if d := testutil.ToFloat64(failure) - failBefore; d != 1 {
		t.Errorf("failure delta = %v, want 1", d)
	}
	if logs.FilterMessage("scheduled ingest failed").Len() != 1 {
		t.Error("expected one failure log")
	}
}

func TestRunOnce_CancelledContextStops(t *testing.T) {
	ing := &recordingIngester{}
	s, err := New(Config{Spec: "@hourly", Locations: []string{"a", "b"}}, ing, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)
	if n := len(ing.snapshot()); n != 0 {
		t.Errorf("calls = %d, want 0 after cancellation", n)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	ing := &recordingIngester{}
	s, err := New(Config{Spec: "@every 1s", Locations: []string{"tick"}}, ing, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for len(ing.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(ing.snapshot()) == 0 {
		t.Error("expected at least one scheduled run")
	}
}
