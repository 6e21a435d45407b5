package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-ingest-service/internal/client"
	"github.com/kjstillabower/weather-ingest-service/internal/config"
	httphandler "github.com/kjstillabower/weather-ingest-service/internal/http"
	"github.com/kjstillabower/weather-ingest-service/internal/lifecycle"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
	"github.com/kjstillabower/weather-ingest-service/internal/scheduler"
	"github.com/kjstillabower/weather-ingest-service/internal/service"
	"github.com/kjstillabower/weather-ingest-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := newWeatherClient(cfg, logger)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := store.New(startCtx, cfg, logger)
	if err != nil {
		startCancel()
		logger.Fatal("store", zap.Error(err))
	}
	if err := st.Ping(startCtx); err != nil {
		logger.Warn("store not reachable at startup; writes will be retried per request", zap.String("backend", st.Backend()), zap.Error(err))
	}
	startCancel()
	logger.Info("store backend", zap.String("backend", st.Backend()), zap.String("table", cfg.StoreTable))

	coords := models.Coordinates{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	ingestService := service.NewIngestionService(weatherClient, st, coords, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logger.Info("rate limiter enabled", zap.Int("rps", cfg.RateLimitRPS), zap.Int("burst", cfg.RateLimitBurst))
	}

	handler := httphandler.NewHandler(ingestService, st, httphandler.HandlerConfig{
		DefaultLocation:   cfg.DefaultLocation,
		LocationMaxLength: cfg.LocationMaxLength,
		HealthPingTimeout: cfg.HealthPingTimeout,
		DegradedWindow:    cfg.HealthDegradedWindow,
		DegradedErrorPct:  cfg.HealthDegradedErrorPct,
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		IngestPath:     cfg.IngestPath,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	}, logger)

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(scheduler.Config{
			Spec:       cfg.SchedulerCron,
			Locations:  cfg.SchedulerLocations,
			RunTimeout: cfg.SchedulerRunTimeout,
		}, ingestService, logger)
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("ingest_path", cfg.IngestPath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginShutdown("signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := st.Close(); err != nil {
		logger.Error("store close", zap.String("backend", st.Backend()), zap.Error(err))
	}
	logger.Info("shutdown complete",
		zap.String("reason", lifecycle.ShutdownReason()),
		zap.Duration("drain_duration", lifecycle.DrainingFor()))
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
}

// newWeatherClient builds the Open-Meteo client and attaches the circuit breaker when enabled.
func newWeatherClient(cfg *config.Config, logger *zap.Logger) (*client.OpenMeteoClient, error) {
	c, err := client.NewOpenMeteoClient(cfg.WeatherAPIURL, client.Options{
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	if err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerEnabled {
		c.SetCircuitBreaker(client.BreakerConfig{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			MaxRequests:      cfg.CircuitBreakerMaxRequests,
			Interval:         cfg.CircuitBreakerInterval,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}
	return c, nil
}
