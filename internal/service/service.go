package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/client"
	"github.com/kjstillabower/weather-ingest-service/internal/conditions"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
	"github.com/kjstillabower/weather-ingest-service/internal/store"
	"github.com/kjstillabower/weather-ingest-service/internal/traffic"
)

// IngestionService fetches current conditions, normalizes them into an
// Observation and appends it to the store.
type IngestionService struct {
	client client.WeatherClient
	store  store.Store
	coords models.Coordinates
	logger *zap.Logger
	now    func() time.Time
}

// NewIngestionService creates an IngestionService. coords is the point queried
// upstream for every request; the location label does not affect it.
func NewIngestionService(client client.WeatherClient, store store.Store, coords models.Coordinates, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		client: client,
		store:  store,
		coords: coords,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for date and created_at.
func (s *IngestionService) WithClock(now func() time.Time) *IngestionService {
	s.now = now
	return s
}

// Ingest fetches the current reading and records it under location.
// A failed upstream call returns an error and writes nothing. A failed store
// write is logged and counted; the observation is still returned.
func (s *IngestionService) Ingest(ctx context.Context, location string) (models.Observation, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	reading, err := s.client.GetCurrent(ctx, s.coords)
	if err != nil {
		traffic.RecordFailure()
		logger.Warn("weather fetch failed",
			zap.String("location", location),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return models.Observation{}, fmt.Errorf("fetch weather: %w", err)
	}

	traffic.RecordSuccess()

	obs := BuildObservation(location, reading, s.now())
	observability.RecordObservation(conditions.Known(reading.WeatherCode))

	writeStart := time.Now()
	writeErr := s.store.Insert(ctx, obs)
	observability.RecordStoreWrite(s.store.Backend(), writeErr, time.Since(writeStart).Seconds())
	if writeErr != nil {
		logger.Error("store insert failed",
			zap.String("backend", s.store.Backend()),
			zap.String("location", location),
			zap.Error(writeErr),
		)
	}

	logger.Info("observation ingested",
		zap.String("location", location),
		zap.Int("temperature", obs.Temperature),
		zap.Int("humidity", obs.Humidity),
		zap.Float64("precipitation", obs.Precipitation),
		zap.Float64("wind_speed", obs.WindSpeed),
		zap.String("conditions", obs.Conditions),
		zap.Bool("stored", writeErr == nil),
		zap.Duration("duration", time.Since(start)),
	)
	return obs, nil
}

// BuildObservation normalizes a provider reading. Temperature is rounded to
// the nearest integer, wind speed to one decimal, halves toward +Inf.
// Date and CreatedAt are UTC; CreatedAt keeps millisecond precision.
func BuildObservation(location string, r models.CurrentReading, now time.Time) models.Observation {
	now = now.UTC().Truncate(time.Millisecond)
	return models.Observation{
		Location:      location,
		Temperature:   int(roundHalfUp(r.Temperature)),
		Humidity:      r.Humidity,
		Precipitation: r.Precipitation,
		WindSpeed:     roundHalfUp(r.WindSpeed*10) / 10,
		Conditions:    conditions.Describe(r.WeatherCode),
		Date:          now.Format("2006-01-02"),
		CreatedAt:     now,
	}
}

// roundHalfUp rounds x to the nearest integer with ties going toward +Inf,
// so -2.5 becomes -2 rather than math.Round's -3.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
