package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
)

// currentFields are the Open-Meteo "current" variables an observation needs.
const currentFields = "temperature_2m,relative_humidity_2m,precipitation,wind_speed_10m,weather_code"

type WeatherClient interface {
	GetCurrent(ctx context.Context, coords models.Coordinates) (models.CurrentReading, error)
}

var (
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrCircuitOpen       = errors.New("circuit breaker open")
)

// Options tunes an OpenMeteoClient. Zero values keep the single-attempt behavior.
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	HTTPClient     *http.Client
}

type OpenMeteoClient struct {
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *gobreaker.CircuitBreaker
}

func NewOpenMeteoClient(apiURL string, opts Options) (*OpenMeteoClient, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", apiURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &OpenMeteoClient{
		apiURL:         apiURL,
		timeout:        opts.Timeout,
		client:         httpClient,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
	}, nil
}

// BreakerConfig configures the optional circuit breaker around upstream calls.
type BreakerConfig struct {
	FailureThreshold int
	MaxRequests      int
	Interval         time.Duration
	Timeout          time.Duration
	OnStateChange    func(name string, from, to gobreaker.State)
}

// SetCircuitBreaker wraps every upstream attempt in a breaker that opens after
// FailureThreshold consecutive failures.
func (c *OpenMeteoClient) SetCircuitBreaker(cfg BreakerConfig) {
	threshold := uint32(cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "open_meteo",
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	})
}

type openMeteoResponse struct {
	Current *struct {
		Temperature   *float64 `json:"temperature_2m"`
		Humidity      *float64 `json:"relative_humidity_2m"`
		Precipitation *float64 `json:"precipitation"`
		WindSpeed     *float64 `json:"wind_speed_10m"`
		WeatherCode   *float64 `json:"weather_code"`
	} `json:"current"`
}

// GetCurrent fetches current conditions at coords. With the default single
// attempt any failure is returned as-is.
func (c *OpenMeteoClient) GetCurrent(ctx context.Context, coords models.Coordinates) (models.CurrentReading, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.CurrentReading{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.guardedCall(ctx, coords)
		if err == nil {
			return result, nil
		}
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()

		lastErr = err
		if !c.isRetryable(err) {
			return models.CurrentReading{}, err
		}
	}

	if c.retryAttempts > 1 {
		return models.CurrentReading{}, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return models.CurrentReading{}, lastErr
}

func (c *OpenMeteoClient) guardedCall(ctx context.Context, coords models.Coordinates) (models.CurrentReading, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, coords)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, coords)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return models.CurrentReading{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return models.CurrentReading{}, err
	}
	return out.(models.CurrentReading), nil
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, coords models.Coordinates) (models.CurrentReading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, coords)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.CurrentReading{}, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.CurrentReading{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.CurrentReading{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.CurrentReading{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.CurrentReading{}, fmt.Errorf("read response body: %w", err)
	}

	return parseCurrent(body)
}

// parseCurrent decodes the "current" object. Missing fields are a malformed
// response, not zero readings.
func parseCurrent(body []byte) (models.CurrentReading, error) {
	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.CurrentReading{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}
	cur := apiResp.Current
	if cur == nil {
		return models.CurrentReading{}, fmt.Errorf("%w: missing current block", ErrMalformedResponse)
	}
	switch {
	case cur.Temperature == nil:
		return models.CurrentReading{}, fmt.Errorf("%w: missing temperature_2m", ErrMalformedResponse)
	case cur.Humidity == nil:
		return models.CurrentReading{}, fmt.Errorf("%w: missing relative_humidity_2m", ErrMalformedResponse)
	case cur.Precipitation == nil:
		return models.CurrentReading{}, fmt.Errorf("%w: missing precipitation", ErrMalformedResponse)
	case cur.WindSpeed == nil:
		return models.CurrentReading{}, fmt.Errorf("%w: missing wind_speed_10m", ErrMalformedResponse)
	case cur.WeatherCode == nil:
		return models.CurrentReading{}, fmt.Errorf("%w: missing weather_code", ErrMalformedResponse)
	case !integral(*cur.Humidity):
		return models.CurrentReading{}, fmt.Errorf("%w: relative_humidity_2m %v is not an integer", ErrMalformedResponse, *cur.Humidity)
	}

	code := UnknownWeatherCode
	if integral(*cur.WeatherCode) {
		code = int(*cur.WeatherCode)
	}
	return models.CurrentReading{
		Temperature:   *cur.Temperature,
		Humidity:      int(*cur.Humidity),
		Precipitation: *cur.Precipitation,
		WindSpeed:     *cur.WindSpeed,
		WeatherCode:   code,
	}, nil
}

// UnknownWeatherCode stands in for a weather_code that is not a whole number.
// It is outside the WMO table, so it describes as unknown conditions.
const UnknownWeatherCode = -1

func integral(v float64) bool {
	return v == math.Trunc(v) && !math.IsInf(v, 0)
}

func (c *OpenMeteoClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrUpstreamFailure) {
		var se *statusError
		if errors.As(err, &se) {
			return se.code >= 500
		}
		return true
	}
	return CategorizeError(err) == ErrorCategoryTimeout || CategorizeError(err) == ErrorCategoryNetwork
}

func (c *OpenMeteoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// RequestURL returns the forecast URL for coords.
func (c *OpenMeteoClient) RequestURL(coords models.Coordinates) (string, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("latitude", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("current", currentFields)
	params.Set("timezone", "auto")
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, coords models.Coordinates) (*http.Request, error) {
	u, err := c.RequestURL(coords)
	if err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx, nil).Debug("fetching weather data", zap.String("url", u))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return "HTTP " + strconv.Itoa(e.code) }

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, &statusError{code: resp.StatusCode})
	}
	return fmt.Errorf("%w: %w", ErrUpstreamFailure, &statusError{code: resp.StatusCode})
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
