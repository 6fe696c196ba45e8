// Package openmeteo is the weather fetch client. It issues one GET per point
// against the Open-Meteo forecast endpoint and decodes the response into an
// entity.Payload. Failures come back as a *FetchError wrapped in a fetch-kind
// PipelineError; callers record them per point and move on.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const (
	module     = "openmeteo"
	tracerName = "github.com/tigerroll/weatherdw/internal/openmeteo"
)

// Client fetches current conditions and hourly forecasts.
type Client struct {
	baseURL       string
	timezone      string
	forecastHours int
	userAgent     string
	timeout       time.Duration
	concurrency   int
	retry         config.RetryConfig

	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   *responseCache
}

// NewClient builds a client from the API configuration. timezone is sent
// with every request so that bare timestamps in the response are local to it.
func NewClient(cfg config.APIConfig, timezone string) *Client {
	c := &Client{
		baseURL:       cfg.BaseURL,
		timezone:      timezone,
		forecastHours: cfg.ForecastHours,
		userAgent:     cfg.UserAgent,
		timeout:       cfg.Timeout(),
		concurrency:   max(cfg.Concurrency, 1),
		retry:         cfg.Retry,
		http:          &http.Client{},
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	if cfg.CacheTTL() > 0 {
		c.cache = newResponseCache(cfg.CacheTTL(), time.Now)
	}
	if threshold := cfg.Retry.CircuitBreakerThreshold; threshold > 0 {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        module,
			MaxRequests: 1,
			Timeout:     time.Duration(cfg.Retry.CircuitBreakerResetSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold)
			},
			// Client-side problems say nothing about the health of the API.
			IsSuccessful: func(err error) bool {
				var fe *FetchError
				return err == nil || (errors.As(err, &fe) && !fe.Retryable())
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warnf("Circuit breaker '%s' changed from %s to %s.", name, from, to)
			},
		})
	}
	return c
}

// Fetch requests kind for one coordinate pair.
func (c *Client) Fetch(ctx context.Context, kind entity.FetchKind, latitude, longitude float64) (*entity.Payload, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "openmeteo.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("weather.kind", string(kind)),
		attribute.Float64("weather.latitude", latitude),
		attribute.Float64("weather.longitude", longitude),
	)

	payload, err := c.fetch(ctx, kind, latitude, longitude)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ClassOf(err)))
	}
	return payload, err
}

func (c *Client) fetch(ctx context.Context, kind entity.FetchKind, latitude, longitude float64) (*entity.Payload, error) {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return nil, exception.Newf(module, exception.KindFetch, "invalid coordinates (%f, %f)", latitude, longitude)
	}
	reqURL, err := c.requestURL(kind, latitude, longitude)
	if err != nil {
		return nil, exception.New(module, exception.KindFetch, "build request URL", err)
	}

	if c.cache != nil {
		if p, ok := c.cache.get(reqURL); ok {
			logger.Debugf("Weather cache hit for (%.6f, %.6f).", latitude, longitude)
			return p, nil
		}
	}

	payload, err := c.fetchWithRetry(ctx, reqURL, kind)
	if err != nil {
		msg := fmt.Sprintf("fetch %s weather for (%.6f, %.6f)", kind, latitude, longitude)
		var fe *FetchError
		if errors.As(err, &fe) && fe.Retryable() {
			return nil, exception.NewRetryable(module, exception.KindFetch, msg, err)
		}
		return nil, exception.New(module, exception.KindFetch, msg, err)
	}
	if c.cache != nil {
		c.cache.put(reqURL, payload)
	}
	return payload, nil
}

func (c *Client) requestURL(kind entity.FetchKind, latitude, longitude float64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', 6, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', 6, 64))
	if c.timezone != "" {
		q.Set("timezone", c.timezone)
	}
	switch kind {
	case entity.KindCurrent:
		q.Set("current", strings.Join(entity.CurrentFields, ","))
	case entity.KindForecast:
		q.Set("hourly", strings.Join(entity.HourlyFields, ","))
		q.Set("forecast_hours", strconv.Itoa(c.forecastHours))
	default:
		return "", fmt.Errorf("unknown fetch kind %q", kind)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, reqURL string, kind entity.FetchKind) (*entity.Payload, error) {
	delay := time.Duration(c.retry.InitialIntervalMillis) * time.Millisecond
	maxDelay := time.Duration(c.retry.MaxIntervalMillis) * time.Millisecond

	for attempt := 1; ; attempt++ {
		payload, err := c.attempt(ctx, reqURL, kind)
		if err == nil {
			return payload, nil
		}
		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Retryable() || attempt >= c.retry.MaxAttempts {
			return nil, err
		}
		logger.Warnf("Weather request attempt %d/%d failed (%v); retrying in %s.", attempt, c.retry.MaxAttempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &FetchError{Class: FailureNetwork, Err: ctx.Err()}
		case <-timer.C:
		}
		if c.retry.Factor > 1 {
			delay = time.Duration(float64(delay) * c.retry.Factor)
		}
		if maxDelay > 0 && delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) attempt(ctx context.Context, reqURL string, kind entity.FetchKind) (*entity.Payload, error) {
	if c.breaker == nil {
		return c.do(ctx, reqURL, kind)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, reqURL, kind)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &FetchError{Class: FailureCircuitOpen, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return res.(*entity.Payload), nil
}

func (c *Client) do(ctx context.Context, reqURL string, kind entity.FetchKind) (*entity.Payload, error) {
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Class: FailureNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Class: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Class: FailureStatus, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var payload entity.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if reqCtx.Err() != nil {
			return nil, &FetchError{Class: FailureNetwork, Err: err}
		}
		return nil, &FetchError{Class: FailureDecode, Err: err}
	}
	switch {
	case kind == entity.KindCurrent && payload.Current == nil:
		return nil, &FetchError{Class: FailureDecode, Err: errors.New(`response has no "current" object`)}
	case kind == entity.KindForecast && payload.Hourly == nil:
		return nil, &FetchError{Class: FailureDecode, Err: errors.New(`response has no "hourly" object`)}
	}
	return &payload, nil
}

// Result is the outcome of fetching one point.
type Result struct {
	Point   entity.Point
	Payload *entity.Payload
	Err     error
}

// FetchAll fetches every point with at most the configured number of
// requests in flight. Results keep the order of points; a failed point
// carries its error and never stops the others.
func (c *Client) FetchAll(ctx context.Context, kind entity.FetchKind, points []entity.Point) []Result {
	results := make([]Result, len(points))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, p := range points {
		g.Go(func() error {
			payload, err := c.Fetch(ctx, kind, p.Latitude, p.Longitude)
			if err != nil {
				logger.Warnf("Fetch failed for %s: %v", p, err)
			}
			results[i] = Result{Point: p, Payload: payload, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
