package openmeteo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/support/exception"
)

const currentBody = `{
  "latitude": 40.76, "longitude": -73.92, "timezone": "America/New_York", "utc_offset_seconds": -18000,
  "current": {"time": "2026-01-19T10:15", "interval": 900, "temperature_2m": -2.4, "is_day": 1,
              "weather_code": 3, "precipitation": null}
}`

const forecastBody = `{
  "latitude": 40.45, "longitude": -79.93, "timezone": "America/New_York",
  "hourly": {"time": ["2026-01-19T00:00", "2026-01-19T01:00"], "temperature_2m": [1.5, null],
             "precipitation_probability": [20]}
}`

func testAPIConfig(baseURL string) config.APIConfig {
	cfg := config.NewConfig().Weather.API
	cfg.BaseURL = baseURL
	cfg.CacheTTLSeconds = 0
	cfg.Retry.InitialIntervalMillis = 1
	cfg.Retry.MaxIntervalMillis = 2
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.CircuitBreakerThreshold = 0
	return cfg
}

func TestFetch_CurrentRequestAndDecode(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(currentBody))
	}))
	defer srv.Close()

	c := NewClient(testAPIConfig(srv.URL), "America/New_York")
	p, err := c.Fetch(context.Background(), entity.KindCurrent, 40.7644, -73.9235)
	require.NoError(t, err)

	q := query.Load().(map[string][]string)
	assert.Equal(t, []string{"40.764400"}, q["latitude"])
	assert.Equal(t, []string{"-73.923500"}, q["longitude"])
	assert.Equal(t, []string{"America/New_York"}, q["timezone"])
	assert.Equal(t, []string{strings.Join(entity.CurrentFields, ",")}, q["current"])
	assert.Empty(t, q["hourly"])

	require.NotNil(t, p.Current)
	assert.Equal(t, "2026-01-19T10:15", p.Current.Time)
	assert.Equal(t, -2.4, *p.Current.Temperature2m)
	assert.Equal(t, 3, *p.Current.WeatherCode)
	assert.Nil(t, p.Current.Precipitation)
	assert.Nil(t, p.Current.Rain)
}

func TestFetch_ForecastRequestAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "168", r.URL.Query().Get("forecast_hours"))
		assert.Equal(t, strings.Join(entity.HourlyFields, ","), r.URL.Query().Get("hourly"))
		_, _ = w.Write([]byte(forecastBody))
	}))
	defer srv.Close()

	c := NewClient(testAPIConfig(srv.URL), "America/New_York")
	p, err := c.Fetch(context.Background(), entity.KindForecast, 40.4545, -79.9339)
	require.NoError(t, err)
	require.NotNil(t, p.Hourly)
	assert.Equal(t, 2, p.Hourly.Len())
	assert.Nil(t, p.Hourly.Temperature2m[1])
	assert.Nil(t, p.Hourly.ValuesAt(1)[4])
}

func TestFetch_StatusErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error": true, "reason": "Latitude must be in range"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testAPIConfig(srv.URL), "")
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
	require.Error(t, err)
	assert.Equal(t, FailureStatus, ClassOf(err))
	assert.True(t, exception.IsKind(err, exception.KindFetch))
	assert.False(t, exception.IsFatal(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(currentBody))
	}))
	defer srv.Close()

	c := NewClient(testAPIConfig(srv.URL), "")
	p, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
	require.NoError(t, err)
	assert.NotNil(t, p.Current)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetch_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(testAPIConfig(srv.URL), "")
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
	require.Error(t, err)
	assert.Equal(t, FailureStatus, ClassOf(err))
	assert.True(t, exception.IsTemporary(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetch_MalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `<html>maintenance</html>`,
		"missing current": `{"latitude": 1, "longitude": 2}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewClient(testAPIConfig(srv.URL), "")
			_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
			require.Error(t, err)
			assert.Equal(t, FailureDecode, ClassOf(err))
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testAPIConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	c := NewClient(cfg, "")
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
	require.Error(t, err)
	assert.Equal(t, FailureNetwork, ClassOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetch_InvalidCoordinates(t *testing.T) {
	c := NewClient(testAPIConfig("http://127.0.0.1:1"), "")
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 91, 0)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindFetch))
}

func TestFetch_CachesSuccessfulResponses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(currentBody))
	}))
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.CacheTTLSeconds = 60
	c := NewClient(cfg, "")

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
		require.NoError(t, err)
	}
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 3, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestResponseCache_Expires(t *testing.T) {
	now := time.Date(2026, 1, 19, 10, 0, 0, 0, time.UTC)
	cache := newResponseCache(time.Hour, func() time.Time { return now })
	cache.put("k", &entity.Payload{Timezone: "UTC"})

	_, ok := cache.get("k")
	assert.True(t, ok)
	now = now.Add(time.Hour)
	_, ok = cache.get("k")
	assert.False(t, ok)
}

func TestFetch_CircuitBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.CircuitBreakerThreshold = 2
	cfg.Retry.CircuitBreakerResetSeconds = 60
	c := NewClient(cfg, "")

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
		assert.Equal(t, FailureStatus, ClassOf(err))
	}
	_, err := c.Fetch(context.Background(), entity.KindCurrent, 1, 2)
	assert.Equal(t, FailureCircuitOpen, ClassOf(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestFetchAll_KeepsOrderAndIsolatesFailures(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if r.URL.Query().Get("latitude") == "2.000000" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(currentBody))
	}))
	defer srv.Close()

	cfg := testAPIConfig(srv.URL)
	cfg.Concurrency = 2
	c := NewClient(cfg, "")

	points := []entity.Point{
		{Name: "a", Latitude: 1, Longitude: 1},
		{Name: "b", Latitude: 2, Longitude: 2},
		{Name: "c", Latitude: 3, Longitude: 3},
		{Name: "d", Latitude: 4, Longitude: 4},
	}
	results := c.FetchAll(context.Background(), entity.KindCurrent, points)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, points[i], r.Point)
		if r.Point.Name == "b" {
			assert.Error(t, r.Err)
			assert.Nil(t, r.Payload)
		} else {
			assert.NoError(t, r.Err)
			assert.NotNil(t, r.Payload)
		}
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
