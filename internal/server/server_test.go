package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/domain/model"
	"github.com/tigerroll/weatherdw/internal/server"
	"github.com/tigerroll/weatherdw/internal/testutil"
)

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestStatus_NoDataOnEmptyWarehouse(t *testing.T) {
	w := testutil.NewWarehouse(t, "nyc")
	h := server.New(w.Reader, server.Options{Schema: "nyc", StaleAfter: time.Hour}).Handler()

	rec, body := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.StatusNoData, body["status"])
	assert.Equal(t, "nyc", body["schema"])
	assert.Nil(t, body["last_updated"])
	assert.Len(t, body["tables"], 2)
}

func TestStatus_FreshAfterLoad(t *testing.T) {
	w := testutil.NewWarehouse(t, "nyc")
	p := entity.Point{Name: "Manhattan - Chelsea", Latitude: 40.7465, Longitude: -74.0014}
	w.InTx(t, func(tx database.Tx) error {
		id, err := w.Engine.ResolveLocation(context.Background(), tx, p)
		if err != nil {
			return err
		}
		return w.Engine.WriteCurrentObservation(context.Background(), tx, id, &entity.Payload{
			Current: &entity.CurrentConditions{Time: "2026-01-19T10:15", Temperature2m: testutil.Float(-3)},
		})
	})
	h := server.New(w.Reader, server.Options{Schema: "nyc", StaleAfter: time.Hour}).Handler()

	_, body := get(t, h, "/api/status")
	assert.Equal(t, server.StatusFresh, body["status"])
	assert.NotNil(t, body["last_updated"])

	rec, _ := get(t, h, "/api/current")
	require.Equal(t, http.StatusOK, rec.Code)
	var current []model.CurrentWeather
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	require.Len(t, current, 1)
	assert.Equal(t, "Manhattan - Chelsea", current[0].NeighborhoodName)

	rec, _ = get(t, h, "/api/locations")
	var locations []model.Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locations))
	assert.Len(t, locations, 1)
}

type fakeStore struct {
	freshness []model.TableFreshness
	forecast  []model.HourlyForecast
	err       error
}

func (f *fakeStore) Freshness(context.Context) ([]model.TableFreshness, error) {
	return f.freshness, f.err
}

func (f *fakeStore) Locations(context.Context) ([]model.Location, error) { return nil, f.err }

func (f *fakeStore) LatestCurrent(context.Context) ([]model.CurrentWeather, error) { return nil, f.err }

func (f *fakeStore) Forecast(_ context.Context, name string) ([]model.HourlyForecast, error) {
	return f.forecast, f.err
}

func TestStatus_StaleWhenNewestLoadIsOld(t *testing.T) {
	old := time.Now().Add(-3 * time.Hour)
	store := &fakeStore{freshness: []model.TableFreshness{
		{Table: "fact_current_weather", Rows: 10, LastLoaded: &old},
		{Table: "fact_hourly_forecast", Rows: 0},
	}}
	h := server.New(store, server.Options{StaleAfter: 2 * time.Hour}).Handler()

	_, body := get(t, h, "/api/status")
	assert.Equal(t, server.StatusStale, body["status"])
	tables := body["tables"].([]interface{})
	assert.Equal(t, server.StatusStale, tables[0].(map[string]interface{})["status"])
	assert.Equal(t, server.StatusNoData, tables[1].(map[string]interface{})["status"])
}

func TestAPI_WarehouseUnavailable(t *testing.T) {
	h := server.New(&fakeStore{err: errors.New("connection refused")}, server.Options{}).Handler()
	for _, target := range []string{"/api/status", "/api/locations", "/api/current", "/api/forecast?location=x"} {
		rec, _ := get(t, h, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestForecast(t *testing.T) {
	store := &fakeStore{forecast: []model.HourlyForecast{{NeighborhoodName: "Shadyside", Temperature2m: testutil.Float(1.5)}}}
	h := server.New(store, server.Options{}).Handler()

	rec, _ := get(t, h, "/api/forecast")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, h, "/api/forecast?location=Shadyside")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"temperature_2m":1.5`)

	store.forecast = nil
	rec, body := get(t, h, "/api/forecast?location=Nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, server.StatusNoData, body["status"])
}

func TestHealthzMetricsAndCORS(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("up 1\n")) })
	h := server.New(&fakeStore{}, server.Options{Metrics: metrics, AllowedOrigins: []string{"https://dash.example.com"}}).Handler()

	rec, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = get(t, h, "/metrics")
	assert.Equal(t, "up 1\n", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.New(&fakeStore{}, server.Options{}).ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
