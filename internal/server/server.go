// Package server exposes the warehouse to the dashboard: data freshness,
// locations, latest conditions and stored forecasts as JSON, plus health and
// Prometheus endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tigerroll/weatherdw/internal/domain/model"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// Freshness states reported by /api/status.
const (
	StatusNoData = "no_data"
	StatusStale  = "stale"
	StatusFresh  = "fresh"
)

// Store is the read side of the warehouse.
type Store interface {
	Freshness(ctx context.Context) ([]model.TableFreshness, error)
	Locations(ctx context.Context) ([]model.Location, error)
	LatestCurrent(ctx context.Context) ([]model.CurrentWeather, error)
	Forecast(ctx context.Context, locationName string) ([]model.HourlyForecast, error)
}

// Options configure a Server.
type Options struct {
	Schema         string
	StaleAfter     time.Duration
	AllowedOrigins []string
	Metrics        http.Handler
}

// Server serves the dashboard API.
type Server struct {
	store Store
	opts  Options
	now   func() time.Time
}

func New(store Store, opts Options) *Server {
	return &Server{store: store, opts: opts, now: time.Now}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics)
	}
	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Get("/locations", s.handleLocations)
		api.Get("/current", s.handleCurrent)
		api.Get("/forecast", s.handleForecast)
	})
	return r
}

type tableStatus struct {
	model.TableFreshness
	Status string `json:"status"`
}

type statusResponse struct {
	Schema      string        `json:"schema"`
	Status      string        `json:"status"`
	LastUpdated *time.Time    `json:"last_updated,omitempty"`
	StaleAfter  string        `json:"stale_after"`
	Tables      []tableStatus `json:"tables"`
}

// handleStatus reports no_data when no fact table holds rows, stale when the
// newest load is older than StaleAfter and fresh otherwise.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.Freshness(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}

	now := s.now()
	resp := statusResponse{Schema: s.opts.Schema, Status: StatusNoData, StaleAfter: s.opts.StaleAfter.String()}
	for _, t := range tables {
		resp.Tables = append(resp.Tables, tableStatus{TableFreshness: t, Status: s.classify(t.Rows, t.LastLoaded, now)})
		if t.LastLoaded != nil && (resp.LastUpdated == nil || t.LastLoaded.After(*resp.LastUpdated)) {
			last := *t.LastLoaded
			resp.LastUpdated = &last
		}
	}
	if resp.LastUpdated != nil {
		resp.Status = s.classify(1, resp.LastUpdated, now)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) classify(rows int64, lastLoaded *time.Time, now time.Time) string {
	switch {
	case rows == 0 || lastLoaded == nil:
		return StatusNoData
	case s.opts.StaleAfter > 0 && now.Sub(*lastLoaded) > s.opts.StaleAfter:
		return StatusStale
	}
	return StatusFresh
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Locations(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.LatestCurrent(r.Context())
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("location")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'location' is required"})
		return
	}
	rows, err := s.store.Forecast(r.Context(), name)
	if err != nil {
		s.unavailable(w, r, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no forecast stored for '" + name + "'", "status": StatusNoData})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	logger.Errorf("%s %s: warehouse query failed: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "warehouse unavailable"})
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Encoding response failed: %v", err)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Infof("Dashboard API listening on %s.", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
