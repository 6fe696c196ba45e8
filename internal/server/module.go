package server

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/metrics"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

// NewFromConfig builds a Server reading the configured warehouse schema.
func NewFromConfig(cfg *config.Config, conn database.DBConnection, recorder *metrics.Recorder) (*Server, error) {
	db := cfg.Weather.Database
	schema, err := warehouse.ParseSchema(db.Schema, cfg.Weather.Pipeline.AllowedSchemas)
	if err != nil {
		return nil, exception.New("server", exception.KindConfig, "invalid warehouse schema", err)
	}
	dialect, err := warehouse.DialectFor(db.Type)
	if err != nil {
		return nil, exception.New("server", exception.KindConfig, "unsupported warehouse database", err)
	}
	return New(warehouse.NewReader(conn, schema, dialect), Options{
		Schema:         schema.Name(),
		StaleAfter:     cfg.Weather.Server.StaleAfter(),
		AllowedOrigins: cfg.Weather.Server.AllowedOrigins,
		Metrics:        recorder.Handler(),
	}), nil
}

var Module = fx.Module("server", fx.Provide(NewFromConfig))
