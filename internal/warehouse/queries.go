package warehouse

import (
	"context"
	"fmt"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/domain/model"
)

// Reader runs the read-only queries behind the dashboard API and the export.
type Reader struct {
	exec    database.DBExecutor
	schema  Schema
	dialect Dialect
}

func NewReader(exec database.DBExecutor, schema Schema, dialect Dialect) *Reader {
	return &Reader{exec: exec, schema: schema, dialect: dialect}
}

func (r *Reader) table(name string) string {
	return r.dialect.Table(r.schema, name)
}

// Freshness reports the row count and newest loaded_at of both fact tables.
func (r *Reader) Freshness(ctx context.Context) ([]model.TableFreshness, error) {
	tables := []string{TableCurrentWeather, TableHourlyForecast}
	out := make([]model.TableFreshness, 0, len(tables))
	for _, name := range tables {
		f := model.TableFreshness{Table: name}
		var counts []countRow
		if _, err := r.exec.QueryRaw(ctx, &counts, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", r.table(name))); err != nil {
			return nil, err
		}
		if len(counts) == 1 {
			f.Rows = counts[0].N
		}
		if f.Rows > 0 {
			// Selecting the column itself (not MAX) keeps its declared type on SQLite.
			var latest []model.CurrentWeather
			query := fmt.Sprintf("SELECT loaded_at FROM %s ORDER BY loaded_at DESC LIMIT 1", r.table(name))
			if _, err := r.exec.QueryRaw(ctx, &latest, query); err != nil {
				return nil, err
			}
			if len(latest) == 1 {
				t := latest[0].LoadedAt.UTC()
				f.LastLoaded = &t
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// Locations lists dim_location ordered by name.
func (r *Reader) Locations(ctx context.Context) ([]model.Location, error) {
	var rows []model.Location
	query := fmt.Sprintf(`SELECT location_id, neighborhood_name, group_label, latitude, longitude, created_at, updated_at
FROM %s ORDER BY neighborhood_name`, r.table(TableLocation))
	if _, err := r.exec.QueryRaw(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestCurrent returns the newest current-conditions row of every location.
func (r *Reader) LatestCurrent(ctx context.Context) ([]model.CurrentWeather, error) {
	var rows []model.CurrentWeather
	query := fmt.Sprintf(`SELECT l.neighborhood_name, l.group_label, f.observation_time, f.temperature_2m,
       f.apparent_temperature, f.relative_humidity_2m, f.wind_speed_10m, f.precipitation,
       f.weather_code, f.is_day, f.loaded_at
FROM %[1]s f
JOIN %[2]s l ON l.location_id = f.location_id
WHERE f.observation_time = (SELECT MAX(f2.observation_time) FROM %[1]s f2 WHERE f2.location_id = f.location_id)
ORDER BY l.neighborhood_name`, r.table(TableCurrentWeather), r.table(TableLocation))
	if _, err := r.exec.QueryRaw(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

const forecastSelect = `SELECT f.location_id, l.neighborhood_name, l.group_label, l.latitude, l.longitude,
       f.forecast_time, f.temperature_2m, f.apparent_temperature, f.relative_humidity_2m,
       f.precipitation_probability, f.precipitation, f.snowfall, f.weather_code, f.cloud_cover,
       f.visibility, f.wind_speed_10m, f.wind_direction_10m, f.wind_gusts_10m, f.loaded_at
FROM %s f
JOIN %s l ON l.location_id = f.location_id`

// Forecast returns the stored forecast hours of the named location.
func (r *Reader) Forecast(ctx context.Context, locationName string) ([]model.HourlyForecast, error) {
	var rows []model.HourlyForecast
	query := fmt.Sprintf(forecastSelect+"\nWHERE l.neighborhood_name = ?\nORDER BY f.forecast_time",
		r.table(TableHourlyForecast), r.table(TableLocation))
	if _, err := r.exec.QueryRaw(ctx, &rows, query, locationName); err != nil {
		return nil, err
	}
	return rows, nil
}

// ForecastSnapshot returns every stored forecast hour.
func (r *Reader) ForecastSnapshot(ctx context.Context) ([]model.HourlyForecast, error) {
	var rows []model.HourlyForecast
	query := fmt.Sprintf(forecastSelect+"\nORDER BY f.forecast_time, l.neighborhood_name",
		r.table(TableHourlyForecast), r.table(TableLocation))
	if _, err := r.exec.QueryRaw(ctx, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}
