// Package warehouse owns the write path into the weather star schema:
// dim_location, dim_date, fact_current_weather and fact_hourly_forecast.
//
// Every statement is schema-qualified with a validated Schema and written
// through a database.DBExecutor, so the same code runs inside a caller-owned
// transaction on PostgreSQL, MySQL or SQLite.
package warehouse

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/support/exception"
)

const moduleName = "warehouse"

const (
	TableLocation       = "dim_location"
	TableDate           = "dim_date"
	TableCurrentWeather = "fact_current_weather"
	TableHourlyForecast = "fact_hourly_forecast"
	dateSavepoint       = "resolve_date"
)

var (
	locationColumns = []string{"neighborhood_name", "group_label", "latitude", "longitude", "created_at", "updated_at"}
	dateColumns     = []string{"calendar_date", "year", "month", "day", "day_of_week", "day_name", "week_of_year", "quarter", "is_weekend"}
	currentColumns  = slices.Concat([]string{"location_id", "date_id", "observation_time"}, entity.CurrentFields, []string{"loaded_at"})
	forecastColumns = slices.Concat([]string{"location_id", "date_id", "forecast_time"}, entity.HourlyFields, []string{"loaded_at"})
)

// Engine resolves dimension rows and upserts fact rows for one schema.
type Engine struct {
	schema  Schema
	dialect Dialect
	loc     *time.Location
	now     func() time.Time

	locationUpsert string
	dateLookup     string
	dateInsert     string
	currentUpsert  string
	forecastUpsert string
}

// NewEngine prepares the statements for schema. loc interprets timestamps
// that carry no UTC offset and decides calendar dates.
func NewEngine(schema Schema, dialect Dialect, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{schema: schema, dialect: dialect, loc: loc, now: time.Now}

	e.locationUpsert = dialect.Upsert(dialect.Table(schema, TableLocation), locationColumns,
		[]string{"latitude", "longitude"}, []string{"neighborhood_name", "group_label", "updated_at"})
	e.dateLookup = fmt.Sprintf("SELECT date_id AS id FROM %s WHERE calendar_date = ?", dialect.Table(schema, TableDate))
	e.dateInsert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dialect.Table(schema, TableDate), strings.Join(dateColumns, ", "), placeholders(len(dateColumns)))
	e.currentUpsert = dialect.Upsert(dialect.Table(schema, TableCurrentWeather), currentColumns,
		[]string{"location_id", "observation_time"}, currentColumns[1:])
	e.forecastUpsert = dialect.Upsert(dialect.Table(schema, TableHourlyForecast), forecastColumns,
		[]string{"location_id", "forecast_time"}, forecastColumns[1:])
	return e
}

// Schema returns the schema the engine writes to.
func (e *Engine) Schema() Schema { return e.schema }

// Dialect returns the SQL dialect in use.
func (e *Engine) Dialect() Dialect { return e.dialect }

// ResolveLocation inserts the point or, when its coordinates already exist,
// updates name, group label and updated_at in the same statement. It returns
// the stable location_id.
func (e *Engine) ResolveLocation(ctx context.Context, exec database.DBExecutor, p entity.Point) (int64, error) {
	if strings.TrimSpace(p.Name) == "" {
		return 0, exception.New(moduleName, exception.KindWrite, "location name is empty", nil)
	}
	now := e.now().UTC()
	id, err := e.dialect.InsertReturningID(ctx, exec, e.locationUpsert, "location_id",
		p.Name, nullString(p.GroupLabel), p.Latitude, p.Longitude, now, now)
	if err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, fmt.Sprintf("resolve location %s", p), err)
	}
	return id, nil
}

// ResolveDate returns the dim_date key for day's calendar date, inserting the
// row with its derived attributes when absent. A concurrent insert of the
// same date is absorbed by rolling back to a savepoint and reading the
// winner's row.
func (e *Engine) ResolveDate(ctx context.Context, tx database.Tx, day time.Time) (int64, error) {
	attrs := DeriveDate(day)
	if id, ok, err := e.lookupDate(ctx, tx, attrs.Date); err != nil || ok {
		return id, err
	}

	if err := tx.Savepoint(dateSavepoint); err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "create savepoint for date insert", err)
	}
	id, err := e.dialect.InsertReturningID(ctx, tx, e.dateInsert, "date_id",
		attrs.Date, attrs.Year, attrs.Month, attrs.Day, attrs.DayOfWeek, attrs.DayName,
		attrs.WeekOfYear, attrs.Quarter, attrs.IsWeekend)
	if err == nil {
		return id, nil
	}
	if !e.dialect.IsUniqueViolation(err) {
		return 0, exception.New(moduleName, exception.KindWrite, fmt.Sprintf("insert date %s", attrs.Date.Format(time.DateOnly)), err)
	}
	if rbErr := tx.RollbackToSavepoint(dateSavepoint); rbErr != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "roll back to date savepoint", rbErr)
	}
	id, ok, err := e.lookupDate(ctx, tx, attrs.Date)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, exception.New(moduleName, exception.KindWrite,
			fmt.Sprintf("date %s vanished after unique violation", attrs.Date.Format(time.DateOnly)), nil)
	}
	return id, nil
}

func (e *Engine) lookupDate(ctx context.Context, exec database.DBExecutor, date time.Time) (int64, bool, error) {
	var rows []idRow
	if _, err := exec.QueryRaw(ctx, &rows, e.dateLookup, date); err != nil {
		return 0, false, exception.New(moduleName, exception.KindWrite, fmt.Sprintf("look up date %s", date.Format(time.DateOnly)), err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].ID, true, nil
}

// WriteCurrentObservation upserts one current-conditions row keyed by
// (location_id, observation_time). Missing measurements are stored as NULL.
func (e *Engine) WriteCurrentObservation(ctx context.Context, tx database.Tx, locationID int64, payload *entity.Payload) error {
	if payload == nil || payload.Current == nil {
		return exception.New(moduleName, exception.KindWrite, "payload has no current conditions", nil)
	}
	if strings.TrimSpace(payload.Current.Time) == "" {
		return exception.New(moduleName, exception.KindWrite, "current conditions have no observation time", nil)
	}
	loc := e.locationFor(payload)
	observed, err := ParseTimestamp(payload.Current.Time, loc)
	if err != nil {
		return exception.New(moduleName, exception.KindWrite, "parse observation time", err)
	}
	dateID, err := e.ResolveDate(ctx, tx, observed.In(loc))
	if err != nil {
		return err
	}

	args := make([]interface{}, 0, len(currentColumns))
	args = append(args, locationID, dateID, observed)
	args = append(args, payload.Current.Values()...)
	args = append(args, e.now().UTC())
	if _, err := tx.ExecuteRaw(ctx, e.currentUpsert, args...); err != nil {
		return exception.New(moduleName, exception.KindWrite,
			fmt.Sprintf("upsert current weather for location %d at %s", locationID, observed.Format(time.RFC3339)), err)
	}
	return nil
}

// WriteForecastObservations upserts one row per hour of the series keyed by
// (location_id, forecast_time) and returns the number of hours written.
func (e *Engine) WriteForecastObservations(ctx context.Context, tx database.Tx, locationID int64, payload *entity.Payload) (int, error) {
	if payload == nil || payload.Hourly == nil || payload.Hourly.Len() == 0 {
		return 0, exception.New(moduleName, exception.KindWrite, "forecast payload has no hourly time index", nil)
	}
	loc := e.locationFor(payload)
	hourly := payload.Hourly
	loadedAt := e.now().UTC()
	dateIDs := make(map[string]int64)

	written := 0
	for i, raw := range hourly.Time {
		forecastTime, err := ParseTimestamp(raw, loc)
		if err != nil {
			return written, exception.New(moduleName, exception.KindWrite, fmt.Sprintf("parse forecast time at index %d", i), err)
		}
		local := forecastTime.In(loc)
		dayKey := local.Format(time.DateOnly)
		dateID, ok := dateIDs[dayKey]
		if !ok {
			if dateID, err = e.ResolveDate(ctx, tx, local); err != nil {
				return written, err
			}
			dateIDs[dayKey] = dateID
		}

		args := make([]interface{}, 0, len(forecastColumns))
		args = append(args, locationID, dateID, forecastTime)
		args = append(args, hourly.ValuesAt(i)...)
		args = append(args, loadedAt)
		if _, err := tx.ExecuteRaw(ctx, e.forecastUpsert, args...); err != nil {
			return written, exception.New(moduleName, exception.KindWrite,
				fmt.Sprintf("upsert forecast for location %d at %s", locationID, forecastTime.Format(time.RFC3339)), err)
		}
		written++
	}
	return written, nil
}

// locationFor prefers the time zone reported in the payload.
func (e *Engine) locationFor(payload *entity.Payload) *time.Location {
	if payload.Timezone != "" && payload.Timezone != "GMT" {
		if loc, err := time.LoadLocation(payload.Timezone); err == nil {
			return loc
		}
	}
	return e.loc
}

func nullString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
