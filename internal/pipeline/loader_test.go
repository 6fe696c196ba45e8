package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/openmeteo"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/testutil"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

var (
	shadyside  = entity.Point{Name: "Shadyside", Latitude: 40.4545, Longitude: -79.9339}
	bloomfield = entity.Point{Name: "Bloomfield", Latitude: 40.4612, Longitude: -79.9496}
	oakland    = entity.Point{Name: "Central Oakland", Latitude: 40.4366, Longitude: -79.9552}
)

func forecast(hours int) *entity.Payload {
	series := &entity.HourlySeries{}
	start := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)
	for i := 0; i < hours; i++ {
		series.Time = append(series.Time, start.Add(time.Duration(i)*time.Hour).Format("2006-01-02T15:04"))
		series.Temperature2m = append(series.Temperature2m, testutil.Float(float64(i)))
	}
	return &entity.Payload{Timezone: "America/New_York", Hourly: series}
}

func current(ts string) *entity.Payload {
	return &entity.Payload{
		Timezone: "America/New_York",
		Current:  &entity.CurrentConditions{Time: ts, Temperature2m: testutil.Float(-1.5)},
	}
}

func fetchFailure() error {
	return exception.New("openmeteo", exception.KindFetch, "fetch",
		&openmeteo.FetchError{Class: openmeteo.FailureStatus, StatusCode: 503})
}

func TestLoad_FetchFailureDoesNotAbortBatch(t *testing.T) {
	w := testutil.NewWarehouse(t, "pittsburgh")
	loader := pipeline.NewLoader(w.TxManager, w.Engine, w.Replacer)

	results := []openmeteo.Result{
		{Point: shadyside, Payload: forecast(24)},
		{Point: bloomfield, Err: fetchFailure()},
		{Point: oakland, Payload: forecast(24)},
	}
	outcomes, cleared, err := loader.Load(context.Background(), entity.KindForecast, results)
	require.NoError(t, err)
	assert.Zero(t, cleared)

	s := pipeline.Summarize(entity.KindForecast, outcomes, cleared, time.Now())
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 48, s.HoursWritten)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "Bloomfield", s.Failures[0].Point)
	assert.Equal(t, pipeline.StageFetch, s.Failures[0].Stage)

	assert.EqualValues(t, 2, w.Count(t, warehouse.TableLocation))
	assert.EqualValues(t, 48, w.Count(t, warehouse.TableHourlyForecast))
}

func TestLoad_WriteFailureRollsBackOnlyThatPoint(t *testing.T) {
	w := testutil.NewWarehouse(t, "nyc")
	loader := pipeline.NewLoader(w.TxManager, w.Engine, w.Replacer)

	results := []openmeteo.Result{
		{Point: shadyside, Payload: current("2026-01-19T10:15")},
		{Point: bloomfield, Payload: current("")},
		{Point: oakland, Payload: current("2026-01-19T10:15")},
	}
	outcomes, _, err := loader.Load(context.Background(), entity.KindCurrent, results)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.Equal(t, pipeline.StageWrite, outcomes[1].Stage)
	assert.True(t, exception.IsKind(outcomes[1].Err, exception.KindWrite))
	assert.True(t, outcomes[2].OK())

	// The failed point's location insert was rolled back with it.
	assert.EqualValues(t, 2, w.Count(t, warehouse.TableLocation))
	assert.EqualValues(t, 2, w.Count(t, warehouse.TableCurrentWeather))
}

func TestLoad_ForecastClearRunsOncePerLoad(t *testing.T) {
	w := testutil.NewWarehouse(t, "pittsburgh")
	loader := pipeline.NewLoader(w.TxManager, w.Engine, w.Replacer)
	ctx := context.Background()

	_, _, err := loader.Load(ctx, entity.KindForecast, []openmeteo.Result{
		{Point: shadyside, Payload: forecast(10)},
		{Point: bloomfield, Payload: forecast(10)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, w.Count(t, warehouse.TableHourlyForecast))

	outcomes, cleared, err := loader.Load(ctx, entity.KindForecast, []openmeteo.Result{
		{Point: oakland, Payload: forecast(5)},
		{Point: shadyside, Payload: forecast(5)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, cleared)
	assert.Len(t, outcomes, 2)
	assert.EqualValues(t, 10, w.Count(t, warehouse.TableHourlyForecast))
}

type fakeReplacer struct {
	calls int
	err   error
}

func (f *fakeReplacer) ReplaceAllForecasts(ctx context.Context, schema warehouse.Schema) (int64, error) {
	f.calls++
	return 7, f.err
}

func TestLoad_SkipsClearWhenNothingWasFetched(t *testing.T) {
	w := testutil.NewWarehouse(t, "pittsburgh")
	replacer := &fakeReplacer{}
	loader := pipeline.NewLoader(w.TxManager, w.Engine, replacer)

	outcomes, cleared, err := loader.Load(context.Background(), entity.KindForecast, []openmeteo.Result{
		{Point: shadyside, Err: fetchFailure()},
	})
	require.NoError(t, err)
	assert.Zero(t, replacer.calls)
	assert.Zero(t, cleared)
	require.Len(t, outcomes, 1)
	assert.Equal(t, pipeline.StageFetch, outcomes[0].Stage)
}

func TestLoad_FailedClearStopsTheLoad(t *testing.T) {
	w := testutil.NewWarehouse(t, "pittsburgh")
	replacer := &fakeReplacer{err: exception.New("warehouse", exception.KindWrite, "delete existing forecasts", errors.New("disk full"))}
	loader := pipeline.NewLoader(w.TxManager, w.Engine, replacer)

	results := []openmeteo.Result{
		{Point: shadyside, Payload: forecast(3)},
		{Point: bloomfield, Err: fetchFailure()},
	}
	outcomes, _, err := loader.Load(context.Background(), entity.KindForecast, results)
	require.Error(t, err)
	assert.Equal(t, 1, replacer.calls)
	assert.Zero(t, w.Count(t, warehouse.TableHourlyForecast))

	s := pipeline.Summarize(entity.KindForecast, pipeline.CompleteOutcomes(outcomes, results, err), 0, time.Now())
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, pipeline.StageWrite, s.Failures[0].Stage)
	assert.Contains(t, s.Failures[0].Error, "disk full")
	assert.Equal(t, pipeline.StageFetch, s.Failures[1].Stage)
}

func TestCompleteOutcomes_KeepsRecordedOutcomes(t *testing.T) {
	results := []openmeteo.Result{
		{Point: shadyside, Payload: current("2026-01-19T10:15")},
		{Point: oakland, Payload: current("2026-01-19T10:15")},
	}
	done := []pipeline.Outcome{{Point: shadyside}}
	stop := errors.New("load interrupted")

	outcomes := pipeline.CompleteOutcomes(done, results, stop)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].OK())
	assert.Equal(t, oakland, outcomes[1].Point)
	assert.ErrorIs(t, outcomes[1].Err, stop)
}

func TestLoad_BeginFailureIsRecordedPerPoint(t *testing.T) {
	w := testutil.NewWarehouse(t, "nyc")
	txManager := new(testutil.MockTxManager)
	txManager.On("Begin", mock.Anything, mock.Anything).Return(nil, errors.New("too many connections"))
	loader := pipeline.NewLoader(txManager, w.Engine, w.Replacer)

	outcomes, _, err := loader.Load(context.Background(), entity.KindCurrent, []openmeteo.Result{
		{Point: shadyside, Payload: current("2026-01-19T10:15")},
		{Point: oakland, Payload: current("2026-01-19T10:15")},
	})
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.Equal(t, pipeline.StageWrite, o.Stage)
		assert.ErrorContains(t, o.Err, "too many connections")
	}
	txManager.AssertNumberOfCalls(t, "Begin", 2)
	txManager.AssertNotCalled(t, "Rollback", mock.Anything)
}

func TestLoad_StopsOnCancelledContext(t *testing.T) {
	w := testutil.NewWarehouse(t, "nyc")
	loader := pipeline.NewLoader(w.TxManager, w.Engine, w.Replacer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, _, err := loader.Load(ctx, entity.KindCurrent, []openmeteo.Result{
		{Point: shadyside, Payload: current("2026-01-19T10:15")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
}
