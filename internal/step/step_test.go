package step

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/metrics"
	"github.com/tigerroll/weatherdw/internal/migration"
	"github.com/tigerroll/weatherdw/internal/openmeteo"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/testutil"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

const testCatalog = `{"neighborhoods": [
  {"name": "Shadyside", "latitude": 40.4545, "longitude": -79.9339},
  {"name": "Bloomfield", "latitude": 40.4612, "longitude": -79.9496},
  {"name": "Central Oakland", "latitude": 40.4366, "longitude": -79.9552}
]}`

// fakeFetcher answers every point with a payload except those listed in fail.
type fakeFetcher struct {
	fail map[string]bool
}

func (f *fakeFetcher) FetchAll(ctx context.Context, kind entity.FetchKind, points []entity.Point) []openmeteo.Result {
	results := make([]openmeteo.Result, len(points))
	for i, p := range points {
		results[i].Point = p
		if f.fail[p.Name] {
			results[i].Err = exception.New("openmeteo", exception.KindFetch, "HTTP 503", nil)
			continue
		}
		if kind == entity.KindCurrent {
			results[i].Payload = &entity.Payload{Current: &entity.CurrentConditions{
				Time: "2026-01-19T10:15", Temperature2m: testutil.Float(-2),
			}}
			continue
		}
		series := &entity.HourlySeries{}
		start := time.Date(2026, 1, 19, 10, 0, 0, 0, time.UTC)
		for h := 0; h < 4; h++ {
			series.Time = append(series.Time, start.Add(time.Duration(h)*time.Hour).Format("2006-01-02T15:04"))
			series.Temperature2m = append(series.Temperature2m, testutil.Float(float64(h)))
		}
		results[i].Payload = &entity.Payload{Hourly: series}
	}
	return results
}

type fixture struct {
	w    *testutil.Warehouse
	deps Deps
	dir  string
}

func newFixture(t *testing.T, schema string) *fixture {
	t.Helper()
	w := testutil.NewWarehouse(t, schema)
	dir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Weather.Database.Type = "sqlite"
	cfg.Weather.Database.Schema = schema
	cfg.Weather.Pipeline.AllowedSchemas = testutil.TestSchemas
	cfg.Weather.Export.Storage.BaseDir = filepath.Join(dir, "export")

	catalogPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))

	return &fixture{
		w:   w,
		dir: dir,
		deps: Deps{
			Config:    cfg,
			Conn:      w.Conn,
			TxManager: w.TxManager,
			Migrator:  migration.NewMigrator(w.Conn),
			Fetcher:   &fakeFetcher{},
			Recorder:  metrics.NewRecorder(config.MetricsConfig{Namespace: "weatherdw"}),
		},
	}
}

func (f *fixture) catalogPath() string { return filepath.Join(f.dir, "catalog.json") }

func (f *fixture) runner(t *testing.T, kind string) *job.Runner {
	t.Helper()
	doc := `
id: testJob
properties:
  kind: ` + kind + `
  catalogPath: ` + f.catalogPath() + `
flow:
  start-element: migrateSchema
  elements:
    migrateSchema:
      tasklet: {ref: migrateSchema}
      transitions: [{on: COMPLETED, to: extractCoordinates}]
    extractCoordinates:
      tasklet: {ref: extractCoordinates}
      transitions: [{on: COMPLETED, to: extractWeather}]
    extractWeather:
      tasklet: {ref: extractWeather}
      transitions: [{on: "*", to: loadWeather}]
    loadWeather:
      tasklet: {ref: loadWeather}
      transitions:
        - {on: FAILED, to: report}
        - {on: "*", to: transform}
    transform:
      tasklet: {ref: transform}
      transitions: [{on: "*", to: report}]
    report:
      tasklet: {ref: report}
      transitions: [{on: "*", to: exportForecast}]
    exportForecast:
      tasklet: {ref: exportForecast}
`
	defs, err := job.LoadDefinitions(job.DefinitionBytes(doc))
	require.NoError(t, err)
	d := f.deps
	return job.NewRunner(job.RunnerParams{
		Definitions: defs,
		Tasklets: []job.NamedTasklet{
			{Ref: RefMigrateSchema, Builder: NewMigrateSchemaBuilder(d)},
			{Ref: RefExtractCoordinates, Builder: NewExtractCoordinatesBuilder(d)},
			{Ref: RefExtractWeather, Builder: NewExtractWeatherBuilder(d)},
			{Ref: RefLoadWeather, Builder: NewLoadWeatherBuilder(d)},
			{Ref: RefTransform, Builder: NewTransformBuilder(d)},
			{Ref: RefReport, Builder: NewReportBuilder(d)},
			{Ref: RefExportForecast, Builder: NewExportForecastBuilder(d)},
		},
	})
}

func TestForecastJob_EndToEnd(t *testing.T) {
	f := newFixture(t, "pittsburgh")
	f.deps.Config.Weather.Export.Enabled = true
	f.deps.Fetcher = &fakeFetcher{fail: map[string]bool{"Bloomfield": true}}

	exec, err := f.runner(t, "forecast").Run(context.Background(), "testJob")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, exec.Status)
	require.Len(t, exec.StepExecutions, 7)

	v, ok := exec.ExecutionContext.Get(KeySummary)
	require.True(t, ok)
	s := v.(pipeline.Summary)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 8, s.HoursWritten)
	assert.Equal(t, "pittsburgh", s.Schema)
	assert.Equal(t, exec.ID, s.RunID)
	assert.Equal(t, "testJob", s.JobName)

	assert.EqualValues(t, 8, f.w.Count(t, warehouse.TableHourlyForecast))

	exported := f.exportedFiles(t)
	// Bare timestamps are New York wall time; all four hours fall on one date.
	require.Len(t, exported, 1)
	assert.True(t, strings.HasPrefix(exported[0], "hourly_forecast/dt=2026-01-19/hourly_forecast_"), exported[0])
	assert.True(t, strings.HasSuffix(exported[0], ".parquet"))
}

func (f *fixture) exportedFiles(t *testing.T) []string {
	t.Helper()
	var exported []string
	root := f.deps.Config.Weather.Export.Storage.BaseDir
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			exported = append(exported, filepath.ToSlash(rel))
		}
		return err
	}))
	return exported
}

func TestForecastJob_ExportKeepsOnlyLatestSnapshot(t *testing.T) {
	f := newFixture(t, "pittsburgh")
	f.deps.Config.Weather.Export.Enabled = true
	root := f.deps.Config.Weather.Export.Storage.BaseDir
	seed := map[string]string{
		"hourly_forecast/dt=2026-01-18/hourly_forecast_20260118_090000.parquet": "old",
		"hourly_forecast/dt=2026-01-19/hourly_forecast_20260118_090000.parquet": "old",
		"hourly_forecast/_SUCCESS":                                             "",
	}
	for name, body := range seed {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	}

	for run := 0; run < 2; run++ {
		exec, err := f.runner(t, "forecast").Run(context.Background(), "testJob")
		require.NoError(t, err)
		require.Equal(t, job.StatusCompleted, exec.Status)
	}

	var snapshots []string
	for _, name := range f.exportedFiles(t) {
		if strings.HasSuffix(name, ".parquet") {
			snapshots = append(snapshots, name)
		}
	}
	require.Len(t, snapshots, 1, "partitions hold %v", snapshots)
	assert.True(t, strings.HasPrefix(snapshots[0], "hourly_forecast/dt=2026-01-19/hourly_forecast_"), snapshots[0])
	assert.NotContains(t, snapshots[0], "20260118_090000")
	assert.FileExists(t, filepath.Join(root, "hourly_forecast", "_SUCCESS"))
	assert.EqualValues(t, 12, f.w.Count(t, warehouse.TableHourlyForecast))
}

func TestIsSnapshotObject(t *testing.T) {
	assert.True(t, isSnapshotObject("dt=2026-01-19/hourly_forecast_20260119_100000.parquet"))
	assert.False(t, isSnapshotObject("_SUCCESS"))
	assert.False(t, isSnapshotObject("dt=2026-01-19/notes.txt"))
	assert.False(t, isSnapshotObject("archive/dt=2026-01-19/hourly_forecast_20260119_100000.parquet"))
	assert.False(t, isSnapshotObject("hourly_forecast_20260119_100000.parquet"))
}

func TestLoadWeather_StoresSummaryWhenInterrupted(t *testing.T) {
	f := newFixture(t, "nyc")
	tasklet, err := NewLoadWeatherBuilder(f.deps)(map[string]string{"kind": "current"})
	require.NoError(t, err)

	pts := []entity.Point{{Name: "Astoria", Latitude: 40.77, Longitude: -73.93}, {Name: "Harlem", Latitude: 40.81, Longitude: -73.95}}
	fetcher := &fakeFetcher{fail: map[string]bool{"Harlem": true}}
	se := newStepExecution(nil)
	se.ExecutionContext().Put(KeyResults, fetcher.FetchAll(context.Background(), entity.KindCurrent, pts))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exit, err := tasklet.Execute(ctx, se)
	require.Error(t, err)
	assert.Equal(t, job.ExitFailed, exit)

	s, ok := summary(se)
	require.True(t, ok)
	assert.Equal(t, 2, s.Total)
	assert.Zero(t, s.Successful)
	assert.Equal(t, 2, s.Failed)
	require.Len(t, s.Failures, 2)
	assert.Equal(t, pipeline.StageWrite, s.Failures[0].Stage)
	assert.Equal(t, pipeline.StageFetch, s.Failures[1].Stage)
	assert.Equal(t, "nyc", s.Schema)
	assert.Zero(t, f.w.Count(t, warehouse.TableCurrentWeather))
}

func TestCurrentJob_SkipsExportAndTransform(t *testing.T) {
	f := newFixture(t, "nyc")
	f.deps.Config.Weather.Export.Enabled = true

	exec, err := f.runner(t, "current").Run(context.Background(), "testJob")
	require.NoError(t, err)

	exits := map[string]job.ExitStatus{}
	for _, se := range exec.StepExecutions {
		exits[se.StepName] = se.ExitStatus
	}
	assert.Equal(t, job.ExitCompleted, exits[RefLoadWeather])
	assert.Equal(t, job.ExitNoOp, exits[RefTransform])
	assert.Equal(t, job.ExitNoOp, exits[RefExportForecast])
	assert.EqualValues(t, 3, f.w.Count(t, warehouse.TableCurrentWeather))
}

func TestJob_FailsOnMissingCatalog(t *testing.T) {
	f := newFixture(t, "nyc")
	require.NoError(t, os.Remove(f.catalogPath()))

	exec, err := f.runner(t, "current").Run(context.Background(), "testJob")
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfig))
	assert.Equal(t, job.StatusFailed, exec.Status)
	assert.Len(t, exec.StepExecutions, 2)
	assert.Zero(t, f.w.Count(t, warehouse.TableCurrentWeather))
}

func newStepExecution(props map[string]string) *job.StepExecution {
	exec := job.NewJobExecution("testJob", props)
	return &job.StepExecution{StepName: "step", JobExecution: exec}
}

func TestSchemaProperty_MustBeAllowed(t *testing.T) {
	f := newFixture(t, "nyc")
	_, err := NewTransformBuilder(f.deps)(map[string]string{"schema": "public; DROP TABLE x"})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfig))

	_, err = NewLoadWeatherBuilder(f.deps)(map[string]string{"kind": "yesterday"})
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}

func TestLoadWeather_RequiresFetchResults(t *testing.T) {
	f := newFixture(t, "nyc")
	tasklet, err := NewLoadWeatherBuilder(f.deps)(map[string]string{"kind": "current"})
	require.NoError(t, err)

	_, err = tasklet.Execute(context.Background(), newStepExecution(nil))
	assert.True(t, exception.IsKind(err, exception.KindInternal))
}

func TestExtractCoordinates_RequiresPath(t *testing.T) {
	f := newFixture(t, "nyc")
	_, err := NewExtractCoordinatesBuilder(f.deps)(map[string]string{})
	assert.True(t, exception.IsKind(err, exception.KindConfig))

	f.deps.Config.Weather.Pipeline.CatalogPath = f.catalogPath()
	tasklet, err := NewExtractCoordinatesBuilder(f.deps)(map[string]string{"catalogPath": "/does/not/exist.json"})
	require.NoError(t, err)
	se := newStepExecution(nil)
	_, err = tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	pts, err := points(se)
	require.NoError(t, err)
	assert.Len(t, pts, 3)
}

type call struct {
	env  []string
	args []string
}

func scriptedRunner(calls *[]call, errs ...error) commandRunner {
	return func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{env: env, args: args})
		i := len(*calls) - 1
		if i < len(errs) {
			return []byte("output line\n"), errs[i]
		}
		return nil, nil
	}
}

func newTransform(t *testing.T, run commandRunner) *transform {
	t.Helper()
	f := newFixture(t, "pittsburgh")
	f.deps.Config.Weather.Transform.Enabled = true
	tasklet, err := NewTransformBuilder(f.deps)(map[string]string{})
	require.NoError(t, err)
	tr := tasklet.(*transform)
	tr.run = run
	return tr
}

func TestTransform_RunFailureIsFatal(t *testing.T) {
	var calls []call
	tr := newTransform(t, scriptedRunner(&calls, errors.New("exit status 2")))

	status, err := tr.Execute(context.Background(), newStepExecution(nil))
	require.Error(t, err)
	assert.Equal(t, job.ExitFailed, status)
	assert.True(t, exception.IsKind(err, exception.KindTransform))
	assert.Len(t, calls, 1)
	assert.Contains(t, calls[0].env, "WEATHER_DB_SCHEMA=pittsburgh")
	assert.Equal(t, []string{"run"}, calls[0].args)
}

func TestTransform_TestFailureOnlyWarns(t *testing.T) {
	var calls []call
	tr := newTransform(t, scriptedRunner(&calls, nil, errors.New("exit status 1")))
	se := newStepExecution(nil)

	status, err := tr.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, job.ExitCompletedWithFailures, status)
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"test"}, calls[1].args)
	warning, ok := se.ExecutionContext().GetString(KeyValidationWarning)
	require.True(t, ok)
	assert.Contains(t, warning, "transformation tests failed")
}

func TestTransform_RunsRealProcess(t *testing.T) {
	tr := newTransform(t, runCommand)
	tr.cfg.Command = "sh"
	tr.cfg.RunArgs = []string{"-c", `test "$WEATHER_DB_SCHEMA" = pittsburgh`}
	tr.cfg.TestArgs = []string{"-c", "exit 3"}
	se := newStepExecution(nil)

	status, err := tr.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, job.ExitCompletedWithFailures, status)
}

func TestReport_MergesValidationWarning(t *testing.T) {
	f := newFixture(t, "nyc")
	tasklet, err := NewReportBuilder(f.deps)(nil)
	require.NoError(t, err)

	se := newStepExecution(nil)
	status, err := tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, job.ExitNoOp, status)

	se.ExecutionContext().Put(KeySummary, pipeline.Summary{JobName: "testJob", Total: 1, Successful: 1})
	se.ExecutionContext().Put(KeyValidationWarning, "tests failed")
	status, err = tasklet.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, job.ExitCompleted, status)
	s, _ := summary(se)
	assert.Equal(t, "tests failed", s.ValidationWarning)
}

func TestCompressionCodec(t *testing.T) {
	for _, name := range []string{"", "snappy", "GZIP", "zstd", "uncompressed"} {
		_, err := compressionCodec(name)
		assert.NoError(t, err, name)
	}
	_, err := compressionCodec("lz4")
	assert.True(t, exception.IsKind(err, exception.KindConfig))
}
