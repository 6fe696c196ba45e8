package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/pipeline"
)

func TestRecorder_RecordSummary(t *testing.T) {
	r := NewRecorder(config.MetricsConfig{Namespace: "weatherdw"})
	done := time.Date(2026, 1, 19, 11, 0, 0, 0, time.UTC)
	r.RecordSummary(pipeline.Summary{
		JobName:           "pittsburghForecastJob",
		Kind:              entity.KindForecast,
		Total:             4,
		Successful:        3,
		Failed:            1,
		HoursWritten:      504,
		RowsCleared:       672,
		CompletedAt:       done,
		ValidationWarning: "tests failed",
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(r.pointsTotal.WithLabelValues("pittsburghForecastJob", "successful")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pointsTotal.WithLabelValues("pittsburghForecastJob", "failed")))
	assert.Equal(t, 75.0, testutil.ToFloat64(r.successRate.WithLabelValues("pittsburghForecastJob")))
	assert.Equal(t, 504.0, testutil.ToFloat64(r.hoursWritten.WithLabelValues("pittsburghForecastJob")))
	assert.Equal(t, 672.0, testutil.ToFloat64(r.rowsCleared.WithLabelValues("pittsburghForecastJob")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.validationWarning.WithLabelValues("pittsburghForecastJob")))
	assert.Equal(t, float64(done.Unix()), testutil.ToFloat64(r.lastCompletedStamp.WithLabelValues("pittsburghForecastJob")))
}

func TestRecorder_ListensToJobsAndSteps(t *testing.T) {
	r := NewRecorder(config.MetricsConfig{Namespace: "weatherdw"})
	exec := job.NewJobExecution("nycCurrentWeatherJob", nil)
	exec.Status = job.StatusCompleted
	step := &job.StepExecution{
		StepName:     "loadWeather",
		JobExecution: exec,
		Status:       job.StatusCompleted,
		ExitStatus:   job.ExitCompletedWithFailures,
		Attempts:     2,
	}

	r.AfterStep(context.Background(), step)
	r.AfterJob(context.Background(), exec)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusTotal.WithLabelValues("nycCurrentWeatherJob", "loadWeather", "COMPLETED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepAttempts.WithLabelValues("nycCurrentWeatherJob", "loadWeather")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusTotal.WithLabelValues("nycCurrentWeatherJob", "COMPLETED")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder(config.MetricsConfig{Namespace: "weatherdw"})
	r.RecordSummary(pipeline.Summary{JobName: "nycCurrentWeatherJob", Total: 1, Successful: 1})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `weatherdw_success_rate_percent{job_name="nycCurrentWeatherJob"} 100`)
}

func TestRecorder_Push(t *testing.T) {
	var paths []string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		paths = append(paths, req.Method+" "+req.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	r := NewRecorder(config.MetricsConfig{Namespace: "weatherdw", PushgatewayURL: gateway.URL})
	require.True(t, r.PushEnabled())
	require.NoError(t, r.Push(context.Background(), "nycCurrentWeatherJob"))
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "PUT /metrics/job/nycCurrentWeatherJob"), paths[0])

	disabled := NewRecorder(config.MetricsConfig{Namespace: "weatherdw"})
	assert.NoError(t, disabled.Push(context.Background(), "x"))
}

func TestRecorder_PushFailureIsRetryable(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	r := NewRecorder(config.MetricsConfig{Namespace: "weatherdw", PushgatewayURL: gateway.URL})
	err := r.Push(context.Background(), "nycCurrentWeatherJob")
	require.Error(t, err)
}

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TracingConfig{Exporter: "none", ServiceName: "weatherdw"})
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))

	_, err = NewTracerProvider(context.Background(), config.TracingConfig{Exporter: "zipkin"})
	assert.Error(t, err)
}
