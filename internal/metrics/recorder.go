// Package metrics records job runs and load summaries as Prometheus metrics
// and configures OpenTelemetry tracing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/pipeline"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

const moduleName = "metrics"

// Recorder owns a private registry so that tests and the Pushgateway see only
// weatherdw series.
type Recorder struct {
	registry       *prometheus.Registry
	pushgatewayURL string

	jobDurationSeconds  *prometheus.HistogramVec
	jobStatusTotal      *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusTotal     *prometheus.CounterVec
	stepAttempts        *prometheus.GaugeVec

	pointsTotal        *prometheus.GaugeVec
	successRate        *prometheus.GaugeVec
	hoursWritten       *prometheus.GaugeVec
	rowsCleared        *prometheus.GaugeVec
	validationWarning  *prometheus.GaugeVec
	lastCompletedStamp *prometheus.GaugeVec
}

func NewRecorder(cfg config.MetricsConfig) *Recorder {
	ns := cfg.Namespace
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry:       registry,
		pushgatewayURL: cfg.PushgatewayURL,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "job_duration_seconds",
			Help:      "Duration of job runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"job_name", "status"}),
		jobStatusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "job_runs_total",
			Help:      "Finished job runs by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_duration_seconds",
			Help:      "Duration of step runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "exit_status"}),
		stepStatusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "step_runs_total",
			Help:      "Finished step runs by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepAttempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "step_attempts",
			Help:      "Attempts used by the last run of a step.",
		}, []string{"job_name", "step_name"}),
		pointsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "points",
			Help:      "Points processed by the last load, by outcome.",
		}, []string{"job_name", "outcome"}),
		successRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "success_rate_percent",
			Help:      "Share of points loaded successfully by the last load.",
		}, []string{"job_name"}),
		hoursWritten: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "forecast_hours_written",
			Help:      "Hourly forecast rows written by the last load.",
		}, []string{"job_name"}),
		rowsCleared: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "forecast_rows_cleared",
			Help:      "Forecast rows removed before the last load.",
		}, []string{"job_name"}),
		validationWarning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "validation_warning",
			Help:      "1 when the last transformation tests failed.",
		}, []string{"job_name"}),
		lastCompletedStamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "last_load_timestamp_seconds",
			Help:      "Completion time of the last load.",
		}, []string{"job_name"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds, r.jobStatusTotal,
		r.stepDurationSeconds, r.stepStatusTotal, r.stepAttempts,
		r.pointsTotal, r.successRate, r.hoursWritten, r.rowsCleared,
		r.validationWarning, r.lastCompletedStamp,
	)
	return r
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) BeforeJob(ctx context.Context, e *job.JobExecution) {}

func (r *Recorder) AfterJob(ctx context.Context, e *job.JobExecution) {
	r.jobStatusTotal.WithLabelValues(e.JobName, string(e.Status)).Inc()
	r.jobDurationSeconds.WithLabelValues(e.JobName, string(e.Status)).Observe(e.Duration().Seconds())
}

func (r *Recorder) BeforeStep(ctx context.Context, s *job.StepExecution) {}

func (r *Recorder) AfterStep(ctx context.Context, s *job.StepExecution) {
	jobName := s.JobExecution.JobName
	r.stepStatusTotal.WithLabelValues(jobName, s.StepName, string(s.Status)).Inc()
	r.stepDurationSeconds.WithLabelValues(jobName, s.StepName, string(s.ExitStatus)).Observe(s.Duration().Seconds())
	r.stepAttempts.WithLabelValues(jobName, s.StepName).Set(float64(s.Attempts))
}

var (
	_ job.JobListener  = (*Recorder)(nil)
	_ job.StepListener = (*Recorder)(nil)
)

// RecordSummary publishes the outcome of a load.
func (r *Recorder) RecordSummary(s pipeline.Summary) {
	r.pointsTotal.WithLabelValues(s.JobName, "successful").Set(float64(s.Successful))
	r.pointsTotal.WithLabelValues(s.JobName, "failed").Set(float64(s.Failed))
	r.successRate.WithLabelValues(s.JobName).Set(s.SuccessRate())
	r.hoursWritten.WithLabelValues(s.JobName).Set(float64(s.HoursWritten))
	r.rowsCleared.WithLabelValues(s.JobName).Set(float64(s.RowsCleared))
	warning := 0.0
	if s.ValidationWarning != "" {
		warning = 1
	}
	r.validationWarning.WithLabelValues(s.JobName).Set(warning)
	if !s.CompletedAt.IsZero() {
		r.lastCompletedStamp.WithLabelValues(s.JobName).Set(float64(s.CompletedAt.Unix()))
	}
}

// PushEnabled reports whether a Pushgateway is configured.
func (r *Recorder) PushEnabled() bool {
	return r.pushgatewayURL != ""
}

// Push sends the registry to the Pushgateway under the given job name. It
// is a no-op without a configured gateway.
func (r *Recorder) Push(ctx context.Context, jobName string) error {
	if !r.PushEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := push.New(r.pushgatewayURL, jobName).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return exception.NewRetryable(moduleName, exception.KindInternal, "push metrics to "+r.pushgatewayURL, err)
	}
	logger.Debugf("Metrics for '%s' pushed to %s.", jobName, r.pushgatewayURL)
	return nil
}
