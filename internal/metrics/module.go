package metrics

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
)

// Module provides the Recorder, registers it as a job and step listener, and
// installs the tracer provider.
var Module = fx.Module("metrics",
	fx.Provide(
		func(cfg *config.Config) *Recorder { return NewRecorder(cfg.Weather.Metrics) },
		func(r *Recorder) job.ListenerResult { return job.ListenerResult{Job: r, Step: r} },
		provideTracerProvider,
	),
	// The provider has no consumers; invoking it installs the global tracer.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
