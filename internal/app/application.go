package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/migration"
	"github.com/tigerroll/weatherdw/internal/scheduler"
	"github.com/tigerroll/weatherdw/internal/server"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

// Command selects what the application does once started.
type Command string

const (
	CommandRun      Command = "run"
	CommandMigrate  Command = "migrate"
	CommandServe    Command = "serve"
	CommandSchedule Command = "schedule"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfigError = 2
	ExitInterrupted = 130
)

// Options are the inputs of RunApplication.
type Options struct {
	Command        Command
	JobName        string
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	JobDefinitions job.DefinitionBytes
}

// RunApplication builds the application for opts.Command, runs it until the
// command finishes or appCtx is cancelled, and returns the process exit code.
func RunApplication(appCtx context.Context, opts Options) int {
	command, err := commandOption(appCtx, opts)
	if err != nil {
		logger.Errorf("%v", err)
		return ExitConfigError
	}

	app := fx.New(
		fx.WithLogger(logger.NewFxLoggerAdapter),
		fx.Supply(
			opts.EmbeddedConfig,
			opts.JobDefinitions,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		Module(),
		command,
	)
	if err := app.Err(); err != nil {
		logger.Errorf("Application setup failed: %v", err)
		return exitCodeFor(err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Errorf("Application start failed: %v", err)
		return exitCodeFor(err)
	}

	var signal fx.ShutdownSignal
	select {
	case signal = <-app.Wait():
	case <-appCtx.Done():
		signal = fx.ShutdownSignal{ExitCode: ExitInterrupted}
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Errorf("Application stop failed: %v", err)
		if signal.ExitCode == ExitOK {
			return ExitFailed
		}
	}
	logger.Infof("Application is shutting down (exit code %d).", signal.ExitCode)
	return signal.ExitCode
}

func commandOption(appCtx context.Context, opts Options) (fx.Option, error) {
	switch opts.Command {
	case CommandRun:
		return fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, runner *job.Runner) {
			name := opts.JobName
			if name == "" {
				name = cfg.Weather.Pipeline.JobName
			}
			runInBackground(lc, sd, appCtx, func(ctx context.Context) int {
				return runJob(ctx, runner, name)
			})
		}), nil
	case CommandMigrate:
		return fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, defs job.Definitions, m migration.Migrator) {
			runInBackground(lc, sd, appCtx, func(ctx context.Context) int {
				return migrateAll(ctx, m, cfg, defs)
			})
		}), nil
	case CommandServe:
		return fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, srv *server.Server) {
			runInBackground(lc, sd, appCtx, func(ctx context.Context) int {
				return serve(ctx, srv, cfg.Weather.Server.Address)
			})
		}), nil
	case CommandSchedule:
		return fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, cfg *config.Config, srv *server.Server, sch *scheduler.Scheduler) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { return sch.Start(appCtx) },
				OnStop: func(context.Context) error {
					sch.Stop()
					return nil
				},
			})
			runInBackground(lc, sd, appCtx, func(ctx context.Context) int {
				return serve(ctx, srv, cfg.Weather.Server.Address)
			})
		}), nil
	}
	return nil, exception.Newf("app", exception.KindConfig, "unknown command '%s' (expected run, migrate, serve or schedule)", opts.Command)
}

// runInBackground starts fn when the application starts and requests
// shutdown with fn's exit code once it returns. Stopping the application
// cancels fn and waits for it.
func runInBackground(lc fx.Lifecycle, sd fx.Shutdowner, appCtx context.Context, fn func(ctx context.Context) int) {
	ctx, cancel := context.WithCancel(appCtx)
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code := ExitFailed
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered: %v", r)
					}
					if ctx.Err() != nil {
						return
					}
					if err := sd.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Errorf("Failed to shut down application: %v", err)
					}
				}()
				code = fn(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runJob(ctx context.Context, runner *job.Runner, name string) int {
	logger.Infof("Starting job '%s'.", name)
	exec, err := runner.Run(ctx, name)
	if exec != nil {
		logger.Infof("Job '%s' (execution %s) finished with status %s, exit status %s in %s.",
			name, exec.ID, exec.Status, exec.ExitStatus, exec.Duration().Round(time.Millisecond))
	}
	if err != nil {
		logger.Errorf("Job '%s' failed: %v", name, err)
	}
	return exitCodeFor(err)
}

// migrateAll applies the migrations to the configured schema and to every
// schema named in a job definition.
func migrateAll(ctx context.Context, m migration.Migrator, cfg *config.Config, defs job.Definitions) int {
	for _, name := range schemaNames(cfg, defs) {
		schema, err := warehouse.ParseSchema(name, cfg.Weather.Pipeline.AllowedSchemas)
		if err != nil {
			logger.Errorf("Schema '%s' rejected: %v", name, err)
			return ExitConfigError
		}
		if err := m.Up(ctx, schema); err != nil {
			logger.Errorf("Migrating schema '%s' failed: %v", name, err)
			return exitCodeFor(err)
		}
		version, dirty, err := m.Version(ctx, schema)
		if err != nil {
			logger.Errorf("Reading migration version of '%s' failed: %v", name, err)
			return exitCodeFor(err)
		}
		logger.Infof("Schema '%s' at migration version %d (dirty=%t).", name, version, dirty)
	}
	return ExitOK
}

func schemaNames(cfg *config.Config, defs job.Definitions) []string {
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" {
			seen[s] = true
		}
	}
	add(cfg.Weather.Database.Schema)
	for _, def := range defs {
		add(def.Properties["schema"])
		for _, el := range def.Flow.Elements {
			add(el.Tasklet.Properties["schema"])
		}
	}
	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

func serve(ctx context.Context, srv *server.Server, addr string) int {
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		logger.Errorf("Dashboard API stopped: %v", err)
		return ExitFailed
	}
	if ctx.Err() != nil {
		return ExitInterrupted
	}
	return ExitOK
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case exception.IsKind(err, exception.KindConfig):
		return ExitConfigError
	}
	return ExitFailed
}
