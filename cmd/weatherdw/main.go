package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/tigerroll/weatherdw/internal/app"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// embeddedConfig is the application's default configuration.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedJobs defines the nycCurrentWeatherJob and pittsburghForecastJob flows.
//
//go:embed resources/job.yaml
var embeddedJobs []byte

const usage = `Usage: weatherdw <command> [args]

Commands:
  run [job]   run one job to completion (default: weather.pipeline.job_name)
  migrate     apply warehouse migrations to every configured schema
  serve       serve the dashboard API
  schedule    run the scheduled jobs hourly and serve the dashboard API
`

func main() {
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(app.ExitConfigError)
	}

	opts := app.Options{
		Command:        app.Command(flag.Arg(0)),
		EnvFilePath:    os.Getenv("ENV_FILE_PATH"),
		EmbeddedConfig: embeddedConfig,
		JobDefinitions: embeddedJobs,
	}
	if opts.Command == app.CommandRun && flag.NArg() > 1 {
		opts.JobName = flag.Arg(1)
	}
	if opts.EnvFilePath == "" {
		opts.EnvFilePath = ".env"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping...", sig)
		cancel()
	}()

	code := app.RunApplication(ctx, opts)
	cancel()
	os.Exit(code)
}
