package scheduler

import (
	"go.uber.org/fx"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
)

func newFromConfig(cfg *config.Config, runner *job.Runner) *Scheduler {
	return New(runner, cfg.Weather.Schedule.Cron, cfg.Weather.Schedule.Jobs, cfg.Location())
}

var Module = fx.Module("scheduler", fx.Provide(newFromConfig))
