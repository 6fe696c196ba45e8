package step

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// commandRunner runs an external process and returns its combined output.
type commandRunner func(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// transform runs the transformation project against the loaded schema. A
// failed run fails the step; failed tests only leave a validation warning
// for the report.
type transform struct {
	cfg    config.TransformConfig
	schema string
	run    commandRunner
}

func NewTransformBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		schema, err := d.schema(p)
		if err != nil {
			return nil, err
		}
		return &transform{cfg: d.Config.Weather.Transform, schema: schema.Name(), run: runCommand}, nil
	}
}

func (t *transform) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	if !t.cfg.Enabled {
		logger.Infof("Transformation is disabled; skipping.")
		return job.ExitNoOp, nil
	}
	if t.cfg.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutMinutes)*time.Minute)
		defer cancel()
	}
	env := []string{"WEATHER_DB_SCHEMA=" + t.schema}
	if t.cfg.WorkDir != "" {
		env = append(env, "DBT_PROJECT_DIR="+t.cfg.WorkDir)
	}

	out, err := t.run(ctx, t.cfg.WorkDir, env, t.cfg.Command, t.cfg.RunArgs...)
	logOutput(t.cfg.Command, t.cfg.RunArgs, out)
	if err != nil {
		return job.ExitFailed, exception.New(moduleName, exception.KindTransform,
			"transformation run failed: "+commandLine(t.cfg.Command, t.cfg.RunArgs), err)
	}

	if len(t.cfg.TestArgs) > 0 {
		out, err = t.run(ctx, t.cfg.WorkDir, env, t.cfg.Command, t.cfg.TestArgs...)
		logOutput(t.cfg.Command, t.cfg.TestArgs, out)
		if err != nil {
			warning := exception.New(moduleName, exception.KindValidation,
				"transformation tests failed: "+commandLine(t.cfg.Command, t.cfg.TestArgs), err)
			logger.Warnf("%v", warning)
			se.ExecutionContext().Put(KeyValidationWarning, warning.Error())
			return job.ExitCompletedWithFailures, nil
		}
	}
	return job.ExitCompleted, nil
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

func logOutput(name string, args []string, out []byte) {
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			logger.Debugf("[%s] %s", commandLine(name, args), line)
		}
	}
}
