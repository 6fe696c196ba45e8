package pipeline

import (
	"context"
	"fmt"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/openmeteo"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

// Fetcher fetches a batch of points; failed points carry their error.
type Fetcher interface {
	FetchAll(ctx context.Context, kind entity.FetchKind, points []entity.Point) []openmeteo.Result
}

// Replacer clears the forecast table of a schema.
type Replacer interface {
	ReplaceAllForecasts(ctx context.Context, schema warehouse.Schema) (int64, error)
}

// Loader writes fetched payloads through the upsert engine. Each point runs
// in its own transaction; a failed point is rolled back and the loop moves on.
type Loader struct {
	txManager database.TransactionManager
	engine    *warehouse.Engine
	replacer  Replacer
}

func NewLoader(txManager database.TransactionManager, engine *warehouse.Engine, replacer Replacer) *Loader {
	return &Loader{txManager: txManager, engine: engine, replacer: replacer}
}

// Load writes results in order and returns one Outcome per result. For
// forecasts the whole table is cleared first, once, and the clear is
// committed before the first point is written. When no point was fetched the
// clear is skipped so that the previous snapshot survives an API outage.
//
// The returned error is reserved for failures that stop the stage: a failed
// clear or a cancelled context.
func (l *Loader) Load(ctx context.Context, kind entity.FetchKind, results []openmeteo.Result) ([]Outcome, int64, error) {
	var cleared int64
	if kind == entity.KindForecast {
		if !anyFetched(results) {
			logger.Warnf("No forecast was fetched; keeping the stored forecast snapshot in %s.", l.engine.Schema())
		} else {
			n, err := l.replacer.ReplaceAllForecasts(ctx, l.engine.Schema())
			if err != nil {
				return nil, 0, err
			}
			cleared = n
		}
	}

	outcomes := make([]Outcome, 0, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return outcomes, cleared, exception.New(moduleName, exception.KindInternal, "load interrupted", err)
		}
		if r.Err != nil || r.Payload == nil {
			err := r.Err
			if err == nil {
				err = exception.New(moduleName, exception.KindFetch, "no payload returned", nil)
			}
			outcomes = append(outcomes, Outcome{Point: r.Point, Stage: StageFetch, Err: err})
			continue
		}

		hours, err := l.loadPoint(ctx, kind, r.Point, r.Payload)
		if err != nil {
			logger.Warnf("Write failed for %s, rolled back: %v", r.Point, err)
			outcomes = append(outcomes, Outcome{Point: r.Point, Stage: StageWrite, Err: err})
			continue
		}
		logger.Debugf("Loaded %s (%d forecast hours).", r.Point, hours)
		outcomes = append(outcomes, Outcome{Point: r.Point, Hours: hours})
	}
	return outcomes, cleared, nil
}

func (l *Loader) loadPoint(ctx context.Context, kind entity.FetchKind, p entity.Point, payload *entity.Payload) (hours int, err error) {
	tx, err := l.txManager.Begin(ctx)
	if err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "begin point transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := l.txManager.Rollback(tx); rbErr != nil {
				logger.Errorf("Rollback for %s failed: %v", p, rbErr)
			}
		}
	}()

	locationID, err := l.engine.ResolveLocation(ctx, tx, p)
	if err != nil {
		return 0, err
	}
	switch kind {
	case entity.KindCurrent:
		err = l.engine.WriteCurrentObservation(ctx, tx, locationID, payload)
	case entity.KindForecast:
		hours, err = l.engine.WriteForecastObservations(ctx, tx, locationID, payload)
	default:
		err = exception.New(moduleName, exception.KindWrite, fmt.Sprintf("unknown fetch kind %q", kind), nil)
	}
	if err != nil {
		return 0, err
	}
	if err = l.txManager.Commit(tx); err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "commit point transaction", err)
	}
	return hours, nil
}

// CompleteOutcomes pads outcomes, the result of a Load that stopped early,
// with one failed Outcome per result it never reached. Unfetched points keep
// their fetch error; the rest fail at the write stage with err.
func CompleteOutcomes(outcomes []Outcome, results []openmeteo.Result, err error) []Outcome {
	for _, r := range results[min(len(outcomes), len(results)):] {
		if r.Err != nil {
			outcomes = append(outcomes, Outcome{Point: r.Point, Stage: StageFetch, Err: r.Err})
			continue
		}
		outcomes = append(outcomes, Outcome{Point: r.Point, Stage: StageWrite, Err: err})
	}
	return outcomes
}

func anyFetched(results []openmeteo.Result) bool {
	for _, r := range results {
		if r.Err == nil && r.Payload != nil {
			return true
		}
	}
	return false
}
