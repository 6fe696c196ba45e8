package warehouse

import (
	"context"
	"fmt"

	"github.com/tigerroll/weatherdw/internal/adapter/database"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
)

// ForecastReplacer clears fact_hourly_forecast before a forecast load. The
// forecast table holds only the latest snapshot, so the clear must run once
// per load and commit before any forecast row of that load is written.
type ForecastReplacer struct {
	txManager database.TransactionManager
	dialect   Dialect
}

func NewForecastReplacer(txManager database.TransactionManager, dialect Dialect) *ForecastReplacer {
	return &ForecastReplacer{txManager: txManager, dialect: dialect}
}

type countRow struct {
	N int64 `gorm:"column:n"`
}

// ReplaceAllForecasts counts and deletes every forecast row in schema inside
// its own committed transaction and returns the number of rows removed.
func (r *ForecastReplacer) ReplaceAllForecasts(ctx context.Context, schema Schema) (cleared int64, err error) {
	table := r.dialect.Table(schema, TableHourlyForecast)

	tx, err := r.txManager.Begin(ctx)
	if err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "begin forecast clear", err)
	}
	defer func() {
		if err != nil {
			if rbErr := r.txManager.Rollback(tx); rbErr != nil {
				logger.Errorf("Rollback of forecast clear on %s failed: %v", table, rbErr)
			}
		}
	}()

	var counts []countRow
	if _, err = tx.QueryRaw(ctx, &counts, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table)); err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "count existing forecasts", err)
	}
	if len(counts) == 1 {
		cleared = counts[0].N
	}
	if _, err = tx.ExecuteRaw(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "delete existing forecasts", err)
	}
	if err = r.txManager.Commit(tx); err != nil {
		return 0, exception.New(moduleName, exception.KindWrite, "commit forecast clear", err)
	}
	logger.Infof("Cleared %d forecast rows from %s.", cleared, table)
	return cleared, nil
}
