package step

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/weatherdw/internal/adapter/storage"
	_ "github.com/tigerroll/weatherdw/internal/adapter/storage/gcs"
	_ "github.com/tigerroll/weatherdw/internal/adapter/storage/local"
	"github.com/tigerroll/weatherdw/internal/config"
	"github.com/tigerroll/weatherdw/internal/domain/entity"
	"github.com/tigerroll/weatherdw/internal/domain/model"
	"github.com/tigerroll/weatherdw/internal/job"
	"github.com/tigerroll/weatherdw/internal/support/exception"
	"github.com/tigerroll/weatherdw/internal/support/logger"
	"github.com/tigerroll/weatherdw/internal/warehouse"
)

type storageOpener func(ctx context.Context, cfg storage.StorageConfig) (storage.StorageConnection, error)

// exportForecast writes the stored forecast snapshot as Parquet files, one
// per forecast date, under <base>/dt=YYYY-MM-DD/.
type exportForecast struct {
	deps  Deps
	props Properties
	cfg   config.ExportConfig
	open  storageOpener
}

func NewExportForecastBuilder(d Deps) job.TaskletBuilder {
	return func(props map[string]string) (job.Tasklet, error) {
		p, err := bindProperties(props)
		if err != nil {
			return nil, err
		}
		return &exportForecast{deps: d, props: p, cfg: d.Config.Weather.Export, open: storage.Open}, nil
	}
}

func (t *exportForecast) Execute(ctx context.Context, se *job.StepExecution) (job.ExitStatus, error) {
	if !t.cfg.Enabled {
		logger.Infof("Forecast export is disabled; skipping.")
		return job.ExitNoOp, nil
	}
	if kind, err := t.props.fetchKind(); err != nil || kind != entity.KindForecast {
		logger.Infof("Job '%s' does not load forecasts; nothing to export.", se.JobExecution.JobName)
		return job.ExitNoOp, nil
	}
	codec, err := compressionCodec(t.cfg.Compression)
	if err != nil {
		return job.ExitFailed, err
	}
	schema, err := t.deps.schema(t.props)
	if err != nil {
		return job.ExitFailed, err
	}
	dialect, err := t.deps.dialect()
	if err != nil {
		return job.ExitFailed, err
	}

	rows, err := warehouse.NewReader(t.deps.Conn, schema, dialect).ForecastSnapshot(ctx)
	if err != nil {
		return job.ExitFailed, err
	}
	if len(rows) == 0 {
		logger.Infof("Forecast table in '%s' is empty; nothing to export.", schema)
		return job.ExitNoOp, nil
	}

	conn, err := t.open(ctx, t.cfg.Storage)
	if err != nil {
		return job.ExitFailed, exception.New(moduleName, exception.KindConfig, "failed to open export storage", err)
	}

	partitions := partitionByDate(rows, t.deps.Config.Location())
	stamp := t.deps.now().Format("20060102_150405")
	var result error
	written := 0
	current := make(map[string]bool, len(partitions))
	for _, dt := range sortedKeys(partitions) {
		objectName := path.Join(t.cfg.OutputBaseDir, "dt="+dt, fmt.Sprintf(snapshotPattern, stamp))
		if err := writePartition(ctx, conn, objectName, partitions[dt], codec); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		current[objectName] = true
		written += len(partitions[dt])
		logger.Debugf("Exported %d rows to %s.", len(partitions[dt]), objectName)
	}
	if result == nil {
		if err := pruneSnapshots(ctx, conn, t.cfg.OutputBaseDir, current); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := conn.Close(); err != nil {
		result = multierror.Append(result, exception.New(moduleName, exception.KindWrite, "close export storage", err))
	}
	if result != nil {
		return job.ExitFailed, exception.New(moduleName, exception.KindWrite, "forecast export incomplete", result)
	}
	logger.Infof("Exported %d forecast rows in %d partitions to %s storage.", written, len(partitions), conn.Type())
	return job.ExitCompleted, nil
}

const snapshotPattern = "hourly_forecast_%s.parquet"

// pruneSnapshots deletes every snapshot object below baseDir that was not
// written by the current run. Objects not shaped like dt=*/hourly_forecast_*
// are left alone.
func pruneSnapshots(ctx context.Context, conn storage.StorageConnection, baseDir string, keep map[string]bool) error {
	prefix := strings.Trim(path.Clean(baseDir), "/")
	if prefix == "." {
		prefix = ""
	} else if prefix != "" {
		prefix += "/"
	}
	var stale []string
	err := conn.ListObjects(ctx, "", prefix, func(objectName string) error {
		if keep[objectName] || !isSnapshotObject(strings.TrimPrefix(objectName, prefix)) {
			return nil
		}
		stale = append(stale, objectName)
		return nil
	})
	if err != nil {
		return exception.New(moduleName, exception.KindWrite, "list previous forecast snapshots", err)
	}

	var result error
	for _, objectName := range stale {
		if err := conn.DeleteObject(ctx, "", objectName); err != nil {
			result = multierror.Append(result, exception.New(moduleName, exception.KindWrite, "delete previous snapshot "+objectName, err))
			continue
		}
		logger.Debugf("Deleted previous forecast snapshot %s.", objectName)
	}
	if len(stale) > 0 {
		logger.Infof("Removed %d previous forecast snapshot objects.", len(stale))
	}
	return result
}

func isSnapshotObject(rel string) bool {
	dir, file := path.Split(rel)
	if !strings.HasPrefix(dir, "dt=") || strings.Count(dir, "/") != 1 {
		return false
	}
	ok, _ := path.Match(fmt.Sprintf(snapshotPattern, "*"), file)
	return ok
}

func partitionByDate(rows []model.HourlyForecast, loc *time.Location) map[string][]model.ForecastExportRow {
	partitions := make(map[string][]model.ForecastExportRow)
	for _, r := range rows {
		dt := r.ForecastTime.In(loc).Format("2006-01-02")
		partitions[dt] = append(partitions[dt], r.ToExportRow())
	}
	return partitions
}

func sortedKeys(m map[string][]model.ForecastExportRow) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writePartition(ctx context.Context, conn storage.StorageConnection, objectName string, rows []model.ForecastExportRow, codec parquet.CompressionCodec) (err error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(model.ForecastExportRow), 1)
	if err != nil {
		return exception.New(moduleName, exception.KindWrite, "create parquet writer for "+objectName, err)
	}
	pw.CompressionType = codec
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return exception.New(moduleName, exception.KindWrite, "write parquet row to "+objectName, err)
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = exception.New(moduleName, exception.KindWrite, "finish parquet file "+objectName, fmt.Errorf("panic: %v", r))
			}
		}()
		if stopErr := pw.WriteStop(); stopErr != nil {
			err = exception.New(moduleName, exception.KindWrite, "finish parquet file "+objectName, stopErr)
		}
	}()
	if err != nil {
		return err
	}

	if err := conn.Upload(ctx, "", objectName, buf, "application/x-parquet"); err != nil {
		return exception.NewRetryable(moduleName, exception.KindWrite, "upload "+objectName, err)
	}
	return nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "zstd":
		return parquet.CompressionCodec_ZSTD, nil
	case "uncompressed", "none":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, exception.Newf(moduleName, exception.KindConfig, "unsupported parquet compression '%s'", name)
}
