// Package pipeline loads fetched weather into the warehouse one point at a
// time and aggregates the per-point outcomes of a run into a Summary.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/weatherdw/internal/domain/entity"
)

const moduleName = "pipeline"

// Stage names where a point failed.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageWrite Stage = "write"
)

// Outcome is the result of one point. Hours is the number of forecast hours
// written; it stays zero for current conditions.
type Outcome struct {
	Point entity.Point
	Hours int
	Stage Stage
	Err   error
}

// OK reports whether the point was fetched and committed.
func (o Outcome) OK() bool { return o.Err == nil }

// PointFailure is the reportable form of a failed Outcome.
type PointFailure struct {
	Point string `json:"point"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// Summary aggregates one run.
type Summary struct {
	RunID             string           `json:"run_id"`
	JobName           string           `json:"job_name"`
	Kind              entity.FetchKind `json:"kind"`
	Schema            string           `json:"schema"`
	Total             int              `json:"total"`
	Successful        int              `json:"successful"`
	Failed            int              `json:"failed"`
	HoursWritten      int              `json:"hours_written"`
	RowsCleared       int64            `json:"rows_cleared"`
	CompletedAt       time.Time        `json:"completed_at"`
	ValidationWarning string           `json:"validation_warning,omitempty"`
	Failures          []PointFailure   `json:"failures,omitempty"`
}

// Summarize counts outcomes. It performs no I/O.
func Summarize(kind entity.FetchKind, outcomes []Outcome, rowsCleared int64, completedAt time.Time) Summary {
	s := Summary{
		Kind:        kind,
		Total:       len(outcomes),
		RowsCleared: rowsCleared,
		CompletedAt: completedAt,
	}
	for _, o := range outcomes {
		if o.OK() {
			s.Successful++
			s.HoursWritten += o.Hours
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, PointFailure{Point: o.Point.Name, Stage: o.Stage, Error: o.Err.Error()})
	}
	return s
}

// SuccessRate is the percentage of points that succeeded; 0 for an empty run.
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

// String renders the multi-line report that is logged at the end of a run.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather %s load summary (job %s, run %s, schema %s)\n", s.Kind, s.JobName, s.RunID, s.Schema)
	fmt.Fprintf(&b, "  points:        %d total, %d successful, %d failed (%.1f%% success)\n",
		s.Total, s.Successful, s.Failed, s.SuccessRate())
	if s.Kind == entity.KindForecast {
		fmt.Fprintf(&b, "  forecast rows: %d written, %d cleared\n", s.HoursWritten, s.RowsCleared)
	}
	fmt.Fprintf(&b, "  completed at:  %s", s.CompletedAt.Format(time.RFC3339))
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "\n  failed %s (%s): %s", f.Point, f.Stage, f.Error)
	}
	if s.ValidationWarning != "" {
		fmt.Fprintf(&b, "\n  WARNING: %s", s.ValidationWarning)
	}
	return b.String()
}
