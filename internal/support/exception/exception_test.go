package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/weatherdw/internal/support/exception"
)

func TestPipelineError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := exception.New("openmeteo", exception.KindFetch, "request failed", cause)

	assert.Equal(t, "[openmeteo/fetch] request failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
	assert.NotEmpty(t, err.StackTrace)
}

func TestNewf_TrailingErrorBecomesCause(t *testing.T) {
	cause := errors.New("boom")
	err := exception.Newf("warehouse", exception.KindWrite, "location %d failed", 7, cause)

	assert.Equal(t, "location 7 failed", err.Message)
	assert.Same(t, cause, err.OriginalErr)
}

func TestKindPropagation(t *testing.T) {
	fetchErr := exception.New("openmeteo", exception.KindFetch, "status 500", nil)
	wrapped := fmt.Errorf("point Chelsea: %w", fetchErr)

	assert.Equal(t, exception.KindFetch, exception.KindOf(wrapped))
	assert.True(t, exception.IsKind(wrapped, exception.KindFetch))
	assert.False(t, exception.IsFatal(wrapped))

	cfgErr := exception.New("config", exception.KindConfig, "missing WEATHER_DB_HOST", nil)
	assert.True(t, exception.IsFatal(cfgErr))
	assert.True(t, exception.IsFatal(errors.New("plain")))
	assert.Equal(t, exception.KindInternal, exception.KindOf(errors.New("plain")))
	assert.False(t, exception.IsFatal(nil))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewRetryable("db", exception.KindWrite, "deadlock", nil)))
	assert.True(t, exception.IsTemporary(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, exception.IsTemporary(errors.New("syntax error")))
	assert.False(t, exception.IsTemporary(nil))
}

func TestIsErrorOfType(t *testing.T) {
	err := fmt.Errorf("step: %w", context.DeadlineExceeded)
	assert.True(t, exception.IsErrorOfType(err, "context.DeadlineExceeded"))
	assert.False(t, exception.IsErrorOfType(err, "context.Canceled"))

	pe := exception.New("transform", exception.KindTransform, "dbt run exited 1", nil)
	assert.True(t, exception.IsErrorOfType(pe, "PipelineError.transform"))
	assert.True(t, exception.IsErrorOfType(pe, "exception.PipelineError"))
	assert.False(t, exception.IsErrorOfType(pe, "PipelineError.fetch"))
}
