package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/weatherdw/internal/support/exception"
)

// RetryPolicy re-runs a failed step. Errors are retried when they are marked
// retryable or match one of RetryableExceptions (see exception.IsErrorOfType).
type RetryPolicy struct {
	MaxAttempts           int      `yaml:"max-attempts"`
	InitialIntervalMillis int      `yaml:"initial-interval-millis"`
	Factor                float64  `yaml:"factor,omitempty"`
	RetryableExceptions   []string `yaml:"retryable-exceptions,omitempty"`
}

func (p *RetryPolicy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max-attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialIntervalMillis < 0 {
		return fmt.Errorf("retry initial-interval-millis must not be negative")
	}
	if p.Factor != 0 && p.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1, got %g", p.Factor)
	}
	return nil
}

// Attempts is the total number of executions allowed; a nil policy allows one.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether err may succeed on another attempt. A
// cancelled context is never retried.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if p == nil || err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *exception.PipelineError
	if errors.As(err, &pe) && pe.IsRetryable() {
		return true
	}
	for _, name := range p.RetryableExceptions {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// Backoff is the wait before attempt+1, growing by Factor per attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	d := time.Duration(p.InitialIntervalMillis) * time.Millisecond
	if p.Factor > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Factor)
		}
	}
	return d
}
