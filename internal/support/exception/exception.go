// Package exception defines the error type shared by all pipeline stages.
//
// Every error that crosses a stage boundary is a *PipelineError carrying the
// module that raised it and a Kind. The Kind decides propagation: config and
// transform errors fail the stage, fetch and write errors are recorded per
// point, validation errors are only reported.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// Kind classifies a PipelineError.
type Kind string

const (
	KindConfig     Kind = "config"
	KindFetch      Kind = "fetch"
	KindWrite      Kind = "write"
	KindTransform  Kind = "transform"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// PipelineError is the error returned by pipeline components.
type PipelineError struct {
	Module      string
	Kind        Kind
	Message     string
	OriginalErr error
	StackTrace  string

	retryable bool
}

// New creates a non-retryable PipelineError.
func New(module string, kind Kind, message string, originalErr error) *PipelineError {
	return &PipelineError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  captureStack(),
	}
}

// NewRetryable creates a PipelineError that a step retry policy may retry.
func NewRetryable(module string, kind Kind, message string, originalErr error) *PipelineError {
	e := New(module, kind, message, originalErr)
	e.retryable = true
	return e
}

// Newf formats the message; a trailing error argument becomes OriginalErr.
func Newf(module string, kind Kind, format string, a ...interface{}) *PipelineError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			originalErr = err
			a = a[:n-1]
		}
	}
	return New(module, kind, fmt.Sprintf(format, a...), originalErr)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Module, e.Kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Module, e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

func (e *PipelineError) IsRetryable() bool {
	return e.retryable
}

// KindOf returns the Kind of the outermost PipelineError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether any PipelineError in err's chain has kind k.
func IsKind(err error, k Kind) bool {
	return walk(err, func(e error) bool {
		pe, ok := e.(*PipelineError)
		return ok && pe.Kind == k
	})
}

// walk visits err's chain depth first, following joined errors.
func walk(err error, match func(error) bool) bool {
	if err == nil {
		return false
	}
	if match(err) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return walk(u.Unwrap(), match)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if walk(e, match) {
				return true
			}
		}
	}
	return false
}

// IsFatal reports whether err must fail the stage it occurred in.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindFetch, KindWrite, KindValidation:
		return false
	}
	return true
}

// IsTemporary reports whether err looks like a transient condition.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) && pe.retryable {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

var (
	registryMu    sync.RWMutex
	errorRegistry = make(map[string]error)
)

// RegisterErrorType makes a sentinel addressable by name from job definitions
// (retry "retryable-exceptions" lists).
func RegisterErrorType(name string, prototype error) {
	if name == "" || prototype == nil {
		panic("exception: error type registration requires a name and a prototype")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorOfType matches err against a registered sentinel name, a Kind name
// ("PipelineError.fetch") or a concrete Go type name anywhere in the chain.
func IsErrorOfType(err error, name string) bool {
	if err == nil {
		return false
	}
	registryMu.RLock()
	target, ok := errorRegistry[name]
	registryMu.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}
	if kind, found := strings.CutPrefix(name, "PipelineError."); found {
		return IsKind(err, Kind(kind))
	}
	return walk(err, func(e error) bool {
		t := reflect.TypeOf(e)
		return t.String() == name || (t.Kind() == reflect.Ptr && t.Elem().String() == name)
	})
}

func init() {
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
