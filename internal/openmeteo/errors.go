package openmeteo

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureClass classifies why a fetch failed.
type FailureClass string

const (
	// FailureNetwork covers transport errors and timeouts.
	FailureNetwork FailureClass = "network"
	// FailureStatus is a non-2xx HTTP response.
	FailureStatus FailureClass = "status"
	// FailureDecode is a body that is not the expected JSON document.
	FailureDecode FailureClass = "decode"
	// FailureCircuitOpen means the breaker rejected the call without sending it.
	FailureCircuitOpen FailureClass = "circuit_open"
)

// FetchError is the typed failure returned for one point.
type FetchError struct {
	Class      FailureClass
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Class == FailureStatus {
		return fmt.Sprintf("weather api %s failure: HTTP %d", e.Class, e.StatusCode)
	}
	return fmt.Sprintf("weather api %s failure: %v", e.Class, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *FetchError) Retryable() bool {
	switch e.Class {
	case FailureNetwork:
		return true
	case FailureStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// ClassOf returns the failure class of err, or "" when err is not a FetchError.
func ClassOf(err error) FailureClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ""
}
