package telemetry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no data exists for a location.
var ErrNotFound = errors.New("no telemetry data for location")

// ErrUnknownLocation is returned when a location id is not registered.
var ErrUnknownLocation = errors.New("unknown location")

// FetchErrorKind classifies adapter failures. Transient kinds are worth
// retrying at the scheduler level; permanent kinds are logged and the
// location is skipped for the tick.
type FetchErrorKind string

const (
	FetchTimeout             FetchErrorKind = "timeout"
	FetchRateLimited         FetchErrorKind = "rate_limited"
	FetchUpstreamUnavailable FetchErrorKind = "upstream_unavailable"
	FetchMalformedResponse   FetchErrorKind = "malformed_response"
)

// FetchError is the typed failure an adapter returns instead of a Reading.
type FetchError struct {
	Kind     FetchErrorKind
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure is likely to clear on its own.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FetchTimeout, FetchRateLimited, FetchUpstreamUnavailable:
		return true
	}
	return false
}

// NewFetchError wraps err with its classification and originating provider.
func NewFetchError(kind FetchErrorKind, provider string, err error) *FetchError {
	return &FetchError{Kind: kind, Provider: provider, Err: err}
}

// IsTransientFetch reports whether err is a transient FetchError.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient()
}
