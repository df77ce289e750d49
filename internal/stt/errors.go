package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnconfigured = errors.New("unconfigured")
	ErrUnreachable  = errors.New("unreachable")
	ErrRateLimited  = errors.New("rate limited")
	ErrMalformed    = errors.New("malformed")
)

// ProviderError is a failed provider call. Kind is one of ErrUnconfigured,
// ErrUnreachable, ErrRateLimited or ErrMalformed.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(provider string, kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func unconfigured(provider, what string) *ProviderError {
	return newError(provider, ErrUnconfigured, errors.New(what))
}

// statusError classifies a non-2xx provider response.
func statusError(provider string, status int, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	err := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(provider, ErrUnconfigured, err)
	case status == http.StatusTooManyRequests:
		return newError(provider, ErrRateLimited, err)
	case status == http.StatusRequestTimeout || status >= 500:
		return newError(provider, ErrUnreachable, err)
	default:
		return newError(provider, ErrMalformed, err)
	}
}

// transportError classifies a failed round trip.
func transportError(provider string, err error) *ProviderError {
	return newError(provider, ErrUnreachable, err)
}

// AsProviderError normalizes any error returned by a provider call. Errors that
// are not already a *ProviderError are treated as the provider being
// unreachable.
func AsProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(provider, ErrUnreachable, fmt.Errorf("timed out: %w", err))
	}
	return newError(provider, ErrUnreachable, err)
}

// Attempt is one provider call made by a Chain.
type Attempt struct {
	Provider string
	Err      error
	Elapsed  time.Duration
}

// AllFailedError is returned when every provider in a chain failed.
type AllFailedError struct {
	Attempts  []Attempt
	Detection *Detection
}

func (e *AllFailedError) Error() string {
	return "all providers failed: " + e.Details()
}

// Details names every failed attempt in chain order.
func (e *AllFailedError) Details() string {
	if len(e.Attempts) == 0 {
		return "no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Err.Error())
	}
	return strings.Join(parts, "; ")
}

func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
