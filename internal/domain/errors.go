package domain

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthorized signals an authentication or authorization failure upstream.
	ErrUnauthorized = errors.New("upstream unauthorized")
	// ErrUnavailable signals a transient upstream failure (throttling, timeout, 5xx).
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrEmptyResult signals a malformed or empty upstream response.
	ErrEmptyResult = errors.New("empty upstream result")
	// ErrInvalidConfig signals a bad endpoint, model or index.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmptyQuery signals a blank user question.
	ErrEmptyQuery = errors.New("empty query")
)

// KindForStatus maps an upstream HTTP status code to a failure kind.
// Returns nil for statuses that carry no specific classification.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return ErrUnavailable
	case status == http.StatusNotFound || status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrInvalidConfig
	}
	return nil
}

// KindOf returns the failure kind sentinel wrapped in err, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrEmptyQuery, ErrUnauthorized, ErrUnavailable, ErrEmptyResult, ErrInvalidConfig} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindLabel returns a short metric label for the failure kind of err.
func KindLabel(err error) string {
	switch KindOf(err) {
	case ErrEmptyQuery:
		return "empty_query"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrUnavailable:
		return "unavailable"
	case ErrEmptyResult:
		return "empty_result"
	case ErrInvalidConfig:
		return "invalid_config"
	}
	return "unknown"
}
