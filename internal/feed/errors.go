// Package feed provides an HTTP client for the incident store API with
// error classification, plus a websocket subscription to its change feed.
package feed

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, feed.ErrReassigned) to check.
var (
	ErrBadRequest   = errors.New("feed: bad request")
	ErrUnauthorized = errors.New("feed: unauthorized")
	ErrReassigned   = errors.New("feed: incident not assigned to caller's team")
	ErrNotFound     = errors.New("feed: not found")
	ErrRateLimited  = errors.New("feed: rate limited")
	ErrServerError  = errors.New("feed: server error")

	// ErrOffline is returned before any network call when the connectivity
	// probe reports no link. Callers degrade to local state.
	ErrOffline = errors.New("feed: offline")

	// ErrValidation is returned before any network call when a request
	// payload fails validation.
	ErrValidation = errors.New("feed: invalid payload")
)

// ReassignmentDetail carries the structured body of a 403 response when an
// incident has been reassigned away from the caller's team. Team IDs are
// zero when the server omitted them.
type ReassignmentDetail struct {
	IncidentID     string `json:"incidentId"`
	IncidentTeamID int64  `json:"incidentTeamId"`
	UserTeamID     int64  `json:"userTeamId"`
}

// Advisory returns the user-facing message for the reassignment. The team
// IDs are included only when the server provided both.
func (d *ReassignmentDetail) Advisory() string {
	if d.IncidentTeamID != 0 && d.UserTeamID != 0 {
		return fmt.Sprintf(
			"incident %s is assigned to team %d, but you are logged in under team %d",
			d.IncidentID, d.IncidentTeamID, d.UserTeamID,
		)
	}

	return "this incident is no longer assigned to your team"
}

// APIError wraps a sentinel error with the HTTP status code, the server's
// message, and structured reassignment detail when present.
type APIError struct {
	StatusCode   int
	Message      string
	Reassignment *ReassignmentDetail // non-nil for 403 with structured detail
	Err          error               // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reassignment != nil {
		return fmt.Sprintf("feed: HTTP %d: %s", e.StatusCode, e.Reassignment.Advisory())
	}

	return fmt.Sprintf("feed: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ReassignmentFrom extracts the reassignment detail from an error chain.
// Returns nil when the error is not a reassignment failure.
func ReassignmentFrom(err error) *ReassignmentDetail {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reassignment
	}

	return nil
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrReassigned
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether a GET against the given status should be
// retried. Mutating requests are never retried — the caller owns retry.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
