package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failed fetch.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindServer      Kind = "server"
	KindStatus      Kind = "status"
	KindInvalidURL  Kind = "invalid_url"
	KindOther       Kind = "other"
	KindUnknown     Kind = "unknown"
)

// Error is a classified fetch failure.
type Error struct {
	URL    string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (http %d): %v", e.URL, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

func classifyError(url string, err error, statusCode int) *Error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}
	out := &Error{URL: url, Status: statusCode, Err: err, Kind: KindOther}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Kind = KindTimeout
	case errors.As(err, &opErr):
		out.Kind = KindConnection
	case statusCode == http.StatusForbidden:
		out.Kind = KindForbidden
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		out.Kind = KindNotFound
	case statusCode == http.StatusTooManyRequests:
		out.Kind = KindRateLimited
	case statusCode >= http.StatusInternalServerError:
		out.Kind = KindServer
	case statusCode != 0:
		out.Kind = KindStatus
	}
	return out
}
