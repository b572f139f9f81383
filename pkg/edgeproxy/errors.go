package edgeproxy

import (
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of proxy failures.
type ErrorClass string

const (
	// ErrorClassClientMethod is a request with a method other than GET (405).
	ErrorClassClientMethod ErrorClass = "client_method"

	// ErrorClassUpstreamUnavailable is a transport failure reaching the
	// upstream (502).
	ErrorClassUpstreamUnavailable ErrorClass = "upstream_unavailable"

	// ErrorClassUpstreamError is a non-2xx upstream status. It is passed
	// through unchanged and only classified for metrics and logs.
	ErrorClassUpstreamError ErrorClass = "upstream_error"
)

// Response bodies for errors produced by the proxy itself.
const (
	msgMethodNotAllowed = "Method Not Allowed"
	msgUpstreamFailed   = "Upstream fetch failed"
)

// UpstreamError describes an upstream fetch that produced no response.
// Error statuses are passed through and never become an UpstreamError.
type UpstreamError struct {
	Route      string
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s %s: %v", e.Route, e.ErrorClass, e.Err)
	}
	return fmt.Sprintf("upstream %s %s", e.Route, e.ErrorClass)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classify categorizes an upstream outcome. It returns "" for success.
func classify(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassUpstreamUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorClassUpstreamError
	}
	return ""
}
