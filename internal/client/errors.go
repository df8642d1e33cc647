package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNetwork matches every *NetworkError via errors.Is.
var ErrNetwork = errors.New("network error")

// NetworkError reports a failed call: either the transport failed
// (StatusCode is 0) or the server answered with a non-2xx status.
type NetworkError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func newNetworkError(method, path string, status int, err error) *NetworkError {
	return &NetworkError{Method: method, Path: path, StatusCode: status, Err: err}
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: server returned %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

func statusError(body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "empty response"
	}
	return errors.New(msg)
}
