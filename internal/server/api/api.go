// Package api adapts handlers that return a Response to http.Handler.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPHandler is a handler whose outcome, including any error, is carried by
// the returned Response.
type HTTPHandler func(w http.ResponseWriter, r *http.Request) Response

func (fn HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := fn(w, r)

	if res.Error != nil {
		slog.Error(res.Error.Error(), "method", r.Method, "path", r.URL.Path, "code", res.Code)
	}

	if err := res.Encode(w); err != nil {
		slog.Error(err.Error())
	}
}

// Response is the outcome of a handler. Error is logged and never sent.
// Data, when set, is the whole JSON body; otherwise Message is sent as
// {"error": Message} for failures and {"status": Message} for successes.
type Response struct {
	Error   error
	Code    int
	Message string
	Data    any
}

// Encode writes the status code and JSON body.
func (r Response) Encode(w http.ResponseWriter) error {
	code := r.Code
	if code == 0 {
		code = http.StatusOK
	}

	body := r.Data
	if body == nil {
		key := "status"
		if code >= http.StatusBadRequest {
			key = "error"
		}
		body = map[string]string{key: r.Message}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}

// BadPayload is the 400 response for a missing or malformed body.
func BadPayload(err error) Response {
	return Response{Error: err, Code: http.StatusBadRequest, Message: "bad_payload"}
}

// Unauthorized is the 401 response for a missing or invalid bearer token.
func Unauthorized(err error) Response {
	return Response{Error: err, Code: http.StatusUnauthorized, Message: "unauthorized"}
}

// Internal is the 500 response for storage failures.
func Internal(err error) Response {
	return Response{Error: err, Code: http.StatusInternalServerError, Message: "internal_error"}
}
