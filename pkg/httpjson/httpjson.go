// Package httpjson provides the JSON response envelope used by all HTTP
// handlers: plain payloads on success, a single structured error object on
// failure.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// ContentType is the media type written on every response.
const ContentType = "application/json; charset=utf-8"

// Error is the wire form of a failed request.
type Error struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

func (e Error) Error() string {
	if e.Detail != "" {
		return e.Code + ": " + e.Detail
	}
	return e.Code
}

// Write encodes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope, deriving the HTTP status from the
// error itself.
func WriteError(w http.ResponseWriter, e Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	Write(w, status, map[string]Error{"error": e})
}

// WriteNoContent writes a 204 No Content response (typically for DELETE).
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Common error constructors

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return Error{Status: http.StatusBadRequest, Code: "bad_request", Detail: detail}
}

// ErrNotFound creates a 404 Not Found error.
func ErrNotFound(detail string) Error {
	return Error{Status: http.StatusNotFound, Code: "not_found", Detail: detail}
}

// ErrValidation creates a 422 error naming the offending field.
func ErrValidation(field, detail string) Error {
	return Error{Status: http.StatusUnprocessableEntity, Code: "validation_error", Detail: detail, Field: field}
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "an internal error occurred"
	}
	return Error{Status: http.StatusInternalServerError, Code: "internal_error", Detail: detail}
}
