// Package response provides shared JSON response helpers for HTTP handlers.
package response

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in Envelope.Code so clients can branch without parsing messages.
const (
	CodeValidation    = "VALIDATION"
	CodeInvalidKey    = "INVALID_KEY"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNotFound      = "NOT_FOUND"
	CodeForbidden     = "FORBIDDEN"
	CodeRange         = "RANGE_NOT_SATISFIABLE"
	CodeTooLarge      = "TOO_LARGE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeUpstream      = "UPSTREAM_STORE"
	CodeConfiguration = "CONFIGURATION"
	CodeInternal      = "INTERNAL"
)

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 response with data.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response with data.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error writes an error response with the given status, code and message.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, Envelope{Success: false, Error: message, Code: code})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, CodeValidation, message)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	Error(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
}
