// Package http provides the REST API over the scale service.
//
// This file implements the Builder Pattern for JSON responses. Every body
// shares one envelope so clients can read data, errors and user facing
// notifications the same way on every endpoint.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is a message the dashboard shows to the operator.
type Notification struct {
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	DurationMs int              `json:"duration_ms,omitempty"`
}

// APIError describes why a request failed. Field and Value are set for
// cell level validation failures.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
}

type envelope struct {
	Data         any           `json:"data,omitempty"`
	Error        *APIError     `json:"error,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode   int
	headers      map[string]string
	data         any
	err          *APIError
	notification *Notification
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the payload.
func (b *ResponseBuilder) Data(v any) *ResponseBuilder {
	b.data = v
	return b
}

// Error sets the error part of the envelope.
func (b *ResponseBuilder) Error(e APIError) *ResponseBuilder {
	b.err = &e
	return b
}

// Notify attaches a notification for the operator.
func (b *ResponseBuilder) Notify(t NotificationType, message string, durationMs int) *ResponseBuilder {
	b.notification = &Notification{Type: t, Message: message, DurationMs: durationMs}
	return b
}

// SuccessNotification is a convenience method for success notifications.
func (b *ResponseBuilder) SuccessNotification(message string) *ResponseBuilder {
	return b.Notify(NotificationSuccess, message, 3000)
}

// ErrorNotification is a convenience method for error notifications.
func (b *ResponseBuilder) ErrorNotification(message string) *ResponseBuilder {
	return b.Notify(NotificationError, message, 5000)
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	body := envelope{Data: b.data, Error: b.err, Notification: b.notification}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		Error(APIError{Code: code, Message: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal_error", message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
}
