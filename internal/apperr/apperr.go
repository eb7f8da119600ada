// Package apperr defines the error taxonomy shared by the render pipeline.
// Every error that crosses a component boundary carries a Code so callers can
// decide between retrying, degrading, or reporting to the user.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code categorizes an error.
type Code string

const (
	CodeQueueUnavailable    Code = "QUEUE_UNAVAILABLE"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeRenderFailure       Code = "RENDER_FAILURE"
	CodeJobNotFound         Code = "JOB_NOT_FOUND"
	CodeNotificationFailure Code = "NOTIFICATION_FAILURE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeBusy                Code = "BUSY"
)

// Error is a coded error with the failing operation attached.
type Error struct {
	Code    Code
	Message string
	// Op is the operation that failed, e.g. "queue.enqueue".
	Op     string
	Err    error
	Fields map[string]any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField attaches a context field.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus maps the code onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeJobNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeQueueUnavailable, CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates an error with the given code.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, op, format string, args ...any) *Error {
	return New(code, op, fmt.Sprintf(format, args...))
}

// Wrap wraps err, keeping its code if it already has one. Uncoded errors
// become RenderFailure.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	code := CodeRenderFailure
	var e *Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code Code, op, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

func InvalidInput(op, message string) *Error {
	return New(CodeInvalidInput, op, message)
}

func QueueUnavailable(op string, err error) *Error {
	return &Error{Code: CodeQueueUnavailable, Op: op, Message: "job queue unavailable", Err: err}
}

func JobNotFound(jobID string) *Error {
	return New(CodeJobNotFound, "queue.status", "job not found").WithField("jobId", jobID)
}

// NotFound reports a missing collaborator record.
func NotFound(resource, id string) *Error {
	return Newf(CodeNotFound, resource+".get", "%s not found: %s", resource, id).
		WithField("resource", resource).
		WithField("id", id)
}

// CodeOf extracts the code of err. Uncoded errors report RenderFailure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeRenderFailure
}

// HTTPStatus extracts the response status of err.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message of err without wrapped causes.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsQueueUnavailable(err error) bool { return Is(err, CodeQueueUnavailable) }
func IsInvalidInput(err error) bool     { return Is(err, CodeInvalidInput) }
func IsJobNotFound(err error) bool      { return Is(err, CodeJobNotFound) }
func IsNotFound(err error) bool         { return Is(err, CodeNotFound) }
