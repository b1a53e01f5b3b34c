// Package errors provides CourseDB's structured error taxonomy: typed
// codes with context and an origin stack trace, distinct enough that
// callers can pattern-match on Code rather than parsing messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code identifies one of the taxonomy's error kinds.
type Code string

const (
	// CodeInvalidID marks an id that is empty, all-whitespace, or
	// contains an underscore.
	CodeInvalidID Code = "INVALID_ID"
	// CodeInvalidContent marks a malformed archive: bad base64, bad zip
	// layout, bad JSON/HTML, or zero rows produced.
	CodeInvalidContent Code = "INVALID_CONTENT"
	// CodeInvalidQuery marks a query that fails shape, key, or
	// type validation.
	CodeInvalidQuery Code = "INVALID_QUERY"
	// CodeNotFound marks a reference to a dataset id that does not
	// exist in the store.
	CodeNotFound Code = "NOT_FOUND"
	// CodeResultTooLarge marks a well-formed query whose result
	// exceeds the row cap.
	CodeResultTooLarge Code = "RESULT_TOO_LARGE"
	// CodeInternal marks an I/O or decoder fault outside ingest, or
	// any other fault with no client-actionable cause.
	CodeInternal Code = "INTERNAL"
)

// CourseDBError is the base error type for every error CourseDB
// surfaces across a component boundary.
type CourseDBError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame is one stack frame captured at error construction.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *CourseDBError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause, so errors.Is/As see through it.
func (e *CourseDBError) Unwrap() error {
	return e.Cause
}

// Is matches on Code alone, ignoring message and context, so callers
// can do `errors.Is(err, cerrors.New(cerrors.CodeNotFound, ""))`.
func (e *CourseDBError) Is(target error) bool {
	var t *CourseDBError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithContext attaches a diagnostic key-value pair.
func (e *CourseDBError) WithContext(key string, value interface{}) *CourseDBError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a CourseDBError with the given code and message.
func New(code Code, message string) *CourseDBError {
	return &CourseDBError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap attaches a code and message to an existing error.
func Wrap(err error, code Code, message string) *CourseDBError {
	if err == nil {
		return nil
	}
	return &CourseDBError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *CourseDBError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack renders the captured stack trace for server-side logs.
func (e *CourseDBError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// InvalidID reports a malformed dataset id.
func InvalidID(id string) *CourseDBError {
	return New(CodeInvalidID, "dataset id must be non-empty, non-whitespace, and contain no underscore").
		WithContext("id", id)
}

// InvalidContent wraps an ingest-time fault as a client-facing content error.
func InvalidContent(reason string) *CourseDBError {
	return New(CodeInvalidContent, reason)
}

// InvalidContentf wraps an ingest-time fault with a formatted reason.
func InvalidContentf(format string, args ...interface{}) *CourseDBError {
	return New(CodeInvalidContent, fmt.Sprintf(format, args...))
}

// InvalidQuery reports a query validation failure.
func InvalidQuery(reason string) *CourseDBError {
	return New(CodeInvalidQuery, reason)
}

// InvalidQueryf reports a query validation failure with a formatted reason.
func InvalidQueryf(format string, args ...interface{}) *CourseDBError {
	return New(CodeInvalidQuery, fmt.Sprintf(format, args...))
}

// NotFound reports a missing dataset id.
func NotFound(id string) *CourseDBError {
	return New(CodeNotFound, "no such dataset").WithContext("id", id)
}

// ResultTooLarge reports a result set over the row cap.
func ResultTooLarge(count, max int) *CourseDBError {
	return New(CodeResultTooLarge, "result exceeds maximum row count").
		WithContext("rows", count).
		WithContext("max", max)
}

// Internal wraps an unexpected I/O or decoder fault.
func Internal(err error) *CourseDBError {
	return Wrap(err, CodeInternal, "internal error")
}

// CodeOf extracts the Code from err, defaulting to CodeInternal when
// err is not a *CourseDBError.
func CodeOf(err error) Code {
	var e *CourseDBError
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a Code to the HTTP status spec.md §6/§7 assigns it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidID, CodeInvalidContent, CodeInvalidQuery, CodeResultTooLarge:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
