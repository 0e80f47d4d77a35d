package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes pipeline failures. The kind names double as the
// display prefix in diagnostic summaries.
type ErrorKind string

const (
	// KindConfiguration covers unresolvable transform identifiers and
	// invalid targets. Never retried.
	KindConfiguration ErrorKind = "ConfigurationError"

	// KindValidation covers syntax errors in transform source, missing
	// entry functions and malformed direct-response payloads.
	KindValidation ErrorKind = "ValidationError"

	// KindExecution covers failures raised while running transform code.
	// Caught at the orchestrator boundary, never propagated.
	KindExecution ErrorKind = "ExecutionError"
)

// PipelineError is the canonical error for the transform pipeline.
type PipelineError struct {
	Kind    ErrorKind
	Message string

	// Line and Column locate syntax errors in transform source
	// (1-based, zero when not applicable).
	Line   int
	Column int

	// Field names the offending field for payload validation failures.
	Field string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface as "<Kind>: <message>", falling
// back to the bare kind when the message is empty.
func (e *PipelineError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// HTTPStatus suggests a status code for surfacing this error.
func (e *PipelineError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(msg string) *PipelineError {
	return &PipelineError{Kind: KindConfiguration, Message: msg}
}

// NewValidationError creates a validation error.
func NewValidationError(msg string) *PipelineError {
	return &PipelineError{Kind: KindValidation, Message: msg}
}

// NewExecutionError wraps a failure raised while running transform code.
func NewExecutionError(msg string, err error) *PipelineError {
	return &PipelineError{Kind: KindExecution, Message: msg, Err: err}
}

// AsPipelineError extracts a PipelineError from err, wrapping unknown
// errors as execution errors so every failure carries a kind.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewExecutionError(err.Error(), err)
}
