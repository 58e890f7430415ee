package pipeline

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput          Kind = "InvalidInput"
	KindGenerationUnavailable Kind = "GenerationUnavailable"
	KindGenerationMalformed   Kind = "GenerationMalformed"
	KindForbiddenOperation    Kind = "ForbiddenOperation"
	KindExecutionError        Kind = "ExecutionError"
)

// Error is the only error type returned by Pipeline operations.
type Error struct {
	Kind    Kind
	Message string
	// Keyword is the denylisted word that caused a ForbiddenOperation, if any.
	Keyword string
	// Timeout is set on an ExecutionError caused by the statement timeout.
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a pipeline error, or "" for any other error.
func KindOf(err error) Kind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}
	return ""
}

func invalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}
