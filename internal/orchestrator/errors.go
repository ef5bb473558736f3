package orchestrator

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNoInput          ErrorKind = "no_input"
	KindUnsupportedFile  ErrorKind = "unsupported_file"
	KindExtractionFailed ErrorKind = "extraction_failed"
	KindEmptyContent     ErrorKind = "empty_content"
	KindSessionNotFound  ErrorKind = "session_not_found"
	KindTooManyRounds    ErrorKind = "too_many_rounds"
	KindInternal         ErrorKind = "internal"
)

// Error is a terminal request failure. Nothing is persisted for it.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a terminal error, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
