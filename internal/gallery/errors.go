package gallery

import (
	"errors"
	"fmt"

	"reimagine/internal/provider"
)

// Kind classifies gallery failures so transports can map them to status codes.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindProviderError    Kind = "provider_error"
	KindNoImageProduced  Kind = "no_image_produced"
	KindFetchFailed      Kind = "fetch_failed"
	KindConsistencyFault Kind = "consistency_fault"
	KindInternal         Kind = "internal"
)

// Error is the error type returned by every Service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the gallery kind of err. Untyped errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindInternal
}

func badRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error) error {
	return &Error{Kind: KindInternal, Err: err}
}

func consistencyFault(message string, err error) error {
	return &Error{Kind: KindConsistencyFault, Message: message, Err: err}
}

// fromFailure keeps the provider's message verbatim.
func fromFailure(err error) error {
	var failure *provider.Failure
	if !errors.As(err, &failure) {
		return &Error{Kind: KindProviderError, Message: err.Error()}
	}
	kind := KindProviderError
	switch failure.Kind {
	case provider.FailureNoImageProduced:
		kind = KindNoImageProduced
	case provider.FailureFetchError:
		kind = KindFetchFailed
	}
	return &Error{Kind: kind, Message: failure.Message}
}
