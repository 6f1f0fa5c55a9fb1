package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindConnect               ErrorKind = "connect"
	KindTransport             ErrorKind = "transport"
	KindInsertion             ErrorKind = "insertion"
	KindQuotaExceeded         ErrorKind = "quota_exceeded"
	KindRefinementUnavailable ErrorKind = "refinement_unavailable"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindBadRequest            ErrorKind = "bad_request"
)

// Sentinels for errors.Is matching against *Error values of the same kind.
var (
	ErrConnect               = &Error{Kind: KindConnect}
	ErrTransport             = &Error{Kind: KindTransport}
	ErrInsertionFailed       = &Error{Kind: KindInsertion}
	ErrRefinementUnavailable = &Error{Kind: KindRefinementUnavailable}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrBadRequest            = &Error{Kind: KindBadRequest}
	ErrQuotaExceeded         = &Error{Kind: KindQuotaExceeded}
)

// Error is a classified failure with an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// QuotaExceededError carries the numbers the client needs for actionable UI.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("weekly limit reached (%d/%d words)", e.Used, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// KindOf returns the kind of err, or "" when err is unclassified.
func KindOf(err error) ErrorKind {
	var quota *QuotaExceededError
	if errors.As(err, &quota) {
		return KindQuotaExceeded
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}
