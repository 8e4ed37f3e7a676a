package chat

import (
	"errors"
	"fmt"
)

// Kind classifies service failures for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
)

// Error is a typed service failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidArgument builds a caller-fault error.
func NewInvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

// NewNotFound builds a missing-resource error.
func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func invalidArgument(msg string) *Error {
	return NewInvalidArgument(msg)
}

func notFound(msg string) *Error {
	return NewNotFound(msg)
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the failure kind; anything untyped is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf extracts the caller-safe message; untyped errors stay opaque.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Membership failures and missing rooms share one message so callers cannot
// probe whether a room exists.
const noAccessMessage = "no access to chat room"
